/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sources

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/config"
	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/sources/generator"
	"github.com/numaproj/numastream/pkg/sources/kafka"
)

// Sourcer is a forward.Source reading from outside of the graph.
type Sourcer interface {
	forward.Source
	forward.Closer
}

// Starter is implemented by sourcers connecting in the background before Take can succeed.
type Starter interface {
	Start(ctx context.Context) error
}

// NewSourcer builds the sourcer of a source vertex shard.
func NewSourcer(vertexName string, shard int, conf *config.SourceConfig, logger *zap.SugaredLogger) (Sourcer, error) {
	if conf == nil {
		return nil, fmt.Errorf("no source configured for vertex %q", vertexName)
	}
	switch conf.Type {
	case config.SourceTypeGenerator:
		var opts []generator.Option
		if g := conf.Generator; g != nil {
			if g.ReadsPerUnit > 0 {
				opts = append(opts, generator.WithReadsPerUnit(g.ReadsPerUnit))
			}
			if g.TimeUnit > 0 {
				opts = append(opts, generator.WithTimeunit(g.TimeUnit))
			}
			if g.KeyCount > 0 {
				opts = append(opts, generator.WithKeyCount(g.KeyCount))
			}
			if g.Limit > 0 {
				opts = append(opts, generator.WithLimit(int64(g.Limit)))
			}
		}
		gen, err := generator.NewMemGen(vertexName, shard, opts...)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case config.SourceTypeKafka:
		k := conf.Kafka
		if k == nil {
			return nil, fmt.Errorf("kafka source of vertex %q has no settings", vertexName)
		}
		opts := []kafka.Option{kafka.WithLogger(logger), kafka.WithConfig(k.Config)}
		if k.ConsumerGroup != "" {
			opts = append(opts, kafka.WithGroupName(k.ConsumerGroup))
		}
		ks, err := kafka.NewKafkaSource(vertexName, shard, k.Topic, k.Brokers, opts...)
		if err != nil {
			return nil, err
		}
		return ks, nil
	default:
		return nil, fmt.Errorf("unrecognized source type %q", conf.Type)
	}
}
