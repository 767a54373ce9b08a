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

// Package sinks builds the dispatchers writing the output of a sink vertex.
package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/config"
	"github.com/numaproj/numastream/pkg/forward"
	natsclient "github.com/numaproj/numastream/pkg/shared/clients/nats"
	redisclient "github.com/numaproj/numastream/pkg/shared/clients/redis"
	"github.com/numaproj/numastream/pkg/shared/logging"
	"github.com/numaproj/numastream/pkg/sinks/blackhole"
	filesink "github.com/numaproj/numastream/pkg/sinks/file"
	kafkasink "github.com/numaproj/numastream/pkg/sinks/kafka"
	logsink "github.com/numaproj/numastream/pkg/sinks/logger"
	natssink "github.com/numaproj/numastream/pkg/sinks/nats"
	redissink "github.com/numaproj/numastream/pkg/sinks/redis"
)

// Sinker is a forward.Dispatcher writing to outside of the graph. Close flushes what is still
// pending once the forwarder has stopped.
type Sinker interface {
	forward.Dispatcher
	forward.Closer
}

// NewSinker builds the sinker of a sink vertex shard. A vertex without a sink configured logs
// what it receives.
func NewSinker(ctx context.Context, vertexName string, shard int, conf *config.SinkConfig) (Sinker, error) {
	logger := logging.FromContext(ctx)
	if conf == nil {
		conf = &config.SinkConfig{Type: config.SinkTypeLog}
	}
	var (
		sinker Sinker
		err    error
	)
	switch conf.Type {
	case config.SinkTypeLog:
		sinker, err = asSinker(logsink.NewToLog(vertexName, shard, logsink.WithLogger(logger)))
	case config.SinkTypeBlackhole:
		sinker = blackhole.NewBlackhole(vertexName, shard)
	case config.SinkTypeKafka:
		k := conf.Kafka
		if k == nil {
			return nil, fmt.Errorf("kafka sink of vertex %q has no settings", vertexName)
		}
		sinker, err = asSinker(kafkasink.NewToKafka(vertexName, shard, k.Topic, k.Brokers, kafkasink.WithLogger(logger), kafkasink.WithConfig(k.Config)))
	case config.SinkTypeRedis:
		r := conf.Redis
		if r == nil {
			return nil, fmt.Errorf("redis sink of vertex %q has no settings", vertexName)
		}
		var opts []redisclient.Option
		if r.MaxLength > 0 {
			opts = append(opts, redisclient.WithMaxLength(r.MaxLength))
		}
		client := redisclient.NewRedisClientFromEnv(r.Addrs...)
		sinker, err = asSinker(redissink.NewRedisSink(vertexName, shard, client, r.Stream, redissink.WithLogger(logger), redissink.WithStreamOptions(opts...)))
		if err != nil {
			_ = client.Close()
		}
	case config.SinkTypeNats:
		n := conf.Nats
		if n == nil {
			return nil, fmt.Errorf("nats sink of vertex %q has no settings", vertexName)
		}
		client, cerr := natsclient.NewNATSClient(ctx, n.URL)
		if cerr != nil {
			return nil, cerr
		}
		sinker, err = asSinker(natssink.NewToNats(vertexName, shard, client, n.Subject, natssink.WithLogger(logger)))
		if err != nil {
			client.Close()
		}
	case config.SinkTypeFile:
		f := conf.File
		if f == nil {
			return nil, fmt.Errorf("file sink of vertex %q has no settings", vertexName)
		}
		sinker, err = asSinker(filesink.NewToFile(vertexName, shard, f.Path, filesink.WithLogger(logger)))
	default:
		return nil, fmt.Errorf("unrecognized sink type %q", conf.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build the %s sink of vertex %q: %w", conf.Type, vertexName, err)
	}
	logger.Infow("Built sink", zap.String("type", conf.Type), zap.String("vertex", vertexName), zap.Int("shard", shard))
	return sinker, nil
}

// asSinker drops the typed nil a failed constructor returns.
func asSinker[T Sinker](s T, err error) (Sinker, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
