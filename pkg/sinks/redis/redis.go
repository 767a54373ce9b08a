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

// Package redis implements a sink appending events to a Redis stream.
package redis

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	redisclient "github.com/numaproj/numastream/pkg/shared/clients/redis"
	"github.com/numaproj/numastream/pkg/shared/logging"
	sharedutil "github.com/numaproj/numastream/pkg/shared/util"
)

// RedisSink is a sink appending the event values to a redis stream.
type RedisSink struct {
	name     string
	instance string
	stream   string
	client   *redisclient.RedisClient
	options  *redisclient.Options
	backoff  wait.Backoff
	logger   *zap.SugaredLogger
}

var _ forward.Dispatcher = (*RedisSink)(nil)

type Option func(sink *RedisSink) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(rs *RedisSink) error {
		rs.logger = log
		return nil
	}
}

// WithRetryBackoff sets the backoff of failed appends
func WithRetryBackoff(b wait.Backoff) Option {
	return func(rs *RedisSink) error {
		rs.backoff = b
		return nil
	}
}

// WithStreamOptions sets how entries are appended
func WithStreamOptions(opts ...redisclient.Option) Option {
	return func(rs *RedisSink) error {
		for _, o := range opts {
			o.Apply(rs.options)
		}
		return nil
	}
}

// NewRedisSink returns RedisSink type.
func NewRedisSink(vertexName string, shard int, client *redisclient.RedisClient, stream string, opts ...Option) (*RedisSink, error) {
	rs := &RedisSink{
		name:     vertexName,
		instance: graph.InstanceName(vertexName, shard),
		stream:   stream,
		client:   client,
		options:  redisclient.DefaultOptions(),
		backoff:  sharedutil.DefaultRetryBackoff,
	}
	for _, o := range opts {
		if err := o(rs); err != nil {
			return nil, err
		}
	}
	if rs.logger == nil {
		rs.logger = logging.NewLogger()
	}
	if stream == "" {
		return nil, fmt.Errorf("stream is required")
	}
	rs.logger = rs.logger.With("sinkType", "redis", "stream", stream)
	return rs, nil
}

// Dispatch appends the event value carried by msg to the stream, retrying with backoff.
// Messages without an event are skipped.
func (rs *RedisSink) Dispatch(ctx context.Context, msg isb.Message) error {
	p, ok := isb.GetPayload[isb.EventPayload](msg)
	if !ok {
		return nil
	}
	err := sharedutil.RetryWithBackoff(ctx, rs.backoff, func(ctx context.Context) error {
		id, err := rs.client.Append(ctx, rs.stream, p.Event.Value, rs.options)
		if err != nil {
			sinkWriteErrors.WithLabelValues(rs.name, rs.instance).Inc()
			rs.logger.Warnw("Failed to append to stream, retrying", zap.Error(err))
			return err
		}
		rs.logger.Debugw("Added entry", zap.String("id", id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append message %s to stream %s: %w", msg.ID, rs.stream, err)
	}
	sinkWriteCount.WithLabelValues(rs.name, rs.instance).Inc()
	return nil
}

func (rs *RedisSink) Close() error {
	return rs.client.Close()
}
