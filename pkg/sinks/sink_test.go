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

package sinks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/config"
	natstest "github.com/numaproj/numastream/pkg/shared/clients/nats/test"
	"github.com/numaproj/numastream/pkg/shared/logging"
	"github.com/numaproj/numastream/pkg/sinks/blackhole"
	filesink "github.com/numaproj/numastream/pkg/sinks/file"
	logsink "github.com/numaproj/numastream/pkg/sinks/logger"
	natssink "github.com/numaproj/numastream/pkg/sinks/nats"
	redissink "github.com/numaproj/numastream/pkg/sinks/redis"
)

func TestNewSinker(t *testing.T) {
	ctx := logging.WithLogger(context.Background(), zap.NewNop().Sugar())

	t.Run("default is log", func(t *testing.T) {
		s, err := NewSinker(ctx, "out", 0, nil)
		require.NoError(t, err)
		assert.IsType(t, &logsink.ToLog{}, s)
		assert.NoError(t, s.Close())
	})

	t.Run("blackhole", func(t *testing.T) {
		s, err := NewSinker(ctx, "out", 0, &config.SinkConfig{Type: config.SinkTypeBlackhole})
		require.NoError(t, err)
		assert.IsType(t, &blackhole.Blackhole{}, s)
	})

	t.Run("file", func(t *testing.T) {
		s, err := NewSinker(ctx, "out", 0, &config.SinkConfig{Type: config.SinkTypeFile, File: &config.FileSink{Path: filepath.Join(t.TempDir(), "out")}})
		require.NoError(t, err)
		assert.IsType(t, &filesink.ToFile{}, s)
		assert.NoError(t, s.Close())
	})

	t.Run("redis", func(t *testing.T) {
		s, err := NewSinker(ctx, "out", 0, &config.SinkConfig{Type: config.SinkTypeRedis, Redis: &config.RedisSink{Addrs: []string{"127.0.0.1:1"}, Stream: "events", MaxLength: 10}})
		require.NoError(t, err)
		assert.IsType(t, &redissink.RedisSink{}, s)
		assert.NoError(t, s.Close())
	})

	t.Run("nats", func(t *testing.T) {
		server := natstest.RunNatsServer(t)
		defer natstest.ShutdownNatsServer(t, server)
		s, err := NewSinker(ctx, "out", 0, &config.SinkConfig{Type: config.SinkTypeNats, Nats: &config.NatsSink{URL: server.ClientURL(), Subject: "out"}})
		require.NoError(t, err)
		assert.IsType(t, &natssink.ToNats{}, s)
		assert.NoError(t, s.Close())
	})

	t.Run("errors", func(t *testing.T) {
		_, err := NewSinker(ctx, "out", 0, &config.SinkConfig{Type: config.SinkTypeRedis, Redis: &config.RedisSink{Addrs: []string{"127.0.0.1:1"}}})
		assert.ErrorContains(t, err, "failed to build the redis sink")
		_, err = NewSinker(ctx, "out", 0, &config.SinkConfig{Type: config.SinkTypeKafka})
		assert.Error(t, err)
		_, err = NewSinker(ctx, "out", 0, &config.SinkConfig{Type: "udsink"})
		assert.ErrorContains(t, err, "unrecognized sink type")
	})
}
