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

package redis

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/isb/testutils"
	redisclient "github.com/numaproj/numastream/pkg/shared/clients/redis"
)

// flakyServer answers XADD commands without a server, failing the first `failures` of them.
type flakyServer struct {
	failures int
	values   []string
}

func (f *flakyServer) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("no server")
	}
}

func (f *flakyServer) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if f.failures > 0 {
			f.failures--
			err := errors.New("LOADING")
			cmd.SetErr(err)
			return err
		}
		args := cmd.Args()
		f.values = append(f.values, string(args[len(args)-1].([]byte)))
		cmd.(*goredis.StringCmd).SetVal("1-0")
		return nil
	}
}

func (f *flakyServer) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func newTestSink(t *testing.T, server *flakyServer, backoff wait.Backoff) *RedisSink {
	t.Helper()
	client := redisclient.NewRedisClient(&goredis.UniversalOptions{Addrs: []string{"127.0.0.1:1"}})
	client.Client.AddHook(server)
	rs, err := NewRedisSink("redis-out", 0, client, "events", WithLogger(zap.NewNop().Sugar()), WithRetryBackoff(backoff), WithStreamOptions(redisclient.WithMaxLength(1000)))
	require.NoError(t, err)
	return rs
}

func TestRedisSink_Dispatch(t *testing.T) {
	server := &flakyServer{failures: 2}
	rs := newTestSink(t, server, wait.Backoff{Steps: 5, Duration: time.Millisecond, Factor: 1})
	defer func() { _ = rs.Close() }()

	for _, m := range testutils.BuildTestDataMessages(3, time.Unix(1636470000, 0)) {
		require.NoError(t, rs.Dispatch(context.Background(), m))
	}
	require.NoError(t, rs.Dispatch(context.Background(), isb.NewControlMessage(isb.BarrierPayload{CheckpointID: "1"})))
	assert.Equal(t, []string{"payload_0", "payload_1", "payload_2"}, server.values)
	assert.Equal(t, float64(3), testutil.ToFloat64(sinkWriteCount.WithLabelValues("redis-out", "redis-out-0")))
	assert.Equal(t, float64(2), testutil.ToFloat64(sinkWriteErrors.WithLabelValues("redis-out", "redis-out-0")))
}

func TestRedisSink_RetriesExhausted(t *testing.T) {
	server := &flakyServer{failures: 10}
	rs := newTestSink(t, server, wait.Backoff{Steps: 3, Duration: time.Millisecond, Factor: 1})
	defer func() { _ = rs.Close() }()

	err := rs.Dispatch(context.Background(), testutils.BuildTestDataMessages(1, time.Unix(1636470000, 0))[0])
	assert.ErrorContains(t, err, "LOADING")
	assert.Empty(t, server.values)
}

func TestNewRedisSink(t *testing.T) {
	client := redisclient.NewRedisClient(&goredis.UniversalOptions{Addrs: []string{"127.0.0.1:1"}})
	defer func() { _ = client.Close() }()
	_, err := NewRedisSink("redis-out", 0, client, "")
	assert.Error(t, err)
}
