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

package processor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/config"
	"github.com/numaproj/numastream/pkg/daemon"
	"github.com/numaproj/numastream/pkg/endpoint"
	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/shared/logging"
	"github.com/numaproj/numastream/pkg/transport"
)

// reconnectDelay is the pause before a stream that ended is opened again.
const reconnectDelay = time.Second

// egressManager runs one stream per connected remote shard of the output endpoints, and
// starts or stops them as remote shards are registered and unregistered.
type egressManager struct {
	vertexName string
	shard      int
	instance   string
	dispatcher *forward.PartitioningDispatcher
	transport  config.TransportConfig
	tlsConfig  *tls.Config

	lock    sync.Mutex
	ctx     context.Context
	streams map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func newEgressManager(vertexName string, shard int, instance string, dispatcher *forward.PartitioningDispatcher, tc config.TransportConfig, tlsConfig *tls.Config) *egressManager {
	return &egressManager{
		vertexName: vertexName,
		shard:      shard,
		instance:   instance,
		dispatcher: dispatcher,
		transport:  tc,
		tlsConfig:  tlsConfig,
		streams:    make(map[string]context.CancelFunc),
	}
}

// start opens the streams of every registered remote shard. They run until ctx is done.
func (m *egressManager) start(ctx context.Context) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.ctx = ctx
	for _, out := range m.dispatcher.Outputs() {
		for _, shard := range out.RegisteredShards() {
			m.spawnLocked(out, shard)
		}
	}
}

// wait blocks until every stream has returned.
func (m *egressManager) wait() {
	m.wg.Wait()
}

// connected tells whether local shard sends to remote shard `shard` of out at all. A pipeline
// endpoint only sends to the shard with its own index.
func (m *egressManager) connected(out *endpoint.OutputEndpoint, shard int) bool {
	return !out.Config().IsPipeline || shard == m.shard
}

func (m *egressManager) spawnLocked(out *endpoint.OutputEndpoint, shard int) {
	if m.ctx == nil || !m.connected(out, shard) {
		return
	}
	key := out.Config().ConnectionKey(shard)
	if cancel, ok := m.streams[key]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.streams[key] = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(ctx, out, shard)
	}()
}

// RegisterShard adds remote shard `shard` to the output endpoint `name` and opens its stream.
func (m *egressManager) RegisterShard(name string, shard int) error {
	out, ok := m.dispatcher.Output(name)
	if !ok {
		return fmt.Errorf("%w %q", daemon.ErrUnknownEndpoint, name)
	}
	if shard < 0 || shard >= out.Config().RemoteInstanceCount() {
		return fmt.Errorf("%w %d, endpoint %s has %d remote instances", endpoint.ErrUnknownShard, shard, name, out.Config().RemoteInstanceCount())
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if !out.RegisterRemoteShard(shard) {
		return fmt.Errorf("%w: %s", daemon.ErrShardRegistered, out.Config().ConnectionKey(shard))
	}
	m.spawnLocked(out, shard)
	return nil
}

// UnregisterShard removes remote shard `shard` from the output endpoint `name`, which ends its
// stream. What was queued for it is dropped.
func (m *egressManager) UnregisterShard(name string, shard int) error {
	out, ok := m.dispatcher.Output(name)
	if !ok {
		return fmt.Errorf("%w %q", daemon.ErrUnknownEndpoint, name)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if !out.UnregisterRemoteShard(shard) {
		return fmt.Errorf("%w %d on output endpoint %s", endpoint.ErrUnknownShard, shard, name)
	}
	key := out.Config().ConnectionKey(shard)
	if cancel, ok := m.streams[key]; ok {
		cancel()
		delete(m.streams, key)
	}
	return nil
}

// run keeps a stream to remote shard `shard` of out open until ctx is done or the shard is
// unregistered.
func (m *egressManager) run(ctx context.Context, out *endpoint.OutputEndpoint, shard int) {
	cfg := out.Config()
	target, err := cfg.RemoteInstance(shard)
	if err != nil {
		logging.FromContext(ctx).Errorw("Cannot open stream", zap.Error(err))
		return
	}
	addr := m.transport.PeerAddress(target)
	hello := transport.Hello{
		Vertex:   m.vertexName,
		Shard:    m.shard,
		Endpoint: cfg.RemoteEndpoint,
		Target:   target,
	}
	log := logging.FromContext(ctx).With("endpoint", cfg.LocalEndpoint, "remoteShard", shard, "address", addr)
	ctx = logging.WithLogger(ctx, log)
	opts := []transport.DialOption{transport.WithBackoff(m.transport.DialRetry.Backoff())}
	if m.tlsConfig != nil {
		opts = append(opts, transport.WithTLS(m.tlsConfig))
	}

	for {
		conn, err := transport.Dial(ctx, addr, hello, opts...)
		if err == nil {
			log.Infow("Opened stream", "stream", hello.String())
			err = out.Egress(ctx, conn, shard)
			_ = conn.Close()
			if errors.Is(err, endpoint.ErrShardUnregistered) {
				log.Infow("Closed stream of unregistered shard")
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		egressReconnects.WithLabelValues(m.instance, cfg.LocalEndpoint, strconv.Itoa(shard)).Inc()
		log.Warnw("Stream ended, reconnecting", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}
