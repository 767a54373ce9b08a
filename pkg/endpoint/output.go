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

package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/shared/logging"
	"github.com/numaproj/numastream/pkg/shuffle"
)

// outputShard is the sending side of one connection. frames has a single producer path and a
// single Egress reading it. done is closed when the shard is unregistered.
type outputShard struct {
	id     int
	label  string
	frames chan []byte
	done   chan struct{}
}

// OutputEndpoint queues encoded messages for the registered remote shards of one output
// endpoint configuration, and writes them to streams with Egress.
type OutputEndpoint struct {
	config      graph.EndpointConfig
	opts        *options
	partitioner *shuffle.Partitioner
	lock        sync.RWMutex
	shards      map[int]*outputShard
}

// NewOutputEndpoint returns an output endpoint of local shard `localShard`, with every remote
// shard of config registered.
func NewOutputEndpoint(config graph.EndpointConfig, localShard int, opts ...Option) *OutputEndpoint {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	e := &OutputEndpoint{
		config:      config,
		opts:        o,
		partitioner: shuffle.NewPartitioner(localShard, []graph.EndpointConfig{config}),
		shards:      make(map[int]*outputShard),
	}
	for i := 0; i < config.RemoteInstanceCount(); i++ {
		e.RegisterRemoteShard(i)
	}
	return e
}

// Config returns the endpoint configuration.
func (e *OutputEndpoint) Config() graph.EndpointConfig {
	return e.config
}

// RegisterRemoteShard adds a queue for remote shard id. It returns false if the shard was
// already registered.
func (e *OutputEndpoint) RegisterRemoteShard(id int) bool {
	if id < 0 {
		return false
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	if _, ok := e.shards[id]; ok {
		return false
	}
	e.shards[id] = &outputShard{
		id:     id,
		label:  strconv.Itoa(id),
		frames: make(chan []byte, e.opts.queueSize),
		done:   make(chan struct{}),
	}
	return true
}

// UnregisterRemoteShard removes the queue of remote shard id and stops its Egress. Queued
// frames are discarded. It returns false if the shard was not registered.
func (e *OutputEndpoint) UnregisterRemoteShard(id int) bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	s, ok := e.shards[id]
	if !ok {
		return false
	}
	close(s.done)
	delete(e.shards, id)
	queueDepth.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, s.label).Set(0)
	return true
}

// RegisteredShards returns the registered remote shards in ascending order.
func (e *OutputEndpoint) RegisteredShards() []int {
	e.lock.RLock()
	defer e.lock.RUnlock()
	ids := make([]int, 0, len(e.shards))
	for id := range e.shards {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// QueueDepth returns the number of frames waiting for a remote shard.
func (e *OutputEndpoint) QueueDepth(shard int) int {
	s, ok := e.lookup(shard)
	if !ok {
		return 0
	}
	return len(s.frames)
}

func (e *OutputEndpoint) lookup(id int) (*outputShard, bool) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	s, ok := e.shards[id]
	return s, ok
}

func (e *OutputEndpoint) encode(msg isb.Message) ([]byte, error) {
	codecs := e.opts.codecPool()
	codec := codecs.Rent()
	defer func() {
		_ = codecs.Return(codec)
	}()
	return codec.Marshal(msg)
}

// EnqueuePartitioned queues msg for the remote shards the partitioner selects on this endpoint.
// A selected shard that is no longer registered is skipped and counted as dropped.
func (e *OutputEndpoint) EnqueuePartitioned(ctx context.Context, msg isb.Message) error {
	targets, err := e.partitioner.PartitionEndpoint(e.config, &msg)
	if err != nil {
		return err
	}
	frame, err := e.encode(msg)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if err := e.EnqueueFrame(ctx, t.Shard, frame); err != nil {
			if errors.Is(err, ErrUnknownShard) || errors.Is(err, ErrShardUnregistered) {
				droppedCount.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, "unregistered").Inc()
				logging.FromContext(ctx).Debugw("Dropping message for unregistered shard", "endpoint", e.config.LocalEndpoint, "shard", t.Shard)
				continue
			}
			return err
		}
	}
	return nil
}

// EnqueueAll queues msg for every currently registered remote shard.
func (e *OutputEndpoint) EnqueueAll(ctx context.Context, msg isb.Message) error {
	frame, err := e.encode(msg)
	if err != nil {
		return err
	}
	return e.EnqueueFrameAll(ctx, frame)
}

// EnqueueFrameAll queues an encoded message for every currently registered remote shard.
func (e *OutputEndpoint) EnqueueFrameAll(ctx context.Context, frame []byte) error {
	for _, id := range e.RegisteredShards() {
		if err := e.EnqueueFrame(ctx, id, frame); err != nil {
			if errors.Is(err, ErrUnknownShard) || errors.Is(err, ErrShardUnregistered) {
				continue
			}
			return err
		}
	}
	return nil
}

// EnqueueFrame queues an encoded message for one remote shard. It blocks while the queue is
// full, until ctx is done or the shard is unregistered.
func (e *OutputEndpoint) EnqueueFrame(ctx context.Context, shard int, frame []byte) error {
	s, ok := e.lookup(shard)
	if !ok {
		return fmt.Errorf("%w %d on output endpoint %s", ErrUnknownShard, shard, e.config.LocalEndpoint)
	}
	select {
	case s.frames <- frame:
		queueDepth.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, s.label).Inc()
		return nil
	case <-s.done:
		return fmt.Errorf("%w: shard %d on output endpoint %s", ErrShardUnregistered, shard, e.config.LocalEndpoint)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush discards the frames queued for a remote shard and queues a flush marker behind them.
// The receiving input endpoint drops what was sent before the marker.
func (e *OutputEndpoint) Flush(ctx context.Context, shard int) error {
	s, ok := e.lookup(shard)
	if !ok {
		return fmt.Errorf("%w %d on output endpoint %s", ErrUnknownShard, shard, e.config.LocalEndpoint)
	}
	dropped := 0
drain:
	for {
		select {
		case <-s.frames:
			dropped++
			queueDepth.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, s.label).Dec()
		default:
			break drain
		}
	}
	droppedCount.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, "flush").Add(float64(dropped))
	flushCount.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, s.label, "marker").Inc()
	return e.EnqueueFrame(ctx, shard, FlushMarker)
}

// finalFlushTimeout bounds the flush of the buffered frames when Egress is cancelled.
const finalFlushTimeout = time.Second

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// deadlineWriter gives every write to the stream `timeout` to complete.
type deadlineWriter struct {
	w       io.Writer
	d       writeDeadliner
	timeout time.Duration
}

func (dw *deadlineWriter) Write(p []byte) (int, error) {
	if err := dw.d.SetWriteDeadline(time.Now().Add(dw.timeout)); err != nil {
		return 0, err
	}
	return dw.w.Write(p)
}

// Egress writes the frames queued for remote shard `shard` to stream until ctx is done, which
// is a clean exit. Frames are batched by a FrameWriter. Flush markers, and every frame of a
// control endpoint, are written out immediately. On cancellation only whole buffered frames
// are flushed.
//
// A stream left idle for the keepalive interval gets a keepalive frame. On a stream supporting
// deadlines every write must complete within the stream timeout, and cancellation interrupts a
// blocked write.
func (e *OutputEndpoint) Egress(ctx context.Context, stream io.Writer, shard int) error {
	s, ok := e.lookup(shard)
	if !ok {
		return fmt.Errorf("%w %d on output endpoint %s", ErrUnknownShard, shard, e.config.LocalEndpoint)
	}
	log := logging.FromContext(ctx).With("endpoint", e.config.LocalEndpoint, "remoteShard", shard)
	labels := []string{e.config.LocalVertex, e.config.LocalEndpoint, s.label}
	var dw *deadlineWriter
	if d, ok := stream.(writeDeadliner); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetWriteDeadline(time.Now())
		})
		defer stop()
		if e.opts.streamTimeout > 0 {
			dw = &deadlineWriter{w: stream, d: d, timeout: e.opts.streamTimeout}
			stream = dw
		}
	}
	writer := NewFrameWriter(stream, e.opts.bufferSize, e.opts.flushInterval)
	ticker := time.NewTicker(e.opts.flushInterval / 2)
	defer ticker.Stop()
	var keepalive <-chan time.Time
	if e.opts.keepaliveInterval > 0 {
		kt := time.NewTicker(e.opts.keepaliveInterval)
		defer kt.Stop()
		keepalive = kt.C
	}
	active := false

	failed := func(action string, err error) error {
		if ctx.Err() != nil {
			log.Infow("Egress stopped, context done")
			return nil
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			streamTimeouts.WithLabelValues(labels...).Inc()
			err = fmt.Errorf("%w: %v", ErrStreamTimeout, err)
		}
		return fmt.Errorf("failed to %s %s: %w", action, e.config.ConnectionKey(shard), err)
	}

	log.Infow("Starting egress")
	for {
		select {
		case <-ctx.Done():
			log.Infow("Egress stopped, context done")
			if dw != nil {
				dw.timeout = min(dw.timeout, finalFlushTimeout)
			}
			if err := writer.Flush(); err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
				return err
			}
			return nil
		case <-s.done:
			log.Infow("Egress stopped, remote shard unregistered")
			return ErrShardUnregistered
		case frame := <-s.frames:
			queueDepth.WithLabelValues(labels...).Dec()
			active = true
			if err := writer.WriteFrame(frame); err != nil {
				return failed("write frame to", err)
			}
			framesOut.WithLabelValues(labels...).Inc()
			bytesOut.WithLabelValues(labels...).Add(float64(len(frame)))
			if IsFlushMarker(frame) || e.config.IsControl {
				if err := writer.Flush(); err != nil {
					return failed("flush", err)
				}
			}
		case <-ticker.C:
			if writer.Buffered() == 0 {
				continue
			}
			if err := writer.FlushIfIdle(); err != nil {
				return failed("flush", err)
			}
			flushCount.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, s.label, "idle").Inc()
		case <-keepalive:
			if active {
				active = false
				continue
			}
			if err := writer.WriteFrame(KeepaliveMarker); err != nil {
				return failed("write keepalive to", err)
			}
			if err := writer.Flush(); err != nil {
				return failed("flush", err)
			}
			keepalives.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, s.label, "sent").Inc()
		}
	}
}
