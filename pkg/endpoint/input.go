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
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/shared/logging"
)

// Delivery is a received message and the connection it arrived on.
type Delivery struct {
	Message isb.Message
	Origin  graph.Origin
}

type received struct {
	msg   isb.Message
	epoch uint64
}

// inputShard is the receiving side of one connection.
//
// epoch counts the flush markers seen on the connection, and every queued message is tagged with
// the epoch it arrived in. consumed is the epoch of the last message handed out. A flush drops
// every message tagged below the consumer position plus one, that is every message sent before
// the first marker the consumer has not passed yet.
type inputShard struct {
	id       int
	label    string
	messages chan received
	blocked  *atomic.Bool

	lock      sync.Mutex
	epoch     uint64
	consumed  uint64
	dropBelow uint64
	flushing  chan struct{}
	held      *received
}

func (s *inputShard) tag() (uint64, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.epoch, s.flushing != nil
}

// completeFlush advances the epoch and releases a pending Flush. It returns false if no flush
// was in progress.
func (s *inputShard) completeFlush() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.epoch++
	if s.flushing == nil {
		return false
	}
	close(s.flushing)
	s.flushing = nil
	return true
}

// InputEndpoint receives framed messages from the remote shards of one input endpoint
// configuration and queues them per remote shard.
type InputEndpoint struct {
	config graph.EndpointConfig
	opts   *options
	shards []*inputShard
	lock   sync.Mutex
	cursor int
}

// NewInputEndpoint returns an input endpoint with one queue per remote shard of config.
func NewInputEndpoint(config graph.EndpointConfig, opts ...Option) *InputEndpoint {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	e := &InputEndpoint{
		config: config,
		opts:   o,
		shards: make([]*inputShard, config.RemoteInstanceCount()),
	}
	for i := range e.shards {
		e.shards[i] = &inputShard{
			id:       i,
			label:    strconv.Itoa(i),
			messages: make(chan received, o.queueSize),
			blocked:  atomic.NewBool(false),
		}
	}
	return e
}

// Config returns the endpoint configuration.
func (e *InputEndpoint) Config() graph.EndpointConfig {
	return e.config
}

func (e *InputEndpoint) shard(id int) (*inputShard, error) {
	if id < 0 || id >= len(e.shards) {
		return nil, fmt.Errorf("%w %d on input endpoint %s", ErrUnknownShard, id, e.config.LocalEndpoint)
	}
	return e.shards[id], nil
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Ingress reads frames sent by remote shard `remoteShard` from stream and queues the decoded
// messages until the stream ends or ctx is done. Both are a clean exit. A malformed or truncated
// frame terminates Ingress with a FramingErr.
func (e *InputEndpoint) Ingress(ctx context.Context, stream io.Reader, remoteShard int) error {
	s, err := e.shard(remoteShard)
	if err != nil {
		return err
	}
	log := logging.FromContext(ctx).With("endpoint", e.config.LocalEndpoint, "remoteShard", remoteShard)
	deadliner, hasDeadline := stream.(readDeadliner)
	if hasDeadline {
		// unblock a pending read on cancellation
		stop := context.AfterFunc(ctx, func() {
			_ = deadliner.SetReadDeadline(time.Now())
		})
		defer stop()
	}
	timeout := e.opts.streamTimeout
	if !hasDeadline {
		timeout = 0
	}
	codecs := e.opts.codecPool()
	codec := codecs.Rent()
	defer func() {
		_ = codecs.Return(codec)
	}()

	labels := []string{e.config.LocalVertex, e.config.LocalEndpoint, s.label}
	reader := NewFrameReader(stream, e.opts.maxFrameSize)
	log.Infow("Starting ingress")
	for {
		if timeout > 0 {
			_ = deadliner.SetReadDeadline(time.Now().Add(timeout))
			// the cancellation deadline may have been overwritten
			if ctx.Err() != nil {
				log.Infow("Ingress stopped, context done")
				return nil
			}
		}
		payload, err := reader.ReadFrame()
		if ctx.Err() != nil {
			log.Infow("Ingress stopped, context done")
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Infow("Ingress stopped, stream ended")
				return nil
			}
			if timeout > 0 && errors.Is(err, os.ErrDeadlineExceeded) {
				streamTimeouts.WithLabelValues(labels...).Inc()
				log.Warnw("Ingress stopped, nothing received", "timeout", timeout)
				return fmt.Errorf("%w: nothing received on %s for %s", ErrStreamTimeout, e.config.ConnectionKey(remoteShard), timeout)
			}
			var ferr FramingErr
			if errors.As(err, &ferr) {
				ferr.Endpoint, ferr.Shard = e.config.LocalEndpoint, remoteShard
				return ferr
			}
			return FramingErr{Endpoint: e.config.LocalEndpoint, Shard: remoteShard, Message: "reading stream", InternalErr: err}
		}
		framesIn.WithLabelValues(labels...).Inc()
		bytesIn.WithLabelValues(labels...).Add(float64(len(payload)))

		if IsKeepalive(payload) {
			keepalives.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, s.label, "received").Inc()
			continue
		}
		if IsFlushMarker(payload) {
			if s.completeFlush() {
				log.Debugw("Flush marker received, connection flushed")
				flushCount.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, s.label, "marker").Inc()
			}
			continue
		}
		epoch, flushing := s.tag()
		if flushing {
			droppedCount.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, "flush").Inc()
			continue
		}
		msg, err := codec.Unmarshal(payload)
		if err != nil {
			return FramingErr{Endpoint: e.config.LocalEndpoint, Shard: remoteShard, Message: "decoding message", InternalErr: err}
		}
		select {
		case s.messages <- received{msg: msg, epoch: epoch}:
			queueDepth.WithLabelValues(labels...).Inc()
			e.notify()
		case <-ctx.Done():
			log.Infow("Ingress stopped, context done")
			return nil
		}
	}
}

func (e *InputEndpoint) notify() {
	if e.opts.signal == nil {
		return
	}
	select {
	case e.opts.signal <- struct{}{}:
	default:
	}
}

// HasInput returns true if a message from an unblocked shard is waiting.
func (e *InputEndpoint) HasInput() bool {
	for _, s := range e.shards {
		if s.blocked.Load() {
			continue
		}
		s.lock.Lock()
		held := s.held != nil
		s.lock.Unlock()
		if held || len(s.messages) > 0 {
			return true
		}
	}
	return false
}

// GetNext pops the next message, visiting unblocked shards round robin. It does not block.
func (e *InputEndpoint) GetNext() (Delivery, bool) {
	e.lock.Lock()
	defer e.lock.Unlock()
	for i := 0; i < len(e.shards); i++ {
		s := e.shards[(e.cursor+i)%len(e.shards)]
		if s.blocked.Load() {
			continue
		}
		if r, ok := e.pop(s); ok {
			e.cursor = (s.id + 1) % len(e.shards)
			return Delivery{Message: r.msg, Origin: graph.Origin{Endpoint: e.config, Shard: s.id}}, true
		}
	}
	return Delivery{}, false
}

// pop returns the next live message of a shard, dropping stale ones.
func (e *InputEndpoint) pop(s *inputShard) (received, bool) {
	s.lock.Lock()
	if s.held != nil {
		r := *s.held
		s.held = nil
		s.consumed = r.epoch
		s.lock.Unlock()
		return r, true
	}
	s.lock.Unlock()
	for {
		select {
		case r := <-s.messages:
			queueDepth.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, s.label).Dec()
			if e.stale(s, r) {
				continue
			}
			return r, true
		default:
			return received{}, false
		}
	}
}

func (e *InputEndpoint) stale(s *inputShard, r received) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if r.epoch < s.dropBelow {
		droppedCount.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, "flush").Inc()
		return true
	}
	s.consumed = r.epoch
	return false
}

// Block stops GetNext from returning messages of a remote shard. Ingress keeps queueing them.
func (e *InputEndpoint) Block(shard int) error {
	s, err := e.shard(shard)
	if err != nil {
		return err
	}
	s.blocked.Store(true)
	return nil
}

// Unblock reverts Block.
func (e *InputEndpoint) Unblock(shard int) error {
	s, err := e.shard(shard)
	if err != nil {
		return err
	}
	if s.blocked.Swap(false) {
		e.notify()
	}
	return nil
}

// IsBlocked tells whether a remote shard is blocked.
func (e *InputEndpoint) IsBlocked(shard int) bool {
	s, err := e.shard(shard)
	return err == nil && s.blocked.Load()
}

// Flush drops every message sent by a remote shard before its next flush marker, and returns
// once the marker has been received. The marker may already have been received. Messages sent
// after the marker are kept.
func (e *InputEndpoint) Flush(ctx context.Context, shard int) error {
	s, err := e.shard(shard)
	if err != nil {
		return err
	}
	s.lock.Lock()
	target := max(s.consumed, s.dropBelow) + 1
	previous := s.dropBelow
	s.dropBelow = target
	if s.held != nil && s.held.epoch < target {
		s.held = nil
	}
	if s.epoch >= target {
		// the marker is already queued behind the stale messages, they are dropped on pop
		s.lock.Unlock()
		flushCount.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, s.label, "marker").Inc()
		return nil
	}
	if s.flushing == nil {
		s.flushing = make(chan struct{})
	}
	done := s.flushing
	s.lock.Unlock()

	for {
		select {
		case <-done:
			return nil
		case r := <-s.messages:
			queueDepth.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, s.label).Dec()
			if r.epoch < target {
				droppedCount.WithLabelValues(e.config.LocalVertex, e.config.LocalEndpoint, "flush").Inc()
				continue
			}
			// sent after the marker, the marker has been seen
			s.lock.Lock()
			s.held = &r
			s.lock.Unlock()
			<-done
			return nil
		case <-ctx.Done():
			s.lock.Lock()
			if s.flushing == done {
				close(s.flushing)
				s.flushing = nil
				s.dropBelow = previous
			}
			s.lock.Unlock()
			return ctx.Err()
		}
	}
}

// QueueDepth returns the number of messages waiting from a remote shard.
func (e *InputEndpoint) QueueDepth(shard int) int {
	s, err := e.shard(shard)
	if err != nil {
		return 0
	}
	return len(s.messages)
}
