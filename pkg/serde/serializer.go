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

// Package serde encodes messages concurrently while writing them to a stream in submission order.
package serde

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/numaproj/numastream/pkg/endpoint"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/shared/pool"
)

// DefaultConcurrency is the default number of in-flight serializations.
const DefaultConcurrency = 8

// ErrPredecessorFailed is reported by a unit that was not written because an earlier unit failed.
var ErrPredecessorFailed = errors.New("an earlier serialization failed")

// Unit is one submitted serialization.
type Unit struct {
	done chan struct{}
	err  error
}

func (u *Unit) finish(err error) {
	u.err = err
	close(u.done)
}

// Done is closed once the unit has been written or has failed.
func (u *Unit) Done() <-chan struct{} {
	return u.done
}

// Wait blocks until the unit is complete and returns its error.
func (u *Unit) Wait() error {
	<-u.done
	return u.err
}

type Option func(*ParallelSerializer)

// WithConcurrency sets the maximum number of in-flight serializations.
func WithConcurrency(n int64) Option {
	return func(s *ParallelSerializer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// ParallelSerializer encodes messages in parallel and writes each one as a frame, strictly in
// the order StartSerialization was called. Once a unit fails every later unit fails too, so
// the written stream never skips a message.
type ParallelSerializer struct {
	codecs      *pool.Pool[isb.Codec]
	concurrency int64
	sem         *semaphore.Weighted
	lock        sync.Mutex
	tail        *Unit
}

func NewParallelSerializer(codecs *pool.Pool[isb.Codec], opts ...Option) *ParallelSerializer {
	s := &ParallelSerializer{
		codecs:      codecs,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = semaphore.NewWeighted(s.concurrency)
	return s
}

// StartSerialization submits msg to be written to w. It blocks only while the maximum number of
// serializations is in flight.
func (s *ParallelSerializer) StartSerialization(ctx context.Context, w io.Writer, msg isb.Message) *Unit {
	u := &Unit{done: make(chan struct{})}
	// admission follows chain order, a unit never holds a permit its predecessor waits for
	s.lock.Lock()
	defer s.lock.Unlock()
	prev := s.tail
	s.tail = u
	if err := s.sem.Acquire(ctx, 1); err != nil {
		u.finish(fmt.Errorf("serialization not admitted: %w", err))
		return u
	}
	inflight.Inc()
	go s.run(ctx, w, msg, prev, u)
	return u
}

func (s *ParallelSerializer) run(ctx context.Context, w io.Writer, msg isb.Message, prev *Unit, u *Unit) {
	defer func() {
		inflight.Dec()
		s.sem.Release(1)
	}()
	start := time.Now()
	frame, encodeErr := s.encode(msg)
	encodeTime.Observe(float64(time.Since(start).Microseconds()))

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			u.finish(ctx.Err())
			return
		}
		if prev.err != nil {
			failures.WithLabelValues("predecessor").Inc()
			u.finish(ErrPredecessorFailed)
			return
		}
	}
	if encodeErr != nil {
		failures.WithLabelValues("encode").Inc()
		u.finish(encodeErr)
		return
	}
	if _, err := w.Write(frame); err != nil {
		failures.WithLabelValues("write").Inc()
		u.finish(fmt.Errorf("failed to write frame: %w", err))
		return
	}
	u.finish(nil)
}

// encode returns msg as a frame. The codec goes back to the pool whatever happens.
func (s *ParallelSerializer) encode(msg isb.Message) ([]byte, error) {
	codec := s.codecs.Rent()
	defer func() {
		_ = s.codecs.Return(codec)
	}()
	b, err := codec.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return endpoint.AppendFrame(make([]byte, 0, endpoint.FrameHeaderSize+len(b)), b), nil
}

// Wait blocks until every submitted unit is complete, and returns the error of the last one.
func (s *ParallelSerializer) Wait(ctx context.Context) error {
	s.lock.Lock()
	tail := s.tail
	s.lock.Unlock()
	if tail == nil {
		return nil
	}
	select {
	case <-tail.done:
		return tail.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
