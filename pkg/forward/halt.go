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

package forward

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/numaproj/numastream/pkg/shared/logging"
)

// ErrForwarderStopped is returned by Halt once the loop has exited.
var ErrForwarderStopped = errors.New("forwarder stopped")

type haltRequest struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// halter parks the loop of a StreamForward between two messages. takeCancel interrupts the
// Take in progress, so a halt does not wait for the next message.
type halter struct {
	haltLock   sync.Mutex
	halts      []*haltRequest
	takeCancel context.CancelFunc
	exited     bool
}

// Halt parks the loop once the message in flight, if any, has been dispatched, runs fn and
// resumes the loop. Nothing is taken from the source while fn runs. It returns the error of fn,
// ctx.Err() if ctx is done before fn ran, or ErrForwarderStopped.
func (sf *StreamForward) Halt(ctx context.Context, fn func(context.Context) error) error {
	h := &haltRequest{ctx: ctx, fn: fn, done: make(chan error, 1)}
	sf.haltLock.Lock()
	if sf.exited {
		sf.haltLock.Unlock()
		return ErrForwarderStopped
	}
	sf.halts = append(sf.halts, h)
	if sf.takeCancel != nil {
		sf.takeCancel()
	}
	sf.haltLock.Unlock()
	select {
	case err := <-h.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginTake returns the context of the next Take, or false when a halt is pending.
func (sf *StreamForward) beginTake() (context.Context, bool) {
	sf.haltLock.Lock()
	defer sf.haltLock.Unlock()
	if len(sf.halts) > 0 {
		return nil, false
	}
	ctx, cancel := context.WithCancel(sf.ctx)
	sf.takeCancel = cancel
	return ctx, true
}

func (sf *StreamForward) endTake() {
	sf.haltLock.Lock()
	cancel := sf.takeCancel
	sf.takeCancel = nil
	sf.haltLock.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (sf *StreamForward) serveHalts() {
	sf.haltLock.Lock()
	halts := sf.halts
	sf.halts = nil
	sf.haltLock.Unlock()
	log := logging.FromContext(sf.ctx)
	for _, h := range halts {
		if err := h.ctx.Err(); err != nil {
			h.done <- err
			continue
		}
		start := time.Now()
		log.Info("Forwarder halted")
		err := h.fn(h.ctx)
		h.done <- err
		haltDuration.WithLabelValues(sf.vertexName, sf.opts.instance).Observe(float64(time.Since(start).Milliseconds()))
		log.Infow("Forwarder resumed", "elapsed", time.Since(start), "failed", err != nil)
	}
}

func (sf *StreamForward) rejectHalts() {
	sf.haltLock.Lock()
	sf.exited = true
	halts := sf.halts
	sf.halts = nil
	sf.haltLock.Unlock()
	for _, h := range halts {
		h.done <- ErrForwarderStopped
	}
}
