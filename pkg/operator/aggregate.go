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

package operator

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/middleware"
)

// AggregateFunc reduces the events collected for one key.
type AggregateFunc func(ctx context.Context, key string, events []isb.Event) (isb.Event, error)

// Aggregator collects events into count based tumbling windows, one per event key, and emits
// the reduction of a window once it holds `window` events. Pending windows are part of the
// checkpointed state.
type Aggregator struct {
	lock    sync.Mutex
	window  int
	fn      AggregateFunc
	pending map[string][]isb.Event
}

var _ middleware.Handler = (*Aggregator)(nil)

// Aggregate builds an aggregator emitting one event per `window` events of the same key.
func Aggregate(window int, fn AggregateFunc) (*Aggregator, error) {
	if window < 1 {
		return nil, fmt.Errorf("aggregate window must be at least 1, got %d", window)
	}
	if fn == nil {
		return nil, fmt.Errorf("aggregate function is nil")
	}
	return &Aggregator{
		window:  window,
		fn:      fn,
		pending: make(map[string][]isb.Event),
	}, nil
}

func (a *Aggregator) Name() string { return "aggregate" }

func (a *Aggregator) Handle(ctx context.Context, msg isb.Message) ([]isb.Message, error) {
	p, ok := isb.GetPayload[isb.EventPayload](msg)
	if !ok {
		return middleware.Forward(msg), nil
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	key := p.Event.Key
	events := append(a.pending[key], p.Event)
	if len(events) < a.window {
		a.pending[key] = events
		return middleware.Absorb(), nil
	}
	out, err := a.fn(ctx, key, events)
	if err != nil {
		// the window stays open without the failed event
		return nil, err
	}
	delete(a.pending, key)
	if out.Key == "" {
		out.Key = key
	}
	return middleware.Forward(withEvent(msg, out)), nil
}

// Pending returns the number of events waiting in open windows.
func (a *Aggregator) Pending() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	n := 0
	for _, events := range a.pending {
		n += len(events)
	}
	return n
}

// Snapshot encodes the open windows.
func (a *Aggregator) Snapshot() ([]byte, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	return json.Marshal(a.pending)
}

// Restore replaces the open windows with a snapshot.
func (a *Aggregator) Restore(b []byte) error {
	pending := make(map[string][]isb.Event)
	if err := json.Unmarshal(b, &pending); err != nil {
		return fmt.Errorf("failed to restore aggregate state: %w", err)
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	a.pending = pending
	return nil
}
