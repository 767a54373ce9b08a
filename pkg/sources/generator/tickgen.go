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

// Package generator implements a source emitting synthetic events at a fixed rate.
package generator

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/shared/queue"
	"github.com/numaproj/numastream/pkg/shuffle"
)

// payload is the value of a generated event.
type payload struct {
	Value     int64 `json:"value"`
	CreatedTS int64 `json:"createdTS"`
}

type options struct {
	// rpu is the number of events generated per time unit
	rpu int
	// timeunit is the tick period
	timeunit time.Duration
	// keyCount is the number of distinct keys, assigned round robin
	keyCount int
	// limit stops the generator after this many events, 0 means never
	limit int64
}

type Option func(*options) error

// WithReadsPerUnit sets how many events are generated every tick.
func WithReadsPerUnit(rpu int) Option {
	return func(o *options) error {
		if rpu <= 0 {
			return fmt.Errorf("reads per unit must be positive, got %d", rpu)
		}
		o.rpu = rpu
		return nil
	}
}

// WithTimeunit sets the tick period.
func WithTimeunit(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("time unit must be positive, got %s", d)
		}
		o.timeunit = d
		return nil
	}
}

// WithKeyCount sets the number of distinct event keys.
func WithKeyCount(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("key count must be positive, got %d", n)
		}
		o.keyCount = n
		return nil
	}
}

// WithLimit ends the source after n events.
func WithLimit(n int64) Option {
	return func(o *options) error {
		o.limit = n
		return nil
	}
}

// memgen generates events on every tick. The events of a tick are kept in a queue and
// handed out one Take at a time.
type memgen struct {
	vertexName string
	instance   string
	opts       *options
	ticker     *time.Ticker
	pending    *queue.Queue[isb.Message]
	count      int64
}

var _ forward.Source = (*memgen)(nil)

// NewMemGen returns a generator source for a vertex instance.
func NewMemGen(vertexName string, shard int, opts ...Option) (*memgen, error) {
	o := &options{rpu: 5, timeunit: time.Second, keyCount: 1}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return &memgen{
		vertexName: vertexName,
		instance:   graph.InstanceName(vertexName, shard),
		opts:       o,
		ticker:     time.NewTicker(o.timeunit),
		pending:    queue.New[isb.Message](),
	}, nil
}

// Take returns the next generated event, waiting for the next tick when none is pending.
func (mg *memgen) Take(ctx context.Context) (isb.Message, error) {
	for {
		if msg, ok := mg.pending.Pop(); ok {
			generatedEvents.WithLabelValues(mg.vertexName, mg.instance).Inc()
			return msg, nil
		}
		if mg.opts.limit > 0 && mg.count >= mg.opts.limit {
			return isb.Message{}, io.EOF
		}
		select {
		case t := <-mg.ticker.C:
			generatorTicks.WithLabelValues(mg.vertexName, mg.instance).Inc()
			if err := mg.generate(t); err != nil {
				return isb.Message{}, err
			}
		case <-ctx.Done():
			return isb.Message{}, ctx.Err()
		}
	}
}

func (mg *memgen) generate(t time.Time) error {
	for i := 0; i < mg.opts.rpu; i++ {
		if mg.opts.limit > 0 && mg.count >= mg.opts.limit {
			return nil
		}
		value, err := json.Marshal(payload{Value: mg.count, CreatedTS: t.UnixNano()})
		if err != nil {
			return err
		}
		key := fmt.Sprintf("key-%d", mg.count%int64(mg.opts.keyCount))
		msg := isb.NewDataMessage(isb.EventPayload{Event: isb.Event{
			Key:       key,
			Value:     value,
			EventTime: t,
		}}).WithPartitionKey(shuffle.HashKey(key))
		mg.pending.Push(msg)
		mg.count++
	}
	return nil
}

// MessageOrigin reports no origin, the events are produced locally.
func (mg *memgen) MessageOrigin() (graph.Origin, bool) {
	return graph.Origin{}, false
}

// Flush is a no-op, nothing is in flight from upstream.
func (mg *memgen) Flush(context.Context, []string) error {
	return nil
}

func (mg *memgen) Close() error {
	mg.ticker.Stop()
	return nil
}
