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

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/shared/logging"
)

// cronParser accepts the standard five fields, an optional leading seconds field, and the
// descriptors such as "@every 30s".
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var errBarrierTriggered = errors.New("barrier triggered")

// BarrierInjector decorates the source of a source vertex. Barriers are triggered on a cron
// schedule, or with Trigger, and handed out by Take ahead of the next message of the source.
// At most one barrier is pending at a time, extra triggers are skipped.
type BarrierInjector struct {
	source   forward.Source
	instance string
	schedule string
	cron     *cron.Cron
	barriers chan isb.Message
	log      *zap.SugaredLogger

	lock       sync.Mutex
	cancelTake context.CancelCauseFunc
	// lastBarrier belongs to the goroutine calling Take
	lastBarrier bool
}

var _ forward.Source = (*BarrierInjector)(nil)

type InjectorOption func(*BarrierInjector) error

// WithSchedule injects barriers on a cron schedule. An empty schedule only injects on Trigger.
func WithSchedule(schedule string) InjectorOption {
	return func(b *BarrierInjector) error {
		b.schedule = schedule
		return nil
	}
}

func WithInjectorLogger(log *zap.SugaredLogger) InjectorOption {
	return func(b *BarrierInjector) error {
		b.log = log
		return nil
	}
}

// NewBarrierInjector wraps source, a source of instance `instance`.
func NewBarrierInjector(source forward.Source, instance string, opts ...InjectorOption) (*BarrierInjector, error) {
	b := &BarrierInjector{
		source:   source,
		instance: instance,
		barriers: make(chan isb.Message, 1),
		cron:     cron.New(cron.WithParser(cronParser)),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.log == nil {
		b.log = logging.NewLogger()
	}
	b.log = b.log.With("instance", instance)
	if b.schedule != "" {
		if _, err := b.cron.AddFunc(b.schedule, func() { b.Trigger() }); err != nil {
			return nil, fmt.Errorf("invalid checkpoint schedule %q: %w", b.schedule, err)
		}
	}
	return b, nil
}

// Start starts the schedule.
func (b *BarrierInjector) Start() {
	b.cron.Start()
}

// Trigger requests a barrier and returns its checkpoint id, or false if a barrier is already
// pending.
func (b *BarrierInjector) Trigger() (string, bool) {
	id := uuid.NewString()
	barrier := isb.NewDataMessage(isb.BarrierPayload{CheckpointID: id, IssuedAt: time.Now().UTC()})
	select {
	case b.barriers <- barrier:
	default:
		barriersSkipped.WithLabelValues(b.instance).Inc()
		b.log.Warn("Previous barrier is still pending, skipping")
		return "", false
	}
	b.lock.Lock()
	if b.cancelTake != nil {
		b.cancelTake(errBarrierTriggered)
	}
	b.lock.Unlock()
	return id, true
}

// Take returns a pending barrier, or else the next message of the source. A barrier triggered
// while the source is waiting interrupts the wait.
func (b *BarrierInjector) Take(ctx context.Context) (isb.Message, error) {
	if msg, ok := b.pending(); ok {
		return msg, nil
	}
	takeCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	b.lock.Lock()
	b.cancelTake = cancel
	b.lock.Unlock()
	defer func() {
		b.lock.Lock()
		b.cancelTake = nil
		b.lock.Unlock()
	}()
	// a trigger that raced with the registration above
	if msg, ok := b.pending(); ok {
		return msg, nil
	}
	msg, err := b.source.Take(takeCtx)
	if err != nil && ctx.Err() == nil && errors.Is(context.Cause(takeCtx), errBarrierTriggered) {
		if barrier, ok := b.pending(); ok {
			return barrier, nil
		}
	}
	b.lastBarrier = false
	return msg, err
}

func (b *BarrierInjector) pending() (isb.Message, bool) {
	select {
	case msg := <-b.barriers:
		b.lastBarrier = true
		barriersInjected.WithLabelValues(b.instance).Inc()
		return msg, true
	default:
		return isb.Message{}, false
	}
}

// MessageOrigin reports no origin for an injected barrier.
func (b *BarrierInjector) MessageOrigin() (graph.Origin, bool) {
	if b.lastBarrier {
		return graph.Origin{}, false
	}
	return b.source.MessageOrigin()
}

func (b *BarrierInjector) Flush(ctx context.Context, upstreamInstances []string) error {
	return b.source.Flush(ctx, upstreamInstances)
}

// Close stops the schedule, waiting for a running trigger, and closes the source.
func (b *BarrierInjector) Close() error {
	<-b.cron.Stop().Done()
	if c, ok := b.source.(forward.Closer); ok {
		return c.Close()
	}
	return nil
}
