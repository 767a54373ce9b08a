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
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/middleware"
	"github.com/numaproj/numastream/pkg/shared/logging"
)

// BlockableSource is a source whose upstream connections can be blocked one by one.
type BlockableSource interface {
	MessageOrigin() (graph.Origin, bool)
	Connections() []graph.Origin
	Block(origin graph.Origin) error
	Unblock(origin graph.Origin) error
}

// ChandyLamport aligns the barriers of every upstream data connection of an instance. A
// barrier blocks the connection it arrived on. Once every connection is blocked the checkpoint
// is taken, the connections are unblocked and the barrier travels on; the barriers before the
// last one are absorbed. An instance without upstream connections checkpoints on every barrier.
type ChandyLamport struct {
	instance    string
	source      BlockableSource
	coordinator Coordinator
	upstream    map[string]graph.Origin

	lock    sync.Mutex
	blocked map[string]graph.Origin
	handler middleware.Handler
}

var _ middleware.Handler = (*ChandyLamport)(nil)

// NewChandyLamport returns the barrier handler of instance `instance`. source may be nil for an
// instance that has no upstream connections.
func NewChandyLamport(instance string, source BlockableSource, coordinator Coordinator) (*ChandyLamport, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	c := &ChandyLamport{
		instance:    instance,
		source:      source,
		coordinator: coordinator,
		upstream:    make(map[string]graph.Origin),
		blocked:     make(map[string]graph.Origin),
	}
	if source != nil {
		for _, o := range source.Connections() {
			c.upstream[o.ConnectionKey()] = o
		}
	}
	c.handler = middleware.NewPayloadHandler[isb.BarrierPayload](c.receiveBarrier)
	return c, nil
}

func (c *ChandyLamport) Name() string { return "chandy-lamport" }

func (c *ChandyLamport) Handle(ctx context.Context, msg isb.Message) ([]isb.Message, error) {
	return c.handler.Handle(ctx, msg)
}

// Blocked returns the number of connections waiting for the checkpoint.
func (c *ChandyLamport) Blocked() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.blocked)
}

func (c *ChandyLamport) receiveBarrier(ctx context.Context, msg isb.Message, barrier isb.BarrierPayload) ([]isb.Message, error) {
	log := logging.FromContext(ctx).With("checkpointId", barrier.CheckpointID)
	if len(c.upstream) == 0 {
		if err := c.takeCheckpoint(ctx, barrier); err != nil {
			return nil, err
		}
		return middleware.Forward(msg.AddPayload(barrier)), nil
	}

	origin, ok := c.source.MessageOrigin()
	if !ok {
		return nil, ErrNoOrigin
	}
	key := origin.ConnectionKey()
	c.lock.Lock()
	defer c.lock.Unlock()
	if _, dup := c.blocked[key]; dup {
		log.Warnw("Duplicate barrier", "connection", key)
		return nil, fmt.Errorf("%w %s (instance %s)", ErrDuplicateBarrier, key, origin.Instance())
	}
	log.Debugw("Received barrier, blocking connection", "connection", key)
	if err := c.source.Block(origin); err != nil {
		return nil, err
	}
	c.blocked[key] = origin
	blockedConnections.WithLabelValues(c.instance).Set(float64(len(c.blocked)))
	for k := range c.upstream {
		if _, ok := c.blocked[k]; !ok {
			return middleware.Absorb(), nil
		}
	}

	if err := c.takeCheckpoint(ctx, barrier); err != nil {
		return nil, err
	}
	if err := c.unblockAll(); err != nil {
		return nil, err
	}
	log.Debugw("Unblocked upstream connections", "count", len(c.upstream))
	return middleware.Forward(msg.AddPayload(barrier)), nil
}

func (c *ChandyLamport) takeCheckpoint(ctx context.Context, barrier isb.BarrierPayload) error {
	start := time.Now()
	id, err := c.coordinator.TakeCheckpoint(ctx, c.instance)
	if err != nil {
		return fmt.Errorf("failed to take checkpoint for barrier %s: %w", barrier.CheckpointID, err)
	}
	elapsed := time.Since(start)
	checkpointsTaken.WithLabelValues(c.instance).Inc()
	checkpointDuration.WithLabelValues(c.instance).Observe(float64(elapsed.Milliseconds()))
	logging.FromContext(ctx).Infow("Checkpoint taken", "checkpointId", id, "barrier", barrier.CheckpointID, "elapsed", elapsed)
	return nil
}

// unblockAll is called with the lock held.
func (c *ChandyLamport) unblockAll() error {
	var err error
	for key, origin := range c.blocked {
		err = multierr.Append(err, c.source.Unblock(origin))
		delete(c.blocked, key)
	}
	blockedConnections.WithLabelValues(c.instance).Set(0)
	return err
}

// Reset unblocks every blocked connection, dropping the barriers received so far. It is used
// after a restore.
func (c *ChandyLamport) Reset() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.unblockAll()
}
