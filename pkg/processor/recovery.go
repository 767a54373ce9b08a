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
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/numastream/pkg/checkpoint"
	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/sources/receiver"
)

// recovery restores a shard to one of its checkpoints. Every forwarder of the shard is halted
// while the streams it shares with its neighbours are flushed, so nothing sent before the
// restore is processed after it. The neighbours are expected to restore the same checkpoint: a
// restore waits for the flush marker of every upstream instance.
type recovery struct {
	instance   string
	forwarders []*forward.StreamForward
	dispatcher *forward.PartitioningDispatcher
	recv       *receiver.Receiver
	aligner    *checkpoint.ChandyLamport
	store      *checkpoint.MemoryStore
	log        *zap.SugaredLogger
}

func (r *recovery) Checkpoints() []checkpoint.Checkpoint {
	return r.store.Checkpoints()
}

// Restore halts the forwarders, flushes the downstream and upstream streams, resets the
// barrier alignment and puts back the operator states of checkpoint id.
func (r *recovery) Restore(ctx context.Context, id string) error {
	if _, ok := r.store.Get(id); !ok {
		return fmt.Errorf("%w %s", checkpoint.ErrUnknownCheckpoint, id)
	}
	log := r.log.With("checkpointId", id)
	start := time.Now()
	err := halted(ctx, r.forwarders, func(ctx context.Context) error {
		log.Infow("Forwarders halted, flushing streams")
		return r.restore(ctx, id)
	})
	if err != nil {
		restoresTotal.WithLabelValues(r.instance, restoreFailed).Inc()
		log.Errorw("Failed to restore checkpoint", zap.Error(err))
		return err
	}
	restoresTotal.WithLabelValues(r.instance, restoreSucceeded).Inc()
	log.Infow("Restored checkpoint", "elapsed", time.Since(start))
	return nil
}

func (r *recovery) restore(ctx context.Context, id string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.dispatcher.Flush(gctx, r.dispatcher.DownstreamInstances())
	})
	if r.recv != nil {
		g.Go(func() error {
			return r.recv.Flush(gctx, r.recv.UpstreamInstances())
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to flush the streams: %w", err)
	}
	if err := r.aligner.Reset(); err != nil {
		return fmt.Errorf("failed to reset the barrier alignment: %w", err)
	}
	return r.store.Restore(id)
}

// halted runs fn once every forwarder is halted. A forwarder that has exited takes nothing
// anymore and is skipped.
func halted(ctx context.Context, forwarders []*forward.StreamForward, fn func(context.Context) error) error {
	if len(forwarders) == 0 {
		return fn(ctx)
	}
	ran := false
	err := forwarders[0].Halt(ctx, func(ctx context.Context) error {
		ran = true
		return halted(ctx, forwarders[1:], fn)
	})
	if errors.Is(err, forward.ErrForwarderStopped) && !ran {
		return halted(ctx, forwarders[1:], fn)
	}
	return err
}
