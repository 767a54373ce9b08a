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
	"fmt"

	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/checkpoint"
	"github.com/numaproj/numastream/pkg/config"
	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/middleware"
	"github.com/numaproj/numastream/pkg/operator/builtin"
	"github.com/numaproj/numastream/pkg/shared/logging"
	"github.com/numaproj/numastream/pkg/sinks"
	"github.com/numaproj/numastream/pkg/sources"
	"github.com/numaproj/numastream/pkg/sources/receiver"
)

// shardForwarders are the forwarders of a shard, with the checkpointing components they are
// built around.
type shardForwarders struct {
	forwarders []*forward.StreamForward
	injector   *checkpoint.BarrierInjector
	aligner    *checkpoint.ChandyLamport
}

// buildForwarders returns the forwarders of the shard. A source vertex gets one for its
// sourcer, decorated with a barrier injector, and a second one draining its control inputs,
// if any. Any other vertex gets one for its receiver.
func (p *Processor) buildForwarders(ctx context.Context, recv *receiver.Receiver, dispatcher *forward.PartitioningDispatcher, store *checkpoint.MemoryStore) (*shardForwarders, error) {
	log := logging.FromContext(ctx)
	vc, _ := p.conf.GetVertexConfig(p.vertex.Name)
	fwdOpts := []forward.Option{forward.WithInstance(p.instance), forward.WithLogger(log)}

	var (
		source   forward.Source
		injector *checkpoint.BarrierInjector
		blocking checkpoint.BlockableSource
		extra    []*forward.StreamForward
	)
	if p.vertex.Kind == graph.SourceKind {
		sourcer, err := sources.NewSourcer(p.vertex.Name, p.shard, vc.Source, log)
		if err != nil {
			return nil, fmt.Errorf("failed to build the source of %s: %w", p.instance, err)
		}
		if starter, ok := sourcer.(sources.Starter); ok {
			if err := starter.Start(ctx); err != nil {
				_ = sourcer.Close()
				return nil, fmt.Errorf("failed to start the source of %s: %w", p.instance, err)
			}
		}
		injector, err = checkpoint.NewBarrierInjector(sourcer, p.instance,
			checkpoint.WithSchedule(p.conf.GetCheckpointConfig().Schedule),
			checkpoint.WithInjectorLogger(log))
		if err != nil {
			_ = sourcer.Close()
			return nil, err
		}
		source = injector
		if recv != nil {
			pl, err := middleware.NewPipeline(control{instance: p.instance})
			if err != nil {
				return nil, err
			}
			cf, err := forward.NewStreamForward(p.vertex.Name, recv, pl.ForVertex(p.vertex.Name), forward.DispatchFunc(dispatcher.Broadcast), fwdOpts...)
			if err != nil {
				return nil, err
			}
			extra = append(extra, cf)
		}
	} else {
		if recv == nil {
			return nil, fmt.Errorf("vertex %q has no inputs", p.vertex.Name)
		}
		source = recv
		blocking = recv
	}

	f, aligner, err := p.buildForwarder(ctx, vc, source, blocking, dispatcher, store, fwdOpts)
	if err != nil {
		if injector != nil {
			_ = injector.Close()
		}
		return nil, err
	}
	return &shardForwarders{
		forwarders: append([]*forward.StreamForward{f}, extra...),
		injector:   injector,
		aligner:    aligner,
	}, nil
}

func (p *Processor) buildForwarder(ctx context.Context, vc config.VertexConfig, source forward.Source, blocking checkpoint.BlockableSource, dispatcher *forward.PartitioningDispatcher, store *checkpoint.MemoryStore, opts []forward.Option) (*forward.StreamForward, *checkpoint.ChandyLamport, error) {
	pipeline, aligner, err := p.buildPipeline(ctx, vc, blocking, store)
	if err != nil {
		return nil, nil, err
	}
	sink, err := p.buildDispatcher(ctx, vc, dispatcher)
	if err != nil {
		return nil, nil, err
	}
	f, err := forward.NewStreamForward(p.vertex.Name, source, pipeline, sink, opts...)
	return f, aligner, err
}

// buildPipeline chains the control handler, the barrier alignment and the configured
// operators. Operators keeping state are registered with the checkpoint store.
func (p *Processor) buildPipeline(ctx context.Context, vc config.VertexConfig, source checkpoint.BlockableSource, store *checkpoint.MemoryStore) (*middleware.Pipeline, *checkpoint.ChandyLamport, error) {
	aligner, err := checkpoint.NewChandyLamport(p.instance, source, store)
	if err != nil {
		return nil, nil, err
	}
	handlers := []middleware.Handler{control{instance: p.instance}, aligner}
	for i, oc := range vc.Operators {
		b := &builtin.Builtin{Name: oc.Name, KWArgs: oc.KWArgs}
		h, err := b.Handler(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build operator %d of vertex %q: %w", i, p.vertex.Name, err)
		}
		if state, ok := h.(checkpoint.Checkpointable); ok {
			if err := store.Register(fmt.Sprintf("%d-%s", i, oc.Name), state); err != nil {
				return nil, nil, err
			}
		}
		handlers = append(handlers, h)
	}
	pipeline, err := middleware.NewPipeline(handlers...)
	if err != nil {
		return nil, nil, err
	}
	logging.FromContext(ctx).Infow("Built pipeline", zap.Int("operators", len(vc.Operators)))
	return pipeline.ForVertex(p.vertex.Name), aligner, nil
}

// buildDispatcher returns the sinker of a sink vertex, and else the partitioning dispatcher
// with barriers sent to every downstream shard.
func (p *Processor) buildDispatcher(ctx context.Context, vc config.VertexConfig, dispatcher *forward.PartitioningDispatcher) (forward.Dispatcher, error) {
	if p.vertex.Kind != graph.SinkKind {
		return checkpoint.BroadcastBarriers(dispatcher), nil
	}
	sinker, err := sinks.NewSinker(ctx, p.vertex.Name, p.shard, vc.Sink)
	if err != nil {
		return nil, err
	}
	return sinker, nil
}
