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
	"fmt"
	"sort"
	"strings"

	"github.com/numaproj/numastream/pkg/endpoint"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/shared/logging"
	"github.com/numaproj/numastream/pkg/shared/pool"
	"github.com/numaproj/numastream/pkg/shuffle"
)

// PartitioningDispatcher routes messages to the output endpoints of a vertex shard. A message
// is partitioned and encoded once, and the same frame is queued for every target.
type PartitioningDispatcher struct {
	vertexName  string
	shard       int
	partitioner *shuffle.Partitioner
	outputs     []*endpoint.OutputEndpoint
	byName      map[string]*endpoint.OutputEndpoint
	codecs      *pool.Pool[isb.Codec]
}

var _ Dispatcher = (*PartitioningDispatcher)(nil)

// NewPartitioningDispatcher returns a dispatcher of local shard `shard` over outputs.
func NewPartitioningDispatcher(shard int, outputs []*endpoint.OutputEndpoint, codecs *pool.Pool[isb.Codec]) *PartitioningDispatcher {
	configs := make([]graph.EndpointConfig, 0, len(outputs))
	byName := make(map[string]*endpoint.OutputEndpoint, len(outputs))
	vertexName := ""
	for _, o := range outputs {
		configs = append(configs, o.Config())
		byName[o.Config().LocalEndpoint] = o
		vertexName = o.Config().LocalVertex
	}
	return &PartitioningDispatcher{
		vertexName:  vertexName,
		shard:       shard,
		partitioner: shuffle.NewPartitioner(shard, configs),
		outputs:     outputs,
		byName:      byName,
		codecs:      codecs,
	}
}

// Outputs returns the output endpoints in declaration order.
func (d *PartitioningDispatcher) Outputs() []*endpoint.OutputEndpoint {
	return d.outputs
}

// Output returns the output endpoint named `name`.
func (d *PartitioningDispatcher) Output(name string) (*endpoint.OutputEndpoint, bool) {
	o, ok := d.byName[name]
	return o, ok
}

func (d *PartitioningDispatcher) encode(msg isb.Message) ([]byte, error) {
	codec := d.codecs.Rent()
	defer func() {
		_ = d.codecs.Return(codec)
	}()
	return codec.Marshal(msg)
}

// Dispatch queues msg for the targets the partitioner selects. Targets whose shard has been
// unregistered are skipped.
func (d *PartitioningDispatcher) Dispatch(ctx context.Context, msg isb.Message) error {
	targets, err := d.partitioner.Partition(&msg)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		unroutedMessagesCount.WithLabelValues(d.vertexName, "no-endpoint").Inc()
		return nil
	}
	frame, err := d.encode(msg)
	if err != nil {
		return err
	}
	for _, t := range targets {
		out := d.byName[t.Endpoint.LocalEndpoint]
		if err := out.EnqueueFrame(ctx, t.Shard, frame); err != nil {
			if errors.Is(err, endpoint.ErrUnknownShard) || errors.Is(err, endpoint.ErrShardUnregistered) {
				unroutedMessagesCount.WithLabelValues(d.vertexName, "unregistered").Inc()
				logging.FromContext(ctx).Debugw("Skipping unregistered target", "connection", t.ConnectionKey())
				continue
			}
			return err
		}
	}
	return nil
}

// Broadcast queues msg for every registered shard of every endpoint whose control flag matches
// the message. A pipeline endpoint only gets it for the shard with the local index.
func (d *PartitioningDispatcher) Broadcast(ctx context.Context, msg isb.Message) error {
	frame, err := d.encode(msg)
	if err != nil {
		return err
	}
	for _, out := range d.outputs {
		if out.Config().IsControl != msg.IsControl() {
			continue
		}
		for _, shard := range d.targets(out) {
			if err := out.EnqueueFrame(ctx, shard, frame); err != nil {
				if errors.Is(err, endpoint.ErrUnknownShard) || errors.Is(err, endpoint.ErrShardUnregistered) {
					continue
				}
				return err
			}
		}
	}
	return nil
}

// targets returns the registered remote shards of out this shard sends to.
func (d *PartitioningDispatcher) targets(out *endpoint.OutputEndpoint) []int {
	registered := out.RegisteredShards()
	if !out.Config().IsPipeline {
		return registered
	}
	for _, shard := range registered {
		if shard == d.shard {
			return []int{shard}
		}
	}
	return nil
}

// DownstreamInstances returns the remote instances of every output endpoint, sorted.
func (d *PartitioningDispatcher) DownstreamInstances() []string {
	seen := make(map[string]bool)
	var instances []string
	for _, out := range d.outputs {
		for _, inst := range out.Config().RemoteInstances {
			if !seen[inst] {
				seen[inst] = true
				instances = append(instances, inst)
			}
		}
	}
	sort.Strings(instances)
	return instances
}

// Flush discards what is queued for the given downstream instances and sends them a flush
// marker. Every instance must be the remote end of one of the output endpoints. Shards that are
// not registered, or that this shard does not send to, are skipped.
func (d *PartitioningDispatcher) Flush(ctx context.Context, downstreamInstances []string) error {
	pending := make(map[string]bool, len(downstreamInstances))
	for _, inst := range downstreamInstances {
		pending[inst] = true
	}
	for _, out := range d.outputs {
		targets := make(map[int]bool)
		for _, shard := range d.targets(out) {
			targets[shard] = true
		}
		for shard, inst := range out.Config().RemoteInstances {
			if _, ok := pending[inst]; !ok {
				continue
			}
			pending[inst] = false
			if !targets[shard] {
				continue
			}
			if err := out.Flush(ctx, shard); err != nil {
				if errors.Is(err, endpoint.ErrUnknownShard) || errors.Is(err, endpoint.ErrShardUnregistered) {
					continue
				}
				return fmt.Errorf("failed to flush %s: %w", out.Config().ConnectionKey(shard), err)
			}
		}
	}
	var unknown []string
	for inst, missing := range pending {
		if missing {
			unknown = append(unknown, inst)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown downstream instances: %s", strings.Join(unknown, ", "))
	}
	return nil
}
