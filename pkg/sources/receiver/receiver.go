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

// Package receiver implements the source of a non-source vertex shard: it reads the messages
// queued by the input endpoints of the shard.
package receiver

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/numaproj/numastream/pkg/endpoint"
	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/shared/logging"
)

// Receiver takes messages from a set of input endpoints, one endpoint after the other.
type Receiver struct {
	vertexName string
	shard      int
	inputs     []*endpoint.InputEndpoint
	byName     map[string]*endpoint.InputEndpoint
	signal     chan struct{}

	// cursor and origin belong to the single goroutine calling Take
	cursor    int
	origin    graph.Origin
	hasOrigin bool
	lock      sync.Mutex
}

var _ forward.Source = (*Receiver)(nil)

// New builds an input endpoint for each of the configs and a receiver over them for shard
// `shard` of the vertex. The options apply to every endpoint.
func New(vertexName string, shard int, configs []graph.EndpointConfig, opts ...endpoint.Option) *Receiver {
	r := &Receiver{
		vertexName: vertexName,
		shard:      shard,
		byName:     make(map[string]*endpoint.InputEndpoint, len(configs)),
		signal:     make(chan struct{}, 1),
	}
	opts = append(opts, endpoint.WithSignal(r.signal))
	for _, c := range configs {
		in := endpoint.NewInputEndpoint(c, opts...)
		r.inputs = append(r.inputs, in)
		r.byName[c.LocalEndpoint] = in
	}
	return r
}

// Inputs returns the input endpoints in declaration order.
func (r *Receiver) Inputs() []*endpoint.InputEndpoint {
	return r.inputs
}

// Input returns the input endpoint named `name`.
func (r *Receiver) Input(name string) (*endpoint.InputEndpoint, bool) {
	in, ok := r.byName[name]
	return in, ok
}

// Ingress feeds the stream sent by remote shard `remoteShard` into the input endpoint `name`.
func (r *Receiver) Ingress(ctx context.Context, name string, stream io.Reader, remoteShard int) error {
	in, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("vertex %s has no input endpoint %s", r.vertexName, name)
	}
	return in.Ingress(ctx, stream, remoteShard)
}

// Take returns the next message of any input endpoint, waiting until one arrives or ctx is done.
func (r *Receiver) Take(ctx context.Context) (isb.Message, error) {
	for {
		if d, ok := r.poll(); ok {
			r.lock.Lock()
			r.origin, r.hasOrigin = d.Origin, true
			r.lock.Unlock()
			return d.Message, nil
		}
		select {
		case <-r.signal:
		case <-ctx.Done():
			return isb.Message{}, ctx.Err()
		}
	}
}

func (r *Receiver) poll() (endpoint.Delivery, bool) {
	for i := 0; i < len(r.inputs); i++ {
		in := r.inputs[(r.cursor+i)%len(r.inputs)]
		if d, ok := in.GetNext(); ok {
			r.cursor = (r.cursor + i + 1) % len(r.inputs)
			return d, true
		}
	}
	return endpoint.Delivery{}, false
}

// MessageOrigin returns the connection the last taken message arrived on.
func (r *Receiver) MessageOrigin() (graph.Origin, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.origin, r.hasOrigin
}

// Connections returns every connection of the data input endpoints.
func (r *Receiver) Connections() []graph.Origin {
	var origins []graph.Origin
	for _, o := range r.connections() {
		if !o.Endpoint.IsControl {
			origins = append(origins, o)
		}
	}
	return origins
}

// UpstreamInstances returns the instances connected to this shard on any input endpoint,
// sorted.
func (r *Receiver) UpstreamInstances() []string {
	seen := make(map[string]bool)
	var instances []string
	for _, o := range r.connections() {
		if inst := o.Instance(); !seen[inst] {
			seen[inst] = true
			instances = append(instances, inst)
		}
	}
	sort.Strings(instances)
	return instances
}

// connections lists the connections of every input endpoint. A pipeline endpoint is only
// connected to the upstream shard with the same index.
func (r *Receiver) connections() []graph.Origin {
	var origins []graph.Origin
	for _, in := range r.inputs {
		c := in.Config()
		if c.IsPipeline {
			if r.shard < len(c.RemoteInstances) {
				origins = append(origins, graph.Origin{Endpoint: c, Shard: r.shard})
			}
			continue
		}
		for shard := range c.RemoteInstances {
			origins = append(origins, graph.Origin{Endpoint: c, Shard: shard})
		}
	}
	return origins
}

func (r *Receiver) lookup(origin graph.Origin) (*endpoint.InputEndpoint, error) {
	in, ok := r.byName[origin.Endpoint.LocalEndpoint]
	if !ok {
		return nil, fmt.Errorf("vertex %s has no input endpoint %s", r.vertexName, origin.Endpoint.LocalEndpoint)
	}
	return in, nil
}

// Block stops taking messages from a connection.
func (r *Receiver) Block(origin graph.Origin) error {
	in, err := r.lookup(origin)
	if err != nil {
		return err
	}
	return in.Block(origin.Shard)
}

// Unblock reverts Block.
func (r *Receiver) Unblock(origin graph.Origin) error {
	in, err := r.lookup(origin)
	if err != nil {
		return err
	}
	return in.Unblock(origin.Shard)
}

// IsBlocked tells whether a connection is blocked.
func (r *Receiver) IsBlocked(origin graph.Origin) bool {
	in, err := r.lookup(origin)
	return err == nil && in.IsBlocked(origin.Shard)
}

// Flush drops what the given upstream instances sent before their next flush marker, on every
// connection they have with this shard. It returns once all the markers have been received.
func (r *Receiver) Flush(ctx context.Context, upstreamInstances []string) error {
	connections := r.connections()
	known := make(map[string]bool, len(connections))
	for _, o := range connections {
		known[o.Instance()] = true
	}
	var unknown []string
	selected := make(map[string]bool, len(upstreamInstances))
	for _, inst := range upstreamInstances {
		if !known[inst] {
			unknown = append(unknown, inst)
		}
		selected[inst] = true
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown upstream instances: %s", strings.Join(unknown, ", "))
	}

	log := logging.FromContext(ctx).With("vertex", r.vertexName)
	g, gCtx := errgroup.WithContext(ctx)
	for _, o := range connections {
		if !selected[o.Instance()] {
			continue
		}
		in, o := r.byName[o.Endpoint.LocalEndpoint], o
		g.Go(func() error {
			if err := in.Flush(gCtx, o.Shard); err != nil {
				return fmt.Errorf("failed to flush %s: %w", o.ConnectionKey(), err)
			}
			log.Debugw("Flushed connection", "connection", o.ConnectionKey())
			return nil
		})
	}
	return g.Wait()
}
