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

package graph

import (
	"fmt"

	"go.uber.org/multierr"
)

type Option func(*Builder)

// WithCoordinator adds a single-shard coordinator vertex at build time, with a control edge
// from it to every vertex and from every non-sink vertex back to it.
func WithCoordinator() Option {
	return func(b *Builder) {
		b.coordinator = true
	}
}

// Builder declares vertices and edges. Vertices and edges are stored in arenas and refer to
// each other by id, so feedback edges need no special casing.
type Builder struct {
	vertices    []*vertexRecord
	edges       []*edgeRecord
	names       map[string]VertexID
	nameCounts  map[VertexKind]int
	coordinator bool
	errs        error
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		names:      make(map[string]VertexID),
		nameCounts: make(map[VertexKind]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddSource adds a source vertex. An empty name is replaced by a generated one such as "source01".
func (b *Builder) AddSource(name string, shards int) *SourceVertex {
	id, name := b.add(SourceKind, name, shards)
	return &SourceVertex{id: id, name: name}
}

func (b *Builder) AddFilter(name string, shards int) *Vertex {
	return b.addVertex(FilterKind, name, shards)
}

func (b *Builder) AddMap(name string, shards int) *Vertex {
	return b.addVertex(MapKind, name, shards)
}

func (b *Builder) AddAggregate(name string, shards int) *Vertex {
	return b.addVertex(AggregateKind, name, shards)
}

func (b *Builder) AddJoin(name string, shards int) *Vertex {
	return b.addVertex(JoinKind, name, shards)
}

// AddSink adds a sink vertex. The returned handle cannot be passed as the origin of an edge.
func (b *Builder) AddSink(name string, shards int) *SinkVertex {
	id, name := b.add(SinkKind, name, shards)
	return &SinkVertex{id: id, name: name}
}

// Connect declares a shuffle edge from one vertex to another. Use the returned EdgeBuilder to
// change its discipline.
func (b *Builder) Connect(from Upstream, to Downstream) *EdgeBuilder {
	e := &edgeRecord{
		from:     from.upstreamID(),
		to:       to.downstreamID(),
		edgeType: Shuffle,
	}
	if !b.owns(e.from, from.Name()) || !b.owns(e.to, to.Name()) {
		e.removed = true
		e.err = BuildErr{Edge: from.Name() + "->" + to.Name(), Message: "vertex was not added by this builder"}
		b.addErr(e.err)
	}
	b.edges = append(b.edges, e)
	return &EdgeBuilder{b: b, edge: e}
}

// owns tells whether the handle with id and name was returned by this builder.
func (b *Builder) owns(id VertexID, name string) bool {
	return id >= 0 && int(id) < len(b.vertices) && b.vertices[id].name == name
}

func (b *Builder) addVertex(kind VertexKind, name string, shards int) *Vertex {
	id, name := b.add(kind, name, shards)
	return &Vertex{id: id, name: name}
}

func (b *Builder) add(kind VertexKind, name string, shards int) (VertexID, string) {
	if name == "" {
		name = b.nextName(kind)
	}
	id := VertexID(len(b.vertices))
	if _, ok := b.names[name]; ok {
		b.addErr(BuildErr{Vertex: name, Message: "duplicate vertex name"})
	} else {
		b.names[name] = id
	}
	if shards < 1 {
		b.addErr(BuildErr{Vertex: name, Message: fmt.Sprintf("shard count must be at least 1, got %d", shards)})
	}
	b.vertices = append(b.vertices, &vertexRecord{id: id, name: name, kind: kind, shards: shards})
	return id, name
}

func (b *Builder) nextName(kind VertexKind) string {
	name, n := b.peekName(kind)
	b.nameCounts[kind] = n
	return name
}

// peekName returns the next generated name of kind and its counter, without reserving it.
func (b *Builder) peekName(kind VertexKind) (string, int) {
	for n := b.nameCounts[kind] + 1; ; n++ {
		name := fmt.Sprintf("%s%02d", kind, n)
		if _, ok := b.names[name]; !ok {
			return name, n
		}
	}
}

func (b *Builder) addErr(err error) {
	b.errs = multierr.Append(b.errs, err)
}

// Build validates the graph and compiles every edge into its shard-to-shard connections.
// All validation problems are reported together.
func (b *Builder) Build() (*Topology, error) {
	vertices := make([]*vertexRecord, len(b.vertices))
	copy(vertices, b.vertices)
	edges := make([]*edgeRecord, 0, len(b.edges))
	for _, e := range b.edges {
		if !e.removed {
			c := *e
			edges = append(edges, &c)
		}
	}
	if b.coordinator {
		// Build may run again, the name is not reserved
		name, _ := b.peekName(CoordinatorKind)
		coord := &vertexRecord{id: VertexID(len(vertices)), name: name, kind: CoordinatorKind, shards: 1}
		for _, v := range vertices {
			edges = append(edges, &edgeRecord{from: coord.id, to: v.id, edgeType: Shuffle, control: true})
			// sinks never get outgoing edges, not even control ones
			if v.kind != SinkKind {
				edges = append(edges, &edgeRecord{from: v.id, to: coord.id, edgeType: Shuffle, control: true})
			}
		}
		vertices = append(vertices, coord)
	}

	errs := multierr.Append(b.errs, validate(vertices, edges))
	if errs != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGraph, errs)
	}
	return compile(vertices, edges), nil
}

func validate(vertices []*vertexRecord, edges []*edgeRecord) error {
	var errs error
	dataInputs := make(map[VertexID]int)
	for _, e := range edges {
		if !e.control && !e.backchannel {
			dataInputs[e.to]++
		}
	}
	for _, v := range vertices {
		switch v.kind {
		case SourceKind, CoordinatorKind:
		case JoinKind:
			if dataInputs[v.id] < 2 {
				errs = multierr.Append(errs, BuildErr{Vertex: v.name, Message: "join vertex needs at least two data inputs"})
			}
		default:
			if dataInputs[v.id] == 0 {
				errs = multierr.Append(errs, BuildErr{Vertex: v.name, Message: "vertex has no data input"})
			}
		}
	}
	if cyclic := forwardCycle(vertices, edges); cyclic != "" {
		errs = multierr.Append(errs, BuildErr{Vertex: cyclic, Message: "forward data edges form a cycle, mark the feedback edge as a backchannel"})
	}
	return errs
}

// forwardCycle returns the name of a vertex on a cycle made of forward data edges, or "" if there is none.
func forwardCycle(vertices []*vertexRecord, edges []*edgeRecord) string {
	indegree := make([]int, len(vertices))
	next := make([][]VertexID, len(vertices))
	for _, e := range edges {
		if e.control || e.backchannel {
			continue
		}
		indegree[e.to]++
		next[e.from] = append(next[e.from], e.to)
	}
	ready := make([]VertexID, 0, len(vertices))
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, VertexID(id))
		}
	}
	visited := 0
	for len(ready) > 0 {
		id := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		visited++
		for _, n := range next[id] {
			indegree[n]--
			if indegree[n] == 0 {
				ready = append(ready, n)
			}
		}
	}
	if visited == len(vertices) {
		return ""
	}
	for id, d := range indegree {
		if d > 0 {
			return vertices[id].name
		}
	}
	return ""
}

func compile(vertices []*vertexRecord, edges []*edgeRecord) *Topology {
	t := &Topology{
		byName:    make(map[string]VertexID, len(vertices)),
		instances: make(map[string]instanceRef),
		inputs:    make(map[VertexID][]EndpointConfig),
		outputs:   make(map[VertexID][]EndpointConfig),
	}
	for _, v := range vertices {
		info := VertexInfo{ID: v.id, Name: v.name, Kind: v.kind, Shards: v.shards, Instances: v.instanceNames()}
		t.vertices = append(t.vertices, info)
		t.byName[v.name] = v.id
		for shard, inst := range info.Instances {
			t.instances[inst] = instanceRef{vertex: v.id, shard: shard}
		}
	}

	inCount := make(map[VertexID]int)
	outCount := make(map[VertexID]int)
	for _, e := range edges {
		from, to := t.vertices[e.from], t.vertices[e.to]
		fromEndpoint := fmt.Sprintf("output%d", outCount[e.from])
		toEndpoint := fmt.Sprintf("input%d", inCount[e.to])
		outCount[e.from]++
		inCount[e.to]++

		t.edges = append(t.edges, Edge{
			From:         from.Name,
			FromEndpoint: fromEndpoint,
			To:           to.Name,
			ToEndpoint:   toEndpoint,
			Type:         e.edgeType,
			Backchannel:  e.backchannel,
			Control:      e.control,
		})
		t.outputs[e.from] = append(t.outputs[e.from], EndpointConfig{
			Direction:       Output,
			LocalVertex:     from.Name,
			LocalEndpoint:   fromEndpoint,
			RemoteVertex:    to.Name,
			RemoteEndpoint:  toEndpoint,
			RemoteInstances: to.Instances,
			IsControl:       e.control,
			IsPipeline:      e.edgeType == Pipeline,
			IsBackchannel:   e.backchannel,
		})
		t.inputs[e.to] = append(t.inputs[e.to], EndpointConfig{
			Direction:       Input,
			LocalVertex:     to.Name,
			LocalEndpoint:   toEndpoint,
			RemoteVertex:    from.Name,
			RemoteEndpoint:  fromEndpoint,
			RemoteInstances: from.Instances,
			IsControl:       e.control,
			IsPipeline:      e.edgeType == Pipeline,
			IsBackchannel:   e.backchannel,
		})

		connect := func(fromShard, toShard int) {
			t.connections = append(t.connections, Connection{
				FromVertex:   from.Name,
				FromEndpoint: fromEndpoint,
				FromInstance: from.Instances[fromShard],
				FromShard:    fromShard,
				ToVertex:     to.Name,
				ToEndpoint:   toEndpoint,
				ToInstance:   to.Instances[toShard],
				ToShard:      toShard,
				Control:      e.control,
			})
		}
		if e.edgeType == Pipeline {
			for i := range from.Instances {
				connect(i, i)
			}
			continue
		}
		for i := range from.Instances {
			for j := range to.Instances {
				connect(i, j)
			}
		}
	}
	return t
}
