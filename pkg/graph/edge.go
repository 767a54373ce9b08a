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

import "fmt"

// EdgeType is the connection discipline of an edge.
type EdgeType int

const (
	// Shuffle connects every source shard to every target shard.
	Shuffle EdgeType = iota
	// Pipeline connects source shard i to target shard i only.
	Pipeline
)

func (t EdgeType) String() string {
	if t == Pipeline {
		return "pipeline"
	}
	return "shuffle"
}

type edgeRecord struct {
	from        VertexID
	to          VertexID
	edgeType    EdgeType
	backchannel bool
	control     bool
	removed     bool
	err         error
}

// EdgeBuilder configures an edge created by Builder.Connect.
type EdgeBuilder struct {
	b    *Builder
	edge *edgeRecord
}

// AsShuffle makes every source shard send to every target shard. This is the default.
func (e *EdgeBuilder) AsShuffle() *EdgeBuilder {
	e.edge.edgeType = Shuffle
	return e
}

// AsPipeline connects source shard i to target shard i. It fails when the two vertices have
// different shard counts, in which case the edge is dropped and the builder can no longer build.
func (e *EdgeBuilder) AsPipeline() error {
	if e.edge.err != nil {
		return e.edge.err
	}
	from, to := e.b.vertices[e.edge.from], e.b.vertices[e.edge.to]
	if from.shards != to.shards {
		e.edge.removed = true
		e.edge.err = BuildErr{
			Vertex:      from.name,
			Edge:        from.name + "->" + to.name,
			Message:     "pipeline edge requires equal shard counts",
			InternalErr: ErrShardMismatch,
		}
		e.b.addErr(e.edge.err)
		return e.edge.err
	}
	e.edge.edgeType = Pipeline
	return nil
}

// AsBackchannel marks the edge as a feedback edge.
func (e *EdgeBuilder) AsBackchannel() *EdgeBuilder {
	e.edge.backchannel = true
	return e
}

// AsControl makes the edge carry control traffic instead of data.
func (e *EdgeBuilder) AsControl() *EdgeBuilder {
	e.edge.control = true
	return e
}

func (t EdgeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *EdgeType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "shuffle":
		*t = Shuffle
	case "pipeline":
		*t = Pipeline
	default:
		return fmt.Errorf("unknown edge type %q", string(b))
	}
	return nil
}
