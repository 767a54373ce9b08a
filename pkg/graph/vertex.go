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
	"strings"
)

// VertexKind is the closed set of operator kinds a vertex can run.
type VertexKind int

const (
	SourceKind VertexKind = iota
	FilterKind
	MapKind
	AggregateKind
	JoinKind
	SinkKind
	CoordinatorKind
)

var vertexKindNames = map[VertexKind]string{
	SourceKind:      "source",
	FilterKind:      "filter",
	MapKind:         "map",
	AggregateKind:   "aggregate",
	JoinKind:        "join",
	SinkKind:        "sink",
	CoordinatorKind: "coordinator",
}

func (k VertexKind) String() string {
	if s, ok := vertexKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseVertexKind returns the kind named s, case-insensitively.
func ParseVertexKind(s string) (VertexKind, error) {
	for k, name := range vertexKindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown vertex kind %q", s)
}

// VertexID indexes a vertex in the builder arena.
type VertexID int

// Upstream is a vertex that can be the origin of an edge.
type Upstream interface {
	upstreamID() VertexID
	Name() string
}

// Downstream is a vertex that can be the target of an edge.
type Downstream interface {
	downstreamID() VertexID
	Name() string
}

// Vertex is a handle to an operator vertex with both inputs and outputs.
type Vertex struct {
	id   VertexID
	name string
}

func (v *Vertex) upstreamID() VertexID   { return v.id }
func (v *Vertex) downstreamID() VertexID { return v.id }

// Name returns the vertex name.
func (v *Vertex) Name() string { return v.name }

// SourceVertex is a handle to a source. It has no inputs.
type SourceVertex struct {
	id   VertexID
	name string
}

func (v *SourceVertex) upstreamID() VertexID { return v.id }

// Name returns the vertex name.
func (v *SourceVertex) Name() string { return v.name }

// SinkVertex is a handle to a sink. It has no outputs, so it can never be the origin of an edge.
type SinkVertex struct {
	id   VertexID
	name string
}

func (v *SinkVertex) downstreamID() VertexID { return v.id }

// Name returns the vertex name.
func (v *SinkVertex) Name() string { return v.name }

// InstanceName returns the name of shard `shard` of vertex `vertex`.
func InstanceName(vertex string, shard int) string {
	return fmt.Sprintf("%s-%d", vertex, shard)
}

type vertexRecord struct {
	id     VertexID
	name   string
	kind   VertexKind
	shards int
}

func (v *vertexRecord) instanceNames() []string {
	if v.shards < 1 {
		return nil
	}
	names := make([]string, v.shards)
	for i := range names {
		names[i] = InstanceName(v.name, i)
	}
	return names
}

func (k VertexKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *VertexKind) UnmarshalText(b []byte) error {
	parsed, err := ParseVertexKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
