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
	"os"

	"go.uber.org/multierr"
	"sigs.k8s.io/yaml"
)

// Spec is the declarative form of a graph, usually loaded from a YAML document:
//
//	coordinator: true
//	vertices:
//	  - name: in
//	    kind: source
//	    shards: 2
//	  - name: out
//	    kind: sink
//	    shards: 2
//	edges:
//	  - from: in
//	    to: out
//	    type: pipeline
type Spec struct {
	Coordinator bool         `json:"coordinator,omitempty"`
	Vertices    []VertexSpec `json:"vertices"`
	Edges       []EdgeSpec   `json:"edges,omitempty"`
}

type VertexSpec struct {
	Name   string     `json:"name"`
	Kind   VertexKind `json:"kind"`
	Shards int        `json:"shards"`
}

type EdgeSpec struct {
	From        string   `json:"from"`
	To          string   `json:"to"`
	Type        EdgeType `json:"type,omitempty"`
	Backchannel bool     `json:"backchannel,omitempty"`
	Control     bool     `json:"control,omitempty"`
}

// LoadSpec reads a graph spec from a YAML file.
func LoadSpec(path string) (*Spec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph spec %q, %w", path, err)
	}
	return ParseSpec(b)
}

// ParseSpec decodes a graph spec from YAML or JSON.
func ParseSpec(b []byte) (*Spec, error) {
	s := &Spec{}
	if err := yaml.UnmarshalStrict(b, s); err != nil {
		return nil, fmt.Errorf("failed to parse graph spec, %w", err)
	}
	return s, nil
}

// Build replays the spec onto a Builder and builds it.
func (s *Spec) Build() (*Topology, error) {
	var opts []Option
	if s.Coordinator {
		opts = append(opts, WithCoordinator())
	}
	b := NewBuilder(opts...)
	upstreams := make(map[string]Upstream)
	downstreams := make(map[string]Downstream)
	for _, v := range s.Vertices {
		switch v.Kind {
		case SourceKind:
			upstreams[v.Name] = b.AddSource(v.Name, v.Shards)
		case SinkKind:
			downstreams[v.Name] = b.AddSink(v.Name, v.Shards)
		case FilterKind, MapKind, AggregateKind, JoinKind:
			h := b.addVertex(v.Kind, v.Name, v.Shards)
			upstreams[v.Name], downstreams[v.Name] = h, h
		default:
			b.addErr(BuildErr{Vertex: v.Name, Message: fmt.Sprintf("vertex kind %s cannot be declared", v.Kind)})
		}
	}
	var errs error
	for _, e := range s.Edges {
		from, ok := upstreams[e.From]
		if !ok {
			errs = multierr.Append(errs, BuildErr{Edge: e.From + "->" + e.To, Message: fmt.Sprintf("%q is not a vertex with outputs", e.From)})
			continue
		}
		to, ok := downstreams[e.To]
		if !ok {
			errs = multierr.Append(errs, BuildErr{Edge: e.From + "->" + e.To, Message: fmt.Sprintf("%q is not a vertex with inputs", e.To)})
			continue
		}
		eb := b.Connect(from, to)
		if e.Backchannel {
			eb.AsBackchannel()
		}
		if e.Control {
			eb.AsControl()
		}
		if e.Type == Pipeline {
			// the error is recorded on the builder and reported by Build
			_ = eb.AsPipeline()
		}
	}
	if errs != nil {
		b.addErr(errs)
	}
	return b.Build()
}
