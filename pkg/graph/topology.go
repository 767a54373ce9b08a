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
	"sort"
)

// Direction tells whether an endpoint receives or sends.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// EndpointConfig describes one endpoint of a vertex and the remote side it is wired to.
// It is fixed for the life of a running graph.
type EndpointConfig struct {
	Direction       Direction `json:"direction"`
	LocalVertex     string    `json:"localVertex"`
	LocalEndpoint   string    `json:"localEndpoint"`
	RemoteVertex    string    `json:"remoteVertex"`
	RemoteEndpoint  string    `json:"remoteEndpoint"`
	RemoteInstances []string  `json:"remoteInstances"`
	IsControl       bool      `json:"isControl"`
	IsPipeline      bool      `json:"isPipeline"`
	IsBackchannel   bool      `json:"isBackchannel"`
}

// RemoteInstanceCount returns the number of remote shards.
func (c EndpointConfig) RemoteInstanceCount() int {
	return len(c.RemoteInstances)
}

// RemoteInstance returns the instance name of remote shard `shard`.
func (c EndpointConfig) RemoteInstance(shard int) (string, error) {
	if shard < 0 || shard >= len(c.RemoteInstances) {
		return "", fmt.Errorf("shard %d out of range for endpoint %s with %d remote instances", shard, c.LocalEndpoint, len(c.RemoteInstances))
	}
	return c.RemoteInstances[shard], nil
}

// ConnectionKey identifies the connection between this endpoint and remote shard `shard`.
func (c EndpointConfig) ConnectionKey(shard int) string {
	return fmt.Sprintf("%s.%s:%s.%s:%d", c.LocalVertex, c.LocalEndpoint, c.RemoteVertex, c.RemoteEndpoint, shard)
}

// ConnectionKeys returns the keys of every remote shard, in shard order.
func (c EndpointConfig) ConnectionKeys() []string {
	keys := make([]string, len(c.RemoteInstances))
	for i := range keys {
		keys[i] = c.ConnectionKey(i)
	}
	return keys
}

// Origin is the endpoint and remote shard a received message came from.
type Origin struct {
	Endpoint EndpointConfig
	Shard    int
}

// ConnectionKey identifies the connection the message arrived on.
func (o Origin) ConnectionKey() string {
	return o.Endpoint.ConnectionKey(o.Shard)
}

// Instance returns the name of the remote instance that sent the message.
func (o Origin) Instance() string {
	name, _ := o.Endpoint.RemoteInstance(o.Shard)
	return name
}

// VertexInfo is the compiled form of a vertex.
type VertexInfo struct {
	ID        VertexID   `json:"id"`
	Name      string     `json:"name"`
	Kind      VertexKind `json:"kind"`
	Shards    int        `json:"shards"`
	Instances []string   `json:"instances"`
}

// Edge is the compiled form of an edge, with its endpoint names resolved.
type Edge struct {
	From         string   `json:"from"`
	FromEndpoint string   `json:"fromEndpoint"`
	To           string   `json:"to"`
	ToEndpoint   string   `json:"toEndpoint"`
	Type         EdgeType `json:"type"`
	Backchannel  bool     `json:"backchannel"`
	Control      bool     `json:"control"`
}

// Connection is one concrete shard-to-shard channel of an edge.
type Connection struct {
	FromVertex   string `json:"fromVertex"`
	FromEndpoint string `json:"fromEndpoint"`
	FromInstance string `json:"fromInstance"`
	FromShard    int    `json:"fromShard"`
	ToVertex     string `json:"toVertex"`
	ToEndpoint   string `json:"toEndpoint"`
	ToInstance   string `json:"toInstance"`
	ToShard      int    `json:"toShard"`
	Control      bool   `json:"control"`
}

func (c Connection) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", c.FromInstance, c.FromEndpoint, c.ToInstance, c.ToEndpoint)
}

type instanceRef struct {
	vertex VertexID
	shard  int
}

// Topology is the compiled graph consumed by the runtime.
type Topology struct {
	vertices    []VertexInfo
	byName      map[string]VertexID
	instances   map[string]instanceRef
	edges       []Edge
	connections []Connection
	inputs      map[VertexID][]EndpointConfig
	outputs     map[VertexID][]EndpointConfig
}

// Vertices returns every vertex in declaration order.
func (t *Topology) Vertices() []VertexInfo {
	out := make([]VertexInfo, len(t.vertices))
	copy(out, t.vertices)
	return out
}

// Vertex returns the vertex named name.
func (t *Topology) Vertex(name string) (VertexInfo, bool) {
	id, ok := t.byName[name]
	if !ok {
		return VertexInfo{}, false
	}
	return t.vertices[id], true
}

// Instance resolves an instance name to its vertex and shard.
func (t *Topology) Instance(instance string) (VertexInfo, int, bool) {
	ref, ok := t.instances[instance]
	if !ok {
		return VertexInfo{}, 0, false
	}
	return t.vertices[ref.vertex], ref.shard, true
}

// Edges returns every compiled edge in declaration order.
func (t *Topology) Edges() []Edge {
	out := make([]Edge, len(t.edges))
	copy(out, t.edges)
	return out
}

// Connections returns every shard-to-shard connection.
func (t *Topology) Connections() []Connection {
	out := make([]Connection, len(t.connections))
	copy(out, t.connections)
	return out
}

// Inputs returns the input endpoints of a vertex in declaration order.
func (t *Topology) Inputs(vertex string) []EndpointConfig {
	id, ok := t.byName[vertex]
	if !ok {
		return nil
	}
	return t.inputs[id]
}

// Outputs returns the output endpoints of a vertex in declaration order.
func (t *Topology) Outputs(vertex string) []EndpointConfig {
	id, ok := t.byName[vertex]
	if !ok {
		return nil
	}
	return t.outputs[id]
}

// DownstreamInstances returns the sorted names of the instances that instance sends to.
func (t *Topology) DownstreamInstances(instance string) []string {
	return t.neighbours(instance, func(c Connection) (string, string) { return c.FromInstance, c.ToInstance })
}

// UpstreamInstances returns the sorted names of the instances that send to instance.
func (t *Topology) UpstreamInstances(instance string) []string {
	return t.neighbours(instance, func(c Connection) (string, string) { return c.ToInstance, c.FromInstance })
}

func (t *Topology) neighbours(instance string, ends func(Connection) (string, string)) []string {
	seen := make(map[string]struct{})
	for _, c := range t.connections {
		if self, other := ends(c); self == instance {
			seen[other] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
