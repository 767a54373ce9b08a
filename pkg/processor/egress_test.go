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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numastream/pkg/config"
	"github.com/numaproj/numastream/pkg/daemon"
	"github.com/numaproj/numastream/pkg/endpoint"
	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/middleware"
	"github.com/numaproj/numastream/pkg/sources/receiver"
	"github.com/numaproj/numastream/pkg/transport"
)

const pipelineTopology = `
vertices:
- name: in
  kind: source
  shards: 2
- name: double
  kind: map
  shards: 2
- name: out
  kind: sink
  shards: 3
edges:
- from: in
  to: double
  type: pipeline
- from: double
  to: out
`

func testDispatcher(t *testing.T, topo *graph.Topology, vertex string, shard int) *forward.PartitioningDispatcher {
	t.Helper()
	codecs := endpoint.NewCodecPool(isb.DefaultPayloadRegistry())
	var outs []*endpoint.OutputEndpoint
	for _, cfg := range topo.Outputs(vertex) {
		outs = append(outs, endpoint.NewOutputEndpoint(cfg, shard, endpoint.WithCodecPool(codecs)))
	}
	return forward.NewPartitioningDispatcher(shard, outs, codecs)
}

func TestEgressManager_Shards(t *testing.T) {
	topo := buildTopology(t, pipelineTopology)
	d := testDispatcher(t, topo, "double", 1)
	m := newEgressManager("double", 1, "double-1", d, config.TransportConfig{}, nil)

	assert.ErrorIs(t, m.RegisterShard("output9", 0), daemon.ErrUnknownEndpoint)
	assert.ErrorIs(t, m.RegisterShard("output0", 3), endpoint.ErrUnknownShard)
	assert.ErrorIs(t, m.RegisterShard("output0", 2), daemon.ErrShardRegistered)
	assert.ErrorIs(t, m.UnregisterShard("output9", 0), daemon.ErrUnknownEndpoint)

	require.NoError(t, m.UnregisterShard("output0", 2))
	out, _ := d.Output("output0")
	assert.Equal(t, []int{0, 1}, out.RegisteredShards())
	assert.ErrorIs(t, m.UnregisterShard("output0", 2), endpoint.ErrUnknownShard)
	require.NoError(t, m.RegisterShard("output0", 2))
	assert.Equal(t, []int{0, 1, 2}, out.RegisteredShards())
	assert.Empty(t, m.streams)
}

func TestEgressManager_PipelineConnectsOwnShard(t *testing.T) {
	topo := buildTopology(t, pipelineTopology)
	d := testDispatcher(t, topo, "in", 1)
	tc := config.TransportConfig{
		DialRetry: config.BackoffConfig{Steps: 1, Duration: time.Millisecond, Factor: 1},
		Peers:     map[string]string{"double-1": "127.0.0.1:1"},
	}
	m := newEgressManager("in", 1, "in-1", d, tc, nil)
	out, _ := d.Output("output0")
	assert.False(t, m.connected(out, 0))
	assert.True(t, m.connected(out, 1))

	ctx, cancel := context.WithCancel(context.Background())
	m.start(ctx)
	m.lock.Lock()
	assert.Len(t, m.streams, 1)
	_, ok := m.streams[out.Config().ConnectionKey(1)]
	m.lock.Unlock()
	assert.True(t, ok)

	require.NoError(t, m.UnregisterShard("output0", 1))
	m.lock.Lock()
	assert.Empty(t, m.streams)
	m.lock.Unlock()
	cancel()
	m.wait()
}

func TestValidateHello(t *testing.T) {
	topo := buildTopology(t, pipelineTopology)
	double := receiver.New("double", 1, topo.Inputs("double"))
	out := receiver.New("out", 0, topo.Inputs("out"))

	tests := []struct {
		name  string
		recv  *receiver.Receiver
		shard int
		hello transport.Hello
		err   string
	}{
		{"pipeline own shard", double, 1, transport.Hello{Vertex: "in", Shard: 1, Endpoint: "input0"}, ""},
		{"pipeline other shard", double, 1, transport.Hello{Vertex: "in", Shard: 0, Endpoint: "input0"}, "only receives from shard 1"},
		{"shuffle", out, 0, transport.Hello{Vertex: "double", Shard: 1, Endpoint: "input0"}, ""},
		{"shard out of range", out, 0, transport.Hello{Vertex: "double", Shard: 2, Endpoint: "input0"}, "out of range"},
		{"wrong vertex", out, 0, transport.Hello{Vertex: "in", Shard: 0, Endpoint: "input0"}, `receives from vertex "double"`},
		{"unknown endpoint", out, 0, transport.Hello{Vertex: "double", Endpoint: "input3"}, "unknown input endpoint"},
		{"no inputs", nil, 0, transport.Hello{Vertex: "double", Endpoint: "input0"}, "no input endpoints"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHello(tt.recv, tt.shard)(tt.hello)
			if tt.err == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.err)
			}
		})
	}
}

func TestControl(t *testing.T) {
	c := control{instance: "out-0"}
	ctx := context.Background()

	data := isb.NewDataMessage(isb.EventPayload{Event: isb.Event{Key: "a", Value: []byte("1")}})
	res, err := c.Handle(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, middleware.Forward(data), res)

	res, err = c.Handle(ctx, isb.NewControlMessage(isb.CheckpointTakenPayload{CheckpointID: "cp", Instance: "in-0"}))
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}
