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

package shuffle

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/isb/testutils"
)

func endpoint(name string, remotes int, control, pipeline bool) graph.EndpointConfig {
	instances := make([]string, remotes)
	for i := range instances {
		instances[i] = graph.InstanceName("remote", i)
	}
	return graph.EndpointConfig{
		Direction:       graph.Output,
		LocalVertex:     "local",
		LocalEndpoint:   name,
		RemoteVertex:    "remote",
		RemoteEndpoint:  "input0",
		RemoteInstances: instances,
		IsControl:       control,
		IsPipeline:      pipeline,
	}
}

func TestPartition_NilMessage(t *testing.T) {
	p := NewPartitioner(0, []graph.EndpointConfig{endpoint("output0", 2, false, false)})
	_, err := p.Partition(nil)
	assert.ErrorIs(t, err, isb.ErrNilMessage)
}

func TestPartition_KeyModulo(t *testing.T) {
	outputs := []graph.EndpointConfig{
		endpoint("output0", 4, false, false),
		endpoint("output1", 3, true, false),
		endpoint("output2", 3, false, false),
	}
	p := NewPartitioner(0, outputs)

	for _, key := range []int{0, 1, 7, -7, 1000003, math.MinInt, math.MaxInt} {
		t.Run(fmt.Sprintf("key %d", key), func(t *testing.T) {
			msg := isb.NewDataMessage().WithPartitionKey(key)
			targets, err := p.Partition(&msg)
			require.NoError(t, err)
			// only data endpoints, in declaration order
			require.Len(t, targets, 2)
			assert.Equal(t, "output0", targets[0].Endpoint.LocalEndpoint)
			assert.Equal(t, "output2", targets[1].Endpoint.LocalEndpoint)
			assert.Equal(t, absMod(key, 4), targets[0].Shard)
			assert.Equal(t, absMod(key, 3), targets[1].Shard)
		})
	}
}

func absMod(key, n int) int {
	// big-integer reference for abs(key) mod n
	if key == math.MinInt {
		u := uint(math.MaxInt) + 1
		return int(u % uint(n))
	}
	if key < 0 {
		key = -key
	}
	return key % n
}

func TestPartition_ControlOnlyOnControlEndpoints(t *testing.T) {
	outputs := []graph.EndpointConfig{
		endpoint("output0", 2, false, false),
		endpoint("output1", 3, true, false),
	}
	p := NewPartitioner(0, outputs)

	keyed := isb.NewControlMessage().WithPartitionKey(5)
	targets, err := p.Partition(&keyed)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "output1", targets[0].Endpoint.LocalEndpoint)
	assert.Equal(t, 2, targets[0].Shard)

	keyless := isb.NewControlMessage()
	targets, err = p.Partition(&keyless)
	require.NoError(t, err)
	require.Len(t, targets, 3)
	for i, target := range targets {
		assert.Equal(t, i, target.Shard)
		assert.Equal(t, fmt.Sprintf("local.output1:remote.input0:%d", i), target.ConnectionKey())
	}
}

func TestPartition_KeylessData(t *testing.T) {
	p := NewPartitioner(1, []graph.EndpointConfig{endpoint("output0", 2, false, false)})
	msg := isb.NewDataMessage()
	_, err := p.Partition(&msg)
	assert.ErrorIs(t, err, ErrMissingPartitionKey)

	// a pipeline endpoint does not need a key
	p = NewPartitioner(1, []graph.EndpointConfig{endpoint("output0", 2, false, true)})
	targets, err := p.Partition(&msg)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, 1, targets[0].Shard)
}

func TestPartition_PipelineUsesOwnShard(t *testing.T) {
	p := NewPartitioner(2, []graph.EndpointConfig{endpoint("output0", 3, false, true)})
	msg := isb.NewDataMessage().WithPartitionKey(7)
	targets, err := p.Partition(&msg)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, 2, targets[0].Shard)

	p = NewPartitioner(3, []graph.EndpointConfig{endpoint("output0", 3, false, true)})
	_, err = p.Partition(&msg)
	assert.Error(t, err)
}

func TestPartition_Distribution(t *testing.T) {
	p := NewPartitioner(0, []graph.EndpointConfig{endpoint("output0", 4, false, false)})
	counts := make(map[int]int)
	for _, msg := range testutils.BuildTestDataMessages(1000, time.Now()) {
		msg := msg
		targets, err := p.Partition(&msg)
		require.NoError(t, err)
		require.Len(t, targets, 1)
		counts[targets[0].Shard]++
	}
	for shard := 0; shard < 4; shard++ {
		assert.Equal(t, 250, counts[shard])
	}
}

func TestHashKey(t *testing.T) {
	assert.Equal(t, HashKey("user-1"), HashKey("user-1"))
	assert.NotEqual(t, HashKey("user-1"), HashKey("user-2"))
	assert.GreaterOrEqual(t, HashKey("anything"), 0)
}
