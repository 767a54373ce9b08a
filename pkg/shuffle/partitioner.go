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
	"errors"
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
)

// ErrMissingPartitionKey is returned when a keyless data message is routed over a shuffled endpoint.
var ErrMissingPartitionKey = errors.New("data message has no partition key")

// Target is one remote shard of one output endpoint.
type Target struct {
	Endpoint graph.EndpointConfig
	Shard    int
}

// ConnectionKey identifies the connection to the target shard.
func (t Target) ConnectionKey() string {
	return t.Endpoint.ConnectionKey(t.Shard)
}

// Partitioner picks the remote shards a message is sent to.
type Partitioner struct {
	shard   int
	outputs []graph.EndpointConfig
}

// NewPartitioner returns a partitioner for shard `shard` of a vertex with the given output endpoints.
func NewPartitioner(shard int, outputs []graph.EndpointConfig) *Partitioner {
	return &Partitioner{shard: shard, outputs: outputs}
}

// Partition returns the targets of msg, endpoint by endpoint in declaration order. Only the
// endpoints whose control flag matches the message are considered.
//   - A pipeline endpoint always targets the shard with the same id as the sender.
//   - A keyed message targets shard abs(key) mod remote instance count.
//   - A keyless control message is broadcast to every remote shard.
//   - A keyless data message on a shuffled endpoint is an error.
func (p *Partitioner) Partition(msg *isb.Message) ([]Target, error) {
	if msg == nil {
		return nil, isb.ErrNilMessage
	}
	var targets []Target
	for _, endpoint := range p.outputs {
		if endpoint.IsControl != msg.IsControl() {
			continue
		}
		t, err := p.PartitionEndpoint(endpoint, msg)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t...)
	}
	return targets, nil
}

// PartitionEndpoint returns the targets of msg on a single endpoint, ignoring its control flag.
func (p *Partitioner) PartitionEndpoint(endpoint graph.EndpointConfig, msg *isb.Message) ([]Target, error) {
	if msg == nil {
		return nil, isb.ErrNilMessage
	}
	count := endpoint.RemoteInstanceCount()
	if count == 0 {
		return nil, fmt.Errorf("endpoint %s has no remote instances", endpoint.LocalEndpoint)
	}
	if endpoint.IsPipeline {
		if p.shard >= count {
			return nil, fmt.Errorf("pipeline endpoint %s has no remote shard %d", endpoint.LocalEndpoint, p.shard)
		}
		return []Target{{Endpoint: endpoint, Shard: p.shard}}, nil
	}
	if key, ok := msg.PartitionKey(); ok {
		return []Target{{Endpoint: endpoint, Shard: ShardOf(key, count)}}, nil
	}
	if msg.IsControl() {
		targets := make([]Target, count)
		for i := range targets {
			targets[i] = Target{Endpoint: endpoint, Shard: i}
		}
		return targets, nil
	}
	return nil, fmt.Errorf("%w, endpoint %s", ErrMissingPartitionKey, endpoint.LocalEndpoint)
}

// ShardOf returns abs(key) mod count without overflowing on the smallest int.
func ShardOf(key int, count int) int {
	r := key % count
	if r < 0 {
		r = -r
	}
	return r
}

// HashKey derives a partition key from a string key with murmur3. The same key always
// maps to the same partition key on every instance.
func HashKey(key string) int {
	return int(murmur3.Sum32([]byte(key)))
}
