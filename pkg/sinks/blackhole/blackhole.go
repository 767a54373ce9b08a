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

// Package blackhole implements a sink discarding everything, like /dev/null.
package blackhole

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/metrics"
)

// sinkWriteCount is used to indicate the number of messages written to the sink
var sinkWriteCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "blackhole_sink",
	Name:      "write_total",
	Help:      "Total number of messages written to blackhole sink",
}, []string{metrics.LabelVertex, metrics.LabelVertexInstance})

// Blackhole is a sink to emulate /dev/null
type Blackhole struct {
	name     string
	instance string
}

var _ forward.Dispatcher = (*Blackhole)(nil)

// NewBlackhole returns a new Blackhole sink.
func NewBlackhole(vertexName string, shard int) *Blackhole {
	return &Blackhole{
		name:     vertexName,
		instance: graph.InstanceName(vertexName, shard),
	}
}

// Dispatch drops the message.
func (b *Blackhole) Dispatch(_ context.Context, msg isb.Message) error {
	if !msg.IsControl() {
		sinkWriteCount.WithLabelValues(b.name, b.instance).Inc()
	}
	return nil
}

func (b *Blackhole) Close() error {
	return nil
}
