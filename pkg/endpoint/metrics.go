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

package endpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	metricspkg "github.com/numaproj/numastream/pkg/metrics"
)

var endpointLabels = []string{metricspkg.LabelVertex, metricspkg.LabelEndpoint, metricspkg.LabelShard}

// framesIn is used to indicate the number of frames received
var framesIn = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "endpoint",
	Name:      "frames_in_total",
	Help:      "Total number of frames received on an input endpoint",
}, endpointLabels)

// bytesIn is used to indicate the number of payload bytes received
var bytesIn = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "endpoint",
	Name:      "bytes_in_total",
	Help:      "Total number of payload bytes received on an input endpoint",
}, endpointLabels)

// framesOut is used to indicate the number of frames written
var framesOut = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "endpoint",
	Name:      "frames_out_total",
	Help:      "Total number of frames written by an output endpoint",
}, endpointLabels)

// bytesOut is used to indicate the number of payload bytes written
var bytesOut = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "endpoint",
	Name:      "bytes_out_total",
	Help:      "Total number of payload bytes written by an output endpoint",
}, endpointLabels)

// queueDepth is the number of messages or frames waiting in a per-shard queue
var queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "endpoint",
	Name:      "queue_depth",
	Help:      "Number of items waiting in a per-shard queue",
}, []string{metricspkg.LabelVertex, metricspkg.LabelEndpoint, metricspkg.LabelShard})

// flushCount counts buffer flushes and drains of flushed connections
var flushCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "endpoint",
	Name:      "flush_total",
	Help:      "Total number of flushes",
}, []string{metricspkg.LabelVertex, metricspkg.LabelEndpoint, metricspkg.LabelShard, metricspkg.LabelReason})

// droppedCount counts messages dropped by an endpoint
var droppedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "endpoint",
	Name:      "dropped_total",
	Help:      "Total number of messages dropped by an endpoint",
}, []string{metricspkg.LabelVertex, metricspkg.LabelEndpoint, metricspkg.LabelReason})

// keepalives counts keepalive frames, by direction
var keepalives = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "endpoint",
	Name:      "keepalive_total",
	Help:      "Total number of keepalive frames sent and received",
}, []string{metricspkg.LabelVertex, metricspkg.LabelEndpoint, metricspkg.LabelShard, metricspkg.LabelStage})

// streamTimeouts counts streams ended because the peer went silent or stopped reading
var streamTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "endpoint",
	Name:      "stream_timeout_total",
	Help:      "Total number of streams ended by a receive or write timeout",
}, endpointLabels)
