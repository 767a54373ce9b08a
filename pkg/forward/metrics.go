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

package forward

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	metricspkg "github.com/numaproj/numastream/pkg/metrics"
)

// readMessagesCount is used to indicate the number of messages taken from the source
var readMessagesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "forwarder",
	Name:      "read_total",
	Help:      "Total number of Messages Read",
}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance})

// readMessagesError is used to indicate the number of failed takes
var readMessagesError = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "forwarder",
	Name:      "read_error_total",
	Help:      "Total number of Read Errors",
}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance})

// absorbedMessagesCount is used to indicate the number of messages the processor absorbed
var absorbedMessagesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "forwarder",
	Name:      "absorbed_total",
	Help:      "Total number of Messages Absorbed",
}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance})

// processingError is used to indicate the number of fatal processing errors
var processingError = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "forwarder",
	Name:      "processing_error_total",
	Help:      "Total number of Processing Errors",
}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance})

// dispatchMessagesCount is used to indicate the number of messages dispatched
var dispatchMessagesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "forwarder",
	Name:      "dispatch_total",
	Help:      "Total number of Messages Dispatched",
}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance})

// dispatchMessagesError is used to indicate the number of failed dispatches
var dispatchMessagesError = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "forwarder",
	Name:      "dispatch_error_total",
	Help:      "Total number of Dispatch Errors",
}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance})

// processingTime is a histogram to Observe the time to process and dispatch one message
var processingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Subsystem: "forwarder",
	Name:      "processing_time",
	Help:      "Processing times of one message (100 microseconds to 20 minutes)",
	Buckets:   prometheus.ExponentialBucketsRange(100, 60000000*20, 10),
}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance})

// unroutedMessagesCount counts messages the dispatcher had no target for
var unroutedMessagesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "forwarder",
	Name:      "unrouted_total",
	Help:      "Total number of Messages without any target endpoint",
}, []string{metricspkg.LabelVertex, metricspkg.LabelReason})

// haltDuration is the time the loop stayed parked by Halt
var haltDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Subsystem: "forwarder",
	Name:      "halt_time",
	Help:      "Time the forwarder stayed halted (in milliseconds)",
	Buckets:   prometheus.ExponentialBucketsRange(1, 60000, 10),
}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance})
