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

package serde

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	metricspkg "github.com/numaproj/numastream/pkg/metrics"
)

// inflight is the number of serializations admitted and not complete
var inflight = promauto.NewGauge(prometheus.GaugeOpts{
	Subsystem: "serializer",
	Name:      "inflight",
	Help:      "Number of in-flight serializations",
})

// encodeTime is the time spent encoding one message
var encodeTime = promauto.NewHistogram(prometheus.HistogramOpts{
	Subsystem: "serializer",
	Name:      "encode_time",
	Help:      "Encoding time of a message (1 to 100000 microseconds)",
	Buckets:   prometheus.ExponentialBucketsRange(1, 100000, 10),
})

// failures counts failed serializations
var failures = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "serializer",
	Name:      "failures_total",
	Help:      "Total number of failed serializations",
}, []string{metricspkg.LabelReason})
