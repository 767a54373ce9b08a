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

package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/numastream/pkg/metrics"
)

// barriersInjected counts the barriers a source shard injected
var barriersInjected = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "checkpoint",
	Name:      "barriers_injected_total",
	Help:      "Total number of checkpoint barriers injected",
}, []string{metrics.LabelVertexInstance})

// barriersSkipped counts the triggers dropped because a barrier was still pending
var barriersSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "checkpoint",
	Name:      "barriers_skipped_total",
	Help:      "Total number of barrier triggers skipped while a barrier was pending",
}, []string{metrics.LabelVertexInstance})

// blockedConnections is the number of upstream connections blocked by a pending checkpoint
var blockedConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "checkpoint",
	Name:      "blocked_connections",
	Help:      "Number of upstream connections blocked waiting for barriers",
}, []string{metrics.LabelVertexInstance})

// checkpointsTaken counts the checkpoints taken
var checkpointsTaken = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "checkpoint",
	Name:      "taken_total",
	Help:      "Total number of checkpoints taken",
}, []string{metrics.LabelVertexInstance})

// checkpointDuration is the time taken by a checkpoint in milliseconds
var checkpointDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Subsystem: "checkpoint",
	Name:      "duration_ms",
	Help:      "Time taken by a checkpoint in milliseconds",
	Buckets:   prometheus.ExponentialBucketsRange(1, 60000, 10),
}, []string{metrics.LabelVertexInstance})
