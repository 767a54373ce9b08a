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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/numastream/pkg/metrics"
)

// egressReconnects counts the streams to remote shards opened again after they ended
var egressReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "processor",
	Name:      "egress_reconnects_total",
	Help:      "Total number of reconnections of output streams",
}, []string{metrics.LabelVertexInstance, metrics.LabelEndpoint, metrics.LabelShard})

// controlReceived counts the control messages received, by payload
var controlReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "processor",
	Name:      "control_messages_total",
	Help:      "Total number of control messages received",
}, []string{metrics.LabelVertexInstance, metrics.LabelReason})

const (
	restoreSucceeded = "succeeded"
	restoreFailed    = "failed"
)

// restoresTotal counts the checkpoint restores, by result
var restoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "processor",
	Name:      "checkpoint_restores_total",
	Help:      "Total number of checkpoint restores",
}, []string{metrics.LabelVertexInstance, metrics.LabelReason})
