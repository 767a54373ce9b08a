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

package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	metricspkg "github.com/numaproj/numastream/pkg/metrics"
)

const (
	resultAcked  = "acked"
	resultFailed = "failed"
)

// producedRecords counts records the producer resolved, by outcome.
var producedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "kafka_sink",
	Name:      "produced_records_total",
	Help:      "Total number of records resolved by the kafka producer, by result",
}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance, metricspkg.LabelReason})
