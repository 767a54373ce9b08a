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
	stageRead   = "read"
	stageMarked = "marked"
)

var (
	// kafkaRecords counts the records taken from the consumer group and the offsets marked, by stage.
	kafkaRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "kafka_source",
		Name:      "records_total",
		Help:      "Total number of kafka records, by stage",
	}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance, metricspkg.LabelStage})

	kafkaConsumerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "kafka_source",
		Name:      "consumer_errors_total",
		Help:      "Total number of errors reported by the consumer group",
	}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance})
)
