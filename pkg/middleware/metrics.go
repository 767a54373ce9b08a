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

package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	metricspkg "github.com/numaproj/numastream/pkg/metrics"
)

// stageProcessingTime is the time spent by one stage on a whole batch
var stageProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Subsystem: "pipeline",
	Name:      "stage_processing_time",
	Help:      "Processing times of a pipeline stage (100 microseconds to 1 second)",
	Buckets:   prometheus.ExponentialBucketsRange(100, 1000000, 10),
}, []string{metricspkg.LabelVertex, metricspkg.LabelStage})

// absorbedCount counts messages absorbed by the pipeline
var absorbedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "pipeline",
	Name:      "absorbed_total",
	Help:      "Total number of messages absorbed by a pipeline stage",
}, []string{metricspkg.LabelVertex, metricspkg.LabelStage})

// handlerErrorCount counts fatal handler errors
var handlerErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "pipeline",
	Name:      "handler_error_total",
	Help:      "Total number of fatal handler errors",
}, []string{metricspkg.LabelVertex, metricspkg.LabelStage})
