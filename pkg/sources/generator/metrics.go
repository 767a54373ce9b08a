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

package generator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	metricspkg "github.com/numaproj/numastream/pkg/metrics"
)

var (
	// generatedEvents counts the events emitted by a generator.
	generatedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "generator_source",
		Name:      "events_total",
		Help:      "Total number of events generated",
	}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance})

	// generatorTicks counts the ticks of a generator, each tick emits one batch.
	generatorTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "generator_source",
		Name:      "ticks_total",
		Help:      "Total number of generator ticks",
	}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance})
)
