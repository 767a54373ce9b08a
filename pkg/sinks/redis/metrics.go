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

package redis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	metricspkg "github.com/numaproj/numastream/pkg/metrics"
)

// sinkWriteCount is used to indicate the number of messages appended to the stream
var sinkWriteCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "redis_sink",
	Name:      "write_total",
	Help:      "Total number of messages written to redis sink",
}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance})

// sinkWriteErrors is used to indicate the number of failed append attempts
var sinkWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "redis_sink",
	Name:      "write_error_total",
	Help:      "Total number of failed attempts to write to redis sink",
}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance})
