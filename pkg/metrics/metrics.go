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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelVersion        = "version"
	LabelPlatform       = "platform"
	LabelComponent      = "component"
	LabelVertex         = "vertex"
	LabelVertexInstance = "instance"
	LabelVertexKind     = "vertex_kind"
	LabelEndpoint       = "endpoint"
	LabelShard          = "shard"
	LabelStage          = "stage"
	LabelReason         = "reason"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A metric with a constant value '1', labeled by numastream binary version, platform, and other information",
	}, []string{LabelComponent, LabelVersion, LabelPlatform})
)
