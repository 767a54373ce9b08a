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

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/numaproj/numastream/pkg/graph"
)

type Option func(*handler)

// WithInputs serves the input endpoints of the instance.
func WithInputs(in Inputs) Option {
	return func(h *handler) {
		h.inputs = in
	}
}

// WithOutputs serves the output endpoints of the instance, with their remote shards changed
// through registry.
func WithOutputs(out Outputs, registry ShardRegistry) Option {
	return func(h *handler) {
		h.outputs = out
		h.registry = registry
	}
}

// WithTrigger enables POST /api/v1/checkpoints.
func WithTrigger(t Trigger) Option {
	return func(h *handler) {
		h.trigger = t
	}
}

// WithCheckpointStore serves the checkpoint history.
func WithCheckpointStore(s CheckpointStore) Option {
	return func(h *handler) {
		h.checkpoints = s
	}
}

// NewRouter returns the admin API of instance `instance` of topology.
func NewRouter(topology *graph.Topology, instance string, opts ...Option) *gin.Engine {
	h := &handler{topology: topology, instance: instance}
	for _, opt := range opts {
		opt(h)
	}
	router := gin.New()
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{SkipPaths: []string{"/healthz"}}), gin.Recovery())
	router.RedirectTrailingSlash = true
	router.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	v1Routes(router.Group("/api/v1"), h)
	return router
}

func v1Routes(r gin.IRouter, h *handler) {
	r.GET("/topology", h.GetTopology)
	r.GET("/endpoints", h.ListEndpoints)
	if h.registry != nil {
		r.POST("/endpoints/:endpoint/shards/:shard", h.RegisterShard)
		r.DELETE("/endpoints/:endpoint/shards/:shard", h.UnregisterShard)
	}
	r.GET("/checkpoints", h.ListCheckpoints)
	r.POST("/checkpoints", h.TriggerCheckpoint)
	r.POST("/checkpoints/:id/restore", h.RestoreCheckpoint)
}
