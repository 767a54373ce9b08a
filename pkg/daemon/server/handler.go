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
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/numaproj/numastream/pkg/checkpoint"
	"github.com/numaproj/numastream/pkg/daemon"
	"github.com/numaproj/numastream/pkg/endpoint"
	"github.com/numaproj/numastream/pkg/graph"
)

// Inputs lists the input endpoints of an instance.
type Inputs interface {
	Inputs() []*endpoint.InputEndpoint
}

// Outputs lists the output endpoints of an instance.
type Outputs interface {
	Outputs() []*endpoint.OutputEndpoint
}

// ShardRegistry adds and removes remote shards of output endpoints at runtime.
type ShardRegistry interface {
	RegisterShard(endpoint string, shard int) error
	UnregisterShard(endpoint string, shard int) error
}

// Trigger injects a checkpoint barrier on demand.
type Trigger interface {
	Trigger() (string, bool)
}

// CheckpointStore is the checkpoint history of an instance. Restore returns once the instance
// runs from the checkpoint again.
type CheckpointStore interface {
	Checkpoints() []checkpoint.Checkpoint
	Restore(ctx context.Context, id string) error
}

type handler struct {
	topology    *graph.Topology
	instance    string
	inputs      Inputs
	outputs     Outputs
	registry    ShardRegistry
	trigger     Trigger
	checkpoints CheckpointStore
}

func (h *handler) GetTopology(c *gin.Context) {
	c.JSON(http.StatusOK, daemon.NewAPIResponse(nil, daemon.TopologyInfo{
		Instance:    h.instance,
		Vertices:    h.topology.Vertices(),
		Edges:       h.topology.Edges(),
		Connections: h.topology.Connections(),
	}))
}

func (h *handler) ListEndpoints(c *gin.Context) {
	res := make([]daemon.EndpointInfo, 0)
	if h.inputs != nil {
		for _, in := range h.inputs.Inputs() {
			info := endpointInfo(in.Config())
			for shard, inst := range in.Config().RemoteInstances {
				info.Shards = append(info.Shards, daemon.ShardInfo{
					Shard:      shard,
					Instance:   inst,
					QueueDepth: in.QueueDepth(shard),
					Blocked:    in.IsBlocked(shard),
				})
			}
			res = append(res, info)
		}
	}
	if h.outputs != nil {
		for _, out := range h.outputs.Outputs() {
			info := endpointInfo(out.Config())
			for _, shard := range out.RegisteredShards() {
				inst, _ := out.Config().RemoteInstance(shard)
				info.Shards = append(info.Shards, daemon.ShardInfo{
					Shard:      shard,
					Instance:   inst,
					QueueDepth: out.QueueDepth(shard),
				})
			}
			res = append(res, info)
		}
	}
	c.JSON(http.StatusOK, daemon.NewAPIResponse(nil, res))
}

func endpointInfo(cfg graph.EndpointConfig) daemon.EndpointInfo {
	return daemon.EndpointInfo{
		Name:           cfg.LocalEndpoint,
		Direction:      cfg.Direction.String(),
		RemoteVertex:   cfg.RemoteVertex,
		RemoteEndpoint: cfg.RemoteEndpoint,
		Control:        cfg.IsControl,
		Pipeline:       cfg.IsPipeline,
		Backchannel:    cfg.IsBackchannel,
		Shards:         []daemon.ShardInfo{},
	}
}

func (h *handler) RegisterShard(c *gin.Context) {
	h.changeShard(c, h.registry.RegisterShard, http.StatusCreated)
}

func (h *handler) UnregisterShard(c *gin.Context) {
	h.changeShard(c, h.registry.UnregisterShard, http.StatusOK)
}

func (h *handler) changeShard(c *gin.Context, change func(string, int) error, okStatus int) {
	name := c.Param("endpoint")
	shard, err := strconv.Atoi(c.Param("shard"))
	if err != nil || shard < 0 {
		errMsg := fmt.Sprintf("invalid shard %q", c.Param("shard"))
		c.JSON(http.StatusBadRequest, daemon.NewAPIResponse(&errMsg, nil))
		return
	}
	if err := change(name, shard); err != nil {
		errMsg := err.Error()
		c.JSON(statusOf(err), daemon.NewAPIResponse(&errMsg, nil))
		return
	}
	c.JSON(okStatus, daemon.NewAPIResponse(nil, nil))
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, daemon.ErrUnknownEndpoint), errors.Is(err, endpoint.ErrUnknownShard), errors.Is(err, checkpoint.ErrUnknownCheckpoint):
		return http.StatusNotFound
	case errors.Is(err, daemon.ErrShardRegistered):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) ListCheckpoints(c *gin.Context) {
	res := make([]daemon.CheckpointInfo, 0)
	if h.checkpoints != nil {
		for _, cp := range h.checkpoints.Checkpoints() {
			ops := make([]string, 0, len(cp.States))
			for name := range cp.States {
				ops = append(ops, name)
			}
			sort.Strings(ops)
			res = append(res, daemon.CheckpointInfo{ID: cp.ID, Instance: cp.Instance, TakenAt: cp.TakenAt, Operators: ops})
		}
	}
	c.JSON(http.StatusOK, daemon.NewAPIResponse(nil, res))
}

func (h *handler) TriggerCheckpoint(c *gin.Context) {
	if h.trigger == nil {
		errMsg := fmt.Sprintf("instance %s does not inject barriers", h.instance)
		c.JSON(http.StatusNotFound, daemon.NewAPIResponse(&errMsg, nil))
		return
	}
	id, ok := h.trigger.Trigger()
	if !ok {
		errMsg := "a barrier is already pending"
		c.JSON(http.StatusConflict, daemon.NewAPIResponse(&errMsg, nil))
		return
	}
	c.JSON(http.StatusAccepted, daemon.NewAPIResponse(nil, daemon.TriggerResult{CheckpointID: id}))
}

func (h *handler) RestoreCheckpoint(c *gin.Context) {
	if h.checkpoints == nil {
		errMsg := fmt.Sprintf("instance %s keeps no checkpoints", h.instance)
		c.JSON(http.StatusNotFound, daemon.NewAPIResponse(&errMsg, nil))
		return
	}
	if err := h.checkpoints.Restore(c.Request.Context(), c.Param("id")); err != nil {
		errMsg := err.Error()
		c.JSON(statusOf(err), daemon.NewAPIResponse(&errMsg, nil))
		return
	}
	c.JSON(http.StatusOK, daemon.NewAPIResponse(nil, nil))
}
