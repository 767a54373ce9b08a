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

// Package daemon holds the admin API of a processor: the types shared by its gin server and
// its RESTful client.
package daemon

import (
	"errors"
	"time"

	"github.com/numaproj/numastream/pkg/graph"
)

var (
	// ErrUnknownEndpoint is returned when a request names an endpoint the instance does not have.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	// ErrShardRegistered is returned when registering a remote shard twice.
	ErrShardRegistered = errors.New("remote shard already registered")
)

type APIResponse struct {
	// ErrMessage provides more detailed error information. If the call succeeds, ErrMessage is nil.
	ErrMessage *string `json:"errMessage,omitempty"`
	// Data is the response body.
	Data interface{} `json:"data"`
}

// NewAPIResponse creates a new APIResponse.
func NewAPIResponse(errMessage *string, data interface{}) APIResponse {
	return APIResponse{
		ErrMessage: errMessage,
		Data:       data,
	}
}

// TopologyInfo is the compiled graph served by GET /api/v1/topology.
type TopologyInfo struct {
	Instance    string             `json:"instance"`
	Vertices    []graph.VertexInfo `json:"vertices"`
	Edges       []graph.Edge       `json:"edges"`
	Connections []graph.Connection `json:"connections"`
}

// ShardInfo is the state of the connection to one remote shard.
type ShardInfo struct {
	Shard      int    `json:"shard"`
	Instance   string `json:"instance,omitempty"`
	QueueDepth int    `json:"queueDepth"`
	Blocked    bool   `json:"blocked,omitempty"`
}

// EndpointInfo describes one endpoint of the instance and its remote shards.
type EndpointInfo struct {
	Name           string      `json:"name"`
	Direction      string      `json:"direction"`
	RemoteVertex   string      `json:"remoteVertex"`
	RemoteEndpoint string      `json:"remoteEndpoint"`
	Control        bool        `json:"control,omitempty"`
	Pipeline       bool        `json:"pipeline,omitempty"`
	Backchannel    bool        `json:"backchannel,omitempty"`
	Shards         []ShardInfo `json:"shards"`
}

// CheckpointInfo summarizes a stored checkpoint.
type CheckpointInfo struct {
	ID        string    `json:"id"`
	Instance  string    `json:"instance"`
	TakenAt   time.Time `json:"takenAt"`
	Operators []string  `json:"operators"`
}

// TriggerResult is returned when a barrier was injected.
type TriggerResult struct {
	CheckpointID string `json:"checkpointID"`
}
