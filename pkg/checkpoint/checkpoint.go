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

// Package checkpoint coordinates consistent checkpoints across the shards of a graph with
// barriers flowing along the data edges.
package checkpoint

import (
	"context"
	"errors"
)

var (
	// ErrDuplicateBarrier is returned when a connection delivers a second barrier before the
	// checkpoint of the first one has been taken.
	ErrDuplicateBarrier = errors.New("received two barriers from one connection")
	// ErrUnknownCheckpoint is returned when restoring a checkpoint that is not kept.
	ErrUnknownCheckpoint = errors.New("unknown checkpoint")
	// ErrNoOrigin is returned when a barrier cannot be traced to an upstream connection.
	ErrNoOrigin = errors.New("barrier has no origin")
)

// Checkpointable is state that is saved by a checkpoint and put back by a restore.
type Checkpointable interface {
	Snapshot() ([]byte, error)
	Restore([]byte) error
}

// Coordinator takes the checkpoint of an instance and returns its id.
type Coordinator interface {
	TakeCheckpoint(ctx context.Context, instance string) (string, error)
}

// CoordinatorFunc adapts a function to a Coordinator.
type CoordinatorFunc func(ctx context.Context, instance string) (string, error)

func (f CoordinatorFunc) TakeCheckpoint(ctx context.Context, instance string) (string, error) {
	return f(ctx, instance)
}
