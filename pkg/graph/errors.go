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

package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrShardMismatch is returned when a pipeline edge joins vertices with different shard counts.
	ErrShardMismatch = errors.New("shard count mismatch")
	// ErrInvalidGraph wraps every validation failure found by Build.
	ErrInvalidGraph = errors.New("invalid graph")
)

// BuildErr describes a problem found while building a graph.
type BuildErr struct {
	Vertex      string
	Edge        string
	Message     string
	InternalErr error
}

func (e BuildErr) Error() string {
	target := e.Vertex
	if e.Edge != "" {
		target = e.Edge
	}
	if e.InternalErr != nil {
		return fmt.Sprintf("(%s) %s: %v", target, e.Message, e.InternalErr)
	}
	return fmt.Sprintf("(%s) %s", target, e.Message)
}

func (e BuildErr) Unwrap() error {
	return e.InternalErr
}
