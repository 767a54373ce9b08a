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

package forward

import (
	"context"

	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
)

// Source produces the messages of a vertex shard.
type Source interface {
	// Take blocks until a message is available or ctx is done. A source that will never produce
	// again returns io.EOF.
	Take(ctx context.Context) (isb.Message, error)
	// MessageOrigin returns the connection the last taken message arrived on, and false for
	// local sources.
	MessageOrigin() (graph.Origin, bool)
	// Flush drains the in-flight messages of the given upstream instances before a checkpoint
	// barrier is acknowledged.
	Flush(ctx context.Context, upstreamInstances []string) error
}

// Processor turns one taken message into the messages to dispatch.
type Processor interface {
	Process(ctx context.Context, msg isb.Message) ([]isb.Message, error)
}

// Dispatcher delivers processed messages onward.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg isb.Message) error
}

// DispatchFunc adapts a function to a Dispatcher.
type DispatchFunc func(ctx context.Context, msg isb.Message) error

func (f DispatchFunc) Dispatch(ctx context.Context, msg isb.Message) error {
	return f(ctx, msg)
}

// Closer is implemented by sources and dispatchers holding resources released on shutdown.
type Closer interface {
	Close() error
}

// StarterStopper starts/stops the forwarding.
type StarterStopper interface {
	Start() <-chan struct{}
	Stop()
	ForceStop()
}
