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

package checkpoint

import (
	"context"

	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/isb"
)

// Broadcaster delivers a message to every downstream shard.
type Broadcaster interface {
	forward.Dispatcher
	Broadcast(ctx context.Context, msg isb.Message) error
}

// BroadcastBarriers returns a dispatcher sending barriers to every downstream shard, so that
// each of them sees one barrier per upstream connection, and every other message to the
// shards it is partitioned to.
func BroadcastBarriers(d Broadcaster) forward.Dispatcher {
	return forward.DispatchFunc(func(ctx context.Context, msg isb.Message) error {
		if _, ok := isb.GetPayload[isb.BarrierPayload](msg); ok {
			return d.Broadcast(ctx, msg)
		}
		return d.Dispatch(ctx, msg)
	})
}
