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

package processor

import (
	"context"
	"fmt"
	"io"

	"github.com/numaproj/numastream/pkg/sources/receiver"
	"github.com/numaproj/numastream/pkg/transport"
)

// validateHello accepts the streams of the upstream shards connected to an input endpoint of
// the receiver of shard `shard`.
func validateHello(recv *receiver.Receiver, shard int) transport.Validator {
	return func(hello transport.Hello) error {
		if recv == nil {
			return fmt.Errorf("instance has no input endpoints")
		}
		in, ok := recv.Input(hello.Endpoint)
		if !ok {
			return fmt.Errorf("unknown input endpoint %q", hello.Endpoint)
		}
		cfg := in.Config()
		if hello.Vertex != cfg.RemoteVertex {
			return fmt.Errorf("input endpoint %s receives from vertex %q, not %q", cfg.LocalEndpoint, cfg.RemoteVertex, hello.Vertex)
		}
		if hello.Shard < 0 || hello.Shard >= cfg.RemoteInstanceCount() {
			return fmt.Errorf("shard %d out of range for input endpoint %s with %d remote instances", hello.Shard, cfg.LocalEndpoint, cfg.RemoteInstanceCount())
		}
		if cfg.IsPipeline && hello.Shard != shard {
			return fmt.Errorf("pipeline endpoint %s only receives from shard %d", cfg.LocalEndpoint, shard)
		}
		return nil
	}
}

// ingress feeds an accepted stream into its input endpoint.
func ingress(recv *receiver.Receiver) transport.StreamHandler {
	return func(ctx context.Context, hello transport.Hello, stream io.Reader) error {
		return recv.Ingress(ctx, hello.Endpoint, stream, hello.Shard)
	}
}
