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

package endpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncatedFrame is reported when the stream ends inside a frame.
	ErrTruncatedFrame = errors.New("truncated frame")
	// ErrMalformedFrame is reported when a length prefix cannot be valid.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrShardUnregistered is returned by Egress when its remote shard is unregistered.
	ErrShardUnregistered = errors.New("remote shard unregistered")
	// ErrUnknownShard is returned when an operation names a remote shard the endpoint does not know.
	ErrUnknownShard = errors.New("unknown remote shard")
	// ErrStreamTimeout is returned when a peer sent nothing, not even a keepalive, or accepted
	// no bytes within the stream timeout.
	ErrStreamTimeout = errors.New("stream timed out")
)

// FramingErr is a stream reception error. The Ingress reporting it terminates.
type FramingErr struct {
	Endpoint    string
	Shard       int
	Message     string
	InternalErr error
}

func (e FramingErr) Error() string {
	return fmt.Sprintf("(%s:%d) %s: %v", e.Endpoint, e.Shard, e.Message, e.InternalErr)
}

func (e FramingErr) Unwrap() error {
	return e.InternalErr
}
