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

// Package transport carries endpoint streams between processors over TCP. Each connection
// starts with a handshake naming the stream, then carries frames in one direction.
package transport

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/numaproj/numastream/pkg/endpoint"
)

// maxHandshakeSize caps the frames of the handshake.
const maxHandshakeSize = 64 * 1024

// Hello opens a stream. It is sent by the shard writing the stream.
type Hello struct {
	// Vertex is the vertex of the sending shard.
	Vertex string `json:"vertex"`
	// Shard is the index of the sending shard.
	Shard int `json:"shard"`
	// Endpoint is the input endpoint of the receiving shard the stream belongs to.
	Endpoint string `json:"endpoint"`
	// Target is the instance name of the receiving shard.
	Target string `json:"target"`
}

func (h Hello) String() string {
	return fmt.Sprintf("%s-%d -> %s.%s", h.Vertex, h.Shard, h.Target, h.Endpoint)
}

// welcome answers a Hello. A non-empty Error refuses the stream.
type welcome struct {
	Error string `json:"error,omitempty"`
}

func writeJSONFrame(w io.Writer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(endpoint.AppendFrame(make([]byte, 0, endpoint.FrameHeaderSize+len(b)), b))
	return err
}

func readJSONFrame(r io.Reader, v interface{}) error {
	b, err := endpoint.NewFrameReader(r, maxHandshakeSize).ReadFrame()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
