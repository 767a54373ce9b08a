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
	"time"

	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/shared/pool"
)

// DefaultQueueSize is the capacity of each per-shard queue.
const DefaultQueueSize = 1000

type options struct {
	// queueSize is the capacity of each per-shard queue
	queueSize int
	// bufferSize is the size of the frame write buffer
	bufferSize int
	// flushInterval bounds how long a frame stays buffered
	flushInterval time.Duration
	// maxFrameSize caps the size of a received frame
	maxFrameSize int
	// codecs encode and decode messages
	codecs *pool.Pool[isb.Codec]
	// signal is notified when a message becomes available on an input endpoint
	signal chan<- struct{}
	// keepaliveInterval is the idle time after which Egress writes a keepalive, 0 disables it
	keepaliveInterval time.Duration
	// streamTimeout bounds each write of Egress and the silence Ingress tolerates, 0 disables it
	streamTimeout time.Duration
}

func defaultOptions() *options {
	return &options{
		queueSize:     DefaultQueueSize,
		bufferSize:    DefaultBufferSize,
		flushInterval: DefaultFlushInterval,
		maxFrameSize:  DefaultMaxFrameSize,

		keepaliveInterval: DefaultKeepaliveInterval,
		streamTimeout:     DefaultStreamTimeout,
	}
}

func (o *options) codecPool() *pool.Pool[isb.Codec] {
	if o.codecs == nil {
		o.codecs = NewCodecPool(isb.DefaultPayloadRegistry())
	}
	return o.codecs
}

// NewCodecPool returns a pool building protowire codecs over registry.
func NewCodecPool(registry *isb.PayloadRegistry) *pool.Pool[isb.Codec] {
	return pool.New(func() isb.Codec {
		return isb.NewProtoWireCodec(registry)
	})
}

type Option func(*options)

// WithQueueSize sets the capacity of each per-shard queue.
func WithQueueSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.queueSize = size
		}
	}
}

// WithBufferSize sets the size of the frame write buffer.
func WithBufferSize(size int) Option {
	return func(o *options) {
		if size > FrameHeaderSize {
			o.bufferSize = size
		}
	}
}

// WithFlushInterval sets how long a frame may stay in the write buffer.
func WithFlushInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.flushInterval = d
		}
	}
}

// WithMaxFrameSize caps the payload size accepted by Ingress.
func WithMaxFrameSize(size int) Option {
	return func(o *options) {
		o.maxFrameSize = size
	}
}

// WithCodecPool sets the codecs used to encode and decode messages.
func WithCodecPool(p *pool.Pool[isb.Codec]) Option {
	return func(o *options) {
		o.codecs = p
	}
}

// WithSignal sets a channel receiving a non-blocking notification whenever an input endpoint
// enqueues a message.
func WithSignal(ch chan<- struct{}) Option {
	return func(o *options) {
		o.signal = ch
	}
}

// WithKeepaliveInterval sets how long Egress lets a stream stay silent before writing a
// keepalive frame. 0 disables keepalives.
func WithKeepaliveInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.keepaliveInterval = d
		}
	}
}

// WithStreamTimeout bounds every write of Egress, and ends an Ingress that received nothing for
// that long. It only applies to streams supporting deadlines. 0 disables it.
func WithStreamTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.streamTimeout = d
		}
	}
}
