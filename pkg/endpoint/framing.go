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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const (
	// FrameHeaderSize is the size of the little-endian length prefix of a frame.
	FrameHeaderSize = 4
	// DefaultBufferSize is the size of the write buffer batching frames.
	DefaultBufferSize = 64 * 1024
	// DefaultFlushInterval bounds how long a frame may wait in the write buffer.
	DefaultFlushInterval = time.Second
	// DefaultMaxFrameSize caps the payload size a reader accepts.
	DefaultMaxFrameSize = 64 * 1024 * 1024
	// DefaultKeepaliveInterval is how long an output stream stays silent before a keepalive is sent.
	DefaultKeepaliveInterval = 5 * time.Second
	// DefaultStreamTimeout bounds a single write, and the silence tolerated on an input stream.
	DefaultStreamTimeout = 20 * time.Second
)

// FlushMarker is the empty payload written to mark the end of a flush.
var FlushMarker = []byte{}

// IsFlushMarker returns true for the payload of a flush marker frame.
func IsFlushMarker(payload []byte) bool {
	return len(payload) == 0
}

// KeepaliveMarker is the payload written on an idle stream. An encoded message never starts
// with a zero byte, protobuf has no field number 0.
var KeepaliveMarker = []byte{0}

// IsKeepalive returns true for the payload of a keepalive frame.
func IsKeepalive(payload []byte) bool {
	return len(payload) == 1 && payload[0] == 0
}

// AppendFrame appends payload to dst as one frame.
func AppendFrame(dst []byte, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// FrameWriter batches frames into a buffer and writes the buffer to the stream when the next
// frame does not fit, or when the previous write is older than the flush interval.
// A frame is always written whole: the stream never sees half of a frame from a flush.
type FrameWriter struct {
	w             io.Writer
	buf           []byte
	flushInterval time.Duration
	lastFlush     time.Time
	now           func() time.Time
}

// NewFrameWriter returns a writer with a buffer of `size` bytes.
func NewFrameWriter(w io.Writer, size int, flushInterval time.Duration) *FrameWriter {
	if size < FrameHeaderSize {
		size = DefaultBufferSize
	}
	fw := &FrameWriter{
		w:             w,
		buf:           make([]byte, 0, size),
		flushInterval: flushInterval,
		now:           time.Now,
	}
	fw.lastFlush = fw.now()
	return fw
}

// WriteFrame adds one frame. It may write to the stream.
func (fw *FrameWriter) WriteFrame(payload []byte) error {
	if len(payload) > math.MaxInt32 {
		return fmt.Errorf("%w: payload of %d bytes", ErrMalformedFrame, len(payload))
	}
	size := FrameHeaderSize + len(payload)
	if cap(fw.buf)-len(fw.buf) < size {
		if err := fw.Flush(); err != nil {
			return err
		}
	}
	if size > cap(fw.buf) {
		// larger than the whole buffer, goes out on its own
		frame := AppendFrame(make([]byte, 0, size), payload)
		if _, err := fw.w.Write(frame); err != nil {
			return err
		}
		fw.lastFlush = fw.now()
		return nil
	}
	fw.buf = AppendFrame(fw.buf, payload)
	if fw.now().Sub(fw.lastFlush) > fw.flushInterval {
		return fw.Flush()
	}
	return nil
}

// Flush writes the buffered frames and resets the buffer.
func (fw *FrameWriter) Flush() error {
	defer func() {
		fw.buf = fw.buf[:0]
		fw.lastFlush = fw.now()
	}()
	if len(fw.buf) == 0 {
		return nil
	}
	_, err := fw.w.Write(fw.buf)
	return err
}

// FlushIfIdle flushes when frames are buffered and the last flush is older than the flush interval.
func (fw *FrameWriter) FlushIfIdle() error {
	if len(fw.buf) == 0 || fw.now().Sub(fw.lastFlush) < fw.flushInterval {
		return nil
	}
	return fw.Flush()
}

// Buffered returns the number of bytes waiting to be written.
func (fw *FrameWriter) Buffered() int {
	return len(fw.buf)
}

// FrameReader reads frames written by a FrameWriter.
type FrameReader struct {
	r            io.Reader
	header       [FrameHeaderSize]byte
	maxFrameSize int
}

func NewFrameReader(r io.Reader, maxFrameSize int) *FrameReader {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &FrameReader{r: r, maxFrameSize: maxFrameSize}
}

// ReadFrame returns the payload of the next frame. It returns io.EOF only when the stream ends
// on a frame boundary. A short read or an impossible length is a FramingErr. Errors of the
// underlying stream are returned as they are.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, FramingErr{Message: "reading frame header", InternalErr: ErrTruncatedFrame}
		}
		return nil, err
	}
	length := binary.LittleEndian.Uint32(fr.header[:])
	if length > math.MaxInt32 || int64(length) > int64(fr.maxFrameSize) {
		return nil, FramingErr{Message: fmt.Sprintf("frame length %d exceeds limit %d", length, fr.maxFrameSize), InternalErr: ErrMalformedFrame}
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, FramingErr{Message: fmt.Sprintf("reading frame body of %d bytes", length), InternalErr: ErrTruncatedFrame}
		}
		return nil, err
	}
	return payload, nil
}
