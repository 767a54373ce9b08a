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
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf, 1024, time.Second)
	frames := [][]byte{[]byte("m1"), []byte("second message"), {}, []byte("m3")}
	for _, f := range frames {
		require.NoError(t, w.WriteFrame(f))
	}
	require.NoError(t, w.Flush())

	r := NewFrameReader(&buf, 0)
	for _, want := range frames {
		got, err := r.ReadFrame()
		require.NoError(t, err)
		assert.True(t, bytes.Equal(want, got))
	}
	_, err := r.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestFrame_LittleEndianPrefix(t *testing.T) {
	assert.Equal(t, []byte{3, 0, 0, 0, 'a', 'b', 'c'}, AppendFrame(nil, []byte("abc")))
	assert.True(t, IsFlushMarker(FlushMarker))
	assert.False(t, IsFlushMarker([]byte{0}))
}

func TestFrameWriter_CapacityFlush(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf, 16, time.Hour)
	require.NoError(t, w.WriteFrame([]byte("12345678")))
	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, 12, w.Buffered())

	// 12 + 12 does not fit in 16, the first frame goes out alone
	require.NoError(t, w.WriteFrame([]byte("abcdefgh")))
	assert.Equal(t, AppendFrame(nil, []byte("12345678")), buf.Bytes())
	assert.Equal(t, 12, w.Buffered())

	// larger than the whole buffer: flushes the pending frame, then writes directly
	require.NoError(t, w.WriteFrame([]byte("this frame is too large")))
	want := AppendFrame(nil, []byte("12345678"))
	want = AppendFrame(want, []byte("abcdefgh"))
	want = AppendFrame(want, []byte("this frame is too large"))
	assert.Equal(t, want, buf.Bytes())
	assert.Equal(t, 0, w.Buffered())
}

func TestFrameWriter_TimeFlush(t *testing.T) {
	var buf bytes.Buffer
	clock := &fakeClock{now: time.Unix(1636470000, 0)}
	w := NewFrameWriter(&buf, 1024, time.Second)
	w.now = clock.Now
	w.lastFlush = clock.now

	require.NoError(t, w.WriteFrame([]byte("a")))
	assert.Equal(t, 0, buf.Len())

	clock.now = clock.now.Add(500 * time.Millisecond)
	require.NoError(t, w.FlushIfIdle())
	assert.Equal(t, 0, buf.Len())

	clock.now = clock.now.Add(600 * time.Millisecond)
	require.NoError(t, w.FlushIfIdle())
	assert.Equal(t, AppendFrame(nil, []byte("a")), buf.Bytes())

	// a write more than an interval after the last flush goes out immediately
	buf.Reset()
	clock.now = clock.now.Add(2 * time.Second)
	require.NoError(t, w.WriteFrame([]byte("b")))
	assert.Equal(t, AppendFrame(nil, []byte("b")), buf.Bytes())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestFrameWriter_WriteError(t *testing.T) {
	w := NewFrameWriter(failingWriter{}, 8, time.Second)
	require.NoError(t, w.WriteFrame([]byte("1")))
	assert.Error(t, w.WriteFrame([]byte("2")))
	// the buffer is reset even when the write fails
	assert.Equal(t, 0, w.Buffered())
}

func TestFrameReader_Errors(t *testing.T) {
	t.Run("truncated header", func(t *testing.T) {
		r := NewFrameReader(bytes.NewReader([]byte{1, 0}), 0)
		_, err := r.ReadFrame()
		assert.ErrorIs(t, err, ErrTruncatedFrame)
		var ferr FramingErr
		assert.True(t, errors.As(err, &ferr))
	})

	t.Run("truncated body", func(t *testing.T) {
		b := AppendFrame(nil, []byte("hello"))
		r := NewFrameReader(bytes.NewReader(b[:len(b)-2]), 0)
		_, err := r.ReadFrame()
		assert.ErrorIs(t, err, ErrTruncatedFrame)
	})

	t.Run("length past the end of the stream", func(t *testing.T) {
		r := NewFrameReader(bytes.NewReader([]byte{10, 0, 0, 0}), 0)
		_, err := r.ReadFrame()
		assert.ErrorIs(t, err, ErrTruncatedFrame)
	})

	t.Run("negative length", func(t *testing.T) {
		r := NewFrameReader(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}), 0)
		_, err := r.ReadFrame()
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("frame over the limit", func(t *testing.T) {
		r := NewFrameReader(bytes.NewReader(AppendFrame(nil, []byte("hello"))), 4)
		_, err := r.ReadFrame()
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})
}
