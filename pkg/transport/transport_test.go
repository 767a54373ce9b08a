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

package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj/numastream/pkg/endpoint"
	"github.com/numaproj/numastream/pkg/shared/logging"
	sharedtls "github.com/numaproj/numastream/pkg/shared/tls"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fastBackoff = wait.Backoff{Steps: 3, Duration: 10 * time.Millisecond, Factor: 1}

type received struct {
	hello  Hello
	frames []string
}

// serve runs a server for "agg-0" that reads frames until the stream ends.
func serve(t *testing.T, ln net.Listener, opts ...ServerOption) (<-chan received, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), zap.NewNop().Sugar()))
	out := make(chan received, 4)
	s := NewServer("agg-0", func(ctx context.Context, hello Hello, stream io.Reader) error {
		r := received{hello: hello}
		reader := endpoint.NewFrameReader(stream, 0)
		for {
			frame, err := reader.ReadFrame()
			if errors.Is(err, io.EOF) {
				out <- r
				return nil
			}
			if err != nil {
				return err
			}
			r.frames = append(r.frames, string(frame))
		}
	}, opts...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, s.Serve(ctx, ln))
	}()
	return out, func() {
		cancel()
		<-done
	}
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func send(t *testing.T, conn net.Conn, frames ...string) {
	t.Helper()
	w := endpoint.NewFrameWriter(conn, endpoint.DefaultBufferSize, time.Hour)
	for _, f := range frames {
		require.NoError(t, w.WriteFrame([]byte(f)))
	}
	require.NoError(t, w.Flush())
	require.NoError(t, conn.Close())
}

func TestDial(t *testing.T) {
	ln := listen(t)
	out, stop := serve(t, ln)
	defer stop()

	hello := Hello{Vertex: "map", Shard: 1, Endpoint: "input0", Target: "agg-0"}
	conn, err := Dial(context.Background(), ln.Addr().String(), hello, WithBackoff(fastBackoff))
	require.NoError(t, err)
	send(t, conn, "a", "b")

	select {
	case r := <-out:
		assert.Equal(t, hello, r.hello)
		assert.Equal(t, []string{"a", "b"}, r.frames)
	case <-time.After(5 * time.Second):
		t.Fatal("stream not received")
	}
}

func TestDial_Refused(t *testing.T) {
	ln := listen(t)
	_, stop := serve(t, ln, WithValidator(func(h Hello) error {
		if h.Endpoint != "input0" {
			return errors.New("no such endpoint")
		}
		return nil
	}))
	defer stop()

	_, err := Dial(context.Background(), ln.Addr().String(), Hello{Vertex: "map", Endpoint: "input9", Target: "agg-0"}, WithBackoff(fastBackoff))
	assert.ErrorIs(t, err, ErrRefused)
	assert.ErrorContains(t, err, "no such endpoint")

	_, err = Dial(context.Background(), ln.Addr().String(), Hello{Vertex: "map", Endpoint: "input0", Target: "agg-1"}, WithBackoff(fastBackoff))
	assert.ErrorIs(t, err, ErrRefused)
}

func TestDial_Unreachable(t *testing.T) {
	ln := listen(t)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	_, err := Dial(context.Background(), addr, Hello{Target: "agg-0"}, WithBackoff(fastBackoff))
	assert.ErrorContains(t, err, "retries exhausted")
}

func TestDial_TLS(t *testing.T) {
	cert, err := sharedtls.GenerateX509KeyPair()
	require.NoError(t, err)
	ln := tls.NewListener(listen(t), &tls.Config{Certificates: []tls.Certificate{*cert}, MinVersion: tls.VersionTLS12})
	out, stop := serve(t, ln)
	defer stop()

	hello := Hello{Vertex: "map", Endpoint: "input0", Target: "agg-0"}
	conn, err := Dial(context.Background(), ln.Addr().String(), hello, WithBackoff(fastBackoff), WithTLS(&tls.Config{InsecureSkipVerify: true}))
	require.NoError(t, err)
	send(t, conn, "secure")
	select {
	case r := <-out:
		assert.Equal(t, []string{"secure"}, r.frames)
	case <-time.After(5 * time.Second):
		t.Fatal("stream not received")
	}
}

func TestServer_StopsOpenStreams(t *testing.T) {
	ln := listen(t)
	_, stop := serve(t, ln)
	conn, err := Dial(context.Background(), ln.Addr().String(), Hello{Vertex: "map", Endpoint: "input0", Target: "agg-0"}, WithBackoff(fastBackoff))
	require.NoError(t, err)
	defer conn.Close()
	// returns although the stream is still open
	stop()
}
