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
	"fmt"
	"net"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj/numastream/pkg/shared/logging"
	sharedutil "github.com/numaproj/numastream/pkg/shared/util"
)

// ErrRefused is returned when the receiving shard refuses a stream.
var ErrRefused = errors.New("stream refused")

type dialOptions struct {
	backoff   wait.Backoff
	tlsConfig *tls.Config
	timeout   time.Duration
}

type DialOption func(*dialOptions)

// WithBackoff sets how a failed dial is retried.
func WithBackoff(b wait.Backoff) DialOption {
	return func(o *dialOptions) {
		o.backoff = b
	}
}

// WithTLS dials with TLS.
func WithTLS(c *tls.Config) DialOption {
	return func(o *dialOptions) {
		o.tlsConfig = c
	}
}

// Dial connects to addr and opens the stream described by hello, retrying with backoff while
// the receiving shard is unreachable. A refused stream is not retried.
func Dial(ctx context.Context, addr string, hello Hello, opts ...DialOption) (net.Conn, error) {
	o := &dialOptions{
		backoff: sharedutil.DefaultDialBackoff,
		timeout: handshakeTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	log := logging.FromContext(ctx).With("address", addr, "stream", hello.String())
	var (
		conn    net.Conn
		refusal error
	)
	err := sharedutil.RetryWithBackoff(ctx, o.backoff, func(ctx context.Context) error {
		c, err := dialOnce(ctx, addr, hello, o)
		if errors.Is(err, ErrRefused) {
			refusal = err
			return nil
		}
		if err != nil {
			dialFailures.WithLabelValues(hello.Target).Inc()
			log.Warnw("Failed to open stream, retrying", "error", err)
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open stream %s to %s: %w", hello, addr, err)
	}
	if refusal != nil {
		return nil, refusal
	}
	return conn, nil
}

func dialOnce(ctx context.Context, addr string, hello Hello, o *dialOptions) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: o.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if o.tlsConfig != nil {
		tc := tls.Client(conn, o.tlsConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
		conn = tc
	}
	_ = conn.SetDeadline(time.Now().Add(o.timeout))
	if err := writeJSONFrame(conn, hello); err != nil {
		_ = conn.Close()
		return nil, err
	}
	var reply welcome
	if err := readJSONFrame(conn, &reply); err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	if reply.Error != "" {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrRefused, reply.Error)
	}
	return conn, nil
}
