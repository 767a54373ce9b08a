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
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/shared/logging"
)

// handshakeTimeout bounds how long an accepted connection may take to say hello.
const handshakeTimeout = 10 * time.Second

// StreamHandler consumes the stream of an accepted connection until it ends or ctx is done.
type StreamHandler func(ctx context.Context, hello Hello, stream io.Reader) error

// Validator refuses a Hello by returning an error.
type Validator func(hello Hello) error

// Server accepts the streams sent to one instance.
type Server struct {
	instance string
	handle   StreamHandler
	validate Validator
	wg       sync.WaitGroup
	lock     sync.Mutex
	conns    map[net.Conn]struct{}
}

type ServerOption func(*Server)

// WithValidator sets a check run on every Hello before the stream is accepted.
func WithValidator(v Validator) ServerOption {
	return func(s *Server) {
		s.validate = v
	}
}

// NewServer returns a server for instance `instance`, handing every accepted stream to handle.
func NewServer(instance string, handle StreamHandler, opts ...ServerOption) *Server {
	s := &Server{
		instance: instance,
		handle:   handle,
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve accepts connections from ln until ctx is done or ln fails. It closes ln and every
// accepted connection before returning, once their handlers have returned.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := logging.FromContext(ctx).With("instance", s.instance)
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()
	defer func() {
		s.closeConns()
		s.wg.Wait()
	}()

	log.Infow("Accepting streams", "address", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to accept: %w", err)
		}
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			if err := s.serveConn(ctx, conn); err != nil {
				log.Errorw("Stream failed", "remote", conn.RemoteAddr().String(), zap.Error(err))
			}
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	if tc, ok := conn.(*tls.Conn); ok {
		hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
		err := tc.HandshakeContext(hsCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("tls handshake failed: %w", err)
		}
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var hello Hello
	if err := readJSONFrame(conn, &hello); err != nil {
		return fmt.Errorf("failed to read hello: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	refusal := s.check(hello)
	reply := welcome{}
	if refusal != nil {
		reply.Error = refusal.Error()
	}
	if err := writeJSONFrame(conn, reply); err != nil {
		return fmt.Errorf("failed to answer %s: %w", hello, err)
	}
	if refusal != nil {
		return fmt.Errorf("refused %s: %w", hello, refusal)
	}
	streamsAccepted.WithLabelValues(s.instance, hello.Endpoint).Inc()
	logging.FromContext(ctx).Infow("Accepted stream", "stream", hello.String())
	return s.handle(ctx, hello, conn)
}

func (s *Server) check(hello Hello) error {
	if hello.Target != s.instance {
		return fmt.Errorf("stream is for %q, this is %q", hello.Target, s.instance)
	}
	if s.validate != nil {
		return s.validate(hello)
	}
	return nil
}

func (s *Server) track(conn net.Conn) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeConns() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}
