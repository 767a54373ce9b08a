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

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/shared/logging"
	"github.com/numaproj/numastream/pkg/shared/util"
)

const (
	// DefaultMetricsPort is the port the metrics server listens on unless configured otherwise.
	DefaultMetricsPort = 2469
	// EnvPPROF enables the pprof endpoints.
	EnvPPROF = "NUMASTREAM_PPROF"
)

// metricsServer runs an HTTP server to:
// 1. Expose metrics;
// 2. Serve the health check endpoints.
type metricsServer struct {
	addr                 string
	pprof                bool
	healthCheckTimeout   time.Duration
	healthCheckExecutors []func(ctx context.Context) error
	listener             net.Listener
}

type Option func(*metricsServer)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(m *metricsServer) {
		m.addr = addr
	}
}

// WithPort sets the listen port on all interfaces.
func WithPort(port int) Option {
	return func(m *metricsServer) {
		m.addr = fmt.Sprintf(":%d", port)
	}
}

// WithPprof enables the pprof debug endpoints.
func WithPprof(enabled bool) Option {
	return func(m *metricsServer) {
		m.pprof = enabled
	}
}

// WithHealthCheckExecutor appends a health check executor
func WithHealthCheckExecutor(hc HealthChecker) Option {
	return func(m *metricsServer) {
		m.healthCheckExecutors = append(m.healthCheckExecutors, hc.IsHealthy)
	}
}

// NewMetricsServer returns a Prometheus metrics server instance.
func NewMetricsServer(opts ...Option) *metricsServer {
	m := &metricsServer{
		addr:               fmt.Sprintf(":%d", DefaultMetricsPort),
		pprof:              util.LookupEnvBoolOr(EnvPPROF, false),
		healthCheckTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (ms *metricsServer) handler(ctx context.Context) http.Handler {
	log := logging.FromContext(ctx)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		for _, ex := range ms.healthCheckExecutors {
			cctx, cancel := context.WithTimeout(r.Context(), ms.healthCheckTimeout)
			err := ex(cctx)
			cancel()
			if err != nil {
				log.Errorw("Failed to execute health check", zap.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if ms.pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		log.Info("Not enabling pprof debug endpoints")
	}
	return mux
}

// Start starts the HTTP service to expose metrics, it returns a shutdown function and an error if any
func (ms *metricsServer) Start(ctx context.Context) (func(ctx context.Context) error, error) {
	log := logging.FromContext(ctx)
	ln, err := net.Listen("tcp", ms.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s, %w", ms.addr, err)
	}
	ms.listener = ln
	httpServer := &http.Server{
		Handler:           ms.handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("Starting metrics HTTP server", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Failed to serve metrics", zap.Error(err))
		}
		log.Info("Metrics server shutdown")
	}()
	return httpServer.Shutdown, nil
}

// Addr returns the address the server listens on, once started.
func (ms *metricsServer) Addr() string {
	if ms.listener == nil {
		return ""
	}
	return ms.listener.Addr().String()
}
