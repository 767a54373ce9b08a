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

// Package processor runs one shard of a vertex: it wires the source, the operator pipeline and
// the dispatcher of the shard to the streams exchanged with the neighbouring shards.
package processor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/soheilhy/cmux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/numastream/pkg/checkpoint"
	"github.com/numaproj/numastream/pkg/config"
	daemonserver "github.com/numaproj/numastream/pkg/daemon/server"
	"github.com/numaproj/numastream/pkg/endpoint"
	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/metrics"
	"github.com/numaproj/numastream/pkg/shared/logging"
	sharedtls "github.com/numaproj/numastream/pkg/shared/tls"
	"github.com/numaproj/numastream/pkg/sources/receiver"
	"github.com/numaproj/numastream/pkg/transport"
)

// shutdownTimeout bounds the graceful shutdown of the admin API.
const shutdownTimeout = 5 * time.Second

// Processor runs shard `shard` of a vertex of a topology.
type Processor struct {
	topology   *graph.Topology
	vertex     graph.VertexInfo
	shard      int
	instance   string
	conf       *config.GlobalConfig
	listenAddr string
	listener   net.Listener
}

type Option func(*Processor)

// WithListenAddress overrides the address the streams and the admin API are served on.
func WithListenAddress(addr string) Option {
	return func(p *Processor) {
		p.listenAddr = addr
	}
}

// WithListener serves the streams and the admin API on ln.
func WithListener(ln net.Listener) Option {
	return func(p *Processor) {
		p.listener = ln
	}
}

// NewProcessor returns the processor of shard `shard` of vertex `vertexName`.
func NewProcessor(topology *graph.Topology, vertexName string, shard int, conf *config.GlobalConfig, opts ...Option) (*Processor, error) {
	v, ok := topology.Vertex(vertexName)
	if !ok {
		return nil, fmt.Errorf("vertex %q is not part of the topology", vertexName)
	}
	if shard < 0 || shard >= v.Shards {
		return nil, fmt.Errorf("shard %d out of range, vertex %q has %d shards", shard, vertexName, v.Shards)
	}
	p := &Processor{
		topology: topology,
		vertex:   v,
		shard:    shard,
		instance: graph.InstanceName(vertexName, shard),
		conf:     conf,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Processor) endpointOptions(codecs endpoint.Option) []endpoint.Option {
	ec := p.conf.GetEndpointConfig()
	return []endpoint.Option{
		codecs,
		endpoint.WithQueueSize(ec.QueueSize),
		endpoint.WithBufferSize(ec.BufferSize),
		endpoint.WithFlushInterval(ec.FlushInterval),
		endpoint.WithMaxFrameSize(ec.MaxFrameSize),
		endpoint.WithKeepaliveInterval(ec.KeepaliveInterval),
		endpoint.WithStreamTimeout(ec.StreamTimeout),
	}
}

// Start runs the shard until ctx is done or a component fails.
func (p *Processor) Start(ctx context.Context) error {
	log := logging.FromContext(ctx).With("vertex", p.vertex.Name, "instance", p.instance)
	ctx = logging.WithLogger(ctx, log)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	codecs := endpoint.NewCodecPool(isb.DefaultPayloadRegistry())
	epOpts := p.endpointOptions(endpoint.WithCodecPool(codecs))
	var outputs []*endpoint.OutputEndpoint
	for _, cfg := range p.topology.Outputs(p.vertex.Name) {
		outputs = append(outputs, endpoint.NewOutputEndpoint(cfg, p.shard, epOpts...))
	}
	dispatcher := forward.NewPartitioningDispatcher(p.shard, outputs, codecs)

	store, err := checkpoint.NewMemoryStore(p.conf.GetCheckpointConfig().History, checkpoint.WithNotifier(func(ctx context.Context, cp checkpoint.Checkpoint) error {
		return dispatcher.Broadcast(ctx, isb.NewControlMessage(isb.CheckpointTakenPayload{CheckpointID: cp.ID, Instance: cp.Instance}))
	}))
	if err != nil {
		return fmt.Errorf("failed to create the checkpoint store: %w", err)
	}

	var recv *receiver.Receiver
	if len(p.topology.Inputs(p.vertex.Name)) > 0 {
		recv = receiver.New(p.vertex.Name, p.shard, p.topology.Inputs(p.vertex.Name), epOpts...)
	}
	sf, err := p.buildForwarders(ctx, recv, dispatcher, store)
	if err != nil {
		return err
	}
	forwarders, injector := sf.forwarders, sf.injector
	restorer := &recovery{
		instance:   p.instance,
		forwarders: forwarders,
		dispatcher: dispatcher,
		recv:       recv,
		aligner:    sf.aligner,
		store:      store,
		log:        log,
	}

	tlsConfig, clientTLS, err := p.tlsConfigs()
	if err != nil {
		return err
	}
	ln, err := p.listen(tlsConfig)
	if err != nil {
		return err
	}

	egress := newEgressManager(p.vertex.Name, p.shard, p.instance, dispatcher, p.conf.GetTransportConfig(), clientTLS)
	routerOpts := []daemonserver.Option{
		daemonserver.WithOutputs(dispatcher, egress),
		daemonserver.WithCheckpointStore(restorer),
	}
	if recv != nil {
		routerOpts = append(routerOpts, daemonserver.WithInputs(recv))
	}
	if injector != nil {
		routerOpts = append(routerOpts, daemonserver.WithTrigger(injector))
	}
	router := daemonserver.NewRouter(p.topology, p.instance, routerOpts...)

	ms := metrics.NewMetricsServer(
		metrics.WithPort(p.conf.GetMetricsConfig().Port),
		metrics.WithHealthCheckExecutor(metrics.HealthCheckFunc(func(context.Context) error {
			for _, f := range forwarders {
				if err := f.Err(); err != nil {
					return err
				}
			}
			return nil
		})),
	)
	shutdown, err := ms.Start(ctx)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to start metrics server, error: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.serve(gctx, ln, router, recv)
	})
	egress.start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		egress.wait()
		return nil
	})
	if injector != nil {
		injector.Start()
	}
	for _, f := range forwarders {
		f := f
		g.Go(func() error {
			stopped := f.Start()
			select {
			case <-gctx.Done():
				f.Stop()
				<-stopped
			case <-stopped:
				log.Info("Forwarder exited")
			}
			return f.Err()
		})
	}
	log.Infow("Processor started", "kind", p.vertex.Kind.String(), "address", ln.Addr().String())
	err = g.Wait()
	log.Info("Processor exited")
	return err
}

func (p *Processor) tlsConfigs() (*tls.Config, *tls.Config, error) {
	if !p.conf.GetTransportConfig().TLS {
		return nil, nil, nil
	}
	server, err := sharedtls.ServerConfig(p.instance, "localhost", "127.0.0.1")
	if err != nil {
		return nil, nil, err
	}
	return server, sharedtls.ClientConfig(), nil
}

func (p *Processor) listen(tlsConfig *tls.Config) (net.Listener, error) {
	ln := p.listener
	if ln == nil {
		addr := p.listenAddr
		if addr == "" {
			addr = fmt.Sprintf(":%d", p.conf.GetTransportConfig().Port)
		}
		var err error
		if ln, err = net.Listen("tcp", addr); err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}
	return ln, nil
}

// serve splits ln between the admin API and the streams of the upstream shards, until ctx is
// done.
func (p *Processor) serve(ctx context.Context, ln net.Listener, router http.Handler, recv *receiver.Receiver) error {
	log := logging.FromContext(ctx)
	// Cmux is used to serve HTTP1.1 and the streams on the same port
	tcpm := cmux.New(ln)
	httpL := tcpm.Match(cmux.HTTP1Fast())
	streamL := tcpm.Match(cmux.Any())

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	streamServer := transport.NewServer(p.instance, ingress(recv), transport.WithValidator(validateHello(recv, p.shard)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := tcpm.Serve(); err != nil && gctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := httpServer.Serve(httpL); err != nil && gctx.Err() == nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve the admin API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return streamServer.Serve(gctx, streamL)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(sctx); err != nil {
			log.Warnw("Failed to shut down the admin API", zap.Error(err))
		}
		_ = ln.Close()
		return nil
	})
	return g.Wait()
}
