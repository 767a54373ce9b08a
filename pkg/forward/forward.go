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

// Package forward runs the execution loop of a vertex shard: take a message from the source,
// run it through the processor, dispatch every result.
package forward

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/shared/logging"
)

// StreamForward forwards the messages of one source through a processor to a dispatcher.
type StreamForward struct {
	// ctx is cancelled by Stop, it interrupts Take
	ctx      context.Context
	cancelFn context.CancelFunc
	// dispatchCtx is cancelled by ForceStop only, so a graceful stop still delivers what was processed
	dispatchCtx   context.Context
	forceCancelFn context.CancelFunc

	vertexName string
	source     Source
	processor  Processor
	dispatcher Dispatcher
	opts       options

	errLock sync.RWMutex
	err     error
	halter
	Shutdown
}

// NewStreamForward creates a forwarder for one vertex shard.
func NewStreamForward(vertexName string, source Source, processor Processor, dispatcher Dispatcher, opts ...Option) (*StreamForward, error) {
	if source == nil || processor == nil || dispatcher == nil {
		return nil, fmt.Errorf("source, processor and dispatcher are required")
	}
	options := DefaultOptions()
	for _, o := range opts {
		if err := o(options); err != nil {
			return nil, err
		}
	}
	if options.instance == "" {
		options.instance = vertexName
	}
	logger := options.logger.With("vertex", vertexName, "instance", options.instance)
	// creating a context here which is managed by the forwarder's lifecycle
	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logger))
	dispatchCtx, forceCancel := context.WithCancel(logging.WithLogger(context.Background(), logger))

	return &StreamForward{
		ctx:           ctx,
		cancelFn:      cancel,
		dispatchCtx:   dispatchCtx,
		forceCancelFn: forceCancel,
		vertexName:    vertexName,
		source:        source,
		processor:     processor,
		dispatcher:    dispatcher,
		opts:          *options,
		Shutdown: Shutdown{
			rwlock: new(sync.RWMutex),
		},
	}, nil
}

// Start starts the loop. The returned channel is closed once the loop has exited and the source
// and dispatcher are closed. Call `Stop` to stop. A fatal error ends the loop as well and is
// reported by Err.
func (sf *StreamForward) Start() <-chan struct{} {
	log := logging.FromContext(sf.ctx)
	stopped := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		log.Info("Starting forwarder...")
		defer wg.Done()
		if err := sf.run(); err != nil {
			log.Errorw("Forwarder stopped with a fatal error", zap.Error(err))
			sf.setErr(err)
			return
		}
		log.Info("Shutting down...")
	}()

	go func() {
		wg.Wait()
		// release everything once the loop is done
		sf.cancelFn()
		sf.forceCancelFn()
		for name, c := range map[string]interface{}{"source": sf.source, "dispatcher": sf.dispatcher} {
			closer, ok := c.(Closer)
			if !ok {
				continue
			}
			if err := closer.Close(); err != nil {
				log.Errorw("Failed to close, shutdown anyways...", zap.String("component", name), zap.Error(err))
			} else {
				log.Infow("Closed", zap.String("component", name))
			}
		}
		close(stopped)
	}()
	return stopped
}

// Err returns the fatal error that ended the loop, if any.
func (sf *StreamForward) Err() error {
	sf.errLock.RLock()
	defer sf.errLock.RUnlock()
	return sf.err
}

func (sf *StreamForward) setErr(err error) {
	sf.errLock.Lock()
	defer sf.errLock.Unlock()
	sf.err = err
}

// run loops until Stop is called or a fatal error happens. Cancellation is not an error.
func (sf *StreamForward) run() error {
	defer sf.rejectHalts()
	labels := []string{sf.vertexName, sf.opts.instance}
	for {
		takeCtx, ok := sf.beginTake()
		if !ok {
			sf.serveHalts()
			continue
		}
		msg, err := sf.source.Take(takeCtx)
		interrupted := takeCtx.Err() != nil
		sf.endTake()
		if err != nil {
			if errors.Is(err, io.EOF) || (sf.ctx.Err() != nil && isCancellation(err)) {
				return nil
			}
			if interrupted && isCancellation(err) {
				// a halt was requested
				continue
			}
			readMessagesError.WithLabelValues(labels...).Inc()
			return fmt.Errorf("failed to take from source: %w", err)
		}
		readMessagesCount.WithLabelValues(labels...).Inc()
		if err := sf.forward(msg, labels); err != nil {
			if sf.dispatchCtx.Err() != nil && isCancellation(err) {
				return nil
			}
			return err
		}
	}
}

// forward processes one taken message and dispatches the results in production order. The
// processor cannot be interrupted, it always completes.
func (sf *StreamForward) forward(msg isb.Message, labels []string) error {
	start := time.Now()
	defer func() {
		processingTime.WithLabelValues(labels...).Observe(float64(time.Since(start).Microseconds()))
	}()
	out, err := sf.processor.Process(context.WithoutCancel(sf.ctx), msg)
	if err != nil {
		processingError.WithLabelValues(labels...).Inc()
		return fmt.Errorf("failed to process message %s: %w", msg.ID, err)
	}
	if len(out) == 0 {
		absorbedMessagesCount.WithLabelValues(labels...).Inc()
		return nil
	}
	for _, m := range out {
		if err := sf.dispatcher.Dispatch(sf.dispatchCtx, m); err != nil {
			dispatchMessagesError.WithLabelValues(labels...).Inc()
			return fmt.Errorf("failed to dispatch message %s: %w", m.ID, err)
		}
		dispatchMessagesCount.WithLabelValues(labels...).Inc()
	}
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
