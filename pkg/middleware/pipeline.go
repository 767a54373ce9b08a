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

package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/numaproj/numastream/pkg/isb"
)

// Named lets a handler report a readable name in errors and metrics.
type Named interface {
	Name() string
}

// Pipeline is an ordered, non-empty chain of handlers.
type Pipeline struct {
	handlers   []Handler
	vertexName string
}

// NewPipeline builds a pipeline. It fails when no handler is given or one of them is nil.
func NewPipeline(handlers ...Handler) (*Pipeline, error) {
	if len(handlers) == 0 {
		return nil, ErrNoHandlers
	}
	for i, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("%w at stage %d", ErrNilHandler, i)
		}
	}
	return &Pipeline{
		handlers: append([]Handler(nil), handlers...),
	}, nil
}

// ForVertex returns a copy of the pipeline reporting its metrics under the vertex name.
func (p *Pipeline) ForVertex(name string) *Pipeline {
	c := *p
	c.vertexName = name
	return &c
}

// Process runs msg through every handler. Each handler is applied to every message the previous
// stage produced, and the results are concatenated in production order. When a stage produces
// nothing for its whole batch the remaining handlers are skipped and the result is empty.
func (p *Pipeline) Process(ctx context.Context, msg isb.Message) ([]isb.Message, error) {
	batch := []isb.Message{msg}
	for stage, h := range p.handlers {
		stageLabel := strconv.Itoa(stage)
		start := time.Now()
		var next []isb.Message
		for _, m := range batch {
			out, err := h.Handle(ctx, m.Copy())
			if err == nil && out == nil {
				err = ErrNilResult
			}
			if err != nil {
				handlerErrorCount.WithLabelValues(p.vertexName, stageLabel).Inc()
				return nil, HandlerErr{Stage: stage, Handler: handlerName(h), InternalErr: err}
			}
			if len(out) == 0 {
				absorbedCount.WithLabelValues(p.vertexName, stageLabel).Inc()
			}
			next = append(next, out...)
		}
		stageProcessingTime.WithLabelValues(p.vertexName, stageLabel).Observe(float64(time.Since(start).Microseconds()))
		if len(next) == 0 {
			return []isb.Message{}, nil
		}
		batch = next
	}
	return batch, nil
}

// Len returns the number of stages.
func (p *Pipeline) Len() int {
	return len(p.handlers)
}

func handlerName(h Handler) string {
	if n, ok := h.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", h)
}
