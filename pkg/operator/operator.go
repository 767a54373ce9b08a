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

// Package operator adapts user functions over events into middleware handlers.
//
// Every adapter works on messages carrying an isb.EventPayload. Messages without one, such as
// checkpoint barriers, are forwarded unchanged so that control traffic keeps flowing through
// user code.
package operator

import (
	"context"

	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/middleware"
	"github.com/numaproj/numastream/pkg/shuffle"
)

type (
	FilterFunc  func(ctx context.Context, event isb.Event) (bool, error)
	MapFunc     func(ctx context.Context, event isb.Event) (isb.Event, error)
	FlatMapFunc func(ctx context.Context, event isb.Event) ([]isb.Event, error)
	SinkFunc    func(ctx context.Context, event isb.Event) error
)

type named struct {
	middleware.Handler
	name string
}

func (n named) Name() string { return n.name }

func onEvent(name string, fn func(ctx context.Context, msg isb.Message, event isb.Event) ([]isb.Message, error)) middleware.Handler {
	return named{
		Handler: middleware.HandlerFunc(func(ctx context.Context, msg isb.Message) ([]isb.Message, error) {
			p, ok := isb.GetPayload[isb.EventPayload](msg)
			if !ok {
				return middleware.Forward(msg), nil
			}
			return fn(ctx, msg, p.Event)
		}),
		name: name,
	}
}

// Filter keeps the events for which fn returns true.
func Filter(fn FilterFunc) middleware.Handler {
	return onEvent("filter", func(ctx context.Context, msg isb.Message, event isb.Event) ([]isb.Message, error) {
		keep, err := fn(ctx, event)
		if err != nil {
			return nil, err
		}
		if !keep {
			return middleware.Absorb(), nil
		}
		return middleware.Forward(msg), nil
	})
}

// Map replaces every event with the result of fn.
func Map(fn MapFunc) middleware.Handler {
	return onEvent("map", func(ctx context.Context, msg isb.Message, event isb.Event) ([]isb.Message, error) {
		out, err := fn(ctx, event)
		if err != nil {
			return nil, err
		}
		return middleware.Forward(withEvent(msg, out)), nil
	})
}

// FlatMap replaces every event with zero or more events.
func FlatMap(fn FlatMapFunc) middleware.Handler {
	return onEvent("flatmap", func(ctx context.Context, msg isb.Message, event isb.Event) ([]isb.Message, error) {
		events, err := fn(ctx, event)
		if err != nil {
			return nil, err
		}
		out := make([]isb.Message, 0, len(events))
		for _, e := range events {
			out = append(out, withEvent(msg, e))
		}
		return out, nil
	})
}

// Sink hands every event to fn and absorbs it.
func Sink(fn SinkFunc) middleware.Handler {
	return onEvent("sink", func(ctx context.Context, _ isb.Message, event isb.Event) ([]isb.Message, error) {
		if err := fn(ctx, event); err != nil {
			return nil, err
		}
		return middleware.Absorb(), nil
	})
}

// withEvent returns a copy of msg carrying event. A non-empty event key re-keys the message.
func withEvent(msg isb.Message, event isb.Event) isb.Message {
	out := msg.AddPayload(isb.EventPayload{Event: event})
	if event.Key != "" {
		out = out.WithPartitionKey(shuffle.HashKey(event.Key))
	}
	return out
}
