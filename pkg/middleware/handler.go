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

// Package middleware threads messages through an ordered chain of handlers.
package middleware

import (
	"context"

	"github.com/numaproj/numastream/pkg/isb"
)

// Handler transforms one message into zero or more messages.
//
// Returning a non-nil empty slice absorbs the message. Returning a nil slice without an
// error is a contract violation and fails the pipeline.
type Handler interface {
	Handle(ctx context.Context, msg isb.Message) ([]isb.Message, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, msg isb.Message) ([]isb.Message, error)

func (f HandlerFunc) Handle(ctx context.Context, msg isb.Message) ([]isb.Message, error) {
	return f(ctx, msg)
}

// Absorb is the result of a handler that drops its input.
func Absorb() []isb.Message {
	return []isb.Message{}
}

// Forward is the result of a handler that passes its input on.
func Forward(msg isb.Message) []isb.Message {
	return []isb.Message{msg}
}

// PayloadHandler handles messages that carry a payload of type T, and forwards every other
// message unchanged. The payload is removed from the message before fn sees it; fn decides
// whether to put it back.
type PayloadHandler[T isb.Payload] struct {
	fn func(ctx context.Context, msg isb.Message, payload T) ([]isb.Message, error)
}

func NewPayloadHandler[T isb.Payload](fn func(ctx context.Context, msg isb.Message, payload T) ([]isb.Message, error)) *PayloadHandler[T] {
	return &PayloadHandler[T]{fn: fn}
}

func (h *PayloadHandler[T]) Handle(ctx context.Context, msg isb.Message) ([]isb.Message, error) {
	rest, payload, ok := isb.ExtractPayload[T](msg)
	if !ok {
		return Forward(msg), nil
	}
	return h.fn(ctx, rest, payload)
}
