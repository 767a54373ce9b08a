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
	"errors"
	"fmt"
)

var (
	// ErrNoHandlers is returned when a pipeline is built without handlers.
	ErrNoHandlers = errors.New("pipeline needs at least one handler")
	// ErrNilHandler is returned when one of the handlers is nil.
	ErrNilHandler = errors.New("pipeline handler is nil")
	// ErrNilResult is reported when a handler returns no result instead of an empty one.
	ErrNilResult = errors.New("handler returned a nil result")
)

// HandlerErr is a fatal failure of one pipeline stage. It is never retried.
type HandlerErr struct {
	Stage       int
	Handler     string
	InternalErr error
}

func (e HandlerErr) Error() string {
	return fmt.Sprintf("handler %s at stage %d failed: %v", e.Handler, e.Stage, e.InternalErr)
}

func (e HandlerErr) Unwrap() error {
	return e.InternalErr
}
