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

package isb

import (
	"errors"
	"fmt"
)

var (
	// ErrNilMessage is returned when a required message is missing.
	ErrNilMessage = errors.New("message is nil")
	// ErrUnknownPayload is returned when decoding a payload whose key is not registered.
	ErrUnknownPayload = errors.New("unknown payload")
	// ErrDuplicatePayload is returned when a payload key is registered twice.
	ErrDuplicatePayload = errors.New("payload already registered")
)

// MessageDecodeErr is returned when bytes cannot be decoded into a message.
type MessageDecodeErr struct {
	Message     string
	InternalErr error
}

func (e MessageDecodeErr) Error() string {
	if e.InternalErr != nil {
		return fmt.Sprintf("failed to decode message, %s: %v", e.Message, e.InternalErr)
	}
	return fmt.Sprintf("failed to decode message, %s", e.Message)
}

func (e MessageDecodeErr) Unwrap() error {
	return e.InternalErr
}
