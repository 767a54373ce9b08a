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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Payload is an opaque piece of metadata attached to a message. Implementations must be value
// types whose MetaDataKey works on the zero value, since the key identifies the type on the wire.
type Payload interface {
	MetaDataKey() string
}

// Event is a user record flowing through the operators.
type Event struct {
	Key       string    `json:"key,omitempty"`
	Value     []byte    `json:"value,omitempty"`
	EventTime time.Time `json:"eventTime"`
}

// EventPayload carries an Event on a data message.
type EventPayload struct {
	Event Event `json:"event"`
}

func (EventPayload) MetaDataKey() string { return "event" }

// BarrierPayload marks a checkpoint barrier.
type BarrierPayload struct {
	CheckpointID string    `json:"checkpointId"`
	IssuedAt     time.Time `json:"issuedAt"`
}

func (BarrierPayload) MetaDataKey() string { return "barrier" }

// CheckpointTakenPayload reports a checkpoint taken by an instance.
type CheckpointTakenPayload struct {
	CheckpointID string `json:"checkpointId"`
	Instance     string `json:"instance"`
}

func (CheckpointTakenPayload) MetaDataKey() string { return "checkpoint-taken" }

type payloadDecoder func([]byte) (Payload, error)

// PayloadRegistry maps metadata keys to the payload types a codec can decode.
// Types are registered explicitly at startup.
type PayloadRegistry struct {
	lock     sync.RWMutex
	decoders map[string]payloadDecoder
}

func NewPayloadRegistry() *PayloadRegistry {
	return &PayloadRegistry{decoders: make(map[string]payloadDecoder)}
}

// DefaultPayloadRegistry returns a registry holding the built-in payload types.
func DefaultPayloadRegistry() *PayloadRegistry {
	r := NewPayloadRegistry()
	_ = RegisterPayload[EventPayload](r)
	_ = RegisterPayload[BarrierPayload](r)
	_ = RegisterPayload[CheckpointTakenPayload](r)
	return r
}

// RegisterPayload adds the payload type T to the registry.
func RegisterPayload[T Payload](r *PayloadRegistry) error {
	var zero T
	key := zero.MetaDataKey()
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.decoders[key]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicatePayload, key)
	}
	r.decoders[key] = func(b []byte) (Payload, error) {
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil
}

// Keys returns the registered metadata keys in sorted order.
func (r *PayloadRegistry) Keys() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	keys := make([]string, 0, len(r.decoders))
	for k := range r.decoders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *PayloadRegistry) encode(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

func (r *PayloadRegistry) decode(key string, b []byte) (Payload, error) {
	r.lock.RLock()
	decoder, ok := r.decoders[key]
	r.lock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayload, key)
	}
	return decoder(b)
}
