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
	"sort"
	"time"

	"github.com/google/uuid"
)

// MessageKind represents the kind of the message. It is fixed when the message is built.
type MessageKind int16

const (
	Data    MessageKind = iota + 1 // Data carries events between operators
	Control                        // Control carries coordination traffic such as checkpoint barriers
)

func (mk MessageKind) String() string {
	switch mk {
	case Data:
		return "Data"
	case Control:
		return "Control"
	default:
		return "Unknown"
	}
}

// Header is the header of the message
type Header struct {
	// ID uniquely identifies a message produced by an operator.
	ID string
	// CreatedAt is when the message was built.
	CreatedAt time.Time
}

// Message is the unit routed between shards. It is a value type: every mutator returns
// a new message and leaves the receiver untouched, so a message can fan out to several
// branches without aliasing its metadata.
type Message struct {
	Header
	kind     MessageKind
	key      int
	keyed    bool
	metaData map[string]Payload
}

// NewDataMessage builds a data message without a partition key.
func NewDataMessage(payloads ...Payload) Message {
	return newMessage(Data, payloads)
}

// NewControlMessage builds a control message without a partition key.
func NewControlMessage(payloads ...Payload) Message {
	return newMessage(Control, payloads)
}

func newMessage(kind MessageKind, payloads []Payload) Message {
	m := Message{
		Header: Header{
			ID:        uuid.NewString(),
			CreatedAt: time.Now().UTC(),
		},
		kind:     kind,
		metaData: make(map[string]Payload, len(payloads)),
	}
	for _, p := range payloads {
		m.metaData[p.MetaDataKey()] = p
	}
	return m
}

// Kind returns the kind of the message.
func (m Message) Kind() MessageKind {
	return m.kind
}

// IsControl returns true for control messages.
func (m Message) IsControl() bool {
	return m.kind == Control
}

// PartitionKey returns the partition key, and false if the message has none.
func (m Message) PartitionKey() (int, bool) {
	return m.key, m.keyed
}

// WithPartitionKey returns a copy of the message keyed by key.
func (m Message) WithPartitionKey(key int) Message {
	c := m.Copy()
	c.key, c.keyed = key, true
	return c
}

// WithoutPartitionKey returns a copy of the message without a partition key.
func (m Message) WithoutPartitionKey() Message {
	c := m.Copy()
	c.key, c.keyed = 0, false
	return c
}

// Copy returns a copy of the message with its own metadata map. Payloads are shared, they are
// treated as immutable once attached.
func (m Message) Copy() Message {
	c := m
	c.metaData = make(map[string]Payload, len(m.metaData))
	for k, v := range m.metaData {
		c.metaData[k] = v
	}
	return c
}

// AddPayload returns a copy of the message carrying p under p.MetaDataKey(), replacing any
// payload stored under the same key.
func (m Message) AddPayload(p Payload) Message {
	c := m.Copy()
	c.metaData[p.MetaDataKey()] = p
	return c
}

// TryGetPayload returns the payload stored under key.
func (m Message) TryGetPayload(key string) (Payload, bool) {
	p, ok := m.metaData[key]
	return p, ok
}

// ExtractPayload returns a copy of the message without the payload stored under key, and the payload.
func (m Message) ExtractPayload(key string) (Message, Payload, bool) {
	p, ok := m.metaData[key]
	if !ok {
		return m, nil, false
	}
	c := m.Copy()
	delete(c.metaData, key)
	return c, p, true
}

// HasPayloads returns true if the message carries at least one payload.
func (m Message) HasPayloads() bool {
	return len(m.metaData) > 0
}

// PayloadKeys returns the metadata keys of the message in sorted order.
func (m Message) PayloadKeys() []string {
	keys := make([]string, 0, len(m.metaData))
	for k := range m.metaData {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetPayload returns the payload of type T carried by m.
func GetPayload[T Payload](m Message) (T, bool) {
	var zero T
	p, ok := m.metaData[zero.MetaDataKey()]
	if !ok {
		return zero, false
	}
	t, ok := p.(T)
	return t, ok
}

// ExtractPayload returns a copy of m without the payload of type T, and the payload.
func ExtractPayload[T Payload](m Message) (Message, T, bool) {
	var zero T
	c, p, ok := m.ExtractPayload(zero.MetaDataKey())
	if !ok {
		return m, zero, false
	}
	t, ok := p.(T)
	if !ok {
		return m, zero, false
	}
	return c, t, true
}
