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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageKind(t *testing.T) {
	assert.False(t, NewDataMessage().IsControl())
	assert.True(t, NewControlMessage().IsControl())
	assert.Equal(t, "Data", Data.String())
	assert.Equal(t, "Control", Control.String())
	assert.Equal(t, "Unknown", MessageKind(42).String())
}

func TestMessage_PartitionKey(t *testing.T) {
	m := NewDataMessage()
	_, ok := m.PartitionKey()
	assert.False(t, ok)

	keyed := m.WithPartitionKey(-7)
	k, ok := keyed.PartitionKey()
	assert.True(t, ok)
	assert.Equal(t, -7, k)
	// the original is untouched
	_, ok = m.PartitionKey()
	assert.False(t, ok)

	_, ok = keyed.WithoutPartitionKey().PartitionKey()
	assert.False(t, ok)
}

func TestMessage_PayloadsAreCopiedNotShared(t *testing.T) {
	m := NewDataMessage(EventPayload{Event: Event{Key: "a"}})
	branch := m.AddPayload(BarrierPayload{CheckpointID: "cp-1"})

	_, ok := m.TryGetPayload(BarrierPayload{}.MetaDataKey())
	assert.False(t, ok)
	_, ok = branch.TryGetPayload(BarrierPayload{}.MetaDataKey())
	assert.True(t, ok)
	assert.Equal(t, []string{"barrier", "event"}, branch.PayloadKeys())

	c := branch.Copy()
	rest, p, ok := c.ExtractPayload("barrier")
	require.True(t, ok)
	assert.Equal(t, "cp-1", p.(BarrierPayload).CheckpointID)
	assert.Equal(t, []string{"event"}, rest.PayloadKeys())
	assert.Equal(t, []string{"barrier", "event"}, c.PayloadKeys())
}

func TestGetPayload(t *testing.T) {
	m := NewDataMessage(EventPayload{Event: Event{Key: "a", Value: []byte("v")}})
	p, ok := GetPayload[EventPayload](m)
	require.True(t, ok)
	assert.Equal(t, "a", p.Event.Key)

	_, ok = GetPayload[BarrierPayload](m)
	assert.False(t, ok)

	rest, p, ok := ExtractPayload[EventPayload](m)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), p.Event.Value)
	assert.False(t, rest.HasPayloads())
	assert.True(t, m.HasPayloads())
}

func TestPayloadRegistry(t *testing.T) {
	r := DefaultPayloadRegistry()
	assert.Equal(t, []string{"barrier", "checkpoint-taken", "event"}, r.Keys())
	assert.ErrorIs(t, RegisterPayload[EventPayload](r), ErrDuplicatePayload)

	_, err := r.decode("nope", []byte("{}"))
	assert.ErrorIs(t, err, ErrUnknownPayload)

	p, err := r.decode("barrier", []byte(`{"checkpointId":"cp-9","issuedAt":"2022-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, BarrierPayload{CheckpointID: "cp-9", IssuedAt: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)}, p)
}
