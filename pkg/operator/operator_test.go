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

package operator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/isb/testutils"
	"github.com/numaproj/numastream/pkg/middleware"
	"github.com/numaproj/numastream/pkg/shuffle"
)

var startTime = time.Unix(1636470000, 0)

func TestFilter(t *testing.T) {
	msgs := testutils.BuildTestDataMessages(4, startTime)
	even := Filter(func(_ context.Context, e isb.Event) (bool, error) {
		return strings.HasSuffix(string(e.Value), "0") || strings.HasSuffix(string(e.Value), "2"), nil
	})
	var kept []isb.Message
	for _, m := range msgs {
		out, err := even.Handle(context.Background(), m)
		require.NoError(t, err)
		kept = append(kept, out...)
	}
	assert.Equal(t, []string{"payload_0", "payload_2"}, testutils.EventValues(kept))
}

func TestMap(t *testing.T) {
	msg := testutils.BuildTestDataMessages(1, startTime)[0]
	upper := Map(func(_ context.Context, e isb.Event) (isb.Event, error) {
		e.Value = []byte(strings.ToUpper(string(e.Value)))
		e.Key = "upper"
		return e, nil
	})
	out, err := upper.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"PAYLOAD_0"}, testutils.EventValues(out))
	key, ok := out[0].PartitionKey()
	assert.True(t, ok)
	assert.Equal(t, shuffle.HashKey("upper"), key)
	assert.Equal(t, "map", upper.(middleware.Named).Name())

	boom := errors.New("boom")
	failing := Map(func(context.Context, isb.Event) (isb.Event, error) { return isb.Event{}, boom })
	_, err = failing.Handle(context.Background(), msg)
	assert.ErrorIs(t, err, boom)
}

func TestFlatMap(t *testing.T) {
	msg := testutils.BuildTestDataMessages(1, startTime)[0]
	split := FlatMap(func(_ context.Context, e isb.Event) ([]isb.Event, error) {
		var out []isb.Event
		for _, part := range strings.Split(string(e.Value), "_") {
			out = append(out, isb.Event{Value: []byte(part), EventTime: e.EventTime})
		}
		return out, nil
	})
	out, err := split.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"payload", "0"}, testutils.EventValues(out))
	// keyless events keep the key of the input message
	key, _ := out[1].PartitionKey()
	assert.Equal(t, 0, key)

	none := FlatMap(func(context.Context, isb.Event) ([]isb.Event, error) { return nil, nil })
	out, err = none.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestSink(t *testing.T) {
	var got []string
	sink := Sink(func(_ context.Context, e isb.Event) error {
		got = append(got, string(e.Value))
		return nil
	})
	for _, m := range testutils.BuildTestDataMessages(2, startTime) {
		out, err := sink.Handle(context.Background(), m)
		require.NoError(t, err)
		assert.Empty(t, out)
	}
	assert.Equal(t, []string{"payload_0", "payload_1"}, got)
}

func TestAdapters_ForwardNonEvents(t *testing.T) {
	barrier := isb.NewControlMessage(isb.BarrierPayload{CheckpointID: "cp"})
	handlers := []middleware.Handler{
		Filter(func(context.Context, isb.Event) (bool, error) { return false, nil }),
		Sink(func(context.Context, isb.Event) error { return errors.New("unreachable") }),
	}
	for _, h := range handlers {
		out, err := h.Handle(context.Background(), barrier)
		require.NoError(t, err)
		assert.Equal(t, []isb.Message{barrier}, out)
	}
}

func count(_ context.Context, key string, events []isb.Event) (isb.Event, error) {
	return isb.Event{Value: []byte(fmt.Sprintf("%s=%d", key, len(events))), EventTime: events[len(events)-1].EventTime}, nil
}

func TestAggregate(t *testing.T) {
	_, err := Aggregate(0, count)
	assert.Error(t, err)
	_, err = Aggregate(2, nil)
	assert.Error(t, err)

	agg, err := Aggregate(2, count)
	require.NoError(t, err)
	keys := []string{"a", "b", "a", "b", "a"}
	var emitted []isb.Message
	for i, k := range keys {
		msg := isb.NewDataMessage(isb.EventPayload{Event: isb.Event{Key: k, Value: []byte{byte(i)}, EventTime: startTime}})
		out, err := agg.Handle(context.Background(), msg)
		require.NoError(t, err)
		require.NotNil(t, out)
		emitted = append(emitted, out...)
	}
	assert.Equal(t, []string{"a=2", "b=2"}, testutils.EventValues(emitted))
	assert.Equal(t, 1, agg.Pending())
	key, ok := emitted[0].PartitionKey()
	assert.True(t, ok)
	assert.Equal(t, shuffle.HashKey("a"), key)
}

func TestAggregate_SnapshotRestore(t *testing.T) {
	agg, err := Aggregate(2, count)
	require.NoError(t, err)
	_, err = agg.Handle(context.Background(), isb.NewDataMessage(isb.EventPayload{Event: isb.Event{Key: "a", Value: []byte("1")}}))
	require.NoError(t, err)
	snapshot, err := agg.Snapshot()
	require.NoError(t, err)

	restored, err := Aggregate(2, count)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(snapshot))
	assert.Equal(t, 1, restored.Pending())
	out, err := restored.Handle(context.Background(), isb.NewDataMessage(isb.EventPayload{Event: isb.Event{Key: "a", Value: []byte("2")}}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a=2"}, testutils.EventValues(out))

	assert.Error(t, restored.Restore([]byte("{")))
}

func TestAggregate_FailureKeepsWindow(t *testing.T) {
	boom := errors.New("boom")
	fail := true
	agg, err := Aggregate(2, func(ctx context.Context, key string, events []isb.Event) (isb.Event, error) {
		if fail {
			return isb.Event{}, boom
		}
		return count(ctx, key, events)
	})
	require.NoError(t, err)
	event := func(v string) isb.Message {
		return isb.NewDataMessage(isb.EventPayload{Event: isb.Event{Key: "a", Value: []byte(v)}})
	}

	_, err = agg.Handle(context.Background(), event("1"))
	require.NoError(t, err)
	_, err = agg.Handle(context.Background(), event("2"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, agg.Pending())

	fail = false
	out, err := agg.Handle(context.Background(), event("2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a=2"}, testutils.EventValues(out))
	assert.Equal(t, 0, agg.Pending())
}
