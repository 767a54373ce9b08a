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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/isb/testutils"
)

// suffix appends s to the event value
func suffix(s string) HandlerFunc {
	return func(_ context.Context, msg isb.Message) ([]isb.Message, error) {
		p, ok := isb.GetPayload[isb.EventPayload](msg)
		if !ok {
			return Forward(msg), nil
		}
		p.Event.Value = append(append([]byte{}, p.Event.Value...), s...)
		return Forward(msg.AddPayload(p)), nil
	}
}

// duplicate emits its input twice, tagging each copy
func duplicate() HandlerFunc {
	return func(ctx context.Context, msg isb.Message) ([]isb.Message, error) {
		a, _ := suffix("#a")(ctx, msg)
		b, _ := suffix("#b")(ctx, msg)
		return append(a, b...), nil
	}
}

type countingHandler struct {
	calls int
}

func (c *countingHandler) Handle(_ context.Context, msg isb.Message) ([]isb.Message, error) {
	c.calls++
	return Forward(msg), nil
}

func (c *countingHandler) Name() string { return "counting" }

func TestNewPipeline(t *testing.T) {
	_, err := NewPipeline()
	assert.ErrorIs(t, err, ErrNoHandlers)

	_, err = NewPipeline(suffix("x"), nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	p, err := NewPipeline(suffix("x"), suffix("y"))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
}

func TestPipeline_Process(t *testing.T) {
	msg := testutils.BuildTestDataMessages(1, time.Unix(1636470000, 0))[0]

	t.Run("single handler", func(t *testing.T) {
		p, err := NewPipeline(suffix("-1"))
		require.NoError(t, err)
		out, err := p.Process(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, []string{"payload_0-1"}, testutils.EventValues(out))
	})

	t.Run("fan out preserves production order", func(t *testing.T) {
		p, err := NewPipeline(duplicate(), duplicate(), suffix("!"))
		require.NoError(t, err)
		out, err := p.Process(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"payload_0#a#a!",
			"payload_0#a#b!",
			"payload_0#b#a!",
			"payload_0#b#b!",
		}, testutils.EventValues(out))
	})

	t.Run("input is not mutated", func(t *testing.T) {
		p, err := NewPipeline(HandlerFunc(func(_ context.Context, m isb.Message) ([]isb.Message, error) {
			rest, _, _ := isb.ExtractPayload[isb.EventPayload](m)
			return Forward(rest), nil
		}))
		require.NoError(t, err)
		_, err = p.Process(context.Background(), msg)
		require.NoError(t, err)
		_, ok := isb.GetPayload[isb.EventPayload](msg)
		assert.True(t, ok)
	})
}

func TestPipeline_Absorption(t *testing.T) {
	msg := testutils.BuildTestDataMessages(1, time.Unix(1636470000, 0))[0]
	last := &countingHandler{}
	absorb := HandlerFunc(func(context.Context, isb.Message) ([]isb.Message, error) {
		return Absorb(), nil
	})
	p, err := NewPipeline(duplicate(), absorb, last)
	require.NoError(t, err)
	out, err := p.Process(context.Background(), msg)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.Equal(t, 0, last.calls)
}

func TestPipeline_PartialAbsorption(t *testing.T) {
	msgs := testutils.BuildTestDataMessages(1, time.Unix(1636470000, 0))
	// drops only the "#a" branch
	dropA := HandlerFunc(func(_ context.Context, m isb.Message) ([]isb.Message, error) {
		p, _ := isb.GetPayload[isb.EventPayload](m)
		if string(p.Event.Value) == "payload_0#a" {
			return Absorb(), nil
		}
		return Forward(m), nil
	})
	last := &countingHandler{}
	p, err := NewPipeline(duplicate(), dropA, last)
	require.NoError(t, err)
	out, err := p.Process(context.Background(), msgs[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"payload_0#b"}, testutils.EventValues(out))
	assert.Equal(t, 1, last.calls)
}

func TestPipeline_Errors(t *testing.T) {
	msg := testutils.BuildTestDataMessages(1, time.Unix(1636470000, 0))[0]

	t.Run("nil result is a contract violation", func(t *testing.T) {
		p, err := NewPipeline(suffix("x"), HandlerFunc(func(context.Context, isb.Message) ([]isb.Message, error) {
			return nil, nil
		}))
		require.NoError(t, err)
		_, err = p.Process(context.Background(), msg)
		assert.ErrorIs(t, err, ErrNilResult)
		var herr HandlerErr
		require.True(t, errors.As(err, &herr))
		assert.Equal(t, 1, herr.Stage)
	})

	t.Run("handler error", func(t *testing.T) {
		boom := fmt.Errorf("boom")
		last := &countingHandler{}
		p, err := NewPipeline(HandlerFunc(func(context.Context, isb.Message) ([]isb.Message, error) {
			return nil, boom
		}), last)
		require.NoError(t, err)
		_, err = p.Process(context.Background(), msg)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, last.calls)
	})

	t.Run("named handler", func(t *testing.T) {
		p, err := NewPipeline(&failing{})
		require.NoError(t, err)
		_, err = p.ForVertex("map").Process(context.Background(), msg)
		assert.EqualError(t, err, "handler failing at stage 0 failed: nope")
	})
}

type failing struct{}

func (failing) Handle(context.Context, isb.Message) ([]isb.Message, error) {
	return nil, errors.New("nope")
}

func (failing) Name() string { return "failing" }

func TestPayloadHandler(t *testing.T) {
	barrier := isb.BarrierPayload{CheckpointID: "cp-1"}
	var seen []string
	h := NewPayloadHandler(func(_ context.Context, msg isb.Message, p isb.BarrierPayload) ([]isb.Message, error) {
		seen = append(seen, p.CheckpointID)
		assert.False(t, msg.HasPayloads())
		return Forward(msg.AddPayload(p)), nil
	})

	out, err := h.Handle(context.Background(), isb.NewDataMessage(barrier))
	require.NoError(t, err)
	require.Len(t, out, 1)
	got, ok := isb.GetPayload[isb.BarrierPayload](out[0])
	assert.True(t, ok)
	assert.Equal(t, barrier, got)

	// other messages pass through untouched
	event := testutils.BuildTestDataMessages(1, time.Unix(1636470000, 0))[0]
	out, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, []isb.Message{event}, out)
	assert.Equal(t, []string{"cp-1"}, seen)
}
