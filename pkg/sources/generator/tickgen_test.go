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

package generator

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/shuffle"
)

func TestNewMemGen(t *testing.T) {
	_, err := NewMemGen("gen", 0, WithReadsPerUnit(0))
	assert.Error(t, err)
	_, err = NewMemGen("gen", 0, WithTimeunit(-time.Second))
	assert.Error(t, err)
	_, err = NewMemGen("gen", 0, WithKeyCount(0))
	assert.Error(t, err)
}

func TestRead(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mgen, err := NewMemGen("gen", 1, WithReadsPerUnit(3), WithTimeunit(time.Millisecond), WithKeyCount(2), WithLimit(5))
	require.NoError(t, err)
	defer func() { _ = mgen.Close() }()

	var keys []string
	for i := 0; i < 5; i++ {
		msg, err := mgen.Take(ctx)
		require.NoError(t, err)
		assert.False(t, msg.IsControl())
		p, ok := isb.GetPayload[isb.EventPayload](msg)
		require.True(t, ok)
		var value payload
		require.NoError(t, json.Unmarshal(p.Event.Value, &value))
		assert.Equal(t, int64(i), value.Value)
		key, ok := msg.PartitionKey()
		require.True(t, ok)
		assert.Equal(t, shuffle.HashKey(p.Event.Key), key)
		keys = append(keys, p.Event.Key)
	}
	assert.Equal(t, []string{"key-0", "key-1", "key-0", "key-1", "key-0"}, keys)

	_, err = mgen.Take(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, float64(5), testutil.ToFloat64(generatedEvents.WithLabelValues("gen", "gen-1")))
	assert.Equal(t, float64(2), testutil.ToFloat64(generatorTicks.WithLabelValues("gen", "gen-1")))

	_, ok := mgen.MessageOrigin()
	assert.False(t, ok)
	assert.NoError(t, mgen.Flush(ctx, []string{"anything-0"}))
}

func TestStop(t *testing.T) {
	mgen, err := NewMemGen("gen", 0, WithTimeunit(time.Hour))
	require.NoError(t, err)
	defer func() { _ = mgen.Close() }()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mgen.Take(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
