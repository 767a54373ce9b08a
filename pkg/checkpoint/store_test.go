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

package checkpoint

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	n int
}

func (c *counter) Snapshot() ([]byte, error) {
	return []byte(strconv.Itoa(c.n)), nil
}

func (c *counter) Restore(b []byte) error {
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return err
	}
	c.n = n
	return nil
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	var notified []string
	store, err := NewMemoryStore(2, WithNotifier(func(_ context.Context, cp Checkpoint) error {
		notified = append(notified, cp.ID)
		return nil
	}))
	require.NoError(t, err)
	c := &counter{n: 1}
	require.NoError(t, store.Register("count", c))
	assert.Error(t, store.Register("count", c))

	first, err := store.TakeCheckpoint(ctx, "agg-0")
	require.NoError(t, err)
	c.n = 2
	second, err := store.TakeCheckpoint(ctx, "agg-0")
	require.NoError(t, err)
	c.n = 3

	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, second, latest)
	assert.Equal(t, []string{first, second}, notified)

	require.NoError(t, store.Restore(first))
	assert.Equal(t, 1, c.n)
	cp, ok := store.Get(second)
	require.True(t, ok)
	assert.Equal(t, "agg-0", cp.Instance)
	assert.Equal(t, []byte("2"), cp.States["count"])

	// the oldest checkpoint is evicted
	third, err := store.TakeCheckpoint(ctx, "agg-0")
	require.NoError(t, err)
	assert.ErrorIs(t, store.Restore(first), ErrUnknownCheckpoint)
	var ids []string
	for _, cp := range store.Checkpoints() {
		ids = append(ids, cp.ID)
	}
	assert.Equal(t, []string{second, third}, ids)
}

func TestMemoryStore_MissingState(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(0)
	require.NoError(t, err)
	id, err := store.TakeCheckpoint(ctx, "agg-0")
	require.NoError(t, err)
	require.NoError(t, store.Register("count", &counter{}))
	assert.ErrorContains(t, store.Restore(id), `has no state "count"`)
}

func TestMemoryStore_NotifyFailure(t *testing.T) {
	store, err := NewMemoryStore(1, WithNotifier(func(context.Context, Checkpoint) error {
		return errors.New("unreachable")
	}))
	require.NoError(t, err)
	id, err := store.TakeCheckpoint(context.Background(), "agg-0")
	assert.ErrorContains(t, err, "unreachable")
	_, ok := store.Get(id)
	assert.True(t, ok)
}
