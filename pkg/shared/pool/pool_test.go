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

package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type worker struct {
	id int
}

func newTestPool() (*Pool[*worker], *atomic.Int32) {
	created := atomic.NewInt32(0)
	return New(func() *worker {
		return &worker{id: int(created.Inc())}
	}), created
}

func TestPool_RentBuildsWhenEmpty(t *testing.T) {
	p, created := newTestPool()
	w := p.Rent()
	assert.Equal(t, 1, w.id)
	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, 0, p.Len())
}

func TestPool_ReturnedInstanceIsReused(t *testing.T) {
	p, created := newTestPool()
	w := p.Rent()
	require.NoError(t, p.Return(w))
	assert.Equal(t, 1, p.Len())
	assert.Same(t, w, p.Rent())
	assert.Equal(t, int32(1), created.Load())
	// empty again, so a new one is built
	assert.Equal(t, 2, p.Rent().id)
}

func TestPool_ReturnNil(t *testing.T) {
	p, _ := newTestPool()
	require.NoError(t, p.Return(p.Rent()))
	assert.ErrorIs(t, p.Return(nil), ErrNilInstance)
	assert.Equal(t, 1, p.Len())

	ip := New(func() interface{ String() string } { return nil })
	assert.ErrorIs(t, ip.Return(nil), ErrNilInstance)
}

func TestPool_Concurrent(t *testing.T) {
	p, created := newTestPool()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				w := p.Rent()
				assert.NoError(t, p.Return(w))
			}
		}()
	}
	wg.Wait()
	// nothing lost, nothing duplicated
	assert.Equal(t, int(created.Load()), p.Len())
	seen := make(map[*worker]bool)
	for p.Len() > 0 {
		w := p.Rent()
		assert.False(t, seen[w])
		seen[w] = true
	}
}
