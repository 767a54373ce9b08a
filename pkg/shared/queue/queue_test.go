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

package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue(t *testing.T) {
	q := New[int]()
	_, ok := q.Pop()
	assert.False(t, ok)
	q.Push(1)
	q.Push(2)
	assert.Equal(t, 2, q.Length())
	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	v, _ = q.Pop()
	assert.Equal(t, 2, v)
	assert.Equal(t, 0, q.Length())
}

func TestQueueConcurrent(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(i*100 + j)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1000, q.Length())
	seen := make(map[int]bool)
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		assert.False(t, seen[v])
		seen[v] = true
	}
	assert.Len(t, seen, 1000)
}
