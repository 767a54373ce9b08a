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

import "sync"

// Queue is a thread safe, unbounded FIFO queue.
type Queue[T any] struct {
	elements []T
	lock     sync.Mutex
}

func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends an element to the tail of the queue.
func (q *Queue[T]) Push(value T) {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.elements = append(q.elements, value)
}

// Pop removes and returns the element at the head of the queue.
func (q *Queue[T]) Pop() (T, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	var zero T
	if len(q.elements) == 0 {
		return zero, false
	}
	v := q.elements[0]
	q.elements[0] = zero
	q.elements = q.elements[1:]
	if len(q.elements) == 0 {
		// drop the backing array so popped elements can be collected
		q.elements = nil
	}
	return v, true
}

// Length returns the current length of the queue
func (q *Queue[T]) Length() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.elements)
}
