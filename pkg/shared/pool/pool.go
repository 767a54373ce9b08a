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

// Package pool recycles expensive, short-lived instances such as codec workers.
package pool

import (
	"errors"
	"reflect"

	"github.com/numaproj/numastream/pkg/shared/queue"
)

// ErrNilInstance is returned when a nil instance is handed back to the pool.
var ErrNilInstance = errors.New("cannot return a nil instance to the pool")

// Pool is an unbounded object pool. Rent hands out previously returned instances in the order
// they were returned, and builds a new one with the factory when none is available.
// It is safe for concurrent use.
type Pool[T any] struct {
	factory func() T
	idle    *queue.Queue[T]
}

func New[T any](factory func() T) *Pool[T] {
	return &Pool[T]{
		factory: factory,
		idle:    queue.New[T](),
	}
}

// Rent returns an idle instance, or a new one if the pool is empty.
func (p *Pool[T]) Rent() T {
	if v, ok := p.idle.Pop(); ok {
		return v
	}
	return p.factory()
}

// Return puts the instance back to the pool. Callers must reset the instance before returning it
// if it carries state between uses.
func (p *Pool[T]) Return(v T) error {
	if isNil(v) {
		return ErrNilInstance
	}
	p.idle.Push(v)
	return nil
}

// Len returns the number of idle instances.
func (p *Pool[T]) Len() int {
	return p.idle.Length()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
