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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultHistory is the number of checkpoints a MemoryStore keeps by default.
const DefaultHistory = 16

// Checkpoint is the saved state of the registered Checkpointables of an instance.
type Checkpoint struct {
	ID       string            `json:"id"`
	Instance string            `json:"instance"`
	TakenAt  time.Time         `json:"takenAt"`
	States   map[string][]byte `json:"states"`
}

// Notifier is told about every checkpoint taken.
type Notifier func(ctx context.Context, cp Checkpoint) error

// MemoryStore is a Coordinator keeping the most recent checkpoints in memory, encoded as JSON.
type MemoryStore struct {
	lock     sync.Mutex
	states   map[string]Checkpointable
	history  *lru.Cache[string, []byte]
	latest   string
	notifier Notifier
}

var _ Coordinator = (*MemoryStore)(nil)

type StoreOption func(*MemoryStore)

// WithNotifier sets the function told about every checkpoint.
func WithNotifier(n Notifier) StoreOption {
	return func(s *MemoryStore) {
		s.notifier = n
	}
}

// NewMemoryStore returns a store keeping the `history` most recent checkpoints.
func NewMemoryStore(history int, opts ...StoreOption) (*MemoryStore, error) {
	if history <= 0 {
		history = DefaultHistory
	}
	cache, err := lru.New[string, []byte](history)
	if err != nil {
		return nil, err
	}
	s := &MemoryStore{
		states:  make(map[string]Checkpointable),
		history: cache,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register adds state saved under name by every later checkpoint.
func (s *MemoryStore) Register(name string, state Checkpointable) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.states[name]; ok {
		return fmt.Errorf("state %q is already registered", name)
	}
	s.states[name] = state
	return nil
}

// TakeCheckpoint snapshots every registered state.
func (s *MemoryStore) TakeCheckpoint(ctx context.Context, instance string) (string, error) {
	s.lock.Lock()
	cp := Checkpoint{
		ID:       uuid.NewString(),
		Instance: instance,
		TakenAt:  time.Now().UTC(),
		States:   make(map[string][]byte, len(s.states)),
	}
	for name, state := range s.states {
		b, err := state.Snapshot()
		if err != nil {
			s.lock.Unlock()
			return "", fmt.Errorf("failed to snapshot %q: %w", name, err)
		}
		cp.States[name] = b
	}
	encoded, err := json.Marshal(cp)
	if err != nil {
		s.lock.Unlock()
		return "", err
	}
	s.history.Add(cp.ID, encoded)
	s.latest = cp.ID
	notifier := s.notifier
	s.lock.Unlock()

	if notifier != nil {
		if err := notifier(ctx, cp); err != nil {
			return cp.ID, fmt.Errorf("checkpoint %s taken, failed to notify: %w", cp.ID, err)
		}
	}
	return cp.ID, nil
}

// Get returns a kept checkpoint.
func (s *MemoryStore) Get(id string) (Checkpoint, bool) {
	encoded, ok := s.history.Get(id)
	if !ok {
		return Checkpoint{}, false
	}
	var cp Checkpoint
	if err := json.Unmarshal(encoded, &cp); err != nil {
		return Checkpoint{}, false
	}
	return cp, true
}

// Latest returns the id of the most recent checkpoint.
func (s *MemoryStore) Latest() (string, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.latest, s.latest != ""
}

// Checkpoints returns the kept checkpoints, oldest first.
func (s *MemoryStore) Checkpoints() []Checkpoint {
	var cps []Checkpoint
	for _, id := range s.history.Keys() {
		if cp, ok := s.Get(id); ok {
			cps = append(cps, cp)
		}
	}
	sort.SliceStable(cps, func(i, j int) bool { return cps[i].TakenAt.Before(cps[j].TakenAt) })
	return cps
}

// Restore puts back the registered states saved by checkpoint id. Every registered state must
// be part of the checkpoint.
func (s *MemoryStore) Restore(id string) error {
	cp, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownCheckpoint, id)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	for name := range s.states {
		if _, ok := cp.States[name]; !ok {
			return fmt.Errorf("checkpoint %s has no state %q", id, name)
		}
	}
	for name, state := range s.states {
		if err := state.Restore(cp.States[name]); err != nil {
			return fmt.Errorf("failed to restore %q: %w", name, err)
		}
	}
	return nil
}
