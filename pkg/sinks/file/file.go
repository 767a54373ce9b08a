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

// Package file implements a sink recording the messages it receives as frames in a file, so a
// run can be replayed or inspected offline.
package file

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/endpoint"
	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/serde"
	"github.com/numaproj/numastream/pkg/shared/logging"
	"github.com/numaproj/numastream/pkg/shared/pool"
)

// ToFile writes every message it receives to a file, encoded in parallel.
type ToFile struct {
	name       string
	instance   string
	path       string
	file       *os.File
	serializer *serde.ParallelSerializer
	codecs     *pool.Pool[isb.Codec]
	opts       []serde.Option
	logger     *zap.SugaredLogger
	lock       sync.Mutex
	failed     error
}

var _ forward.Dispatcher = (*ToFile)(nil)

type Option func(*ToFile) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToFile) error {
		t.logger = log
		return nil
	}
}

func WithCodecPool(p *pool.Pool[isb.Codec]) Option {
	return func(t *ToFile) error {
		t.codecs = p
		return nil
	}
}

// WithSerializerOptions configures the serializer encoding the messages.
func WithSerializerOptions(opts ...serde.Option) Option {
	return func(t *ToFile) error {
		t.opts = append(t.opts, opts...)
		return nil
	}
}

// NewToFile creates (or truncates) the file at path.
func NewToFile(vertexName string, shard int, path string, opts ...Option) (*ToFile, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	t := &ToFile{
		name:     vertexName,
		instance: graph.InstanceName(vertexName, shard),
		path:     path,
	}
	for _, o := range opts {
		if err := o(t); err != nil {
			return nil, err
		}
	}
	if t.logger == nil {
		t.logger = logging.NewLogger()
	}
	if t.codecs == nil {
		t.codecs = endpoint.NewCodecPool(isb.DefaultPayloadRegistry())
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	t.file = f
	t.serializer = serde.NewParallelSerializer(t.codecs, t.opts...)
	t.logger = t.logger.With("sinkType", "file", "path", path)
	return t, nil
}

// Dispatch submits msg for writing. Writes complete asynchronously, and a failed write is
// reported by the next Dispatch or by Close.
func (t *ToFile) Dispatch(ctx context.Context, msg isb.Message) error {
	if err := t.err(); err != nil {
		return err
	}
	u := t.serializer.StartSerialization(ctx, t.file, msg)
	go func() {
		if err := u.Wait(); err != nil {
			t.setErr(err)
		}
	}()
	return nil
}

func (t *ToFile) err() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.failed
}

func (t *ToFile) setErr(err error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.failed == nil {
		t.logger.Errorw("Failed to write message", zap.Error(err))
		t.failed = fmt.Errorf("failed to write to %s: %w", t.path, err)
	}
}

// Close waits for the pending writes and closes the file.
func (t *ToFile) Close() error {
	waitErr := t.serializer.Wait(context.Background())
	if waitErr != nil {
		waitErr = fmt.Errorf("failed to write to %s: %w", t.path, waitErr)
	}
	return multierr.Combine(waitErr, t.file.Close())
}
