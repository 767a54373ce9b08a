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

// Package logger implements a sink printing the events it receives.
package logger

import (
	"context"

	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/shared/logging"
)

// ToLog prints the output to a log sinks.
type ToLog struct {
	name     string
	instance string
	logger   *zap.SugaredLogger
}

var _ forward.Dispatcher = (*ToLog)(nil)

type Option func(*ToLog) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToLog) error {
		t.logger = log
		return nil
	}
}

// NewToLog returns ToLog type.
func NewToLog(vertexName string, shard int, opts ...Option) (*ToLog, error) {
	toLog := &ToLog{
		name:     vertexName,
		instance: graph.InstanceName(vertexName, shard),
	}
	for _, o := range opts {
		if err := o(toLog); err != nil {
			return nil, err
		}
	}
	if toLog.logger == nil {
		toLog.logger = logging.NewLogger()
	}
	toLog.logger = toLog.logger.Named("sink").With("vertex", toLog.instance)
	return toLog, nil
}

// Dispatch logs the event carried by msg. Messages without an event are skipped.
func (t *ToLog) Dispatch(_ context.Context, msg isb.Message) error {
	p, ok := isb.GetPayload[isb.EventPayload](msg)
	if !ok {
		return nil
	}
	logSinkWriteCount.WithLabelValues(t.name, t.instance).Inc()
	t.logger.Infow("Payload", zap.String("value", string(p.Event.Value)), zap.String("key", p.Event.Key), zap.Int64("eventTime", p.Event.EventTime.UnixMilli()))
	return nil
}

func (t *ToLog) Close() error {
	_ = t.logger.Sync()
	return nil
}
