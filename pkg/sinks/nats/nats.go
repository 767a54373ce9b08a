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

// Package nats implements a sink publishing events to a NATS subject.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	metricspkg "github.com/numaproj/numastream/pkg/metrics"
	natsclient "github.com/numaproj/numastream/pkg/shared/clients/nats"
	"github.com/numaproj/numastream/pkg/shared/logging"
)

// KeyHeader carries the event key of a published message.
const KeyHeader = "Numastream-Key"

const flushTimeout = 5 * time.Second

var natsSinkWriteCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "nats_sink",
	Name:      "write_total",
	Help:      "Total number of messages published to nats sink",
}, []string{metricspkg.LabelVertex, metricspkg.LabelVertexInstance})

// ToNats publishes the event values to a subject.
type ToNats struct {
	name     string
	instance string
	subject  string
	client   *natsclient.Client
	logger   *zap.SugaredLogger
}

var _ forward.Dispatcher = (*ToNats)(nil)

type Option func(*ToNats) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToNats) error {
		t.logger = log
		return nil
	}
}

// NewToNats returns ToNats type.
func NewToNats(vertexName string, shard int, client *natsclient.Client, subject string, opts ...Option) (*ToNats, error) {
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	t := &ToNats{
		name:     vertexName,
		instance: graph.InstanceName(vertexName, shard),
		subject:  subject,
		client:   client,
	}
	for _, o := range opts {
		if err := o(t); err != nil {
			return nil, err
		}
	}
	if t.logger == nil {
		t.logger = logging.NewLogger()
	}
	t.logger = t.logger.With("sinkType", "nats", "subject", subject)
	return t, nil
}

// Dispatch publishes the event carried by msg. Messages without an event are skipped.
func (t *ToNats) Dispatch(_ context.Context, msg isb.Message) error {
	p, ok := isb.GetPayload[isb.EventPayload](msg)
	if !ok {
		return nil
	}
	m := nats.NewMsg(t.subject)
	m.Data = p.Event.Value
	if p.Event.Key != "" {
		m.Header.Set(KeyHeader, p.Event.Key)
	}
	if err := t.client.Conn().PublishMsg(m); err != nil {
		return fmt.Errorf("failed to publish message %s: %w", msg.ID, err)
	}
	natsSinkWriteCount.WithLabelValues(t.name, t.instance).Inc()
	return nil
}

// Close flushes the pending publishes and closes the client.
func (t *ToNats) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	err := t.client.Flush(ctx)
	if err != nil {
		t.logger.Errorw("Failed to flush pending messages", zap.Error(err))
	}
	t.client.Close()
	return err
}
