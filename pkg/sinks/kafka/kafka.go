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

// Package kafka implements a sink producing events to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/shared/logging"
	"github.com/numaproj/numastream/pkg/shared/util"
)

// ToKafka produce the output to a kafka sinks. Records are produced asynchronously, the delivery
// results are accounted for in the background.
type ToKafka struct {
	name       string
	instance   string
	topic      string
	brokers    []string
	yamlConfig string
	producer   sarama.AsyncProducer
	log        *zap.SugaredLogger
	wg         sync.WaitGroup
	closeOnce  sync.Once
	failed     *atomic.Int64
	lastErr    atomic.Error
}

var _ forward.Dispatcher = (*ToKafka)(nil)

type Option func(*ToKafka) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToKafka) error {
		t.log = log
		return nil
	}
}

// WithConfig sets the sarama configuration from a yaml document
func WithConfig(yaml string) Option {
	return func(t *ToKafka) error {
		t.yamlConfig = yaml
		return nil
	}
}

// WithProducer replaces the producer otherwise created from the brokers
func WithProducer(p sarama.AsyncProducer) Option {
	return func(t *ToKafka) error {
		t.producer = p
		return nil
	}
}

// NewToKafka returns ToKafka type.
func NewToKafka(vertexName string, shard int, topic string, brokers []string, opts ...Option) (*ToKafka, error) {
	toKafka := &ToKafka{
		name:     vertexName,
		instance: graph.InstanceName(vertexName, shard),
		topic:    topic,
		brokers:  brokers,
		failed:   atomic.NewInt64(0),
	}
	//apply options for kafka sink
	for _, o := range opts {
		if err := o(toKafka); err != nil {
			return nil, err
		}
	}
	//set default logger
	if toKafka.log == nil {
		toKafka.log = logging.NewLogger()
	}
	toKafka.log = toKafka.log.With("sinkType", "kafka").With("topic", topic)
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if toKafka.producer == nil {
		config, err := util.NewSaramaConfig(toKafka.yamlConfig, toKafka.instance)
		if err != nil {
			return nil, err
		}
		producer, err := sarama.NewAsyncProducer(brokers, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka producer. %w", err)
		}
		toKafka.producer = producer
	}
	toKafka.wg.Add(2)
	go toKafka.drainSuccesses()
	go toKafka.drainErrors()
	return toKafka, nil
}

func (tk *ToKafka) drainSuccesses() {
	defer tk.wg.Done()
	for range tk.producer.Successes() {
		producedRecords.WithLabelValues(tk.name, tk.instance, resultAcked).Inc()
	}
}

func (tk *ToKafka) drainErrors() {
	defer tk.wg.Done()
	for perr := range tk.producer.Errors() {
		producedRecords.WithLabelValues(tk.name, tk.instance, resultFailed).Inc()
		tk.failed.Inc()
		tk.lastErr.Store(perr.Err)
		tk.log.Errorw("Failed to produce message", zap.Error(perr.Err))
	}
}

// Dispatch queues the event carried by msg for production. Messages without an event are
// skipped. A delivery failure does not fail Dispatch, it is counted and reported by Close.
func (tk *ToKafka) Dispatch(ctx context.Context, msg isb.Message) error {
	p, ok := isb.GetPayload[isb.EventPayload](msg)
	if !ok {
		return nil
	}
	pm := &sarama.ProducerMessage{
		Topic:     tk.topic,
		Value:     sarama.ByteEncoder(p.Event.Value),
		Timestamp: p.Event.EventTime,
	}
	if p.Event.Key != "" {
		pm.Key = sarama.StringEncoder(p.Event.Key)
	}
	select {
	case tk.producer.Input() <- pm:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failed returns the number of records the brokers did not accept.
func (tk *ToKafka) Failed() int64 {
	return tk.failed.Load()
}

// Close flushes the producer, and returns the last delivery error if any record failed.
func (tk *ToKafka) Close() error {
	var err error
	tk.closeOnce.Do(func() {
		tk.log.Info("Closing kafka producer...")
		err = tk.producer.Close()
		tk.wg.Wait()
		if err == nil {
			if lastErr := tk.lastErr.Load(); lastErr != nil {
				err = fmt.Errorf("%d records failed, last error: %w", tk.failed.Load(), lastErr)
			}
		}
	})
	return err
}
