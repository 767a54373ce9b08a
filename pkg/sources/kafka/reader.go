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

// Package kafka implements a source reading a Kafka topic with a consumer group.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/shared/logging"
	sharedutil "github.com/numaproj/numastream/pkg/shared/util"
	"github.com/numaproj/numastream/pkg/shuffle"
)

type kafkaSource struct {
	// name of the source vertex
	vertexName string
	// name of the source vertex instance
	instance string
	// group name for the source vertex
	groupName string
	// topic to consume messages from
	topic string
	// kafka brokers
	brokers []string
	// sarama config in yaml
	yamlConfig string
	// context cancel function
	cancelFn context.CancelFunc
	// lifecycle context
	lifecycleCtx context.Context
	// handler for a kafka consumer group
	handler *consumerHandler
	// sarama config for kafka consumer group
	config *sarama.Config
	// consumer group, created by Start unless injected
	consumerGroup sarama.ConsumerGroup
	// logger
	logger *zap.SugaredLogger
	// channel to indicate that we are done
	stopCh chan struct{}
	// size of the buffer that holds consumed but yet to be forwarded messages
	handlerBuffer int
	startOnce     sync.Once
	errLock       sync.RWMutex
	err           error
}

var _ forward.Source = (*kafkaSource)(nil)

// NewKafkaSource returns a source reading topic with a consumer group. The group defaults to
// the vertex name, so every shard of the vertex shares the partitions of the topic.
func NewKafkaSource(vertexName string, shard int, topic string, brokers []string, opts ...Option) (*kafkaSource, error) {
	kafkaSource := &kafkaSource{
		vertexName:    vertexName,
		instance:      graph.InstanceName(vertexName, shard),
		groupName:     vertexName,
		topic:         topic,
		brokers:       brokers,
		handlerBuffer: 100,                 // default buffer size for kafka reads
		logger:        logging.NewLogger(), // default logger
		stopCh:        make(chan struct{}),
	}
	for _, o := range opts {
		if err := o(kafkaSource); err != nil {
			return nil, err
		}
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if len(brokers) == 0 && kafkaSource.consumerGroup == nil {
		return nil, fmt.Errorf("at least one broker is required")
	}
	config, err := configFromOpts(kafkaSource.yamlConfig, kafkaSource.instance)
	if err != nil {
		return nil, fmt.Errorf("error reading kafka source config, %w", err)
	}
	// return errors from the underlying kafka client using the Errors channel
	config.Consumer.Return.Errors = true
	kafkaSource.config = config
	kafkaSource.logger = kafkaSource.logger.With("vertex", vertexName, "topic", topic, "group", kafkaSource.groupName)
	sarama.Logger = zap.NewStdLog(kafkaSource.logger.Desugar())

	ctx, cancel := context.WithCancel(context.Background())
	kafkaSource.cancelFn = cancel
	kafkaSource.lifecycleCtx = ctx
	kafkaSource.handler = newConsumerHandler(kafkaSource.handlerBuffer, kafkaSource.logger)
	return kafkaSource, nil
}

func configFromOpts(yamlConfig string, instance string) (*sarama.Config, error) {
	config, err := sharedutil.NewSaramaConfig(yamlConfig, instance)
	if err != nil {
		return nil, err
	}
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	return config, nil
}

// Start joins the consumer group and waits until the first session is set up or ctx is done.
func (r *kafkaSource) Start(ctx context.Context) error {
	var err error
	r.startOnce.Do(func() {
		if r.consumerGroup == nil {
			r.logger.Infow("Creating consumer group", zap.Strings("brokers", r.brokers))
			if r.consumerGroup, err = sarama.NewConsumerGroup(r.brokers, r.groupName, r.config); err != nil {
				err = fmt.Errorf("failed to create consumer group, %w", err)
				r.setErr(err)
				close(r.stopCh)
				return
			}
		}
		go r.startConsumer()
	})
	if err != nil {
		return err
	}
	select {
	case <-r.handler.ready:
		r.logger.Info("Consumer ready. Starting kafka reader...")
		return nil
	case <-r.stopCh:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *kafkaSource) startConsumer() {
	defer close(r.stopCh)
	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-r.lifecycleCtx.Done():
				return
			case cErr, ok := <-r.consumerGroup.Errors():
				if !ok {
					return
				}
				kafkaConsumerErrors.WithLabelValues(r.vertexName, r.instance).Inc()
				r.logger.Errorw("Kafka consumer error", zap.Error(cErr))
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			// `Consume` should be called inside an infinite loop; when a
			// server-side re-balance happens, the consumer session will need to be
			// recreated to get the new claims
			if conErr := r.consumerGroup.Consume(r.lifecycleCtx, []string{r.topic}, r.handler); conErr != nil {
				if errors.Is(conErr, sarama.ErrClosedConsumerGroup) || r.lifecycleCtx.Err() != nil {
					return
				}
				r.logger.Errorw("Kafka consumer failed", zap.Error(conErr))
				r.setErr(conErr)
				r.cancelFn()
				return
			}
			// check if context was cancelled, signaling that the consumer should stop
			if r.lifecycleCtx.Err() != nil {
				return
			}
		}
	}()
	wg.Wait()
	if err := r.consumerGroup.Close(); err != nil {
		r.logger.Errorw("Error in closing consumer group", zap.Error(err))
	}
}

// Take returns the next consumed record. The offset of the record is marked once it is handed
// out. A consumer failure is returned as an error, a closed source as io.EOF.
func (r *kafkaSource) Take(ctx context.Context) (isb.Message, error) {
	select {
	case m := <-r.handler.messages:
		kafkaRecords.WithLabelValues(r.vertexName, r.instance, stageRead).Inc()
		if r.handler.mark(m) {
			kafkaRecords.WithLabelValues(r.vertexName, r.instance, stageMarked).Inc()
		}
		return toMessage(m), nil
	case <-r.stopCh:
		if err := r.Err(); err != nil {
			return isb.Message{}, err
		}
		return isb.Message{}, io.EOF
	case <-ctx.Done():
		return isb.Message{}, ctx.Err()
	}
}

// MessageOrigin reports no origin, records do not arrive over an endpoint.
func (r *kafkaSource) MessageOrigin() (graph.Origin, bool) {
	return graph.Origin{}, false
}

// Flush is a no-op, a source vertex has no upstream instance.
func (r *kafkaSource) Flush(context.Context, []string) error {
	return nil
}

// Err returns the error that stopped the consumer.
func (r *kafkaSource) Err() error {
	r.errLock.RLock()
	defer r.errLock.RUnlock()
	return r.err
}

func (r *kafkaSource) setErr(err error) {
	r.errLock.Lock()
	defer r.errLock.Unlock()
	r.err = err
}

func (r *kafkaSource) Close() error {
	r.logger.Info("Closing kafka reader...")
	r.cancelFn()
	// never started, nothing to wait for
	r.startOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.stopCh
	r.logger.Info("Kafka reader closed")
	return nil
}

// toMessage converts a record into a data message. The record key is the event key and its
// hash the partition key. Records without a key keep the order of their Kafka partition.
func toMessage(m *sarama.ConsumerMessage) isb.Message {
	msg := isb.NewDataMessage(isb.EventPayload{Event: isb.Event{
		Key:       string(m.Key),
		Value:     m.Value,
		EventTime: m.Timestamp,
	}})
	msg.ID = fmt.Sprintf("%s:%d:%d", m.Topic, m.Partition, m.Offset)
	if len(m.Key) == 0 {
		return msg.WithPartitionKey(int(m.Partition))
	}
	return msg.WithPartitionKey(shuffle.HashKey(string(m.Key)))
}
