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

package kafka

import (
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Option configures a kafkaSource. Options run before any broker connection is made.
type Option func(*kafkaSource) error

func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *kafkaSource) error {
		o.logger = l
		return nil
	}
}

// WithBufferSize bounds the records the consumer handler holds before Read drains them.
func WithBufferSize(s int) Option {
	return func(o *kafkaSource) error {
		if s <= 0 {
			return fmt.Errorf("buffer size must be positive, got %d", s)
		}
		o.handlerBuffer = s
		return nil
	}
}

// WithGroupName overrides the consumer group, which defaults to the vertex name.
func WithGroupName(gn string) Option {
	return func(o *kafkaSource) error {
		if gn == "" {
			return fmt.Errorf("consumer group name is empty")
		}
		o.groupName = gn
		return nil
	}
}

// WithConfig takes a sarama config as a yaml document.
func WithConfig(yaml string) Option {
	return func(o *kafkaSource) error {
		o.yamlConfig = yaml
		return nil
	}
}

func WithConsumerGroup(cg sarama.ConsumerGroup) Option {
	return func(o *kafkaSource) error {
		o.consumerGroup = cg
		return nil
	}
}
