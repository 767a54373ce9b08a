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

package forward

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/shared/logging"
)

// options for forwarding the message
type options struct {
	// instance is the name of the vertex shard, used in logs and metrics
	instance string
	// logger is used to pass the logger variable
	logger *zap.SugaredLogger
}

type Option func(*options) error

func DefaultOptions() *options {
	return &options{
		logger: logging.NewLogger(),
	}
}

// WithInstance sets the name of the vertex shard
func WithInstance(instance string) Option {
	return func(o *options) error {
		if instance == "" {
			return fmt.Errorf("instance name cannot be empty")
		}
		o.instance = instance
		return nil
	}
}

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}
