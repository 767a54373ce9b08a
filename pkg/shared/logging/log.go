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

package logging

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/numaproj/numastream/pkg/shared/util"
)

const (
	// EnvDebug switches the logger to the development config.
	EnvDebug = "NUMASTREAM_DEBUG"
	// EnvLogLevel overrides the minimum level, e.g. "warn".
	EnvLogLevel = "NUMASTREAM_LOG_LEVEL"
)

var (
	fallbackOnce sync.Once
	fallback     *zap.SugaredLogger
)

// NewLogger returns a new zap.SugaredLogger writing JSON to stdout.
func NewLogger() *zap.SugaredLogger {
	config := zap.NewProductionConfig()
	if util.LookupEnvBoolOr(EnvDebug, false) {
		config = zap.NewDevelopmentConfig()
	}
	if lvl := util.LookupEnvStringOr(EnvLogLevel, ""); lvl != "" {
		l, err := zapcore.ParseLevel(lvl)
		if err != nil {
			panic(err)
		}
		config.Level = zap.NewAtomicLevelAt(l)
	}
	config.OutputPaths = []string{"stdout"}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger.Named("numastream").Sugar()
}

type loggerKey struct{}

// WithLogger attaches logger to ctx.
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached to ctx, or a process wide default.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
		return logger
	}
	fallbackOnce.Do(func() { fallback = NewLogger() })
	return fallback
}
