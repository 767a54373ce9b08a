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

// Package builtin resolves the operators that can be configured by name.
package builtin

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/middleware"
	"github.com/numaproj/numastream/pkg/operator/builtin/cat"
	"github.com/numaproj/numastream/pkg/operator/builtin/count"
	"github.com/numaproj/numastream/pkg/operator/builtin/filter"
	"github.com/numaproj/numastream/pkg/shared/logging"
)

type Builtin struct {
	Name   string
	KWArgs map[string]string
}

// Handler builds the handler of the builtin operator.
func (b *Builtin) Handler(ctx context.Context) (middleware.Handler, error) {
	log := logging.FromContext(ctx)
	log.Infow("Building a builtin operator", zap.String("name", b.Name), zap.Any("kwargs", b.KWArgs))
	switch b.Name {
	case "cat":
		return cat.New(), nil
	case "filter":
		return filter.New(b.KWArgs)
	case "count":
		agg, err := count.New(b.KWArgs)
		if err != nil {
			return nil, err
		}
		return agg, nil
	default:
		return nil, fmt.Errorf("unrecognized operator %q", b.Name)
	}
}
