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

package filter

import (
	"context"
	"fmt"

	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/middleware"
	"github.com/numaproj/numastream/pkg/operator"
	"github.com/numaproj/numastream/pkg/shared/expr"
	"github.com/numaproj/numastream/pkg/shared/logging"
)

type filter struct {
	program *expr.Program
}

// New builds a filter handler from args. The "expression" argument is a boolean expression
// over `payload` and `key`. Events for which it fails to evaluate are dropped and logged.
func New(args map[string]string) (middleware.Handler, error) {
	expression, existing := args["expression"]
	if !existing {
		return nil, fmt.Errorf("missing \"expression\"")
	}
	program, err := expr.Compile(expression)
	if err != nil {
		return nil, err
	}
	f := filter{program: program}
	return operator.Filter(f.apply), nil
}

func (f filter) apply(ctx context.Context, event isb.Event) (bool, error) {
	result, err := f.program.EvalBool(event.Key, event.Value)
	if err != nil {
		logging.FromContext(ctx).Errorw("Filter expression evaluation failed, dropping the event", "expression", f.program.String(), "error", err)
		return false, nil
	}
	return result, nil
}
