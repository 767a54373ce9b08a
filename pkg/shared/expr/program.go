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

// Package expr evaluates user expressions against events.
//
// An expression sees the event value as `payload` and the event key as `key`, plus the
// helpers `json`, `int`, `string` and the sprig generic functions under `sprig`.
package expr

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

const (
	payloadVar = "payload"
	keyVar     = "key"
)

// Program is a compiled expression. It is safe for concurrent use.
type Program struct {
	expression string
	program    *vm.Program
}

// Env builds the evaluation environment for one event.
func Env(key string, payload []byte) map[string]interface{} {
	return map[string]interface{}{
		payloadVar: string(payload),
		keyVar:     key,
		"sprig":    sprigFuncMap,
		"json":     _json,
		"int":      _int,
		"string":   _string,
	}
}

// Compile compiles expression once so it can be evaluated against many events.
func Compile(expression string) (*Program, error) {
	program, err := expr.Compile(expression, expr.Env(Env("", nil)))
	if err != nil {
		return nil, fmt.Errorf("unable to compile expression '%s': %s", expression, err)
	}
	return &Program{expression: expression, program: program}, nil
}

// EvalBool runs the program and requires a boolean result.
func (p *Program) EvalBool(key string, payload []byte) (bool, error) {
	result, err := p.run(key, payload)
	if err != nil {
		return false, err
	}
	resultBool, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unable to cast expression result '%v' to bool", result)
	}
	return resultBool, nil
}

// EvalString runs the program and formats the result as a string.
func (p *Program) EvalString(key string, payload []byte) (string, error) {
	result, err := p.run(key, payload)
	if err != nil {
		return "", err
	}
	return _string(result), nil
}

// String returns the source expression.
func (p *Program) String() string {
	return p.expression
}

func (p *Program) run(key string, payload []byte) (result interface{}, err error) {
	// the helper functions panic on bad input, expr reports those as errors
	result, err = expr.Run(p.program, Env(key, payload))
	if err != nil {
		return nil, fmt.Errorf("unable to evaluate expression '%s': %s", p.expression, err)
	}
	return result, nil
}
