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

package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuiltin_Handler(t *testing.T) {
	t.Run("test good", func(t *testing.T) {
		builtins := []Builtin{
			{Name: "cat"},
			{Name: "filter", KWArgs: map[string]string{"expression": `json(payload).a=="b"`}},
			{Name: "count", KWArgs: map[string]string{"window": "10"}},
		}
		for _, b := range builtins {
			h, err := b.Handler(context.Background())
			assert.NoError(t, err)
			assert.NotNil(t, h)
		}
	})

	t.Run("test bad", func(t *testing.T) {
		b := &Builtin{Name: "catt"}
		_, err := b.Handler(context.Background())
		assert.ErrorContains(t, err, "unrecognized operator")
	})

	t.Run("test missing args", func(t *testing.T) {
		b := &Builtin{Name: "filter"}
		_, err := b.Handler(context.Background())
		assert.Error(t, err)
	})
}
