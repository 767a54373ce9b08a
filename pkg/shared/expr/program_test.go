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

package expr

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jsonMsg = []byte(`{"test": 21, "item": [{"id": 1, "name": "bala"},{"id": 2, "name": "bala"}]}`)

func Test_eval_json(t *testing.T) {
	t.Run("test nil", func(t *testing.T) {
		assert.Nil(t, _json(nil))
	})

	t.Run("test invalid json bytes", func(t *testing.T) {
		assert.Panics(t, func() { _json([]byte("abc")) })
	})

	t.Run("test valid json bytes", func(t *testing.T) {
		m := _json([]byte(`{"a": "b"}`))
		assert.Equal(t, 1, len(m))
		assert.Equal(t, "b", m["a"])
	})

	t.Run("test valid string", func(t *testing.T) {
		m := _json(`{"a": "b"}`)
		assert.Equal(t, "b", m["a"])
	})

	t.Run("test default panic", func(t *testing.T) {
		assert.Panics(t, func() { _json(222) })
	})
}

func Test_eval_int(t *testing.T) {
	assert.Equal(t, 1, _int([]byte("1")))
	assert.Equal(t, 2, _int("2"))
	assert.Equal(t, 3, _int(3.2))
	assert.Equal(t, 4, _int(4))
	assert.Panics(t, func() { _int("x") })
	assert.Panics(t, func() { _int(true) })
}

func Test_eval_string(t *testing.T) {
	assert.Equal(t, "", _string(nil))
	assert.Equal(t, "a", _string([]byte("a")))
	assert.Equal(t, "1", _string(1))
}

func TestCompile(t *testing.T) {
	_, err := Compile("ab\nc")
	assert.Error(t, err)

	p, err := Compile("int(json(payload).item[1].id) == 2")
	require.NoError(t, err)
	assert.Equal(t, "int(json(payload).item[1].id) == 2", p.String())
}

func TestProgram_EvalBool(t *testing.T) {
	t.Run("json payload", func(t *testing.T) {
		p, err := Compile("int(json(payload).item[1].id) == 2")
		require.NoError(t, err)
		ok, err := p.EvalBool("", jsonMsg)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("key", func(t *testing.T) {
		p, err := Compile(`key == "even"`)
		require.NoError(t, err)
		ok, err := p.EvalBool("odd", nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("sprig", func(t *testing.T) {
		p, err := Compile("sprig.contains('numastream', sprig.b64dec(payload))")
		require.NoError(t, err)
		ok, err := p.EvalBool("", []byte(base64.StdEncoding.EncodeToString([]byte("welcome to numastream"))))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("helper panics surface as errors", func(t *testing.T) {
		p, err := Compile("json(payload).test == 21")
		require.NoError(t, err)
		_, err = p.EvalBool("", []byte("not json"))
		assert.Error(t, err)
	})

	t.Run("not a bool", func(t *testing.T) {
		p, err := Compile("payload")
		require.NoError(t, err)
		_, err = p.EvalBool("", []byte("abc"))
		assert.Error(t, err)
	})
}

func TestProgram_EvalString(t *testing.T) {
	p, err := Compile("json(payload).item[1].name")
	require.NoError(t, err)
	s, err := p.EvalString("", jsonMsg)
	require.NoError(t, err)
	assert.Equal(t, "bala", s)
}
