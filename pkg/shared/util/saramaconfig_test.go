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

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSaramaConfig(t *testing.T) {
	t.Run("user settings", func(t *testing.T) {
		conf, err := NewSaramaConfig(`
clientID: custom
producer:
  maxMessageBytes: 2048
  return:
    successes: false
consumer:
  fetch:
    min: 16
`, "in-0")
		require.NoError(t, err)
		assert.Equal(t, "custom", conf.ClientID)
		assert.Equal(t, 2048, conf.Producer.MaxMessageBytes)
		assert.Equal(t, int32(16), conf.Consumer.Fetch.Min)
		assert.True(t, conf.Producer.Return.Successes)
		assert.True(t, conf.Producer.Return.Errors)
	})

	t.Run("defaults", func(t *testing.T) {
		conf, err := NewSaramaConfig("", "out-2")
		require.NoError(t, err)
		assert.Equal(t, "numastream-out-2", conf.ClientID)
		assert.Equal(t, 1000000, conf.Producer.MaxMessageBytes)
		assert.Equal(t, 5, conf.Net.MaxOpenRequests)
	})

	t.Run("no instance", func(t *testing.T) {
		conf, err := NewSaramaConfig("", "")
		require.NoError(t, err)
		assert.Equal(t, "sarama", conf.ClientID)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := NewSaramaConfig("welcome", "in-0")
		assert.Error(t, err)
		_, err = NewSaramaConfig("producer:\n  maxMessageBytes: -1\n", "in-0")
		assert.ErrorContains(t, err, "invalid kafka config")
	})
}
