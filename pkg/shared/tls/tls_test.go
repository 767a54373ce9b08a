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

package tls

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateX509KeyPair(t *testing.T) {
	t.Run("defaults to localhost", func(t *testing.T) {
		cert, err := GenerateX509KeyPair()
		require.NoError(t, err)
		require.NotNil(t, cert.Leaf)
		assert.IsType(t, &ecdsa.PrivateKey{}, cert.PrivateKey)
		assert.Equal(t, []string{"localhost"}, cert.Leaf.DNSNames)
		assert.Empty(t, cert.Leaf.IPAddresses)
		assert.Equal(t, "localhost", cert.Leaf.Subject.CommonName)
		assert.LessOrEqual(t, time.Since(cert.Leaf.NotBefore), 10*time.Second)
		assert.WithinDuration(t, cert.Leaf.NotBefore.Add(certValidity), cert.Leaf.NotAfter, time.Second)
	})

	t.Run("splits dns names and ips", func(t *testing.T) {
		cert, err := GenerateX509KeyPair("agg-0", "127.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, []string{"agg-0"}, cert.Leaf.DNSNames)
		require.Len(t, cert.Leaf.IPAddresses, 1)
		assert.Equal(t, "127.0.0.1", cert.Leaf.IPAddresses[0].String())
	})

	t.Run("serials differ", func(t *testing.T) {
		a, err := GenerateX509KeyPair()
		require.NoError(t, err)
		b, err := GenerateX509KeyPair()
		require.NoError(t, err)
		assert.NotEqual(t, a.Leaf.SerialNumber, b.Leaf.SerialNumber)
	})
}

func TestConfigs(t *testing.T) {
	server, err := ServerConfig("agg-0")
	require.NoError(t, err)
	assert.Len(t, server.Certificates, 1)
	assert.True(t, ClientConfig().InsecureSkipVerify)
}
