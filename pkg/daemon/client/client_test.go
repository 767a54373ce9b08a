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

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRESTfulClient(t *testing.T) {
	c := NewRESTfulClient("localhost:2470")
	require.IsType(t, &restfulClient{}, c)
	assert.Equal(t, "http://localhost:2470", c.(*restfulClient).hostURL)
	c = NewRESTfulClient("https://agg-0:2470/")
	assert.Equal(t, "https://agg-0:2470", c.(*restfulClient).hostURL)
}

func TestRestfulClient_ListEndpoints(t *testing.T) {
	t.Run("error case", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`invalid json`))
		}))
		defer server.Close()

		_, err := NewRESTfulClient(server.URL).ListEndpoints(context.Background())
		assert.Error(t, err)
	})

	t.Run("okay", func(t *testing.T) {
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/endpoints", r.URL.Path)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"data":[{"name":"input0","direction":"input","remoteVertex":"src","remoteEndpoint":"output0","shards":[{"shard":0,"instance":"src-0","queueDepth":4}]}]}`))
		}))
		defer server.Close()

		endpoints, err := NewRESTfulClient(server.URL).ListEndpoints(context.Background())
		require.NoError(t, err)
		require.Len(t, endpoints, 1)
		assert.Equal(t, "input0", endpoints[0].Name)
		assert.Equal(t, 4, endpoints[0].Shards[0].QueueDepth)
	})
}

func TestRestfulClient_RegisterShard(t *testing.T) {
	t.Run("conflict", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/endpoints/output0/shards/2", r.URL.Path)
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"errMessage":"remote shard already registered","data":null}`))
		}))
		defer server.Close()

		err := NewRESTfulClient(server.URL).RegisterShard(context.Background(), "output0", 2)
		assert.ErrorContains(t, err, "remote shard already registered")
	})

	t.Run("unregister", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			_, _ = w.Write([]byte(`{"data":null}`))
		}))
		defer server.Close()

		assert.NoError(t, NewRESTfulClient(server.URL).UnregisterShard(context.Background(), "output0", 2))
	})
}

func TestRestfulClient_Checkpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/checkpoints":
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"data":{"checkpointID":"cp-1"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/checkpoints":
			_, _ = w.Write([]byte(`{"data":[{"id":"cp-1","instance":"agg-0","takenAt":"2024-01-02T03:04:05Z","operators":["count"]}]}`))
		case r.URL.Path == "/api/v1/checkpoints/cp-1/restore":
			_, _ = w.Write([]byte(`{"data":null}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errMessage":"unknown checkpoint","data":null}`))
		}
	}))
	defer server.Close()

	c := NewRESTfulClient(server.URL)
	id, err := c.TriggerCheckpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cp-1", id)

	cps, err := c.ListCheckpoints(context.Background())
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Equal(t, []string{"count"}, cps[0].Operators)

	assert.NoError(t, c.RestoreCheckpoint(context.Background(), "cp-1"))
	assert.ErrorContains(t, c.RestoreCheckpoint(context.Background(), "cp-2"), "unknown checkpoint")
}
