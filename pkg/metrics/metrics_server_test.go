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

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MetricsServer_Options(t *testing.T) {
	ms := NewMetricsServer(WithPort(9999), WithPprof(true))
	assert.Equal(t, ":9999", ms.addr)
	assert.True(t, ms.pprof)

	ms = NewMetricsServer(WithAddr("127.0.0.1:0"), WithHealthCheckExecutor(HealthCheckFunc(func(context.Context) error { return nil })))
	assert.Equal(t, "127.0.0.1:0", ms.addr)
	assert.Len(t, ms.healthCheckExecutors, 1)
}

func Test_MetricsServer_Handler(t *testing.T) {
	healthy := true
	ms := NewMetricsServer(WithPprof(false), WithHealthCheckExecutor(HealthCheckFunc(func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("endpoint not connected")
	})))
	h := ms.handler(context.Background())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	healthy = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "endpoint not connected", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_MetricsServer_Start(t *testing.T) {
	ms := NewMetricsServer(WithAddr("127.0.0.1:0"))
	shutdown, err := ms.Start(context.Background())
	require.NoError(t, err)
	defer func() { assert.NoError(t, shutdown(context.Background())) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", ms.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
