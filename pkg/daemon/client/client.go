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

// Package client talks to the admin API of a running processor.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/numaproj/numastream/pkg/daemon"
)

type AdminClient interface {
	GetTopology(ctx context.Context) (*daemon.TopologyInfo, error)
	ListEndpoints(ctx context.Context) ([]daemon.EndpointInfo, error)
	RegisterShard(ctx context.Context, endpoint string, shard int) error
	UnregisterShard(ctx context.Context, endpoint string, shard int) error
	ListCheckpoints(ctx context.Context) ([]daemon.CheckpointInfo, error)
	TriggerCheckpoint(ctx context.Context) (string, error)
	RestoreCheckpoint(ctx context.Context, id string) error
}

type restfulClient struct {
	hostURL    string
	httpClient *http.Client
}

var _ AdminClient = (*restfulClient)(nil)

// NewRESTfulClient returns a client of the processor listening on address. Without a scheme
// the address is reached over plain HTTP. Certificates of https addresses are not verified,
// the processors present self-signed ones.
func NewRESTfulClient(address string) AdminClient {
	if !strings.HasPrefix(address, "https://") && !strings.HasPrefix(address, "http://") {
		address = "http://" + address
	}
	return &restfulClient{
		hostURL: strings.TrimSuffix(address, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
			Timeout: time.Second * 5,
		},
	}
}

func unmarshalResponse[T any](r *http.Response) (T, error) {
	var t T
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return t, fmt.Errorf("failed to read data from response body, %w", err)
	}
	res := struct {
		ErrMessage *string `json:"errMessage,omitempty"`
		Data       T       `json:"data"`
	}{}
	if err := json.Unmarshal(data, &res); err != nil {
		return t, fmt.Errorf("failed to unmarshal response body to %T, %w", t, err)
	}
	if r.StatusCode >= 300 {
		if res.ErrMessage != nil {
			return t, fmt.Errorf("unexpected response %s: %s", r.Status, *res.ErrMessage)
		}
		return t, fmt.Errorf("unexpected response %s", r.Status)
	}
	return res.Data, nil
}

func call[T any](ctx context.Context, rc *restfulClient, method, path string) (T, error) {
	var t T
	req, err := http.NewRequestWithContext(ctx, method, rc.hostURL+path, nil)
	if err != nil {
		return t, err
	}
	resp, err := rc.httpClient.Do(req)
	if err != nil {
		return t, fmt.Errorf("failed to call %s %s, %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return unmarshalResponse[T](resp)
}

func (rc *restfulClient) GetTopology(ctx context.Context) (*daemon.TopologyInfo, error) {
	return call[*daemon.TopologyInfo](ctx, rc, http.MethodGet, "/api/v1/topology")
}

func (rc *restfulClient) ListEndpoints(ctx context.Context) ([]daemon.EndpointInfo, error) {
	return call[[]daemon.EndpointInfo](ctx, rc, http.MethodGet, "/api/v1/endpoints")
}

func (rc *restfulClient) RegisterShard(ctx context.Context, endpoint string, shard int) error {
	_, err := call[any](ctx, rc, http.MethodPost, fmt.Sprintf("/api/v1/endpoints/%s/shards/%d", endpoint, shard))
	return err
}

func (rc *restfulClient) UnregisterShard(ctx context.Context, endpoint string, shard int) error {
	_, err := call[any](ctx, rc, http.MethodDelete, fmt.Sprintf("/api/v1/endpoints/%s/shards/%d", endpoint, shard))
	return err
}

func (rc *restfulClient) ListCheckpoints(ctx context.Context) ([]daemon.CheckpointInfo, error) {
	return call[[]daemon.CheckpointInfo](ctx, rc, http.MethodGet, "/api/v1/checkpoints")
}

func (rc *restfulClient) TriggerCheckpoint(ctx context.Context) (string, error) {
	res, err := call[daemon.TriggerResult](ctx, rc, http.MethodPost, "/api/v1/checkpoints")
	if err != nil {
		return "", err
	}
	return res.CheckpointID, nil
}

func (rc *restfulClient) RestoreCheckpoint(ctx context.Context, id string) error {
	_, err := call[any](ctx, rc, http.MethodPost, fmt.Sprintf("/api/v1/checkpoints/%s/restore", id))
	return err
}
