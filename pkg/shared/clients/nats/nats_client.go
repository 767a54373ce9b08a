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

package nats

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/shared/logging"
	sharedutil "github.com/numaproj/numastream/pkg/shared/util"
)

const (
	EnvNatsUser       = "NUMASTREAM_NATS_USER"
	EnvNatsPassword   = "NUMASTREAM_NATS_PASSWORD"
	EnvNatsTLSEnabled = "NUMASTREAM_NATS_TLS_ENABLED"
)

// Client wraps a NATS connection shared by the publishers of a processor.
type Client struct {
	nc  *nats.Conn
	log *zap.SugaredLogger
}

// connectOptions reconnects forever and treats two unanswered pings, three seconds apart, as a
// lost connection. Connection events are logged.
func connectOptions(log *zap.SugaredLogger) []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.PingInterval(3 * time.Second),
		nats.MaxPingsOutstanding(2),
		nats.FlusherTimeout(10 * time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Errorw("NATS async error", zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("NATS connection lost", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("NATS connection closed")
		}),
	}
	if user := sharedutil.LookupEnvStringOr(EnvNatsUser, ""); user != "" {
		opts = append(opts, nats.UserInfo(user, sharedutil.LookupEnvStringOr(EnvNatsPassword, "")))
	}
	if sharedutil.LookupEnvBoolOr(EnvNatsTLSEnabled, false) {
		opts = append(opts, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}
	return opts
}

// NewNATSClient connects to url. Credentials and TLS come from the environment, natsOptions
// are applied last and win over the defaults.
func NewNATSClient(ctx context.Context, url string, natsOptions ...nats.Option) (*Client, error) {
	log := logging.FromContext(ctx).With("url", url)
	nc, err := nats.Connect(url, append(connectOptions(log), natsOptions...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats url=%s: %w", url, err)
	}
	return &Client{nc: nc, log: log}, nil
}

// Publish sends data on subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

// Flush waits until the server has processed everything published so far.
func (c *Client) Flush(ctx context.Context) error {
	return c.nc.FlushWithContext(ctx)
}

// Conn returns the underlying connection.
func (c *Client) Conn() *nats.Conn {
	return c.nc
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if err := c.nc.Drain(); err != nil {
		c.log.Warnw("Failed to drain NATS connection, closing", zap.Error(err))
		c.nc.Close()
	}
}
