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

package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/numaproj/numastream/pkg/daemon/client"
)

const defaultAdminTimeout = 10 * time.Second

// NewAdminCommand groups the commands talking to the admin API of a running processor.
func NewAdminCommand() *cobra.Command {
	var address string

	command := &cobra.Command{
		Use:   "admin",
		Short: "Inspect and control a running processor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	command.PersistentFlags().StringVar(&address, "address", "localhost:2470", "Address of the processor, optionally prefixed with http:// or https://")

	newClient := func() client.AdminClient { return client.NewRESTfulClient(address) }
	command.AddCommand(
		newTopologyCommand(newClient),
		newEndpointsCommand(newClient),
		newShardCommand("register-shard", "Register a remote shard on an output endpoint", newClient, client.AdminClient.RegisterShard),
		newShardCommand("unregister-shard", "Unregister a remote shard from an output endpoint", newClient, client.AdminClient.UnregisterShard),
		newCheckpointCommand(newClient),
	)
	return command
}

func adminContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, defaultAdminTimeout)
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func newTopologyCommand(newClient func() client.AdminClient) *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Print the topology served by the processor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := adminContext(cmd)
			defer cancel()
			topology, err := newClient().GetTopology(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), topology)
		},
	}
}

func newEndpointsCommand(newClient func() client.AdminClient) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "List the endpoints of the processor and their remote shards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := adminContext(cmd)
			defer cancel()
			endpoints, err := newClient().ListEndpoints(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), endpoints)
		},
	}
}

func newShardCommand(use, short string, newClient func() client.AdminClient, change func(client.AdminClient, context.Context, string, int) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ENDPOINT SHARD",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			shard, err := strconv.Atoi(args[1])
			if err != nil || shard < 0 {
				return fmt.Errorf("invalid shard %q", args[1])
			}
			ctx, cancel := adminContext(cmd)
			defer cancel()
			if err := change(newClient(), ctx, args[0], shard); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s shard %d\n", use, args[0], shard)
			return nil
		},
	}
}

func newCheckpointCommand(newClient func() client.AdminClient) *cobra.Command {
	command := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage the checkpoints of the processor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	command.AddCommand(&cobra.Command{
		Use:   "trigger",
		Short: "Inject a checkpoint barrier at the source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := adminContext(cmd)
			defer cancel()
			id, err := newClient().TriggerCheckpoint(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %s triggered\n", id)
			return nil
		},
	}, &cobra.Command{
		Use:   "list",
		Short: "List the checkpoints taken by the processor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := adminContext(cmd)
			defer cancel()
			checkpoints, err := newClient().ListCheckpoints(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), checkpoints)
		},
	}, &cobra.Command{
		Use:   "restore ID",
		Short: "Restore the operator state of a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := adminContext(cmd)
			defer cancel()
			if err := newClient().RestoreCheckpoint(ctx, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %s restored\n", args[0])
			return nil
		},
	})
	return command
}
