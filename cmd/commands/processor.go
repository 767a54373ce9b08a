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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/numaproj/numastream"
	"github.com/numaproj/numastream/pkg/config"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/metrics"
	"github.com/numaproj/numastream/pkg/processor"
	"github.com/numaproj/numastream/pkg/shared/logging"
)

func NewProcessorCommand() *cobra.Command {
	var (
		topologyFile string
		vertexName   string
		shard        int
		listenAddr   string
	)

	command := &cobra.Command{
		Use:   "processor",
		Short: "Start a vertex instance processor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if topologyFile == "" {
				return fmt.Errorf("required flag 'topology' not set")
			}
			if vertexName == "" {
				return fmt.Errorf("required flag 'vertex' not set")
			}
			log := logging.NewLogger().Named("processor").With("vertex", vertexName, "shard", shard)
			version := numastream.GetVersion()
			log.Infow("Starting vertex data processor", "version", version)
			metrics.BuildInfo.WithLabelValues("processor", version.Version, version.Platform).Set(1)

			spec, err := graph.LoadSpec(topologyFile)
			if err != nil {
				return err
			}
			topology, err := spec.Build()
			if err != nil {
				return fmt.Errorf("invalid topology %q: %w", topologyFile, err)
			}
			conf, err := config.LoadConfig(func(err error) {
				log.Errorw("Failed to reload configuration file", "error", err)
			})
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			var opts []processor.Option
			if listenAddr != "" {
				opts = append(opts, processor.WithListenAddress(listenAddr))
			}
			p, err := processor.NewProcessor(topology, vertexName, shard, conf, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return p.Start(logging.WithLogger(ctx, log))
		},
	}
	command.Flags().StringVar(&topologyFile, "topology", "", "Path to the topology definition file")
	command.Flags().StringVar(&vertexName, "vertex", "", "Name of the vertex this instance runs")
	command.Flags().IntVar(&shard, "shard", 0, "Shard index of this instance")
	command.Flags().StringVar(&listenAddr, "listen", "", "Listen address, defaults to the configured transport port on all interfaces")
	return command
}
