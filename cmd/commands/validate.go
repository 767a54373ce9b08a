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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/numaproj/numastream/pkg/graph"
)

func NewValidateCommand() *cobra.Command {
	var topologyFile string

	command := &cobra.Command{
		Use:   "validate",
		Short: "Validate a topology definition and print its connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			if topologyFile == "" {
				return fmt.Errorf("required flag 'topology' not set")
			}
			spec, err := graph.LoadSpec(topologyFile)
			if err != nil {
				return err
			}
			topology, err := spec.Build()
			if err != nil {
				return fmt.Errorf("invalid topology %q: %w", topologyFile, err)
			}
			out := cmd.OutOrStdout()
			for _, v := range topology.Vertices() {
				_, _ = fmt.Fprintf(out, "vertex %s (%s) x%d\n", v.Name, v.Kind, v.Shards)
			}
			for _, c := range topology.Connections() {
				kind := "data"
				if c.Control {
					kind = "control"
				}
				_, _ = fmt.Fprintf(out, "%s [%s]\n", c, kind)
			}
			return nil
		},
	}
	command.Flags().StringVar(&topologyFile, "topology", "", "Path to the topology definition file")
	return command
}
