// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/wikifarm/config"
	"github.com/cardinalhq/wikifarm/internal/awsclient"
	"github.com/cardinalhq/wikifarm/internal/registry"
)

func init() {
	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the extension and setting registry",
	}
	registryCmd.AddCommand(&cobra.Command{
		Use:   "check [source]",
		Short: "Parse and validate a registry, reporting every problem",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := ""
			if len(args) == 1 {
				source = args[0]
			} else {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				source = cfg.Registry.Source
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runRegistryCheck(ctx, cmd.OutOrStdout(), source)
		},
	})
	rootCmd.AddCommand(registryCmd)
}

func runRegistryCheck(ctx context.Context, out io.Writer, source string) error {
	reg, err := loadRegistry(ctx, source, func() (*awsclient.Manager, error) {
		return awsclient.NewManager(ctx)
	})
	if err != nil {
		return err
	}
	describeRegistry(out, source, reg)
	return nil
}

func describeRegistry(out io.Writer, source string, reg *registry.Registry) {
	fmt.Fprintf(out, "%s: ok\n", source)
	fmt.Fprintf(out, "  extensions:         %d (%d default)\n", len(reg.ExtensionIDs()), len(reg.DefaultExtensions))
	fmt.Fprintf(out, "  namespace settings: %d\n", len(reg.NamespaceSettings))
	fmt.Fprintf(out, "  languages:          %d\n", len(reg.NamespaceNames))
	if g := reg.Permissions.DefaultPrivateGroup; g != "" {
		fmt.Fprintf(out, "  private group:      %s\n", g)
	}
}
