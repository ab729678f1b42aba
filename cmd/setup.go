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
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/wikifarm/config"
	"github.com/cardinalhq/wikifarm/configdb"
)

var skipDB bool

func init() {
	SetupCmd.Flags().BoolVar(&skipDB, "skip-db", false, "Skip database migrations")
	rootCmd.AddCommand(SetupCmd)
}

var SetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run complete wikifarm setup (migrations, registry check, default wiki)",
	Long:  "Run database migrations, validate the registry and make sure the default wiki exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		slog.Info("Starting wikifarm setup")
		if !skipDB {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := migrate(cfg); err != nil {
				return fmt.Errorf("database migrations failed: %w", err)
			}
		} else {
			slog.Info("Skipping database migrations")
		}
		return withApp("setup", runSetup)(cmd, args)
	},
}

// runSetup creates the default wiki row the other wikis are seeded from.
func runSetup(ctx context.Context, a *app, out io.Writer, _ []string) error {
	_, err := a.store.GetWiki(ctx, configdb.DefaultWikiID)
	switch {
	case err == nil:
		fmt.Fprintf(out, "default wiki present\n")
	case errors.Is(err, configdb.ErrNotFound):
		if err := a.state.Create(ctx, configdb.DefaultWikiID, false, "en"); err != nil {
			return err
		}
		fmt.Fprintf(out, "default wiki created\n")
	default:
		return fmt.Errorf("read default wiki: %w", err)
	}
	fmt.Fprintf(out, "registry: %d extensions, %d namespace settings\n",
		len(a.registry.ExtensionIDs()), len(a.registry.NamespaceSettings))
	slog.Info("wikifarm setup completed successfully")
	return nil
}
