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
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/wikifarm/config"
	"github.com/cardinalhq/wikifarm/configdb"
	configdbmigrations "github.com/cardinalhq/wikifarm/configdb/migrations"
	"github.com/cardinalhq/wikifarm/internal/dbopen"
	"github.com/cardinalhq/wikifarm/internal/sqlitedb"
)

func init() {
	rootCmd.AddCommand(MigrateCmd)
}

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  "Bring the configured store's schema up to the version this binary embeds",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return migrate(cfg)
	},
}

func migrate(cfg *config.Config) error {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(5*time.Minute))
	defer cancel()

	switch cfg.Store.Driver {
	case config.StoreMemory:
		slog.Info("In-memory store needs no migrations")
		return nil
	case config.StoreSQLite:
		// Opening applies the schema.
		store, err := sqlitedb.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to migrate sqlite store: %w", err)
		}
		store.Close()
		slog.Info("sqlite schema is current", slog.String("path", cfg.Store.SQLitePath))
		return nil
	}

	slog.Info("Running configdb migrations")
	pool, err := configdb.ConnectToConfigDB(ctx, dbopen.SkipMigrationCheck())
	if err != nil {
		if errors.Is(err, dbopen.ErrDatabaseNotConfigured) {
			slog.Info("ConfigDB not configured, skipping migration")
			return nil
		}
		return err
	}
	defer pool.Close()
	if err := configdbmigrations.RunMigrationsUp(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate configdb: %w", err)
	}
	slog.Info("configdb migrations completed successfully")
	return nil
}
