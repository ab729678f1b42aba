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

package migrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// migrator wraps a golang-migrate instance bound to the embedded schema and
// a pool-backed database/sql handle. close releases both.
type migrator struct {
	*migrate.Migrate
	close func()
}

func openMigrator(pool *pgxpool.Pool) (*migrator, error) {
	sourceDriver, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs driver: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	dbDriver, err := pgx.WithInstance(sqlDB, &pgx.Config{MigrationsTable: migrationsTable})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create pgx driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		_ = dbDriver.Close()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &migrator{
		Migrate: m,
		close: func() {
			_ = dbDriver.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

// version reports the applied schema version; an empty database is version 0.
func (m *migrator) version() (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get current version: %w", err)
	}
	return v, dirty, nil
}

// RunMigrationsUp brings the wiki config schema to the newest embedded version.
func RunMigrationsUp(ctx context.Context, pool *pgxpool.Pool) error {
	m, err := openMigrator(pool)
	if err != nil {
		return err
	}
	defer m.close()

	before, dirty, err := m.version()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("configdb migration %d is dirty, please fix it before proceeding", before)
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		slog.InfoContext(ctx, "configdb schema already current", slog.Uint64("version", uint64(before)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	after, _, err := m.version()
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "configdb schema migrated",
		slog.Uint64("from", uint64(before)),
		slog.Uint64("to", uint64(after)))
	return nil
}
