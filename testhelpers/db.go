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

package testhelpers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orlangure/gnomock"
	"github.com/orlangure/gnomock/preset/postgres"

	"github.com/cardinalhq/wikifarm/configdb"
	configdbmigrations "github.com/cardinalhq/wikifarm/configdb/migrations"
)

// SetupTestConfigDB creates a scratch database on the server described by
// CONFIGDB_* variables, migrates it, and drops it when the test ends. With
// no CONFIGDB_HOST set, a throwaway PostgreSQL container is started instead.
func SetupTestConfigDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	dbName := fmt.Sprintf("test_wikifarm_%d_%d", time.Now().Unix(), rand.Intn(10000))

	host := os.Getenv("CONFIGDB_HOST")
	port := getEnvOrDefault("CONFIGDB_PORT", "5432")
	user := getEnvOrDefault("CONFIGDB_USER", os.Getenv("USER"))
	password := os.Getenv("CONFIGDB_PASSWORD")
	baseDB := getEnvOrDefault("CONFIGDB_DBNAME", "testing_wikifarm")

	if host == "" {
		container := startPostgres(t, baseDB)
		host, port = container.Host, fmt.Sprintf("%d", container.DefaultPort())
		user, password = gnomockUser, gnomockPassword
	}

	basePool, err := pgxpool.New(ctx, connString(user, password, host, port, baseDB))
	if err != nil {
		t.Fatalf("Failed to connect to base configdb: %v", err)
	}

	if _, err := basePool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		basePool.Close()
		t.Fatalf("Failed to create test configdb %s: %v", dbName, err)
	}

	testPool, err := pgxpool.New(ctx, connString(user, password, host, port, dbName))
	if err != nil {
		basePool.Close()
		t.Fatalf("Failed to connect to test configdb: %v", err)
	}

	t.Cleanup(func() {
		testPool.Close()
		if _, err := basePool.Exec(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName)); err != nil {
			slog.Error("Failed to drop test configdb", slog.String("dbName", dbName), slog.Any("error", err))
		}
		basePool.Close()
	})

	if err := configdbmigrations.RunMigrationsUp(ctx, testPool); err != nil {
		t.Fatalf("Failed to run configdb migrations: %v", err)
	}

	return testPool
}

const (
	gnomockUser     = "wikifarm"
	gnomockPassword = "wikifarm"
)

func startPostgres(t *testing.T, dbName string) *gnomock.Container {
	t.Helper()

	container, err := gnomock.Start(
		postgres.Preset(
			postgres.WithUser(gnomockUser, gnomockPassword),
			postgres.WithDatabase(dbName),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := gnomock.Stop(container); err != nil {
			slog.Error("Failed to stop postgres container", slog.Any("error", err))
		}
	})
	return container
}

func NewTestConfigDBStore(t *testing.T) configdb.QuerierFull {
	t.Helper()
	return configdb.NewStore(SetupTestConfigDB(t))
}

func connString(user, password, host, port, db string) string {
	if password != "" {
		return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, db)
	}
	return fmt.Sprintf("postgresql://%s@%s:%s/%s", user, host, port, db)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
