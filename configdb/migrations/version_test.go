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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/wikifarm/migrations"
)

func TestLatestVersion(t *testing.T) {
	got, err := latestVersion(migrationFiles)
	require.NoError(t, err)
	assert.Equal(t, uint(1), got)
}

func TestApplyEnvironmentOverrides(t *testing.T) {
	t.Setenv("MIGRATION_CHECK_TIMEOUT", "30s")
	t.Setenv("MIGRATION_CHECK_RETRY_INTERVAL", "2s")
	t.Setenv("MIGRATION_CHECK_ALLOW_DIRTY", "true")

	opts := migrations.DefaultCheckOptions()
	applyEnvironmentOverrides(&opts)

	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 2*time.Second, opts.RetryInterval)
	assert.True(t, opts.AllowDirty)
}

func TestApplyEnvironmentOverridesIgnoresGarbage(t *testing.T) {
	t.Setenv("MIGRATION_CHECK_TIMEOUT", "soon")

	opts := migrations.DefaultCheckOptions()
	applyEnvironmentOverrides(&opts)

	assert.Equal(t, 120*time.Second, opts.Timeout)
}

func TestCheckVersionDisabledByEnv(t *testing.T) {
	t.Setenv("CONFIGDB_MIGRATION_CHECK_ENABLED", "false")
	// A nil pool is never touched when checking is disabled.
	assert.NoError(t, CheckVersion(context.Background(), nil))
}

func TestCheckVersionSkipMode(t *testing.T) {
	assert.NoError(t, CheckVersion(context.Background(), nil,
		migrations.WithCheckMode(migrations.CheckModeSkip)))
}
