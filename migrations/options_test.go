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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	got := Resolve()
	assert.Equal(t, CheckModeWait, got.Mode)
	assert.Equal(t, 2*time.Minute, got.Timeout)
	assert.False(t, got.AllowDirty)

	got = Resolve(
		WithCheckMode(CheckModeWarn),
		WithTimeout(time.Second),
		WithRetryInterval(10*time.Millisecond),
		WithAllowDirty(true),
	)
	assert.Equal(t, CheckOptions{
		Mode:          CheckModeWarn,
		Timeout:       time.Second,
		RetryInterval: 10 * time.Millisecond,
		AllowDirty:    true,
	}, got)
}

func TestCheckModeString(t *testing.T) {
	assert.Equal(t, "wait", CheckModeWait.String())
	assert.Equal(t, "warn", CheckModeWarn.String())
	assert.Equal(t, "skip", CheckModeSkip.String())
	assert.Equal(t, "unknown", CheckMode(42).String())
}
