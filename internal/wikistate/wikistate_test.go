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

package wikistate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/memdb"
	"github.com/cardinalhq/wikifarm/internal/requirements"
)

func TestSettingsMerge(t *testing.T) {
	ctx := context.Background()
	s := New(memdb.New())

	v, found, err := s.Setting(ctx, "wiki1", "wgSitename")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, v)

	require.NoError(t, s.MergeSettings(ctx, "wiki1", map[string]any{
		"wgSitename":    "Test",
		"wgGroupsAdded": []any{"a", "b"},
	}, nil))
	require.NoError(t, s.MergeSettings(ctx, "wiki1", map[string]any{"wgLogo": "x.png"}, []string{"wgSitename"}))

	settings, err := s.Settings(ctx, "wiki1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"wgGroupsAdded": []any{"a", "b"}, "wgLogo": "x.png"}, settings)
}

func TestTenantOracles(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	store.PutWiki(configdb.Wiki{WikiID: "wiki1", Private: true, ActiveUsers: 12, Articles: 100, Pages: 250, Images: 3})
	s := New(store)
	require.NoError(t, s.MergeSettings(ctx, "wiki1", map[string]any{"wgSkins": []any{"vector", "timeless"}}, nil))

	tenant := s.Tenant(requirements.Rights{"managewiki"}, false)(ctx, "wiki1")
	assert.Equal(t, "wiki1", tenant.WikiID)

	n, err := tenant.Stats.ActiveUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	n, err = tenant.Stats.Pages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(250), n)

	private, err := tenant.Visibility.IsPrivate(ctx)
	require.NoError(t, err)
	assert.True(t, private)

	spec := requirements.Spec{
		"articles":    500,
		"settings":    map[string]any{"setting": "wgSkins", "value": "timeless"},
		"visibility":  map[string]any{"state": "private"},
		"permissions": []any{"managewiki"},
	}
	assert.True(t, requirements.Evaluate(ctx, spec, nil, false, tenant))

	missing := s.Tenant(nil, true)(ctx, "ghost")
	assert.False(t, requirements.Evaluate(ctx, requirements.Spec{"images": 10}, nil, false, missing))
	assert.True(t, requirements.Evaluate(ctx, requirements.Spec{"permissions": []any{"x"}}, nil, false, missing))
}

func TestSetPrivate(t *testing.T) {
	ctx := context.Background()
	s := New(memdb.New())

	require.NoError(t, s.SetPrivate(ctx, "wiki1", true))
	private, err := s.IsPrivate(ctx, "wiki1")
	require.NoError(t, err)
	assert.True(t, private)

	require.NoError(t, s.SetPrivate(ctx, "wiki1", false))
	private, err = s.IsPrivate(ctx, "wiki1")
	require.NoError(t, err)
	assert.False(t, private)
}
