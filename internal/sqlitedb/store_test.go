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

package sqlitedb

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/wikifarm/configdb"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestWikiRows(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, err := s.GetWiki(ctx, "alpha")
	assert.ErrorIs(t, err, configdb.ErrNotFound)

	require.NoError(t, s.UpsertWiki(ctx, configdb.UpsertWikiParams{WikiID: "alpha", LanguageCode: "de"}))
	require.NoError(t, s.SetWikiPrivate(ctx, configdb.SetWikiPrivateParams{WikiID: "alpha", Private: true}))

	w, err := s.GetWiki(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, w.Private)
	assert.Equal(t, "de", w.LanguageCode)
	assert.False(t, w.CreatedAt.IsZero())
}

func TestSettingsRow(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	require.NoError(t, s.UpsertWikiExtensions(ctx, configdb.UpsertWikiExtensionsParams{WikiID: "alpha", Extensions: []string{"cite"}}))
	require.NoError(t, s.UpsertWikiSettingsBlob(ctx, configdb.UpsertWikiSettingsBlobParams{
		WikiID:   "alpha",
		Settings: map[string]any{"wgUploads": []any{"png", "svg"}},
	}))

	ws, err := s.GetWikiSettings(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"cite"}, ws.Extensions)
	assert.Equal(t, []any{"png", "svg"}, ws.Settings["wgUploads"])
}

func TestNamespaceRows(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	require.NoError(t, s.UpsertWikiNamespace(ctx, configdb.WikiNamespace{
		WikiID:       "alpha",
		NamespaceID:  3000,
		Name:         "Lore",
		Content:      true,
		ContentModel: "wikitext",
		Aliases:      []string{"LR"},
		Additional:   map[string]any{"wgNamespaceRobotPolicies": "noindex"},
	}))
	require.NoError(t, s.UpsertWikiNamespace(ctx, configdb.WikiNamespace{WikiID: "alpha", NamespaceID: -1, Name: "Special"}))

	rows, err := s.ListWikiNamespaces(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int32(-1), rows[0].NamespaceID)
	assert.Empty(t, rows[0].Aliases)
	assert.True(t, rows[1].Content)
	assert.Equal(t, []string{"LR"}, rows[1].Aliases)
	assert.Equal(t, "noindex", rows[1].Additional["wgNamespaceRobotPolicies"])

	require.NoError(t, s.DeleteWikiNamespace(ctx, configdb.DeleteWikiNamespaceParams{WikiID: "alpha", NamespaceID: 3000}))
	rows, err = s.ListWikiNamespaces(ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestPermissionRows(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	require.NoError(t, s.UpsertWikiPermission(ctx, configdb.WikiPermission{
		WikiID:      "alpha",
		GroupName:   "sysop",
		Permissions: []string{"block"},
		Addgroups:   []string{"bot"},
	}))
	require.NoError(t, s.UpsertWikiPermission(ctx, configdb.WikiPermission{
		WikiID:      "alpha",
		GroupName:   "autoconfirmed",
		Autopromote: json.RawMessage(`["&",["APCOND_AGE",345600]]`),
	}))

	rows, err := s.ListWikiPermissions(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "autoconfirmed", rows[0].GroupName)
	assert.JSONEq(t, `["&",["APCOND_AGE",345600]]`, string(rows[0].Autopromote))
	assert.Nil(t, rows[1].Autopromote)
	assert.Equal(t, []string{"bot"}, rows[1].Addgroups)
	assert.Empty(t, rows[1].Removeself)
}

func TestWithTxRollback(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(q configdb.Querier) error {
		require.NoError(t, q.UpsertWikiExtensions(ctx, configdb.UpsertWikiExtensionsParams{WikiID: "alpha", Extensions: []string{"cite"}}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetWikiSettings(ctx, "alpha")
	assert.ErrorIs(t, err, configdb.ErrNotFound)
}

func TestJobsKeepInsertOrder(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	require.NoError(t, s.WithTx(ctx, func(q configdb.Querier) error {
		for _, id := range []string{"b", "a", "c"} {
			if _, err := q.EnqueueWikiJob(ctx, configdb.EnqueueWikiJobParams{ID: id, WikiID: "alpha", TaskName: "namespace-migration"}); err != nil {
				return err
			}
		}
		return nil
	}))

	jobs, err := s.ListWikiJobs(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "b", jobs[0].ID)
	assert.Equal(t, "c", jobs[2].ID)
	assert.JSONEq(t, `{}`, string(jobs[0].Spec))
}

func TestOpenFileDatabasePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "farm.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertWiki(ctx, configdb.UpsertWikiParams{WikiID: "alpha"}))
	s.Close()

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	ids, err := s.ListWikiIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, ids)
}
