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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/wikifarm/config"
	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/configcache"
	"github.com/cardinalhq/wikifarm/internal/jobqueue"
	"github.com/cardinalhq/wikifarm/internal/memdb"
	"github.com/cardinalhq/wikifarm/internal/registry"
)

const testRegistryYAML = `
extensions:
  - id: cite
    name: Cite
  - id: vector
    name: Vector
    conflicts: [timeless]
  - id: timeless
    name: Timeless
    conflicts: [vector]
default_extensions: [cite]
namespaces:
  disallowed_names: [Special]
permissions:
  default_private_group: member
`

func testApp(t *testing.T) (*app, *memdb.Store, *jobqueue.Recorder) {
	t.Helper()
	reg, err := registry.Parse([]byte(testRegistryYAML), registry.FormatYAML)
	require.NoError(t, err)

	store := memdb.New()
	cache, err := configcache.New(store, reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	jobs := &jobqueue.Recorder{}
	cfg := &config.Config{Cache: config.CacheConfig{WarmConcurrency: 2}}
	return newApp(cfg, store, reg, jobs, cache), store, jobs
}

func changedSet(names ...string) func(string) bool {
	return func(n string) bool {
		for _, name := range names {
			if name == n {
				return true
			}
		}
		return false
	}
}

func TestExtensionsEnableAndDisable(t *testing.T) {
	ctx := context.Background()
	a, store, _ := testApp(t)
	var out bytes.Buffer

	require.NoError(t, runExtensionsEnable(ctx, a, &out, []string{"wiki1", "vector", "timeless", "ghost"}))
	assert.Contains(t, out.String(), "unknown extension ghost")
	assert.Contains(t, out.String(), "Vector conflicts with Timeless")

	row, err := store.GetWikiSettings(ctx, "wiki1")
	require.NoError(t, err)
	assert.Equal(t, []string{"timeless"}, row.Extensions, "vector is checked first and loses to timeless")

	out.Reset()
	require.NoError(t, runExtensionsDisable(ctx, a, &out, []string{"wiki1", "timeless"}))
	row, err = store.GetWikiSettings(ctx, "wiki1")
	require.NoError(t, err)
	assert.Empty(t, row.Extensions)
}

func TestExtensionsSetAndList(t *testing.T) {
	ctx := context.Background()
	a, _, _ := testApp(t)
	var out bytes.Buffer

	require.NoError(t, runExtensionsSet(ctx, a, &out, []string{"wiki1", "cite", "timeless"}))
	out.Reset()
	require.NoError(t, runExtensionsList(ctx, a, &out, []string{"wiki1"}))
	assert.Regexp(t, `cite\s+Cite\s+true`, out.String())
	assert.Regexp(t, `vector\s+Vector\s+false`, out.String())
}

func TestNamespacesSetRequiresNameForNewNamespace(t *testing.T) {
	a, _, _ := testApp(t)
	err := runNamespacesSet(context.Background(), a, &bytes.Buffer{}, []string{"wiki1", "3000"}, namespaceFlags{}, changedSet())
	assert.ErrorContains(t, err, "--name is required")
}

func TestNamespacesSetAndDelete(t *testing.T) {
	ctx := context.Background()
	a, store, jobs := testApp(t)
	var out bytes.Buffer

	f := namespaceFlags{name: "Lore", content: true, additional: []string{"wgNamespaceRobotPolicies=noindex"}}
	require.NoError(t, runNamespacesSet(ctx, a, &out, []string{"wiki1", "3000"}, f, changedSet("name", "content")))
	assert.Contains(t, out.String(), "namespace 3000 saved")

	rows, err := store.ListWikiNamespaces(ctx, "wiki1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Lore", rows[0].Name)
	assert.True(t, rows[0].Content)
	assert.Equal(t, "noindex", rows[0].Additional["wgNamespaceRobotPolicies"])

	out.Reset()
	require.NoError(t, runNamespacesSet(ctx, a, &out, []string{"wiki1", "3000"}, f, changedSet("name", "content")))
	assert.Contains(t, out.String(), "unchanged")

	require.NoError(t, runNamespacesDelete(ctx, a, &out, []string{"wiki1", "3000"}))
	rows, err = store.ListWikiNamespaces(ctx, "wiki1")
	require.NoError(t, err)
	assert.Empty(t, rows)

	var deletes int
	for _, j := range jobs.Jobs() {
		var payload map[string]any
		require.NoError(t, json.Unmarshal(j.Payload, &payload))
		if payload["action"] == "delete" {
			deletes++
			assert.Equal(t, float64(3000), payload["nsId"])
		}
	}
	assert.Equal(t, 1, deletes)
}

func TestNamespaceUpdate(t *testing.T) {
	current := map[string]any{"keep": true, "drop": "x"}
	u, err := namespaceUpdate(namespaceFlags{
		protection: "editprotected",
		additional: []string{"drop=null", "count=3", "label=plain text"},
	}, changedSet("protection"), current)
	require.NoError(t, err)

	assert.Nil(t, u.Name)
	require.NotNil(t, u.Protection)
	assert.Equal(t, "editprotected", *u.Protection)
	assert.Equal(t, map[string]any{"keep": true, "count": float64(3), "label": "plain text"}, u.Additional)
	assert.Equal(t, "x", current["drop"], "current is not mutated")

	_, err = namespaceUpdate(namespaceFlags{additional: []string{"novalue"}}, changedSet(), nil)
	assert.Error(t, err)
}

func TestPermissionsGrantRevokeDelete(t *testing.T) {
	ctx := context.Background()
	a, store, _ := testApp(t)
	var out bytes.Buffer

	grant := groupFlags{rights: []string{"edit", "move"}, addgroups: []string{"bot"}, autopromote: `["APCOND_AGE",86400]`}
	require.NoError(t, runPermissionsChange(ctx, a, &out, []string{"wiki1", "editor"}, grant, true))
	assert.Contains(t, out.String(), "group editor saved: edit,move")

	revoke := groupFlags{rights: []string{"move"}}
	require.NoError(t, runPermissionsChange(ctx, a, &out, []string{"wiki1", "editor"}, revoke, false))

	rows, err := store.ListWikiPermissions(ctx, "wiki1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"edit"}, rows[0].Permissions)
	assert.Equal(t, []string{"bot"}, rows[0].Addgroups)
	assert.JSONEq(t, `["APCOND_AGE",86400]`, string(rows[0].Autopromote))

	out.Reset()
	require.NoError(t, runPermissionsList(ctx, a, &out, []string{"wiki1"}))
	assert.Contains(t, out.String(), "editor")

	require.NoError(t, runPermissionsDelete(ctx, a, &out, []string{"wiki1", "editor"}))
	rows, err = store.ListWikiPermissions(ctx, "wiki1")
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.Error(t, runPermissionsDelete(ctx, a, &out, []string{"wiki1", "editor"}))
}

func TestGroupUpdateRejectsBadAutopromote(t *testing.T) {
	_, err := groupUpdate(groupFlags{autopromote: "{nope"}, true)
	assert.Error(t, err)
}

func TestWikiCreateVisibilityAndCache(t *testing.T) {
	ctx := context.Background()
	a, store, _ := testApp(t)
	var out bytes.Buffer

	require.NoError(t, runSetup(ctx, a, &out, nil))
	assert.Contains(t, out.String(), "default wiki created")

	wikiPrivate, wikiLanguage = false, "en"
	require.NoError(t, runWikiCreate(ctx, a, &out, []string{"wiki1"}))
	require.NoError(t, runWikiVisibility(ctx, a, &out, []string{"wiki1", "private"}))
	assert.Error(t, runWikiVisibility(ctx, a, &out, []string{"wiki1", "hidden"}))

	w, err := store.GetWiki(ctx, "wiki1")
	require.NoError(t, err)
	assert.True(t, w.Private)

	out.Reset()
	require.NoError(t, runWikiList(ctx, a, &out, nil))
	assert.Equal(t, configdb.DefaultWikiID+"\nwiki1\n", out.String())

	out.Reset()
	require.NoError(t, runCacheShow(ctx, a, &out, []string{"wiki1"}))
	var snap map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	assert.Equal(t, "wiki1", snap["wiki_id"])
	assert.Equal(t, true, snap["private"])
	assert.Equal(t, []any{"Cite"}, snap["extensions"])

	out.Reset()
	warmAll = true
	t.Cleanup(func() { warmAll = false })
	require.NoError(t, runCacheWarm(ctx, a, &out, nil))
	assert.Equal(t, "warmed 2 snapshots\n", out.String())

	out.Reset()
	require.NoError(t, runCacheInvalidate(ctx, a, &out, []string{"wiki1"}))
	assert.Equal(t, "invalidated wiki1\n", out.String())
}

func TestRegistryCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRegistryYAML), 0o600))

	var out bytes.Buffer
	require.NoError(t, runRegistryCheck(context.Background(), &out, path))
	assert.Contains(t, out.String(), "extensions:         3 (1 default)")
	assert.Contains(t, out.String(), "private group:      member")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("extensions:\n  - id: a\n    conflicts: [b]\n"), 0o600))
	assert.Error(t, runRegistryCheck(context.Background(), &out, bad))
}
