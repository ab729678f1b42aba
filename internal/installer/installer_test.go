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

package installer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/wikifarm/internal/changeset"
	"github.com/cardinalhq/wikifarm/internal/extensions"
	"github.com/cardinalhq/wikifarm/internal/jobqueue"
	"github.com/cardinalhq/wikifarm/internal/memdb"
	"github.com/cardinalhq/wikifarm/internal/registry"
	"github.com/cardinalhq/wikifarm/internal/wikistate"
)

var loreActions = &registry.Actions{
	Permissions: map[string]registry.GroupGrant{
		"sysop": {Permissions: []string{"lore-edit"}},
	},
	Namespaces: map[string]registry.NamespaceDef{
		"Lore":      {ID: 3000, Searchable: true, Content: true},
		"Lore_talk": {ID: 3001},
	},
	Settings: map[string]any{"wgLoreEnabled": true},
	Jobs:     []string{"rebuildLoreIndex"},
}

func newInstaller(t *testing.T) (*Installer, *memdb.Store, *jobqueue.Recorder) {
	t.Helper()
	store := memdb.New()
	jobs := &jobqueue.Recorder{}
	env := &changeset.Env{Store: store, Jobs: jobs, Registry: &registry.Registry{}}
	return New(env, wikistate.New(store)), store, jobs
}

func TestInstallAndUninstall(t *testing.T) {
	ctx := context.Background()
	inst, store, jobs := newInstaller(t)

	require.True(t, inst.Install(ctx, "wiki1", loreActions))

	perms, err := store.ListWikiPermissions(ctx, "wiki1")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, []string{"lore-edit"}, perms[0].Permissions)

	ns, err := store.ListWikiNamespaces(ctx, "wiki1")
	require.NoError(t, err)
	require.Len(t, ns, 2)
	assert.Equal(t, "Lore", ns[0].Name)
	assert.True(t, ns[0].Content)
	assert.Equal(t, "wikitext", ns[1].ContentModel)

	settings, err := store.GetWikiSettings(ctx, "wiki1")
	require.NoError(t, err)
	assert.Equal(t, true, settings.Settings["wgLoreEnabled"])

	tasks := map[string]int{}
	for _, j := range jobs.Jobs() {
		tasks[j.Task]++
	}
	assert.Equal(t, 2, tasks[jobqueue.TaskNamespaceMigration])
	assert.Equal(t, 1, tasks["rebuildLoreIndex"])

	require.True(t, inst.Uninstall(ctx, "wiki1", loreActions))

	perms, err = store.ListWikiPermissions(ctx, "wiki1")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Empty(t, perms[0].Permissions)

	ns, err = store.ListWikiNamespaces(ctx, "wiki1")
	require.NoError(t, err)
	assert.Empty(t, ns)

	settings, err = store.GetWikiSettings(ctx, "wiki1")
	require.NoError(t, err)
	assert.NotContains(t, settings.Settings, "wgLoreEnabled")
}

func TestInstallFailureReportsFalse(t *testing.T) {
	ctx := context.Background()
	inst, store, _ := newInstaller(t)
	store.FailOn("UpsertWikiSettingsBlob", errors.New("read-only"))

	assert.False(t, inst.Install(ctx, "wiki1", loreActions))
	assert.True(t, inst.Install(ctx, "wiki1", nil))
}

func TestExtensionCommitRunsInstaller(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	reg := &registry.Registry{}
	reg.AddExtension(&registry.Extension{ID: "lore", Name: "Lore", Install: loreActions, Remove: loreActions})
	env := &changeset.Env{Store: store, Registry: reg, Jobs: &jobqueue.Recorder{}}
	env.Installer = New(env, wikistate.New(store))

	cs, err := extensions.Load(ctx, env, "wiki1")
	require.NoError(t, err)
	cs.Add("lore")
	require.NoError(t, cs.Commit(ctx))
	assert.Empty(t, cs.Errors())

	settings, err := store.GetWikiSettings(ctx, "wiki1")
	require.NoError(t, err)
	assert.Equal(t, []string{"lore"}, settings.Extensions)
	assert.Equal(t, true, settings.Settings["wgLoreEnabled"])
}
