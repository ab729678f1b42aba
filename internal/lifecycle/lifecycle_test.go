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

package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/changeset"
	"github.com/cardinalhq/wikifarm/internal/configcache"
	"github.com/cardinalhq/wikifarm/internal/jobqueue"
	"github.com/cardinalhq/wikifarm/internal/memdb"
	"github.com/cardinalhq/wikifarm/internal/registry"
	"github.com/cardinalhq/wikifarm/internal/wikistate"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *recordingInvalidator) Invalidate(_ context.Context, wikiID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[wikiID]++
	return nil
}

func testRegistry() *registry.Registry {
	reg := &registry.Registry{
		DefaultExtensions: []string{"cite", "ghost"},
		Permissions:       registry.PermissionDefaults{DefaultPrivateGroup: "member"},
	}
	reg.AddExtension(&registry.Extension{ID: "cite", Name: "Cite"})
	return reg
}

func seedDefault(t *testing.T, store *memdb.Store) {
	t.Helper()
	ctx := context.Background()
	rows := []configdb.WikiPermission{
		{GroupName: "user", Permissions: []string{"edit"}, Autopromote: json.RawMessage(`["APCOND_EDITCOUNT",5]`)},
		{GroupName: "sysop", Permissions: []string{"block"}, Addgroups: []string{"bot"}},
		{GroupName: "member", Permissions: []string{"read"}},
	}
	for _, r := range rows {
		r.WikiID = configdb.DefaultWikiID
		require.NoError(t, store.UpsertWikiPermission(ctx, r))
	}
	for _, ns := range []configdb.WikiNamespace{
		{NamespaceID: 0, Name: "(Main)", Content: true, ContentModel: "wikitext"},
		{NamespaceID: 1, Name: "Talk", Subpages: true, ContentModel: "wikitext", Aliases: []string{"Discussion"}},
	} {
		ns.WikiID = configdb.DefaultWikiID
		require.NoError(t, store.UpsertWikiNamespace(ctx, ns))
	}
}

func newManager(t *testing.T) (*Manager, *memdb.Store, *recordingInvalidator, *jobqueue.Recorder) {
	t.Helper()
	store := memdb.New()
	seedDefault(t, store)
	inv := &recordingInvalidator{}
	jobs := &jobqueue.Recorder{}
	env := &changeset.Env{Store: store, Jobs: jobs, Invalidator: inv, Registry: testRegistry()}
	return New(env, wikistate.New(store)), store, inv, jobs
}

func groups(t *testing.T, store *memdb.Store, wikiID string) map[string]configdb.WikiPermission {
	t.Helper()
	rows, err := store.ListWikiPermissions(context.Background(), wikiID)
	require.NoError(t, err)
	out := map[string]configdb.WikiPermission{}
	for _, r := range rows {
		out[r.GroupName] = r
	}
	return out
}

func TestCreatePublicWiki(t *testing.T) {
	ctx := context.Background()
	m, store, inv, jobs := newManager(t)

	require.NoError(t, m.CreateWiki(ctx, "wiki1", false, "de"))

	wiki, err := store.GetWiki(ctx, "wiki1")
	require.NoError(t, err)
	assert.False(t, wiki.Private)
	assert.Equal(t, "de", wiki.LanguageCode)

	g := groups(t, store, "wiki1")
	assert.Len(t, g, 2)
	assert.NotContains(t, g, "member")
	assert.Equal(t, []string{"edit"}, g["user"].Permissions)
	assert.JSONEq(t, `["APCOND_EDITCOUNT",5]`, string(g["user"].Autopromote))
	assert.Equal(t, []string{"bot"}, g["sysop"].Addgroups)

	settings, err := store.GetWikiSettings(ctx, "wiki1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cite"}, settings.Extensions)

	ns, err := store.ListWikiNamespaces(ctx, "wiki1")
	require.NoError(t, err)
	require.Len(t, ns, 2)
	assert.Equal(t, "(Main)", ns[0].Name)
	assert.True(t, ns[0].Content)
	assert.Equal(t, []string{"Discussion"}, ns[1].Aliases)

	assert.Empty(t, jobs.Jobs(), "seeding namespaces never queues migrations")
	assert.Positive(t, inv.calls["wiki1"])
}

func TestCreatePrivateWiki(t *testing.T) {
	ctx := context.Background()
	m, store, _, _ := newManager(t)

	require.NoError(t, m.CreateWiki(ctx, "wiki1", true, ""))

	private, err := wikistate.New(store).IsPrivate(ctx, "wiki1")
	require.NoError(t, err)
	assert.True(t, private)

	g := groups(t, store, "wiki1")
	assert.Equal(t, []string{"read"}, g["member"].Permissions)
	assert.ElementsMatch(t, []string{"bot", "member"}, g["sysop"].Addgroups)
	assert.Equal(t, []string{"member"}, g["sysop"].Removegroups)
}

func TestMakePublicDropsPrivateGroup(t *testing.T) {
	ctx := context.Background()
	m, store, _, _ := newManager(t)
	require.NoError(t, m.CreateWiki(ctx, "wiki1", true, "en"))

	require.NoError(t, m.SetVisibility(ctx, "wiki1", false))

	g := groups(t, store, "wiki1")
	assert.NotContains(t, g, "member")
	assert.Equal(t, []string{"bot"}, g["sysop"].Addgroups)
	assert.Empty(t, g["sysop"].Removegroups)

	private, err := wikistate.New(store).IsPrivate(ctx, "wiki1")
	require.NoError(t, err)
	assert.False(t, private)
}

func TestMakePublicWithoutPrivateGroupWritesFlagOnly(t *testing.T) {
	ctx := context.Background()
	m, store, _, _ := newManager(t)
	require.NoError(t, m.CreateWiki(ctx, "wiki1", false, "en"))
	before := store.Writes()

	require.NoError(t, m.MakePublic(ctx, "wiki1"))
	assert.Equal(t, before+1, store.Writes())
}

func TestCreateDefaultWikiRejected(t *testing.T) {
	m, _, _, _ := newManager(t)
	assert.Error(t, m.CreateWiki(context.Background(), configdb.DefaultWikiID, false, "en"))
}

func TestCreateWikiAggregatesFailures(t *testing.T) {
	ctx := context.Background()
	m, store, _, _ := newManager(t)
	store.FailOn("UpsertWikiExtensions", errors.New("disk full"))

	err := m.CreateWiki(ctx, "wiki1", false, "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed extensions")
	assert.Contains(t, err.Error(), "disk full")

	ns, err := store.ListWikiNamespaces(ctx, "wiki1")
	require.NoError(t, err)
	assert.Len(t, ns, 2, "later steps still run")
}

func TestCreateWikiInvalidatesSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	seedDefault(t, store)
	reg := testRegistry()
	cache, err := configcache.New(store, reg)
	require.NoError(t, err)
	defer cache.Close()

	env := &changeset.Env{Store: store, Invalidator: cache, Registry: reg}
	m := New(env, wikistate.New(store))

	before, err := cache.Get(ctx, "wiki1")
	require.NoError(t, err)
	assert.Empty(t, before.Extensions)

	require.NoError(t, m.CreateWiki(ctx, "wiki1", false, "en"))
	after, err := cache.Get(ctx, "wiki1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cite"}, after.Extensions)
	assert.Contains(t, after.Namespaces, "Talk")
}
