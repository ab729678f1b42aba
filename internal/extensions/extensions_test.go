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

package extensions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/changeset"
	"github.com/cardinalhq/wikifarm/internal/memdb"
	"github.com/cardinalhq/wikifarm/internal/registry"
	"github.com/cardinalhq/wikifarm/internal/requirements"
)

type recordingInvalidator struct{ wikis []string }

func (r *recordingInvalidator) Invalidate(_ context.Context, wikiID string) error {
	r.wikis = append(r.wikis, wikiID)
	return nil
}

type stubInstaller struct {
	failInstall bool
	installed   []*registry.Actions
	uninstalled []*registry.Actions
}

func (s *stubInstaller) Install(_ context.Context, _ string, a *registry.Actions) bool {
	s.installed = append(s.installed, a)
	return !s.failInstall
}

func (s *stubInstaller) Uninstall(_ context.Context, _ string, a *registry.Actions) bool {
	s.uninstalled = append(s.uninstalled, a)
	return false
}

func testRegistry() *registry.Registry {
	r := &registry.Registry{}
	r.AddExtension(&registry.Extension{ID: "cite", Name: "Cite"})
	r.AddExtension(&registry.Extension{ID: "vector", Name: "Vector", Conflicts: []string{"timeless"}})
	r.AddExtension(&registry.Extension{ID: "timeless", Name: "Timeless", Conflicts: []string{"vector"}})
	r.AddExtension(&registry.Extension{
		ID:       "checkuser",
		Name:     "CheckUser",
		Requires: requirements.Spec{"permissions": []any{"managewiki-restricted"}},
	})
	r.AddExtension(&registry.Extension{
		ID:       "citethispage",
		Name:     "CiteThisPage",
		Requires: requirements.Spec{"extensions": []any{"cite"}},
	})
	r.AddExtension(&registry.Extension{
		ID:      "lore",
		Name:    "Lore",
		Install: &registry.Actions{Settings: map[string]any{"wgLoreEnabled": true}},
		Remove:  &registry.Actions{Settings: map[string]any{"wgLoreEnabled": false}},
	})
	return r
}

type fixture struct {
	store *memdb.Store
	inv   *recordingInvalidator
	inst  *stubInstaller
	env   *changeset.Env
}

func newFixture(t *testing.T, enabled ...string) *fixture {
	t.Helper()
	store := memdb.New()
	if len(enabled) > 0 {
		require.NoError(t, store.UpsertWikiExtensions(context.Background(), configdb.UpsertWikiExtensionsParams{
			WikiID:     "wiki1",
			Extensions: enabled,
		}))
	}
	f := &fixture{store: store, inv: &recordingInvalidator{}, inst: &stubInstaller{}}
	f.env = &changeset.Env{
		Store:       store,
		Invalidator: f.inv,
		Installer:   f.inst,
		Registry:    testRegistry(),
		Tenant: func(_ context.Context, wikiID string) requirements.Tenant {
			return requirements.Tenant{WikiID: wikiID, Actor: requirements.Rights{}}
		},
	}
	return f
}

func (f *fixture) load(t *testing.T) *ChangeSet {
	t.Helper()
	cs, err := Load(context.Background(), f.env, "wiki1")
	require.NoError(t, err)
	return cs
}

func (f *fixture) stored(t *testing.T) []string {
	t.Helper()
	row, err := f.store.GetWikiSettings(context.Background(), "wiki1")
	require.NoError(t, err)
	return row.Extensions
}

func TestLoadRequiresRegistry(t *testing.T) {
	_, err := Load(context.Background(), &changeset.Env{Store: memdb.New()}, "wiki1")
	assert.ErrorIs(t, err, ErrNoRegistry)
	_, err = Load(context.Background(), &changeset.Env{}, "wiki1")
	assert.ErrorIs(t, err, changeset.ErrNoStore)
}

func TestAddUnknownIsRecorded(t *testing.T) {
	f := newFixture(t)
	cs := f.load(t)
	cs.Add("cite", "nope")

	assert.Equal(t, []string{"cite"}, cs.List())
	assert.Equal(t, []string{"cite"}, cs.ChangedIDs())
	require.Len(t, cs.Errors(), 1)
	assert.Equal(t, changeset.ErrorRecord{Kind: changeset.KindUnknownExtension, Args: []string{"nope"}}, cs.Errors()[0])
}

func TestAddAlreadyEnabledStillStaged(t *testing.T) {
	f := newFixture(t, "cite")
	cs := f.load(t)
	cs.Add("cite")

	assert.Equal(t, []string{"cite"}, cs.List())
	assert.Equal(t, changeset.Change[int]{Old: 0, New: 1}, cs.Changes()["cite"])
}

func TestRemove(t *testing.T) {
	f := newFixture(t, "cite", "vector")
	cs := f.load(t)

	cs.Remove(false, "timeless")
	assert.False(t, cs.HasChanges())

	cs.Remove(true, "timeless")
	cs.Remove(false, "cite")
	assert.Equal(t, []string{"vector"}, cs.List())
	assert.Equal(t, []string{"timeless", "cite"}, cs.ChangedIDs())
	assert.Equal(t, changeset.Change[int]{Old: 1, New: 0}, cs.Changes()["cite"])
}

func TestOverwriteAllConverges(t *testing.T) {
	f := newFixture(t, "cite", "vector")
	f.env.Evaluate = func(context.Context, requirements.Spec, []string, bool, requirements.Tenant) bool { return true }
	cs := f.load(t)

	target := []string{"vector", "lore", "checkuser"}
	cs.OverwriteAll(target)
	assert.ElementsMatch(t, target, cs.List())

	require.NoError(t, cs.Commit(context.Background()))
	assert.ElementsMatch(t, target, cs.List())
	assert.ElementsMatch(t, target, f.stored(t))
}

func TestCommitRejectsConflicts(t *testing.T) {
	f := newFixture(t)
	cs := f.load(t)
	cs.Add("vector", "timeless")

	require.NoError(t, cs.Commit(context.Background()))

	assert.Equal(t, []string{"timeless"}, cs.List())
	assert.Equal(t, []string{"timeless"}, f.stored(t))
	require.Len(t, cs.Errors(), 1)
	assert.Equal(t, changeset.ErrorRecord{Kind: changeset.KindConflict, Args: []string{"Vector", "Timeless"}}, cs.Errors()[0])
	assert.Equal(t, []string{"wiki1"}, f.inv.wikis)
}

func TestCommitRequirements(t *testing.T) {
	t.Run("missing right rejects new extension", func(t *testing.T) {
		f := newFixture(t)
		cs := f.load(t)
		cs.Add("checkuser", "citethispage")

		require.NoError(t, cs.Commit(context.Background()))
		assert.Empty(t, cs.List())
		errs := cs.Errors()
		require.Len(t, errs, 2)
		assert.Equal(t, changeset.KindRequirements, errs[0].Kind)
		assert.Equal(t, []string{"CheckUser"}, errs[0].Args)
		assert.Equal(t, []string{"CiteThisPage"}, errs[1].Args)
	})

	t.Run("already enabled bypasses permissions", func(t *testing.T) {
		f := newFixture(t, "checkuser")
		cs := f.load(t)
		cs.Add("cite")

		require.NoError(t, cs.Commit(context.Background()))
		assert.Equal(t, []string{"checkuser", "cite"}, cs.List())
		assert.Empty(t, cs.Errors())
	})

	t.Run("dependency satisfied", func(t *testing.T) {
		f := newFixture(t, "cite")
		cs := f.load(t)
		cs.Add("citethispage")

		require.NoError(t, cs.Commit(context.Background()))
		assert.Equal(t, []string{"cite", "citethispage"}, f.stored(t))
	})
}

func TestCommitInstall(t *testing.T) {
	t.Run("install runs for new extensions", func(t *testing.T) {
		f := newFixture(t)
		cs := f.load(t)
		cs.Add("lore")
		require.NoError(t, cs.Commit(context.Background()))
		assert.Len(t, f.inst.installed, 1)
		assert.Equal(t, []string{"lore"}, f.stored(t))
	})

	t.Run("install failure rejects", func(t *testing.T) {
		f := newFixture(t)
		f.inst.failInstall = true
		cs := f.load(t)
		cs.Add("lore", "cite")
		require.NoError(t, cs.Commit(context.Background()))
		assert.Equal(t, []string{"cite"}, f.stored(t))
		require.Len(t, cs.Errors(), 1)
		assert.Equal(t, changeset.KindInstall, cs.Errors()[0].Kind)
		assert.Equal(t, "cite", cs.LogParams()["changes"])
	})

	t.Run("uninstall is best effort", func(t *testing.T) {
		f := newFixture(t, "lore", "cite")
		cs := f.load(t)
		cs.Remove(false, "lore")
		require.NoError(t, cs.Commit(context.Background()))
		assert.Len(t, f.inst.uninstalled, 1)
		assert.Empty(t, cs.Errors())
		assert.Equal(t, []string{"cite"}, f.stored(t))
		assert.Equal(t, "lore", cs.LogParams()["changes"])
	})
}

func TestCommitLifecycle(t *testing.T) {
	f := newFixture(t)
	cs := f.load(t)

	err := changeset.Scoped(cs, func(cs *ChangeSet) error {
		cs.Add("cite")
		return nil
	})
	assert.ErrorIs(t, err, changeset.ErrUncommitted)

	require.NoError(t, cs.Commit(context.Background()))
	assert.ErrorIs(t, cs.Commit(context.Background()), changeset.ErrAlreadyCommitted)

	cs2 := f.load(t)
	writes := f.store.Writes()
	require.NoError(t, cs2.Commit(context.Background()))
	assert.Equal(t, writes, f.store.Writes())
}

func TestCommitStoreFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection reset")
	f.store.FailOn("UpsertWikiExtensions", boom)

	cs := f.load(t)
	cs.Add("cite")
	err := cs.Commit(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, cs.Committed())
	assert.Empty(t, f.inv.wikis)
}

func TestLoadPrunesUnknown(t *testing.T) {
	f := newFixture(t, "cite", "retired", "vector")
	cs := f.load(t)

	assert.Equal(t, []string{"cite", "vector"}, cs.List())
	assert.Equal(t, []string{"retired"}, cs.Pruned())
	assert.False(t, cs.HasChanges())

	require.NoError(t, cs.Commit(context.Background()))
	assert.Equal(t, []string{"cite", "vector"}, f.stored(t))
	assert.Equal(t, []string{"wiki1"}, f.inv.wikis)

	writes := f.store.Writes()
	require.NoError(t, f.load(t).Commit(context.Background()))
	assert.Equal(t, writes, f.store.Writes())
}
