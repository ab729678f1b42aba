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

package namespaces

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/changeset"
	"github.com/cardinalhq/wikifarm/internal/jobqueue"
	"github.com/cardinalhq/wikifarm/internal/memdb"
	"github.com/cardinalhq/wikifarm/internal/registry"
)

func ptr[T any](v T) *T { return &v }

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context, string) error {
	c.calls++
	return nil
}

type fixture struct {
	store *memdb.Store
	jobs  *jobqueue.Recorder
	inv   *countingInvalidator
	env   *changeset.Env
}

func newFixture(t *testing.T, wikiID string, rows ...configdb.WikiNamespace) *fixture {
	t.Helper()
	store := memdb.New()
	for _, r := range rows {
		r.WikiID = wikiID
		require.NoError(t, store.UpsertWikiNamespace(context.Background(), r))
	}
	f := &fixture{store: store, jobs: &jobqueue.Recorder{}, inv: &countingInvalidator{}}
	f.env = &changeset.Env{
		Store:       store,
		Jobs:        f.jobs,
		Invalidator: f.inv,
		Registry:    &registry.Registry{DisallowedNamespaceNames: []string{"Special", "Media"}},
	}
	return f
}

func (f *fixture) load(t *testing.T, wikiID string) *ChangeSet {
	t.Helper()
	cs, err := Load(context.Background(), f.env, wikiID)
	require.NoError(t, err)
	return cs
}

func (f *fixture) payloads(t *testing.T) []MigrationJob {
	t.Helper()
	var out []MigrationJob
	for _, j := range f.jobs.Jobs() {
		assert.Equal(t, jobqueue.TaskNamespaceMigration, j.Task)
		var p MigrationJob
		require.NoError(t, json.Unmarshal(j.Payload, &p))
		out = append(out, p)
	}
	return out
}

var helpRow = configdb.WikiNamespace{
	NamespaceID:  12,
	Name:         "Help",
	Searchable:   true,
	Subpages:     true,
	ContentModel: "wikitext",
	Aliases:      []string{"H"},
	Additional:   map[string]any{"wgNamespaceRobotPolicies": "noindex"},
}

func TestModifyTracksFieldDiffs(t *testing.T) {
	f := newFixture(t, "wiki1", helpRow)
	cs := f.load(t, "wiki1")

	cs.Modify(12, Update{Name: ptr("Aide"), Searchable: ptr(true)}, false)
	require.True(t, cs.HasChanges())
	diff := cs.Changes()[12]
	assert.Equal(t, map[string]any{FieldName: "Help"}, diff.Old)
	assert.Equal(t, map[string]any{FieldName: "Aide"}, diff.New)

	cs.Modify(12, Update{Subpages: ptr(false)}, false)
	assert.Len(t, cs.Changes()[12].New, 2)

	cs.Modify(12, Update{Name: ptr("Help"), Subpages: ptr(true)}, false)
	assert.False(t, cs.HasChanges())
}

func TestModifyAliasesAsSet(t *testing.T) {
	f := newFixture(t, "wiki1", configdb.WikiNamespace{NamespaceID: 4, Name: "Project", Aliases: []string{"P", "WP"}})
	cs := f.load(t, "wiki1")

	cs.Modify(4, Update{Aliases: []string{"WP", "P"}}, false)
	assert.False(t, cs.HasChanges())

	cs.Modify(4, Update{Aliases: []string{"WP"}}, false)
	assert.True(t, cs.HasChanges())
}

func TestModifyAdditionalNumbers(t *testing.T) {
	row := configdb.WikiNamespace{NamespaceID: 0, Name: "", Additional: map[string]any{"wgLimit": 5}}
	f := newFixture(t, "wiki1", row)
	cs := f.load(t, "wiki1")

	cs.Modify(0, Update{Additional: map[string]any{"wgLimit": 5}}, false)
	assert.False(t, cs.HasChanges())
}

func TestDisallowedNameIsAdvisory(t *testing.T) {
	f := newFixture(t, "wiki1")
	cs := f.load(t, "wiki1")

	cs.Modify(3000, Update{Name: ptr("special")}, false)

	require.Len(t, cs.Errors(), 1)
	assert.Equal(t, changeset.KindDisallowedNamespace, cs.Errors()[0].Kind)
	ns, ok := cs.Namespace(3000)
	require.True(t, ok)
	assert.Equal(t, "special", ns.Name)
	assert.True(t, cs.HasChanges())
}

func TestCommitPersistsAndQueues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "wiki1")
	cs := f.load(t, "wiki1")

	cs.Modify(3000, Update{Name: ptr("Lore"), Content: ptr(true), Aliases: []string{"LO"}}, true)
	require.NoError(t, cs.Commit(ctx, true))

	rows, err := f.store.ListWikiNamespaces(ctx, "wiki1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Lore", rows[0].Name)
	assert.True(t, rows[0].Content)
	assert.Equal(t, "wikitext", rows[0].ContentModel)
	assert.Equal(t, []string{"LO"}, rows[0].Aliases)

	p := f.payloads(t)
	require.Len(t, p, 1)
	assert.Equal(t, MigrationJob{Action: "rename", NsID: 3000, NsName: "Lore", MaintainPrefix: true}, p[0])
	assert.Equal(t, 1, f.inv.calls)
	assert.Equal(t, LogAction, cs.LogAction())
	assert.Equal(t, "Lore", cs.LogParams()[LogParamName])

	assert.ErrorIs(t, cs.Commit(ctx, true), changeset.ErrAlreadyCommitted)
}

func TestRecommitIdenticalWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "wiki1", helpRow)
	cs := f.load(t, "wiki1")

	cs.Modify(12, Update{
		Name:       ptr("Help"),
		Searchable: ptr(true),
		Subpages:   ptr(true),
		Aliases:    []string{"H"},
		Additional: map[string]any{"wgNamespaceRobotPolicies": "noindex"},
	}, false)
	assert.False(t, cs.HasChanges())

	writes := f.store.Writes()
	require.NoError(t, cs.Commit(ctx, true))
	assert.Equal(t, writes, f.store.Writes())
	assert.Empty(t, f.jobs.Jobs())
	assert.Zero(t, f.inv.calls)
}

func TestRemoveQueuesDeleteJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "wiki1", configdb.WikiNamespace{NamespaceID: 5, Name: "Project_talk"})
	cs := f.load(t, "wiki1")

	cs.Remove(5, 0, false)
	assert.Equal(t, []int32{5}, cs.Removals())
	_, ok := cs.Namespace(5)
	assert.False(t, ok)

	require.NoError(t, cs.Commit(ctx, true))

	rows, err := f.store.ListWikiNamespaces(ctx, "wiki1")
	require.NoError(t, err)
	assert.Empty(t, rows)

	p := f.payloads(t)
	require.Len(t, p, 1)
	assert.Equal(t, "delete", p[0].Action)
	assert.Equal(t, int32(5), p[0].NsID)
	assert.Equal(t, "Project_talk", p[0].NsOldName)
	require.NotNil(t, p[0].NsNewName)
	assert.Equal(t, int32(0), *p[0].NsNewName)
	assert.Equal(t, LogActionDel, cs.LogAction())
	_, set := cs.LogParam(LogParamName)
	assert.False(t, set)
}

func TestRemoveEvenIDKeepsLogParam(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "wiki1",
		configdb.WikiNamespace{NamespaceID: 4, Name: "Project"},
		configdb.WikiNamespace{NamespaceID: 5, Name: "Project_talk"},
	)
	cs := f.load(t, "wiki1")

	cs.Remove(4, 0, false)
	cs.Modify(5, Update{Name: ptr("Project_discussion")}, false)
	require.NoError(t, cs.Commit(ctx, true))

	assert.Equal(t, LogActionDel, cs.LogAction())
	assert.Equal(t, map[string]string{LogParamName: "Project"}, cs.LogParams())

	p := f.payloads(t)
	require.Len(t, p, 2)
	assert.Equal(t, "delete", p[0].Action)
	assert.Equal(t, int32(4), p[0].NsID)
	assert.Equal(t, "Project", p[0].NsOldName)
	assert.Equal(t, "rename", p[1].Action)
	assert.Equal(t, "Project_discussion", p[1].NsName)
	assert.Equal(t, 1, f.inv.calls)
}

func TestModifyAfterRemove(t *testing.T) {
	f := newFixture(t, "wiki1", helpRow)
	cs := f.load(t, "wiki1")

	cs.Remove(12, 0, false)
	cs.Modify(12, Update{Name: ptr("Help")}, false)

	assert.Empty(t, cs.Removals())
	ns, ok := cs.Namespace(12)
	require.True(t, ok)
	assert.Equal(t, "Help", ns.Name)
	assert.False(t, ns.Searchable)
	assert.Contains(t, cs.Changes()[12].New, FieldSearchable)
}

func TestLogParamParity(t *testing.T) {
	tests := []struct {
		name string
		ids  []int32
		want string
	}{
		{"even after odd overrides", []int32{5, 4}, "ns4"},
		{"odd after even keeps even", []int32{4, 5}, "ns4"},
		{"first odd wins over odd", []int32{7, 5}, "ns7"},
		{"last even wins", []int32{2, 4}, "ns4"},
		{"negative even", []int32{-1, -2}, "ns-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "wiki1")
			cs := f.load(t, "wiki1")
			for _, id := range tt.ids {
				cs.Modify(id, Update{Name: ptr(nsName(id))}, false)
			}
			require.NoError(t, cs.Commit(context.Background(), false))
			assert.Equal(t, tt.want, cs.LogParams()[LogParamName])
			assert.Empty(t, f.jobs.Jobs())
			assert.Equal(t, 1, f.inv.calls)
		})
	}
}

func nsName(id int32) string {
	return "ns" + strconv.Itoa(int(id))
}

func TestDefaultWikiSkipsJobsAndInvalidation(t *testing.T) {
	f := newFixture(t, configdb.DefaultWikiID)
	cs := f.load(t, configdb.DefaultWikiID)
	cs.Modify(0, Update{Name: ptr("Main"), Content: ptr(true)}, false)

	require.NoError(t, cs.Commit(context.Background(), true))
	assert.Empty(t, f.jobs.Jobs())
	assert.Zero(t, f.inv.calls)
	assert.True(t, cs.Committed())
}

func TestDispatchFailureIsIgnored(t *testing.T) {
	f := newFixture(t, "wiki1")
	f.jobs.Err = errors.New("queue down")
	cs := f.load(t, "wiki1")
	cs.Modify(100, Update{Name: ptr("Portal")}, false)

	require.NoError(t, cs.Commit(context.Background(), true))
	assert.True(t, cs.Committed())
	assert.Equal(t, 1, f.inv.calls)
}

func TestCommitRollsBackOnStoreError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "wiki1", helpRow)
	boom := errors.New("constraint violation")
	f.store.FailOn("DeleteWikiNamespace", boom)

	cs := f.load(t, "wiki1")
	cs.Modify(100, Update{Name: ptr("Portal")}, false)
	cs.Remove(12, 0, false)

	err := cs.Commit(ctx, true)
	assert.ErrorIs(t, err, boom)
	assert.False(t, cs.Committed())

	rows, err := f.store.ListWikiNamespaces(ctx, "wiki1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Help", rows[0].Name)
	assert.Empty(t, f.jobs.Jobs())
}

func TestCommitFailureLeavesLogUntouched(t *testing.T) {
	f := newFixture(t, "wiki1", helpRow)
	f.store.FailOn("DeleteWikiNamespace", errors.New("constraint violation"))

	cs := f.load(t, "wiki1")
	cs.Modify(100, Update{Name: ptr("Portal")}, false)
	cs.Remove(12, 0, false)

	require.Error(t, cs.Commit(context.Background(), true))
	assert.Equal(t, LogAction, cs.LogAction())
	assert.Empty(t, cs.LogParams())
}

func TestScopedGuard(t *testing.T) {
	f := newFixture(t, "wiki1")
	cs := f.load(t, "wiki1")
	err := changeset.Scoped(cs, func(cs *ChangeSet) error {
		cs.Modify(100, Update{Name: ptr("Portal")}, false)
		return nil
	})
	assert.ErrorIs(t, err, changeset.ErrUncommitted)
}
