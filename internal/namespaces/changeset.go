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

// Package namespaces stages namespace definitions for a wiki and commits
// them together with the page migration jobs they imply.
package namespaces

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/changeset"
	"github.com/cardinalhq/wikifarm/internal/jobqueue"
)

const (
	Domain       = "namespaces"
	LogAction    = "namespaces"
	LogActionDel = "namespaces-delete"
	LogParamName = "namespace"
)

// MigrationJob is the payload of a namespace-migration job.
type MigrationJob struct {
	Action         string `json:"action"`
	NsID           int32  `json:"nsId"`
	NsName         string `json:"nsName,omitempty"`
	NsOldName      string `json:"nsOldName,omitempty"`
	NsNewName      *int32 `json:"nsNewName,omitempty"`
	MaintainPrefix bool   `json:"maintainPrefix"`
}

// Diff is the staged change of one namespace: changed fields with their
// load-time and staged values. Removals carry the old name in Old and the
// target namespace id plus maintainPrefix in New.
type Diff = changeset.Change[map[string]any]

// ChangeSet is a single-use set of namespace changes for one wiki.
type ChangeSet struct {
	changeset.Base

	env      *changeset.Env
	loaded   map[int32]Namespace
	live     map[int32]Namespace
	removals []int32
	pending  *changeset.Tracker[int32, map[string]any]
}

func Load(ctx context.Context, env *changeset.Env, wikiID string) (*ChangeSet, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	rows, err := env.Store.ListWikiNamespaces(ctx, wikiID)
	if err != nil {
		return nil, fmt.Errorf("load namespaces for %s: %w", wikiID, err)
	}
	cs := &ChangeSet{
		Base:    changeset.NewBase(Domain, wikiID, LogAction),
		env:     env,
		loaded:  make(map[int32]Namespace, len(rows)),
		live:    make(map[int32]Namespace, len(rows)),
		pending: changeset.NewTracker[int32, map[string]any](),
	}
	for _, r := range rows {
		ns := fromRow(r)
		cs.loaded[ns.ID] = ns
		cs.live[ns.ID] = ns.clone()
	}
	return cs, nil
}

// List returns every live namespace ordered by id.
func (cs *ChangeSet) List() []Namespace {
	ids := slices.Sorted(maps.Keys(cs.live))
	out := make([]Namespace, 0, len(ids))
	for _, id := range ids {
		out = append(out, cs.live[id].clone())
	}
	return out
}

// Namespace returns the live namespace, or the default shape when id is
// not defined.
func (cs *ChangeSet) Namespace(id int32) (Namespace, bool) {
	ns, ok := cs.live[id]
	if !ok {
		return Default(id), false
	}
	return ns.clone(), true
}

func (cs *ChangeSet) Removals() []int32 {
	return slices.Clone(cs.removals)
}

// Changes returns the staged diffs keyed by namespace id.
func (cs *ChangeSet) Changes() map[int32]Diff {
	out := make(map[int32]Diff, cs.pending.Len())
	for _, id := range cs.pending.Keys() {
		d, _ := cs.pending.Get(id)
		out[id] = d
	}
	return out
}

func (cs *ChangeSet) ChangedIDs() []int32 {
	return cs.pending.Keys()
}

func (cs *ChangeSet) HasChanges() bool {
	return cs.pending.Len() > 0
}

func (cs *ChangeSet) isRemoved(id int32) bool {
	return slices.Contains(cs.removals, id)
}

// Modify applies the fields present in u. A disallowed name is recorded
// but still applied.
func (cs *ChangeSet) Modify(id int32, u Update, maintainPrefix bool) {
	if u.Name != nil && cs.env.Registry != nil && cs.env.Registry.IsDisallowedNamespaceName(*u.Name) {
		cs.Record(changeset.KindDisallowedNamespace, *u.Name)
	}

	if cs.isRemoved(id) {
		cs.removals = slices.DeleteFunc(cs.removals, func(r int32) bool { return r == id })
		cs.pending.Delete(id)
	}

	next, ok := cs.live[id]
	if !ok {
		next = Default(id)
	}
	next = next.clone()
	next.apply(u)
	next.MaintainPrefix = maintainPrefix
	cs.live[id] = next
	cs.restage(id)
}

// restage recomputes the diff of id against its load-time value.
func (cs *ChangeSet) restage(id int32) {
	orig, ok := cs.loaded[id]
	if !ok {
		orig = Default(id)
	}
	cur := cs.live[id]
	diff := Diff{Old: map[string]any{}, New: map[string]any{}}
	for _, f := range fieldOrder {
		if fieldEqual(f, orig, cur) {
			continue
		}
		diff.Old[f] = orig.field(f)
		diff.New[f] = cur.field(f)
	}
	if len(diff.New) == 0 {
		cs.pending.Delete(id)
		return
	}
	cs.pending.Set(id, diff)
}

// Remove stages deletion of id. Pages move to newNamespaceID.
func (cs *ChangeSet) Remove(id, newNamespaceID int32, maintainPrefix bool) {
	oldName := cs.loaded[id].Name
	if ns, ok := cs.live[id]; ok {
		oldName = ns.Name
	}
	cs.pending.Set(id, Diff{
		Old: map[string]any{FieldName: oldName},
		New: map[string]any{FieldName: newNamespaceID, FieldMaintain: maintainPrefix},
	})
	delete(cs.live, id)
	if !cs.isRemoved(id) {
		cs.removals = append(cs.removals, id)
	}
}

// Commit writes every staged namespace in one transaction. Unless the
// wiki is the default template, it then queues one migration job per
// change when runMigrationJob is set and invalidates the cache once.
func (cs *ChangeSet) Commit(ctx context.Context, runMigrationJob bool) (err error) {
	if err := cs.CheckOpen(); err != nil {
		return err
	}
	wikiID := cs.WikiID()
	if !cs.HasChanges() {
		cs.MarkCommitted()
		return nil
	}

	ctx, c := changeset.StartCommit(ctx, Domain, wikiID)
	defer func() { c.End(ctx, err) }()

	// The log action and name are applied only once the transaction holds.
	var (
		payloads  []MigrationJob
		logAction string
		logName   string
		nameSet   bool
	)
	err = cs.env.Store.WithTx(ctx, func(q configdb.Querier) error {
		payloads = payloads[:0]
		logAction = ""
		logName, nameSet = cs.LogParam(LogParamName)
		for _, id := range cs.pending.Keys() {
			diff, _ := cs.pending.Get(id)
			if cs.isRemoved(id) {
				if err := q.DeleteWikiNamespace(ctx, configdb.DeleteWikiNamespaceParams{WikiID: wikiID, NamespaceID: id}); err != nil {
					return fmt.Errorf("delete namespace %d: %w", id, err)
				}
				oldName, _ := diff.Old[FieldName].(string)
				target, _ := diff.New[FieldName].(int32)
				maintain, _ := diff.New[FieldMaintain].(bool)
				logAction = LogActionDel
				if id%2 == 0 {
					logName, nameSet = oldName, true
				}
				payloads = append(payloads, MigrationJob{
					Action:         "delete",
					NsID:           id,
					NsOldName:      oldName,
					NsNewName:      &target,
					MaintainPrefix: maintain,
				})
				continue
			}

			ns := cs.live[id]
			if err := q.UpsertWikiNamespace(ctx, ns.row(wikiID)); err != nil {
				return fmt.Errorf("save namespace %d: %w", id, err)
			}
			payloads = append(payloads, MigrationJob{
				Action:         "rename",
				NsID:           id,
				NsName:         ns.Name,
				MaintainPrefix: ns.MaintainPrefix,
			})
			if !nameSet || id%2 == 0 {
				logName, nameSet = ns.Name, true
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit namespaces for %s: %w", wikiID, err)
	}
	if logAction != "" {
		cs.SetLogAction(logAction)
	}
	if nameSet {
		cs.AddLogParam(LogParamName, logName)
	}

	if wikiID != configdb.DefaultWikiID {
		if runMigrationJob {
			for _, p := range payloads {
				job, jerr := jobqueue.NewJob(wikiID, jobqueue.TaskNamespaceMigration, p)
				if jerr != nil {
					c.Logger().Warn("Failed to build migration job", slog.Int("nsId", int(p.NsID)), slog.Any("error", jerr))
					continue
				}
				cs.env.Dispatch(ctx, job)
			}
		}
		cs.env.Invalidate(ctx, wikiID)
	}

	cs.MarkCommitted()
	c.Logger().Info("Committed namespaces", slog.Int("changes", cs.pending.Len()))
	return nil
}
