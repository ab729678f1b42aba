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

// Package permissions stages user group rights for a wiki.
package permissions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/changeset"
)

const (
	Domain    = "permissions"
	LogAction = "rights"
)

// Field names used in staged diffs.
const (
	FieldPermissions  = "permissions"
	FieldAddgroups    = "addgroups"
	FieldRemovegroups = "removegroups"
	FieldAddself      = "addself"
	FieldRemoveself   = "removeself"
	FieldAutopromote  = "autopromote"
)

var setFields = []string{FieldPermissions, FieldAddgroups, FieldRemovegroups, FieldAddself, FieldRemoveself}

// Group is the rights configuration of one user group.
type Group struct {
	Permissions  []string        `json:"permissions"`
	Addgroups    []string        `json:"addgroups"`
	Removegroups []string        `json:"removegroups"`
	Addself      []string        `json:"addself"`
	Removeself   []string        `json:"removeself"`
	Autopromote  json.RawMessage `json:"autopromote"`
}

func emptyGroup() Group {
	return Group{
		Permissions:  []string{},
		Addgroups:    []string{},
		Removegroups: []string{},
		Addself:      []string{},
		Removeself:   []string{},
	}
}

func fromRow(r configdb.WikiPermission) Group {
	g := emptyGroup()
	g.Permissions = append(g.Permissions, r.Permissions...)
	g.Addgroups = append(g.Addgroups, r.Addgroups...)
	g.Removegroups = append(g.Removegroups, r.Removegroups...)
	g.Addself = append(g.Addself, r.Addself...)
	g.Removeself = append(g.Removeself, r.Removeself...)
	if len(r.Autopromote) > 0 && !bytes.Equal(r.Autopromote, []byte("null")) {
		g.Autopromote = slices.Clone(r.Autopromote)
	}
	return g
}

func (g Group) row(wikiID, name string) configdb.WikiPermission {
	return configdb.WikiPermission{
		WikiID:       wikiID,
		GroupName:    name,
		Permissions:  slices.Clone(g.Permissions),
		Addgroups:    slices.Clone(g.Addgroups),
		Removegroups: slices.Clone(g.Removegroups),
		Addself:      slices.Clone(g.Addself),
		Removeself:   slices.Clone(g.Removeself),
		Autopromote:  slices.Clone(g.Autopromote),
	}
}

func (g Group) clone() Group {
	return fromRow(g.row("", ""))
}

func (g *Group) set(field string) *[]string {
	switch field {
	case FieldPermissions:
		return &g.Permissions
	case FieldAddgroups:
		return &g.Addgroups
	case FieldRemovegroups:
		return &g.Removegroups
	case FieldAddself:
		return &g.Addself
	case FieldRemoveself:
		return &g.Removeself
	}
	return nil
}

// SetDelta adds and removes members of one set field. Removal wins when
// a value appears in both.
type SetDelta struct {
	Add    []string
	Remove []string
}

func (d SetDelta) apply(current []string) []string {
	out := slices.Clone(current)
	for _, v := range d.Add {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return slices.DeleteFunc(out, func(v string) bool { return slices.Contains(d.Remove, v) })
}

// Update is a partial group modification. Autopromote, when non-nil,
// replaces the stored condition; a JSON null clears it.
type Update struct {
	Permissions  SetDelta
	Addgroups    SetDelta
	Removegroups SetDelta
	Addself      SetDelta
	Removeself   SetDelta
	Autopromote  *json.RawMessage
}

func (u Update) delta(field string) SetDelta {
	switch field {
	case FieldPermissions:
		return u.Permissions
	case FieldAddgroups:
		return u.Addgroups
	case FieldRemovegroups:
		return u.Removegroups
	case FieldAddself:
		return u.Addself
	case FieldRemoveself:
		return u.Removeself
	}
	return SetDelta{}
}

// Diff is the staged change of one group, keyed by field.
type Diff = changeset.Change[map[string]any]

// ChangeSet is a single-use set of group changes for one wiki.
type ChangeSet struct {
	changeset.Base

	env      *changeset.Env
	loaded   map[string]Group
	live     map[string]Group
	removals []string
	pending  *changeset.Tracker[string, map[string]any]
}

func Load(ctx context.Context, env *changeset.Env, wikiID string) (*ChangeSet, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	rows, err := env.Store.ListWikiPermissions(ctx, wikiID)
	if err != nil {
		return nil, fmt.Errorf("load permissions for %s: %w", wikiID, err)
	}
	cs := &ChangeSet{
		Base:    changeset.NewBase(Domain, wikiID, LogAction),
		env:     env,
		loaded:  make(map[string]Group, len(rows)),
		live:    make(map[string]Group, len(rows)),
		pending: changeset.NewTracker[string, map[string]any](),
	}
	for _, r := range rows {
		g := fromRow(r)
		cs.loaded[r.GroupName] = g
		cs.live[r.GroupName] = g.clone()
	}
	return cs, nil
}

// List returns every live group.
func (cs *ChangeSet) List() map[string]Group {
	out := make(map[string]Group, len(cs.live))
	for name, g := range cs.live {
		out[name] = g.clone()
	}
	return out
}

// GroupNames returns the live group names, sorted.
func (cs *ChangeSet) GroupNames() []string {
	return slices.Sorted(maps.Keys(cs.live))
}

// Group returns the named group, or the empty shape when it does not exist.
func (cs *ChangeSet) Group(name string) Group {
	if g, ok := cs.live[name]; ok {
		return g.clone()
	}
	return emptyGroup()
}

func (cs *ChangeSet) Removals() []string {
	return slices.Clone(cs.removals)
}

func (cs *ChangeSet) Changes() map[string]Diff {
	out := make(map[string]Diff, cs.pending.Len())
	for _, k := range cs.pending.Keys() {
		d, _ := cs.pending.Get(k)
		out[k] = d
	}
	return out
}

func (cs *ChangeSet) HasChanges() bool {
	return cs.pending.Len() > 0
}

func (cs *ChangeSet) isRemoved(name string) bool {
	return slices.Contains(cs.removals, name)
}

// Modify merges u into the staged state of group.
func (cs *ChangeSet) Modify(group string, u Update) {
	if cs.isRemoved(group) {
		cs.removals = slices.DeleteFunc(cs.removals, func(r string) bool { return r == group })
		cs.pending.Delete(group)
	}
	g, ok := cs.live[group]
	if !ok {
		g = emptyGroup()
	}
	g = g.clone()
	for _, f := range setFields {
		p := g.set(f)
		*p = u.delta(f).apply(*p)
	}
	if u.Autopromote != nil {
		if len(*u.Autopromote) == 0 || bytes.Equal(*u.Autopromote, []byte("null")) {
			g.Autopromote = nil
		} else {
			g.Autopromote = slices.Clone(*u.Autopromote)
		}
	}
	cs.live[group] = g
	cs.restage(group)
}

func (cs *ChangeSet) restage(group string) {
	orig, ok := cs.loaded[group]
	if !ok {
		orig = emptyGroup()
	}
	cur := cs.live[group]
	diff := Diff{Old: map[string]any{}, New: map[string]any{}}
	for _, f := range setFields {
		a, b := *orig.set(f), *cur.set(f)
		if mapset.NewThreadUnsafeSet(a...).Equal(mapset.NewThreadUnsafeSet(b...)) {
			continue
		}
		diff.Old[f] = slices.Clone(a)
		diff.New[f] = slices.Clone(b)
	}
	if !rawEqual(orig.Autopromote, cur.Autopromote) {
		diff.Old[FieldAutopromote] = orig.Autopromote
		diff.New[FieldAutopromote] = cur.Autopromote
	}
	if len(diff.New) == 0 && ok {
		cs.pending.Delete(group)
		return
	}
	if len(diff.New) == 0 {
		// A new group with nothing in it is still created.
		diff.New = map[string]any{FieldPermissions: []string{}}
	}
	cs.pending.Set(group, diff)
}

// Remove stages deletion of group.
func (cs *ChangeSet) Remove(group string) {
	old := cs.loaded[group]
	cs.pending.Set(group, Diff{
		Old: map[string]any{FieldPermissions: slices.Clone(old.Permissions)},
		New: map[string]any{},
	})
	delete(cs.live, group)
	if !cs.isRemoved(group) {
		cs.removals = append(cs.removals, group)
	}
}

// Commit writes every staged group in one transaction and invalidates
// the cache. Groups are not gated by requirements.
func (cs *ChangeSet) Commit(ctx context.Context) (err error) {
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

	err = cs.env.Store.WithTx(ctx, func(q configdb.Querier) error {
		for _, name := range cs.pending.Keys() {
			if cs.isRemoved(name) {
				if err := q.DeleteWikiPermission(ctx, configdb.DeleteWikiPermissionParams{WikiID: wikiID, GroupName: name}); err != nil {
					return fmt.Errorf("delete group %s: %w", name, err)
				}
				continue
			}
			if err := q.UpsertWikiPermission(ctx, cs.live[name].row(wikiID, name)); err != nil {
				return fmt.Errorf("save group %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit permissions for %s: %w", wikiID, err)
	}

	cs.env.Invalidate(ctx, wikiID)
	cs.MarkCommitted()
	cs.AddLogParam("changes", strings.Join(cs.pending.Keys(), ", "))
	c.Logger().Info("Committed permissions", slog.Int("changes", cs.pending.Len()))
	return nil
}

func rawEqual(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return bytes.Equal(a, b)
	}
	ca, _ := json.Marshal(va)
	cb, _ := json.Marshal(vb)
	return bytes.Equal(ca, cb)
}
