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

// Package extensions stages and commits which catalogue extensions are
// enabled on a wiki.
package extensions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/changeset"
	"github.com/cardinalhq/wikifarm/internal/logctx"
)

const Domain = "extensions"

var ErrNoRegistry = errors.New("extensions: no registry configured")

// ChangeSet is a single-use set of extension changes for one wiki.
// A pending value of 1 means enabled, 0 disabled.
type ChangeSet struct {
	changeset.Base

	env     *changeset.Env
	live    []string
	enabled mapset.Set[string]
	pending *changeset.Tracker[string, int]
	// pruned lists stored ids the catalogue no longer knows. They are
	// dropped at load and the next commit rewrites the list without them.
	pruned []string
}

// Load reads the enabled extensions of wikiID. A wiki without a settings
// row starts with nothing enabled. Stored ids missing from the catalogue
// are logged and left out.
func Load(ctx context.Context, env *changeset.Env, wikiID string) (*ChangeSet, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if env.Registry == nil {
		return nil, ErrNoRegistry
	}
	row, err := env.Store.GetWikiSettings(ctx, wikiID)
	if err != nil && !errors.Is(err, configdb.ErrNotFound) {
		return nil, fmt.Errorf("load extensions for %s: %w", wikiID, err)
	}
	cs := &ChangeSet{
		Base:    changeset.NewBase(Domain, wikiID, "settings"),
		env:     env,
		enabled: mapset.NewThreadUnsafeSet[string](),
		pending: changeset.NewTracker[string, int](),
	}
	for _, id := range row.Extensions {
		if _, ok := env.Registry.Extension(id); !ok {
			cs.pruned = append(cs.pruned, id)
			continue
		}
		if cs.enabled.Add(id) {
			cs.live = append(cs.live, id)
		}
	}
	if len(cs.pruned) > 0 {
		logctx.FromContext(ctx).Warn("Ignoring enabled extensions missing from the catalogue",
			slog.String("wikiID", wikiID),
			slog.Any("extensions", cs.pruned))
	}
	return cs, nil
}

// Pruned returns stored ids that Load dropped because the catalogue does
// not define them.
func (cs *ChangeSet) Pruned() []string {
	return slices.Clone(cs.pruned)
}

// List returns the staged-enabled ids, loaded ones first, then additions.
func (cs *ChangeSet) List() []string {
	return slices.Clone(cs.live)
}

func (cs *ChangeSet) IsEnabled(id string) bool {
	return cs.enabled.Contains(id)
}

// Changes returns the staged transitions in staging order.
func (cs *ChangeSet) Changes() map[string]changeset.Change[int] {
	out := make(map[string]changeset.Change[int], cs.pending.Len())
	for _, k := range cs.pending.Keys() {
		c, _ := cs.pending.Get(k)
		out[k] = c
	}
	return out
}

// ChangedIDs returns the staged ids in staging order.
func (cs *ChangeSet) ChangedIDs() []string {
	return cs.pending.Keys()
}

func (cs *ChangeSet) HasChanges() bool {
	return cs.pending.Len() > 0
}

// Add stages ids as enabled. Ids missing from the catalogue are recorded
// and skipped. An id that is already enabled is still staged.
func (cs *ChangeSet) Add(ids ...string) {
	for _, id := range ids {
		if _, ok := cs.env.Registry.Extension(id); !ok {
			cs.Record(changeset.KindUnknownExtension, id)
			continue
		}
		cs.pending.Set(id, changeset.Change[int]{Old: 0, New: 1})
		if cs.enabled.Add(id) {
			cs.live = append(cs.live, id)
		}
	}
}

// Remove stages ids as disabled. Without force, ids that are not enabled
// are ignored.
func (cs *ChangeSet) Remove(force bool, ids ...string) {
	for _, id := range ids {
		if !force && !cs.enabled.Contains(id) {
			continue
		}
		cs.pending.Set(id, changeset.Change[int]{Old: 1, New: 0})
		cs.drop(id)
	}
}

// OverwriteAll converges the enabled set onto target, walking the
// catalogue in order.
func (cs *ChangeSet) OverwriteAll(target []string) {
	want := mapset.NewThreadUnsafeSet(target...)
	for _, id := range cs.env.Registry.ExtensionIDs() {
		switch {
		case want.Contains(id) && !cs.enabled.Contains(id):
			cs.Add(id)
		case !want.Contains(id) && cs.enabled.Contains(id):
			cs.Remove(false, id)
		}
	}
}

func (cs *ChangeSet) drop(id string) {
	if !cs.enabled.Contains(id) {
		return
	}
	cs.enabled.Remove(id)
	cs.live = slices.DeleteFunc(cs.live, func(s string) bool { return s == id })
}

func (cs *ChangeSet) displayName(id string) string {
	if ext, ok := cs.env.Registry.Extension(id); ok {
		return ext.DisplayName()
	}
	return id
}

// Commit gates every staged-enabled extension through its conflicts,
// requirements and install actions, uninstalls removed extensions, then
// writes the surviving list. Rejections are read from Errors afterwards;
// the returned error only reports store failures.
func (cs *ChangeSet) Commit(ctx context.Context) (err error) {
	if err := cs.CheckOpen(); err != nil {
		return err
	}
	ctx, c := changeset.StartCommit(ctx, Domain, cs.WikiID())
	defer func() { c.End(ctx, err) }()
	logger := c.Logger()

	wikiID := cs.WikiID()
	tenant := cs.env.TenantFor(ctx, wikiID)
	evaluate := cs.env.Evaluator()
	rejected := false

	reject := func(id string, kind changeset.Kind, args ...string) {
		cs.drop(id)
		cs.pending.Delete(id)
		cs.Record(kind, args...)
		c.Reject(ctx, kind, id)
		rejected = true
	}

	for _, id := range cs.List() {
		if !cs.enabled.Contains(id) {
			continue
		}
		ext, ok := cs.env.Registry.Extension(id)
		if !ok {
			continue
		}

		var conflicts []string
		for _, other := range ext.Conflicts {
			if cs.enabled.Contains(other) {
				conflicts = append(conflicts, cs.displayName(other))
			}
		}
		if len(conflicts) > 0 {
			reject(id, changeset.KindConflict, append([]string{ext.DisplayName()}, conflicts...)...)
			continue
		}

		alreadyEnabled := !cs.pending.Has(id)
		if !evaluate(ctx, ext.Requires, cs.List(), alreadyEnabled, tenant) {
			reject(id, changeset.KindRequirements, ext.DisplayName())
			continue
		}

		if ext.Install != nil && !alreadyEnabled {
			if !cs.env.Install(ctx, wikiID, ext.Install) {
				reject(id, changeset.KindInstall, ext.DisplayName())
			}
		}
	}

	for _, id := range cs.pending.Keys() {
		change, _ := cs.pending.Get(id)
		if change.New != 0 {
			continue
		}
		ext, ok := cs.env.Registry.Extension(id)
		if !ok || ext.Remove == nil {
			continue
		}
		if !cs.env.Uninstall(ctx, wikiID, ext.Remove) {
			logger.Warn("Failed to uninstall extension", slog.String("extension", id))
		}
	}

	if cs.pending.Len() > 0 || rejected || len(cs.pruned) > 0 {
		extensions := cs.List()
		err = cs.env.Store.WithTx(ctx, func(q configdb.Querier) error {
			return q.UpsertWikiExtensions(ctx, configdb.UpsertWikiExtensionsParams{
				WikiID:     wikiID,
				Extensions: extensions,
			})
		})
		if err != nil {
			return fmt.Errorf("save extensions for %s: %w", wikiID, err)
		}
		cs.env.Invalidate(ctx, wikiID)
	}

	cs.MarkCommitted()
	cs.AddLogParam("changes", strings.Join(cs.pending.Keys(), ", "))
	logger.Info("Committed extensions",
		slog.Int("changes", cs.pending.Len()),
		slog.Int("enabled", len(cs.live)))
	return nil
}
