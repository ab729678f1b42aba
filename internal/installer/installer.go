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

// Package installer applies the side actions extensions declare for
// install and removal: group rights, namespaces, settings and jobs.
package installer

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/changeset"
	"github.com/cardinalhq/wikifarm/internal/jobqueue"
	"github.com/cardinalhq/wikifarm/internal/logctx"
	"github.com/cardinalhq/wikifarm/internal/namespaces"
	"github.com/cardinalhq/wikifarm/internal/permissions"
	"github.com/cardinalhq/wikifarm/internal/registry"
	"github.com/cardinalhq/wikifarm/internal/wikistate"
)

// Installer runs actions through the same change sets a user would, so
// every write is cache-invalidated and logged.
type Installer struct {
	env   *changeset.Env
	state *wikistate.State
}

var _ changeset.Installer = (*Installer)(nil)

// New builds an installer over env. env.Installer is not consulted.
func New(env *changeset.Env, state *wikistate.State) *Installer {
	return &Installer{env: env, state: state}
}

func (i *Installer) Install(ctx context.Context, wikiID string, actions *registry.Actions) bool {
	return i.run(ctx, "install", wikiID, actions, true)
}

func (i *Installer) Uninstall(ctx context.Context, wikiID string, actions *registry.Actions) bool {
	return i.run(ctx, "uninstall", wikiID, actions, false)
}

func (i *Installer) run(ctx context.Context, op, wikiID string, actions *registry.Actions, install bool) bool {
	if actions == nil {
		return true
	}
	var errs *multierror.Error
	if len(actions.Permissions) > 0 {
		errs = multierror.Append(errs, i.permissions(ctx, wikiID, actions.Permissions, install))
	}
	if len(actions.Namespaces) > 0 {
		errs = multierror.Append(errs, i.namespaces(ctx, wikiID, actions.Namespaces, install))
	}
	if len(actions.Settings) > 0 {
		errs = multierror.Append(errs, i.settings(ctx, wikiID, actions.Settings, install))
	}
	if install && len(actions.Jobs) > 0 {
		errs = multierror.Append(errs, i.jobs(ctx, wikiID, actions.Jobs))
	}
	if err := errs.ErrorOrNil(); err != nil {
		logctx.FromContext(ctx).Error("Extension actions failed",
			slog.String("op", op),
			slog.String("wikiID", wikiID),
			slog.Any("error", err))
		return false
	}
	return true
}

func (i *Installer) permissions(ctx context.Context, wikiID string, grants map[string]registry.GroupGrant, install bool) error {
	cs, err := permissions.Load(ctx, i.env, wikiID)
	if err != nil {
		return err
	}
	for _, group := range slices.Sorted(maps.Keys(grants)) {
		g := grants[group]
		delta := func(values []string) permissions.SetDelta {
			if install {
				return permissions.SetDelta{Add: values}
			}
			return permissions.SetDelta{Remove: values}
		}
		u := permissions.Update{
			Permissions:  delta(g.Permissions),
			Addgroups:    delta(g.Addgroups),
			Removegroups: delta(g.Removegroups),
			Addself:      delta(g.Addself),
			Removeself:   delta(g.Removeself),
		}
		if install && len(g.Autopromote) > 0 {
			ap := g.Autopromote
			u.Autopromote = &ap
		}
		cs.Modify(group, u)
	}
	if err := cs.Commit(ctx); err != nil {
		return fmt.Errorf("permissions: %w", err)
	}
	return nil
}

func (i *Installer) namespaces(ctx context.Context, wikiID string, defs map[string]registry.NamespaceDef, install bool) error {
	cs, err := namespaces.Load(ctx, i.env, wikiID)
	if err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(defs)) {
		def := defs[name]
		if !install {
			cs.Remove(def.ID, 0, false)
			continue
		}
		contentModel := def.ContentModel
		if contentModel == "" {
			contentModel = namespaces.DefaultContentModel
		}
		aliases := def.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		additional := def.Additional
		if additional == nil {
			additional = map[string]any{}
		}
		cs.Modify(def.ID, namespaces.Update{
			Name:         &name,
			Searchable:   &def.Searchable,
			Subpages:     &def.Subpages,
			Content:      &def.Content,
			ContentModel: &contentModel,
			Protection:   &def.Protection,
			Aliases:      aliases,
			Core:         &def.Core,
			Additional:   additional,
		}, false)
	}
	if err := cs.Commit(ctx, true); err != nil {
		return fmt.Errorf("namespaces: %w", err)
	}
	return nil
}

func (i *Installer) settings(ctx context.Context, wikiID string, settings map[string]any, install bool) error {
	var err error
	if install {
		err = i.state.MergeSettings(ctx, wikiID, settings, nil)
	} else {
		err = i.state.MergeSettings(ctx, wikiID, nil, slices.Collect(maps.Keys(settings)))
	}
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	i.env.Invalidate(ctx, wikiID)
	return nil
}

func (i *Installer) jobs(ctx context.Context, wikiID string, tasks []string) error {
	if wikiID == configdb.DefaultWikiID {
		return nil
	}
	for _, task := range tasks {
		job, err := jobqueue.NewJobWithPriority(wikiID, task, nil, jobqueue.LowPriority)
		if err != nil {
			return fmt.Errorf("jobs: %w", err)
		}
		i.env.Dispatch(ctx, job)
	}
	return nil
}
