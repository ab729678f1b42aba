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

// Package lifecycle seeds new wikis from the default tenant and toggles
// wiki visibility.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/changeset"
	"github.com/cardinalhq/wikifarm/internal/extensions"
	"github.com/cardinalhq/wikifarm/internal/logctx"
	"github.com/cardinalhq/wikifarm/internal/namespaces"
	"github.com/cardinalhq/wikifarm/internal/permissions"
	"github.com/cardinalhq/wikifarm/internal/wikistate"
)

type Manager struct {
	env   *changeset.Env
	state *wikistate.State
}

func New(env *changeset.Env, state *wikistate.State) *Manager {
	return &Manager{env: env, state: state}
}

// CreateWiki registers wikiID and copies the default tenant's groups
// (except the private group) and namespaces into it, then enables the
// registry's default extensions. Every step runs even when an earlier
// one fails; the failures are returned together.
func (m *Manager) CreateWiki(ctx context.Context, wikiID string, private bool, languageCode string) error {
	if err := m.env.Validate(); err != nil {
		return err
	}
	if wikiID == configdb.DefaultWikiID {
		return fmt.Errorf("%q is reserved", wikiID)
	}
	if err := m.state.Create(ctx, wikiID, private, languageCode); err != nil {
		return err
	}

	var errs *multierror.Error
	if err := m.seedPermissions(ctx, wikiID); err != nil {
		errs = multierror.Append(errs, err)
	}
	if private {
		if err := m.MakePrivate(ctx, wikiID); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := m.seedExtensions(ctx, wikiID); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := m.seedNamespaces(ctx, wikiID); err != nil {
		errs = multierror.Append(errs, err)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("create wiki %s: %w", wikiID, err)
	}
	logctx.FromContext(ctx).Info("Created wiki", slog.String("wikiID", wikiID), slog.Bool("private", private))
	return nil
}

func (m *Manager) privateGroup() string {
	if m.env.Registry == nil {
		return ""
	}
	return m.env.Registry.Permissions.DefaultPrivateGroup
}

// copyUpdate turns a stored group into additions onto the target group.
func copyUpdate(g permissions.Group) permissions.Update {
	u := permissions.Update{
		Permissions:  permissions.SetDelta{Add: g.Permissions},
		Addgroups:    permissions.SetDelta{Add: g.Addgroups},
		Removegroups: permissions.SetDelta{Add: g.Removegroups},
		Addself:      permissions.SetDelta{Add: g.Addself},
		Removeself:   permissions.SetDelta{Add: g.Removeself},
	}
	if len(g.Autopromote) > 0 {
		ap := g.Autopromote
		u.Autopromote = &ap
	}
	return u
}

func (m *Manager) seedPermissions(ctx context.Context, wikiID string) error {
	defaults, err := permissions.Load(ctx, m.env, configdb.DefaultWikiID)
	if err != nil {
		return err
	}
	defer defaults.Discard()

	cs, err := permissions.Load(ctx, m.env, wikiID)
	if err != nil {
		return err
	}
	private := m.privateGroup()
	for _, name := range defaults.GroupNames() {
		if name == private {
			continue
		}
		cs.Modify(name, copyUpdate(defaults.Group(name)))
	}
	if err := cs.Commit(ctx); err != nil {
		return fmt.Errorf("seed permissions: %w", err)
	}
	return nil
}

func (m *Manager) seedExtensions(ctx context.Context, wikiID string) error {
	if m.env.Registry == nil || len(m.env.Registry.DefaultExtensions) == 0 {
		return nil
	}
	cs, err := extensions.Load(ctx, m.env, wikiID)
	if err != nil {
		return err
	}
	cs.Add(m.env.Registry.DefaultExtensions...)
	if err := cs.Commit(ctx); err != nil {
		return fmt.Errorf("seed extensions: %w", err)
	}
	for _, rec := range cs.Errors() {
		logctx.FromContext(ctx).Warn("Default extension not enabled",
			slog.String("wikiID", wikiID),
			slog.String("error", rec.String()))
	}
	return nil
}

func (m *Manager) seedNamespaces(ctx context.Context, wikiID string) error {
	defaults, err := namespaces.Load(ctx, m.env, configdb.DefaultWikiID)
	if err != nil {
		return err
	}
	defer defaults.Discard()

	cs, err := namespaces.Load(ctx, m.env, wikiID)
	if err != nil {
		return err
	}
	for _, ns := range defaults.List() {
		cs.Modify(ns.ID, ns.AsUpdate(), false)
	}
	if err := cs.Commit(ctx, false); err != nil {
		return fmt.Errorf("seed namespaces: %w", err)
	}
	return nil
}

// SetVisibility switches wikiID to private or public.
func (m *Manager) SetVisibility(ctx context.Context, wikiID string, private bool) error {
	if private {
		return m.MakePrivate(ctx, wikiID)
	}
	return m.MakePublic(ctx, wikiID)
}

// MakePrivate copies the default tenant's private group into wikiID, lets
// sysops grant and revoke it, and persists the flag.
func (m *Manager) MakePrivate(ctx context.Context, wikiID string) error {
	if group := m.privateGroup(); group != "" {
		defaults, err := permissions.Load(ctx, m.env, configdb.DefaultWikiID)
		if err != nil {
			return err
		}
		defaults.Discard()

		cs, err := permissions.Load(ctx, m.env, wikiID)
		if err != nil {
			return err
		}
		cs.Modify(group, copyUpdate(defaults.Group(group)))
		cs.Modify("sysop", permissions.Update{
			Addgroups:    permissions.SetDelta{Add: []string{group}},
			Removegroups: permissions.SetDelta{Add: []string{group}},
		})
		if err := cs.Commit(ctx); err != nil {
			return fmt.Errorf("make %s private: %w", wikiID, err)
		}
	}
	if err := m.state.SetPrivate(ctx, wikiID, true); err != nil {
		return fmt.Errorf("make %s private: %w", wikiID, err)
	}
	m.env.Invalidate(ctx, wikiID)
	return nil
}

// MakePublic drops the private group and every reference to it, and
// persists the flag.
func (m *Manager) MakePublic(ctx context.Context, wikiID string) error {
	if group := m.privateGroup(); group != "" {
		cs, err := permissions.Load(ctx, m.env, wikiID)
		if err != nil {
			return err
		}
		if slices.Contains(cs.GroupNames(), group) {
			cs.Remove(group)
		}
		for _, name := range cs.GroupNames() {
			cs.Modify(name, permissions.Update{
				Addgroups:    permissions.SetDelta{Remove: []string{group}},
				Removegroups: permissions.SetDelta{Remove: []string{group}},
			})
		}
		if err := cs.Commit(ctx); err != nil {
			return fmt.Errorf("make %s public: %w", wikiID, err)
		}
	}
	if err := m.state.SetPrivate(ctx, wikiID, false); err != nil {
		return fmt.Errorf("make %s public: %w", wikiID, err)
	}
	m.env.Invalidate(ctx, wikiID)
	return nil
}
