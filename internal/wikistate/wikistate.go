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

// Package wikistate reads and writes per-wiki state outside the change
// sets: the settings blob and the tenant row the requirement oracles use.
package wikistate

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/requirements"
)

type State struct {
	store configdb.QuerierFull
}

var _ requirements.SettingsLookup = (*State)(nil)

func New(store configdb.QuerierFull) *State {
	return &State{store: store}
}

// Settings returns the settings blob of wikiID; an unknown wiki has none.
func (s *State) Settings(ctx context.Context, wikiID string) (map[string]any, error) {
	row, err := s.store.GetWikiSettings(ctx, wikiID)
	if errors.Is(err, configdb.ErrNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings of %s: %w", wikiID, err)
	}
	return row.Settings, nil
}

func (s *State) Setting(ctx context.Context, wikiID, name string) (any, bool, error) {
	settings, err := s.Settings(ctx, wikiID)
	if err != nil {
		return nil, false, err
	}
	v, ok := settings[name]
	return v, ok, nil
}

// MergeSettings writes set into the blob and drops the names in unset,
// in one transaction.
func (s *State) MergeSettings(ctx context.Context, wikiID string, set map[string]any, unset []string) error {
	return s.store.WithTx(ctx, func(q configdb.Querier) error {
		current := map[string]any{}
		row, err := q.GetWikiSettings(ctx, wikiID)
		switch {
		case errors.Is(err, configdb.ErrNotFound):
		case err != nil:
			return fmt.Errorf("read settings of %s: %w", wikiID, err)
		default:
			current = row.Settings
		}
		merged := maps.Clone(current)
		if merged == nil {
			merged = map[string]any{}
		}
		maps.Copy(merged, set)
		for _, name := range unset {
			delete(merged, name)
		}
		if err := q.UpsertWikiSettingsBlob(ctx, configdb.UpsertWikiSettingsBlobParams{WikiID: wikiID, Settings: merged}); err != nil {
			return fmt.Errorf("write settings of %s: %w", wikiID, err)
		}
		return nil
	})
}

// Create upserts the tenant row of wikiID.
func (s *State) Create(ctx context.Context, wikiID string, private bool, languageCode string) error {
	if languageCode == "" {
		languageCode = "en"
	}
	if err := s.store.UpsertWiki(ctx, configdb.UpsertWikiParams{
		WikiID:       wikiID,
		Private:      private,
		LanguageCode: languageCode,
	}); err != nil {
		return fmt.Errorf("create wiki %s: %w", wikiID, err)
	}
	return nil
}

// WikiIDs lists every known tenant.
func (s *State) WikiIDs(ctx context.Context) ([]string, error) {
	return s.store.ListWikiIDs(ctx)
}

// IsPrivate reads the private flag of wikiID.
func (s *State) IsPrivate(ctx context.Context, wikiID string) (bool, error) {
	w, err := s.store.GetWiki(ctx, wikiID)
	if err != nil {
		return false, fmt.Errorf("read wiki %s: %w", wikiID, err)
	}
	return w.Private, nil
}

// SetPrivate persists the private flag, creating the wiki row if needed.
func (s *State) SetPrivate(ctx context.Context, wikiID string, private bool) error {
	return s.store.WithTx(ctx, func(q configdb.Querier) error {
		_, err := q.GetWiki(ctx, wikiID)
		if errors.Is(err, configdb.ErrNotFound) {
			return q.UpsertWiki(ctx, configdb.UpsertWikiParams{WikiID: wikiID, Private: private})
		}
		if err != nil {
			return err
		}
		return q.SetWikiPrivate(ctx, configdb.SetWikiPrivateParams{WikiID: wikiID, Private: private})
	})
}

// Tenant returns a provider of requirement oracles backed by the wikis
// table. actor may be nil; unattended marks CLI and job contexts.
func (s *State) Tenant(actor requirements.Actor, unattended bool) func(ctx context.Context, wikiID string) requirements.Tenant {
	return func(_ context.Context, wikiID string) requirements.Tenant {
		o := &oracle{state: s, wikiID: wikiID}
		return requirements.Tenant{
			WikiID:     wikiID,
			Stats:      o,
			Actor:      actor,
			Visibility: o,
			Settings:   s,
			Unattended: unattended,
		}
	}
}

type oracle struct {
	state  *State
	wikiID string
}

var (
	_ requirements.Statistics = (*oracle)(nil)
	_ requirements.Visibility = (*oracle)(nil)
)

func (o *oracle) wiki(ctx context.Context) (configdb.Wiki, error) {
	w, err := o.state.store.GetWiki(ctx, o.wikiID)
	if err != nil {
		return configdb.Wiki{}, fmt.Errorf("read wiki %s: %w", o.wikiID, err)
	}
	return w, nil
}

func (o *oracle) ActiveUsers(ctx context.Context) (int64, error) {
	w, err := o.wiki(ctx)
	return w.ActiveUsers, err
}

func (o *oracle) Articles(ctx context.Context) (int64, error) {
	w, err := o.wiki(ctx)
	return w.Articles, err
}

func (o *oracle) Pages(ctx context.Context) (int64, error) {
	w, err := o.wiki(ctx)
	return w.Pages, err
}

func (o *oracle) Images(ctx context.Context) (int64, error) {
	w, err := o.wiki(ctx)
	return w.Images, err
}

func (o *oracle) IsPrivate(ctx context.Context) (bool, error) {
	return o.state.IsPrivate(ctx, o.wikiID)
}
