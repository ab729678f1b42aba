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

// Package requirements evaluates the declarative preconditions an
// extension declares before it may be enabled on a wiki.
package requirements

import (
	"context"
)

// Spec maps a check kind to its payload, as decoded from the registry.
type Spec map[string]any

const (
	KindPermissions = "permissions"
	KindExtensions  = "extensions"
	KindActiveUsers = "activeusers"
	KindArticles    = "articles"
	KindPages       = "pages"
	KindImages      = "images"
	KindSettings    = "settings"
	KindVisibility  = "visibility"
)

// Kinds lists every check kind Evaluate understands.
var Kinds = []string{
	KindPermissions,
	KindExtensions,
	KindActiveUsers,
	KindArticles,
	KindPages,
	KindImages,
	KindSettings,
	KindVisibility,
}

// Statistics reads the live counters of the wiki being evaluated.
type Statistics interface {
	ActiveUsers(ctx context.Context) (int64, error)
	Articles(ctx context.Context) (int64, error)
	Pages(ctx context.Context) (int64, error)
	Images(ctx context.Context) (int64, error)
}

// Actor is whoever is performing the change.
type Actor interface {
	HasRight(ctx context.Context, right string) bool
}

type Visibility interface {
	IsPrivate(ctx context.Context) (bool, error)
}

// SettingsLookup reads one stored setting of any wiki. found is false when
// the wiki has no such setting.
type SettingsLookup interface {
	Setting(ctx context.Context, wikiID, name string) (value any, found bool, err error)
}

// Tenant bundles the read-only oracles for one wiki. Unattended marks CLI
// and job-runner contexts, which skip actor permission checks.
type Tenant struct {
	WikiID     string
	Stats      Statistics
	Actor      Actor
	Visibility Visibility
	Settings   SettingsLookup
	Unattended bool
}

// Func is the signature of Evaluate, for callers that inject an evaluator.
type Func func(ctx context.Context, spec Spec, enabled []string, bypassPermissions bool, tenant Tenant) bool

// Rights is a static Actor holding a fixed set of rights.
type Rights []string

func (r Rights) HasRight(_ context.Context, right string) bool {
	for _, have := range r {
		if have == right {
			return true
		}
	}
	return false
}
