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

package configdb

import (
	"context"
)

type Querier interface {
	GetWiki(ctx context.Context, wikiID string) (Wiki, error)
	UpsertWiki(ctx context.Context, arg UpsertWikiParams) error
	SetWikiPrivate(ctx context.Context, arg SetWikiPrivateParams) error
	ListWikiIDs(ctx context.Context) ([]string, error)

	GetWikiSettings(ctx context.Context, wikiID string) (WikiSetting, error)
	UpsertWikiExtensions(ctx context.Context, arg UpsertWikiExtensionsParams) error
	UpsertWikiSettingsBlob(ctx context.Context, arg UpsertWikiSettingsBlobParams) error

	ListWikiNamespaces(ctx context.Context, wikiID string) ([]WikiNamespace, error)
	UpsertWikiNamespace(ctx context.Context, arg WikiNamespace) error
	DeleteWikiNamespace(ctx context.Context, arg DeleteWikiNamespaceParams) error

	ListWikiPermissions(ctx context.Context, wikiID string) ([]WikiPermission, error)
	UpsertWikiPermission(ctx context.Context, arg WikiPermission) error
	DeleteWikiPermission(ctx context.Context, arg DeleteWikiPermissionParams) error

	EnqueueWikiJob(ctx context.Context, arg EnqueueWikiJobParams) (WikiJob, error)
	ListWikiJobs(ctx context.Context, wikiID string) ([]WikiJob, error)
}

// QuerierFull adds transactional execution on top of Querier. All writes a
// single change-set commit performs go through one WithTx call.
type QuerierFull interface {
	Querier
	WithTx(ctx context.Context, fn func(Querier) error) error
	Close()
}

var _ Querier = (*Queries)(nil)
