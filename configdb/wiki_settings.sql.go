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

const getWikiSettings = `-- name: GetWikiSettings :one
SELECT wiki_id, settings, extensions
FROM wiki_settings
WHERE wiki_id = $1
`

func (q *Queries) GetWikiSettings(ctx context.Context, wikiID string) (WikiSetting, error) {
	row := q.db.QueryRow(ctx, getWikiSettings, wikiID)
	var i WikiSetting
	err := row.Scan(&i.WikiID, &i.Settings, &i.Extensions)
	if i.Settings == nil {
		i.Settings = map[string]any{}
	}
	return i, err
}

const upsertWikiExtensions = `-- name: UpsertWikiExtensions :exec
INSERT INTO wiki_settings (wiki_id, extensions)
VALUES ($1, $2)
ON CONFLICT (wiki_id) DO UPDATE
SET extensions = EXCLUDED.extensions
`

type UpsertWikiExtensionsParams struct {
	WikiID     string   `json:"wiki_id"`
	Extensions []string `json:"extensions"`
}

func (q *Queries) UpsertWikiExtensions(ctx context.Context, arg UpsertWikiExtensionsParams) error {
	_, err := q.db.Exec(ctx, upsertWikiExtensions, arg.WikiID, nonNilStrings(arg.Extensions))
	return err
}

const upsertWikiSettingsBlob = `-- name: UpsertWikiSettingsBlob :exec
INSERT INTO wiki_settings (wiki_id, settings)
VALUES ($1, $2)
ON CONFLICT (wiki_id) DO UPDATE
SET settings = EXCLUDED.settings
`

type UpsertWikiSettingsBlobParams struct {
	WikiID   string         `json:"wiki_id"`
	Settings map[string]any `json:"settings"`
}

func (q *Queries) UpsertWikiSettingsBlob(ctx context.Context, arg UpsertWikiSettingsBlobParams) error {
	settings := arg.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	_, err := q.db.Exec(ctx, upsertWikiSettingsBlob, arg.WikiID, settings)
	return err
}

// nonNilStrings keeps jsonb array columns from being written as JSON null.
func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
