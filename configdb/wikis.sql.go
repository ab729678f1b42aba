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

const getWiki = `-- name: GetWiki :one
SELECT wiki_id, private, language_code, active_users, articles, pages, images, created_at
FROM wikis
WHERE wiki_id = $1
`

func (q *Queries) GetWiki(ctx context.Context, wikiID string) (Wiki, error) {
	row := q.db.QueryRow(ctx, getWiki, wikiID)
	var i Wiki
	err := row.Scan(
		&i.WikiID,
		&i.Private,
		&i.LanguageCode,
		&i.ActiveUsers,
		&i.Articles,
		&i.Pages,
		&i.Images,
		&i.CreatedAt,
	)
	return i, err
}

const upsertWiki = `-- name: UpsertWiki :exec
INSERT INTO wikis (wiki_id, private, language_code)
VALUES ($1, $2, $3)
ON CONFLICT (wiki_id) DO UPDATE
SET private = EXCLUDED.private,
    language_code = EXCLUDED.language_code
`

type UpsertWikiParams struct {
	WikiID       string `json:"wiki_id"`
	Private      bool   `json:"private"`
	LanguageCode string `json:"language_code"`
}

func (q *Queries) UpsertWiki(ctx context.Context, arg UpsertWikiParams) error {
	lang := arg.LanguageCode
	if lang == "" {
		lang = "en"
	}
	_, err := q.db.Exec(ctx, upsertWiki, arg.WikiID, arg.Private, lang)
	return err
}

const setWikiPrivate = `-- name: SetWikiPrivate :exec
UPDATE wikis SET private = $2 WHERE wiki_id = $1
`

type SetWikiPrivateParams struct {
	WikiID  string `json:"wiki_id"`
	Private bool   `json:"private"`
}

func (q *Queries) SetWikiPrivate(ctx context.Context, arg SetWikiPrivateParams) error {
	_, err := q.db.Exec(ctx, setWikiPrivate, arg.WikiID, arg.Private)
	return err
}

const listWikiIDs = `-- name: ListWikiIDs :many
SELECT wiki_id FROM wikis ORDER BY wiki_id
`

func (q *Queries) ListWikiIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.Query(ctx, listWikiIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
