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

const listWikiNamespaces = `-- name: ListWikiNamespaces :many
SELECT wiki_id, namespace_id, name, searchable, subpages, content, content_model,
       protection, aliases, core, additional
FROM wiki_namespaces
WHERE wiki_id = $1
ORDER BY namespace_id
`

func (q *Queries) ListWikiNamespaces(ctx context.Context, wikiID string) ([]WikiNamespace, error) {
	rows, err := q.db.Query(ctx, listWikiNamespaces, wikiID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []WikiNamespace
	for rows.Next() {
		var i WikiNamespace
		if err := rows.Scan(
			&i.WikiID,
			&i.NamespaceID,
			&i.Name,
			&i.Searchable,
			&i.Subpages,
			&i.Content,
			&i.ContentModel,
			&i.Protection,
			&i.Aliases,
			&i.Core,
			&i.Additional,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertWikiNamespace = `-- name: UpsertWikiNamespace :exec
INSERT INTO wiki_namespaces (
  wiki_id, namespace_id, name, searchable, subpages, content, content_model,
  protection, aliases, core, additional
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (wiki_id, namespace_id) DO UPDATE
SET name = EXCLUDED.name,
    searchable = EXCLUDED.searchable,
    subpages = EXCLUDED.subpages,
    content = EXCLUDED.content,
    content_model = EXCLUDED.content_model,
    protection = EXCLUDED.protection,
    aliases = EXCLUDED.aliases,
    core = EXCLUDED.core,
    additional = EXCLUDED.additional
`

func (q *Queries) UpsertWikiNamespace(ctx context.Context, arg WikiNamespace) error {
	additional := arg.Additional
	if additional == nil {
		additional = map[string]any{}
	}
	_, err := q.db.Exec(ctx, upsertWikiNamespace,
		arg.WikiID,
		arg.NamespaceID,
		arg.Name,
		arg.Searchable,
		arg.Subpages,
		arg.Content,
		arg.ContentModel,
		arg.Protection,
		nonNilStrings(arg.Aliases),
		arg.Core,
		additional,
	)
	return err
}

const deleteWikiNamespace = `-- name: DeleteWikiNamespace :exec
DELETE FROM wiki_namespaces WHERE wiki_id = $1 AND namespace_id = $2
`

type DeleteWikiNamespaceParams struct {
	WikiID      string `json:"wiki_id"`
	NamespaceID int32  `json:"namespace_id"`
}

func (q *Queries) DeleteWikiNamespace(ctx context.Context, arg DeleteWikiNamespaceParams) error {
	_, err := q.db.Exec(ctx, deleteWikiNamespace, arg.WikiID, arg.NamespaceID)
	return err
}
