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

const listWikiPermissions = `-- name: ListWikiPermissions :many
SELECT wiki_id, group_name, permissions, addgroups, removegroups, addself, removeself, autopromote
FROM wiki_permissions
WHERE wiki_id = $1
ORDER BY group_name
`

func (q *Queries) ListWikiPermissions(ctx context.Context, wikiID string) ([]WikiPermission, error) {
	rows, err := q.db.Query(ctx, listWikiPermissions, wikiID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []WikiPermission
	for rows.Next() {
		var i WikiPermission
		if err := rows.Scan(
			&i.WikiID,
			&i.GroupName,
			&i.Permissions,
			&i.Addgroups,
			&i.Removegroups,
			&i.Addself,
			&i.Removeself,
			&i.Autopromote,
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

const upsertWikiPermission = `-- name: UpsertWikiPermission :exec
INSERT INTO wiki_permissions (
  wiki_id, group_name, permissions, addgroups, removegroups, addself, removeself, autopromote
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (wiki_id, group_name) DO UPDATE
SET permissions = EXCLUDED.permissions,
    addgroups = EXCLUDED.addgroups,
    removegroups = EXCLUDED.removegroups,
    addself = EXCLUDED.addself,
    removeself = EXCLUDED.removeself,
    autopromote = EXCLUDED.autopromote
`

func (q *Queries) UpsertWikiPermission(ctx context.Context, arg WikiPermission) error {
	// A nil autopromote is stored as SQL NULL rather than JSON null.
	var autopromote any
	if len(arg.Autopromote) > 0 {
		autopromote = arg.Autopromote
	}
	_, err := q.db.Exec(ctx, upsertWikiPermission,
		arg.WikiID,
		arg.GroupName,
		nonNilStrings(arg.Permissions),
		nonNilStrings(arg.Addgroups),
		nonNilStrings(arg.Removegroups),
		nonNilStrings(arg.Addself),
		nonNilStrings(arg.Removeself),
		autopromote,
	)
	return err
}

const deleteWikiPermission = `-- name: DeleteWikiPermission :exec
DELETE FROM wiki_permissions WHERE wiki_id = $1 AND group_name = $2
`

type DeleteWikiPermissionParams struct {
	WikiID    string `json:"wiki_id"`
	GroupName string `json:"group_name"`
}

func (q *Queries) DeleteWikiPermission(ctx context.Context, arg DeleteWikiPermissionParams) error {
	_, err := q.db.Exec(ctx, deleteWikiPermission, arg.WikiID, arg.GroupName)
	return err
}
