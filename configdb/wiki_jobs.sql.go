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
	"encoding/json"
)

const enqueueWikiJob = `-- name: EnqueueWikiJob :one
INSERT INTO wiki_jobs (id, wiki_id, task_name, spec, priority)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, wiki_id, task_name, spec, priority, created_at
`

type EnqueueWikiJobParams struct {
	ID       string          `json:"id"`
	WikiID   string          `json:"wiki_id"`
	TaskName string          `json:"task_name"`
	Spec     json.RawMessage `json:"spec"`
	Priority int32           `json:"priority"`
}

func (q *Queries) EnqueueWikiJob(ctx context.Context, arg EnqueueWikiJobParams) (WikiJob, error) {
	row := q.db.QueryRow(ctx, enqueueWikiJob,
		arg.ID,
		arg.WikiID,
		arg.TaskName,
		arg.Spec,
		arg.Priority,
	)
	var i WikiJob
	err := row.Scan(
		&i.ID,
		&i.WikiID,
		&i.TaskName,
		&i.Spec,
		&i.Priority,
		&i.CreatedAt,
	)
	return i, err
}

const listWikiJobs = `-- name: ListWikiJobs :many
SELECT id, wiki_id, task_name, spec, priority, created_at
FROM wiki_jobs
WHERE wiki_id = $1
ORDER BY priority, created_at, id
`

func (q *Queries) ListWikiJobs(ctx context.Context, wikiID string) ([]WikiJob, error) {
	rows, err := q.db.Query(ctx, listWikiJobs, wikiID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []WikiJob
	for rows.Next() {
		var i WikiJob
		if err := rows.Scan(
			&i.ID,
			&i.WikiID,
			&i.TaskName,
			&i.Spec,
			&i.Priority,
			&i.CreatedAt,
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
