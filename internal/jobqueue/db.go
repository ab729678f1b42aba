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

package jobqueue

import (
	"context"
	"fmt"

	"github.com/cardinalhq/wikifarm/configdb"
)

// EnqueueDB defines the database operations needed for enqueuing jobs.
type EnqueueDB interface {
	EnqueueWikiJob(ctx context.Context, arg configdb.EnqueueWikiJobParams) (configdb.WikiJob, error)
}

// DB stores jobs in the wiki_jobs table for an external runner to claim.
type DB struct {
	db EnqueueDB
}

var _ Dispatcher = (*DB)(nil)

func NewDB(db EnqueueDB) *DB {
	return &DB{db: db}
}

func (d *DB) Dispatch(ctx context.Context, job Job) error {
	_, err := d.db.EnqueueWikiJob(ctx, configdb.EnqueueWikiJobParams{
		ID:       job.ID,
		WikiID:   job.WikiID,
		TaskName: job.Task,
		Spec:     job.Payload,
		Priority: job.Priority,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", job.Task, job.WikiID, err)
	}
	return nil
}
