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
	"encoding/json"
	"fmt"

	"github.com/cardinalhq/wikifarm/internal/idgen"
)

// TaskNamespaceMigration moves pages after a namespace is renamed or deleted.
const TaskNamespaceMigration = "namespace-migration"

// DefaultPriority is the default priority for jobs (0 = normal).
const DefaultPriority = 0

// LowPriority is used for maintenance jobs queued by extension installs.
const LowPriority = 1000

// Job is a unit of asynchronous follow-up work addressed to one wiki.
type Job struct {
	ID       string          `json:"id"`
	Seq      int64           `json:"seq"`
	WikiID   string          `json:"wikiId"`
	Task     string          `json:"task"`
	Payload  json.RawMessage `json:"payload"`
	Priority int32           `json:"priority"`
}

// NewJob builds a job with a fresh id. The payload is marshalled to JSON.
func NewJob(wikiID, task string, payload any) (Job, error) {
	return NewJobWithPriority(wikiID, task, payload, DefaultPriority)
}

// NewJobWithPriority builds a job with the given priority.
// Lower priority values are processed first.
func NewJobWithPriority(wikiID, task string, payload any, priority int32) (Job, error) {
	var body json.RawMessage
	switch p := payload.(type) {
	case nil:
		body = json.RawMessage("{}")
	case json.RawMessage:
		body = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return Job{}, fmt.Errorf("failed to marshal payload for %s: %w", task, err)
		}
		body = b
	}
	return Job{
		ID:       idgen.NewJobID(),
		Seq:      idgen.NextSequence(),
		WikiID:   wikiID,
		Task:     task,
		Payload:  body,
		Priority: priority,
	}, nil
}

// Dispatcher delivers jobs to the execution backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// Noop drops every job.
type Noop struct{}

func (Noop) Dispatch(context.Context, Job) error { return nil }
