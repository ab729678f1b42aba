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

	"github.com/cardinalhq/wikifarm/internal/fly"
)

// Kafka publishes jobs to a topic, keyed by wiki id so that jobs for one
// wiki stay ordered within a partition.
type Kafka struct {
	producer fly.Producer
	topic    string
}

var _ Dispatcher = (*Kafka)(nil)

func NewKafka(producer fly.Producer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

func (k *Kafka) Dispatch(ctx context.Context, job Job) error {
	value, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	msg := fly.Message{
		Key:   []byte(job.WikiID),
		Value: value,
		Headers: map[string]string{
			fly.TaskHeader: job.Task,
			"job-id":       job.ID,
		},
	}
	if err := k.producer.Send(ctx, k.topic, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", job.Task, k.topic, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.producer.Close()
}
