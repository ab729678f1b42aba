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
	"log/slog"
)

// MessageSender is satisfied by *awsclient.SQSClient.
type MessageSender interface {
	Send(ctx context.Context, queueURL, body string, attrs map[string]string) (string, error)
}

// SQS sends each job as one queue message.
type SQS struct {
	sender   MessageSender
	queueURL string
}

var _ Dispatcher = (*SQS)(nil)

func NewSQS(sender MessageSender, queueURL string) *SQS {
	return &SQS{sender: sender, queueURL: queueURL}
}

func (s *SQS) Dispatch(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	messageID, err := s.sender.Send(ctx, s.queueURL, string(body), map[string]string{
		"task":   job.Task,
		"wikiId": job.WikiID,
	})
	if err != nil {
		return fmt.Errorf("send %s to sqs: %w", job.Task, err)
	}
	slog.Debug("Queued job", slog.String("jobID", job.ID), slog.String("messageID", messageID))
	return nil
}
