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

package fly

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// TaskHeader names the header producers set to the job task; it becomes the
// "task" attribute on the publish metrics.
const TaskHeader = "task"

var (
	publishCounter otelmetric.Int64Counter
	publishBytes   otelmetric.Int64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/wikifarm/internal/fly")

	var err error
	publishCounter, err = meter.Int64Counter(
		"wikifarm.fly.publish.messages",
		otelmetric.WithDescription("Kafka messages published, by topic, task and outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create fly.publish.messages counter: %w", err))
	}

	publishBytes, err = meter.Int64Histogram(
		"wikifarm.fly.publish.bytes",
		otelmetric.WithDescription("Size of published Kafka message values"),
		otelmetric.WithUnit("By"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create fly.publish.bytes histogram: %w", err))
	}
}

func recordPublish(ctx context.Context, topic string, msgs []Message, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	for _, m := range msgs {
		attrs := otelmetric.WithAttributes(
			attribute.String("topic", topic),
			attribute.String("task", m.Header(TaskHeader)),
			attribute.String("outcome", outcome),
		)
		publishCounter.Add(ctx, 1, attrs)
		if err == nil {
			publishBytes.Record(ctx, int64(len(m.Value)), attrs)
		}
	}
}
