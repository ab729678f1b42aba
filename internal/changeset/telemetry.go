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

package changeset

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/wikifarm/internal/logctx"
)

var (
	tracer = otel.Tracer("github.com/cardinalhq/wikifarm/internal/changeset")

	commitCounter    otelmetric.Int64Counter
	rejectionCounter otelmetric.Int64Counter
	commitDuration   otelmetric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/wikifarm/internal/changeset")

	var err error
	commitCounter, err = meter.Int64Counter(
		"wikifarm.changeset.commits",
		otelmetric.WithDescription("Number of change set commits"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create commits counter: %w", err))
	}

	rejectionCounter, err = meter.Int64Counter(
		"wikifarm.changeset.rejections",
		otelmetric.WithDescription("Number of staged changes rejected at commit time"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rejections counter: %w", err))
	}

	commitDuration, err = meter.Float64Histogram(
		"wikifarm.changeset.commit.duration",
		otelmetric.WithDescription("Time spent committing a change set"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create commit duration histogram: %w", err))
	}
}

// Commit tracks one Commit call: a span, a correlation id carried on the
// context logger, and the commit/rejection counters.
type Commit struct {
	ID      string
	domain  string
	span    trace.Span
	started time.Time
	logger  *slog.Logger
}

// StartCommit opens the span and scopes the context logger to the wiki,
// domain and commit id.
func StartCommit(ctx context.Context, domain, wikiID string) (context.Context, *Commit) {
	id := uuid.NewString()
	ctx, span := tracer.Start(ctx, "wikifarm.changeset.commit", trace.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("wiki_id", wikiID),
		attribute.String("commit_id", id),
	))
	ctx, logger := logctx.ForWiki(ctx, wikiID, domain)
	logger = logger.With(slog.String("commitID", id))
	ctx = logctx.WithLogger(ctx, logger)
	return ctx, &Commit{ID: id, domain: domain, span: span, started: time.Now(), logger: logger}
}

func (c *Commit) Logger() *slog.Logger { return c.logger }

// Reject counts one excised entry.
func (c *Commit) Reject(ctx context.Context, kind Kind, key string) {
	rejectionCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("domain", c.domain),
		attribute.String("kind", string(kind)),
	))
	c.span.AddEvent("rejected", trace.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("key", key),
	))
	c.logger.Info("Rejected staged change", slog.String("kind", string(kind)), slog.String("key", key))
}

// End closes the span. err is the infrastructure error Commit returns, if any.
func (c *Commit) End(ctx context.Context, err error) {
	attrs := otelmetric.WithAttributes(attribute.String("domain", c.domain))
	commitDuration.Record(ctx, time.Since(c.started).Seconds(), attrs)
	if err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, "commit failed")
		c.logger.Error("Commit failed", slog.Any("error", err))
	} else {
		commitCounter.Add(ctx, 1, attrs)
	}
	c.span.End()
}
