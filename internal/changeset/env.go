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
	"errors"
	"log/slog"

	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/jobqueue"
	"github.com/cardinalhq/wikifarm/internal/logctx"
	"github.com/cardinalhq/wikifarm/internal/registry"
	"github.com/cardinalhq/wikifarm/internal/requirements"
)

// Invalidator drops any cached effective configuration of a wiki.
type Invalidator interface {
	Invalidate(ctx context.Context, wikiID string) error
}

// Installer applies and reverts the side actions an extension declares.
// Both report success; failures are logged by the implementation.
type Installer interface {
	Install(ctx context.Context, wikiID string, actions *registry.Actions) bool
	Uninstall(ctx context.Context, wikiID string, actions *registry.Actions) bool
}

// TenantFunc builds the requirement oracles for one wiki.
type TenantFunc func(ctx context.Context, wikiID string) requirements.Tenant

// Env is the collaborator bundle handed to every change set. Only Store
// is mandatory; the rest fall back to no-ops.
type Env struct {
	Store       configdb.QuerierFull
	Jobs        jobqueue.Dispatcher
	Invalidator Invalidator
	Installer   Installer
	Registry    *registry.Registry
	Tenant      TenantFunc
	Evaluate    requirements.Func
}

var ErrNoStore = errors.New("change set environment has no store")

func (e *Env) Validate() error {
	if e == nil || e.Store == nil {
		return ErrNoStore
	}
	return nil
}

// TenantFor returns the oracles for wikiID, or a bare tenant when no
// provider is configured.
func (e *Env) TenantFor(ctx context.Context, wikiID string) requirements.Tenant {
	if e.Tenant == nil {
		return requirements.Tenant{WikiID: wikiID}
	}
	return e.Tenant(ctx, wikiID)
}

func (e *Env) Evaluator() requirements.Func {
	if e.Evaluate == nil {
		return requirements.Evaluate
	}
	return e.Evaluate
}

// Invalidate is best-effort: failures are logged and swallowed.
func (e *Env) Invalidate(ctx context.Context, wikiID string) {
	if e.Invalidator == nil {
		return
	}
	if err := e.Invalidator.Invalidate(ctx, wikiID); err != nil {
		logctx.FromContext(ctx).Warn("Failed to invalidate config cache",
			slog.String("wikiID", wikiID), slog.Any("error", err))
	}
}

// Dispatch is fire-and-forget: failures are logged and swallowed.
func (e *Env) Dispatch(ctx context.Context, job jobqueue.Job) {
	if e.Jobs == nil {
		return
	}
	if err := e.Jobs.Dispatch(ctx, job); err != nil {
		logctx.FromContext(ctx).Warn("Failed to dispatch job",
			slog.String("task", job.Task),
			slog.String("jobID", job.ID),
			slog.Any("error", err))
	}
}

func (e *Env) Install(ctx context.Context, wikiID string, actions *registry.Actions) bool {
	if e.Installer == nil || actions == nil {
		return true
	}
	return e.Installer.Install(ctx, wikiID, actions)
}

func (e *Env) Uninstall(ctx context.Context, wikiID string, actions *registry.Actions) bool {
	if e.Installer == nil || actions == nil {
		return true
	}
	return e.Installer.Uninstall(ctx, wikiID, actions)
}
