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
	"maps"
	"slices"
)

// Base carries the per-set state every domain shares: tenant, recorded
// problems, audit log metadata and the committed/discarded flags.
// Domain change sets embed it.
type Base struct {
	wikiID    string
	domain    string
	errors    []ErrorRecord
	logAction string
	logParams map[string]string
	committed bool
	discarded bool
}

func NewBase(domain, wikiID, logAction string) Base {
	return Base{
		wikiID:    wikiID,
		domain:    domain,
		logAction: logAction,
		logParams: map[string]string{},
	}
}

func (b *Base) WikiID() string { return b.wikiID }
func (b *Base) Domain() string { return b.domain }

// Record appends an advisory or rejection.
func (b *Base) Record(kind Kind, args ...string) {
	b.errors = append(b.errors, ErrorRecord{Kind: kind, Args: args})
}

// Errors returns everything recorded so far, in order.
func (b *Base) Errors() []ErrorRecord {
	return slices.Clone(b.errors)
}

func (b *Base) SetLogAction(action string) { b.logAction = action }
func (b *Base) LogAction() string          { return b.logAction }

func (b *Base) AddLogParam(key, value string) {
	b.logParams[key] = value
}

func (b *Base) LogParam(key string) (string, bool) {
	v, ok := b.logParams[key]
	return v, ok
}

func (b *Base) LogParams() map[string]string {
	return maps.Clone(b.logParams)
}

// Discard abandons the staged changes. Scoped treats a discarded set as
// finished.
func (b *Base) Discard()        { b.discarded = true }
func (b *Base) Discarded() bool { return b.discarded }
func (b *Base) Committed() bool { return b.committed }
func (b *Base) MarkCommitted()  { b.committed = true }

// CheckOpen returns ErrAlreadyCommitted once the set has been committed.
func (b *Base) CheckOpen() error {
	if b.committed {
		return ErrAlreadyCommitted
	}
	return nil
}

// Finisher is implemented by every domain change set.
type Finisher interface {
	HasChanges() bool
	Committed() bool
	Discarded() bool
}

// Scoped runs fn against cs and reports ErrUncommitted when fn returns
// without error but left pending changes neither committed nor discarded.
func Scoped[T Finisher](cs T, fn func(T) error) error {
	if err := fn(cs); err != nil {
		return err
	}
	if cs.HasChanges() && !cs.Committed() && !cs.Discarded() {
		return ErrUncommitted
	}
	return nil
}
