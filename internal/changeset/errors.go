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
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a recorded problem.
type Kind string

const (
	// Staging advisories. The change is still staged.
	KindDisallowedNamespace Kind = "disallowed-namespace"
	KindUnknownExtension    Kind = "unknown-extension"

	// Commit-time rejections. The entry is excised before persistence.
	KindConflict     Kind = "conflict"
	KindRequirements Kind = "requirements"
	KindInstall      Kind = "install"
)

// ErrorRecord is one advisory or rejection, with message arguments.
type ErrorRecord struct {
	Kind Kind     `json:"kind"`
	Args []string `json:"args,omitempty"`
}

func (e ErrorRecord) String() string {
	switch e.Kind {
	case KindConflict:
		if len(e.Args) >= 2 {
			return fmt.Sprintf("%s conflicts with %s", e.Args[0], strings.Join(e.Args[1:], ", "))
		}
	case KindRequirements:
		if len(e.Args) >= 1 {
			return fmt.Sprintf("requirements for %s are not met", e.Args[0])
		}
	case KindInstall:
		if len(e.Args) >= 1 {
			return fmt.Sprintf("installing %s failed", e.Args[0])
		}
	case KindDisallowedNamespace:
		if len(e.Args) >= 1 {
			return fmt.Sprintf("namespace name %s is not allowed", e.Args[0])
		}
	case KindUnknownExtension:
		if len(e.Args) >= 1 {
			return fmt.Sprintf("unknown extension %s", e.Args[0])
		}
	}
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Args, ", "))
}

var (
	// ErrUncommitted is returned by Scoped when a change set with pending
	// changes was neither committed nor discarded.
	ErrUncommitted = errors.New("change set has uncommitted changes")
	// ErrAlreadyCommitted guards against reusing a committed change set.
	ErrAlreadyCommitted = errors.New("change set already committed")
)
