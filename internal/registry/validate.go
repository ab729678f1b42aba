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

package registry

import (
	"fmt"
	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/wikifarm/internal/requirements"
)

// Validate reports every cross-reference problem at once.
func (r *Registry) Validate() error {
	var result *multierror.Error

	for _, id := range r.extensionOrder {
		e := r.Extensions[id]
		if id == "" {
			result = multierror.Append(result, fmt.Errorf("extension %q: missing id", e.Name))
			continue
		}
		for _, other := range e.Conflicts {
			if other == id {
				result = multierror.Append(result, fmt.Errorf("extension %s: conflicts with itself", id))
			} else if _, ok := r.Extensions[other]; !ok {
				result = multierror.Append(result, fmt.Errorf("extension %s: conflicts with unknown extension %s", id, other))
			}
		}
		for kind := range e.Requires {
			if !slices.Contains(requirements.Kinds, kind) {
				result = multierror.Append(result, fmt.Errorf("extension %s: unknown requirement kind %q", id, kind))
			}
		}
		for _, actions := range []*Actions{e.Install, e.Remove} {
			if actions == nil {
				continue
			}
			for name, ns := range actions.Namespaces {
				if ns.ID < 0 {
					result = multierror.Append(result, fmt.Errorf("extension %s: namespace %s has reserved id %d", id, name, ns.ID))
				}
			}
		}
	}

	for _, id := range r.DefaultExtensions {
		if _, ok := r.Extensions[id]; !ok {
			result = multierror.Append(result, fmt.Errorf("default extension %s is not in the catalogue", id))
		}
	}

	for _, s := range r.NamespaceSettings {
		if s.Constant && s.Kind != KindScalar {
			result = multierror.Append(result, fmt.Errorf("namespace setting %s: constant requires the default type, got %s", s.Name, s.Kind))
		}
	}

	return result.ErrorOrNil()
}
