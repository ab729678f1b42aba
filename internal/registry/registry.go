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

// Package registry holds the static, farm-wide catalogues the
// configuration engine consults: the extension catalogue, namespace
// setting definitions, permission defaults and localized namespace names.
package registry

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/cardinalhq/wikifarm/internal/requirements"
)

// SpecialNamespaceID is the reserved Special: namespace.
const SpecialNamespaceID int32 = -1

type Registry struct {
	Extensions        map[string]*Extension
	extensionOrder    []string
	DefaultExtensions []string

	// NamespaceSettings is sorted by setting name.
	NamespaceSettings        []NamespaceSetting
	DisallowedNamespaceNames []string

	// NamespaceNames maps language code to namespace id to localized name.
	NamespaceNames map[string]map[int32]string

	Permissions PermissionDefaults
}

// Extension is one entry of the extension catalogue.
type Extension struct {
	ID        string
	Name      string
	Var       string
	Conflicts []string
	Requires  requirements.Spec
	Install   *Actions
	Remove    *Actions
}

// RuntimeName is the identifier handed to the runtime: Var, else Name.
func (e *Extension) RuntimeName() string {
	if e.Var != "" {
		return e.Var
	}
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

// DisplayName falls back to the id.
func (e *Extension) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

type SettingKind int

const (
	KindScalar SettingKind = iota
	// KindNamespaceFlag appends the namespace id to a list ("check").
	KindNamespaceFlag
	// KindNamespaceMap sets id: true in a map ("vestyle").
	KindNamespaceMap
)

func (k SettingKind) String() string {
	switch k {
	case KindNamespaceFlag:
		return "check"
	case KindNamespaceMap:
		return "vestyle"
	}
	return "default"
}

// NamespaceSetting is a per-namespace runtime setting definition.
type NamespaceSetting struct {
	Name     string
	Kind     SettingKind
	Only     []int32
	Override Override
	Constant bool
}

// AppliesTo honors the only restriction.
func (s NamespaceSetting) AppliesTo(id int32) bool {
	return s.Only == nil || slices.Contains(s.Only, id)
}

// Override is the parsed overridedefault of a setting: either one scalar
// for every namespace, or a map keyed by namespace id plus "default".
type Override struct {
	IsMap        bool
	PerNamespace map[int32]any
	Default      any
	HasDefault   bool
	Scalar       any
	HasScalar    bool
}

// Lookup resolves the override for one namespace. The reserved special
// namespace only ever matches its own key.
func (o Override) Lookup(id int32) (any, bool) {
	if !o.IsMap {
		if id == SpecialNamespaceID {
			return nil, false
		}
		return o.Scalar, o.HasScalar
	}
	if v, ok := o.PerNamespace[id]; ok {
		return v, true
	}
	if id == SpecialNamespaceID {
		return nil, false
	}
	return o.Default, o.HasDefault
}

// PermissionDefaults are registry-side contributions merged into every wiki.
type PermissionDefaults struct {
	// AdditionalRights: group -> right -> true (grant) / false (revoke).
	AdditionalRights       map[string]map[string]bool
	AdditionalAddGroups    map[string][]string
	AdditionalRemoveGroups map[string][]string
	DefaultPrivateGroup    string
}

// Actions describes what installing (or removing) an extension does.
type Actions struct {
	Permissions map[string]GroupGrant   `json:"permissions,omitempty"`
	Namespaces  map[string]NamespaceDef `json:"namespaces,omitempty"`
	Settings    map[string]any          `json:"settings,omitempty"`
	Jobs        []string                `json:"jobs,omitempty"`
}

// GroupGrant lists what a permission group gains.
type GroupGrant struct {
	Permissions  []string        `json:"permissions,omitempty"`
	Addgroups    []string        `json:"addgroups,omitempty"`
	Removegroups []string        `json:"removegroups,omitempty"`
	Addself      []string        `json:"addself,omitempty"`
	Removeself   []string        `json:"removeself,omitempty"`
	Autopromote  json.RawMessage `json:"autopromote,omitempty"`
}

// NamespaceDef is a namespace an extension brings along.
type NamespaceDef struct {
	ID           int32          `json:"id"`
	Searchable   bool           `json:"searchable,omitempty"`
	Subpages     bool           `json:"subpages,omitempty"`
	Content      bool           `json:"content,omitempty"`
	ContentModel string         `json:"contentmodel,omitempty"`
	Protection   string         `json:"protection,omitempty"`
	Aliases      []string       `json:"aliases,omitempty"`
	Core         bool           `json:"core,omitempty"`
	Additional   map[string]any `json:"additional,omitempty"`
}

// ExtensionIDs returns every catalogue id in registry order.
func (r *Registry) ExtensionIDs() []string {
	return slices.Clone(r.extensionOrder)
}

func (r *Registry) Extension(id string) (*Extension, bool) {
	e, ok := r.Extensions[id]
	return e, ok
}

// IsDisallowedNamespaceName compares case-insensitively.
func (r *Registry) IsDisallowedNamespaceName(name string) bool {
	for _, bad := range r.DisallowedNamespaceNames {
		if strings.EqualFold(bad, name) {
			return true
		}
	}
	return false
}

// LocalizedNamespaceName returns the name of id in lang, if known.
func (r *Registry) LocalizedNamespaceName(lang string, id int32) (string, bool) {
	name, ok := r.NamespaceNames[lang][id]
	return name, ok
}

// AddExtension appends e to the catalogue, replacing any entry with the
// same id in place.
func (r *Registry) AddExtension(e *Extension) {
	if r.Extensions == nil {
		r.Extensions = map[string]*Extension{}
	}
	if _, exists := r.Extensions[e.ID]; !exists {
		r.extensionOrder = append(r.extensionOrder, e.ID)
	}
	r.Extensions[e.ID] = e
}
