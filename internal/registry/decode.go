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
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// The on-disk layout. Every format is first decoded into a generic tree,
// normalized, and then bound through these json tags.
type fileFormat struct {
	Extensions        []extensionEntry        `json:"extensions"`
	DefaultExtensions []string                `json:"default_extensions"`
	NamespaceSettings map[string]settingEntry `json:"namespace_settings"`
	Namespaces        struct {
		DisallowedNames []string `json:"disallowed_names"`
	} `json:"namespaces"`
	NamespaceNames map[string]map[string]string `json:"namespace_names"`
	Permissions    struct {
		AdditionalRights       map[string]map[string]bool `json:"additional_rights"`
		AdditionalAddGroups    map[string][]string        `json:"additional_addgroups"`
		AdditionalRemoveGroups map[string][]string        `json:"additional_removegroups"`
		DefaultPrivateGroup    string                     `json:"default_private_group"`
	} `json:"permissions"`
}

type extensionEntry struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Var       string         `json:"var"`
	Conflicts []string       `json:"conflicts"`
	Requires  map[string]any `json:"requires"`
	Install   *Actions       `json:"install"`
	Remove    *Actions       `json:"remove"`
}

type settingEntry struct {
	Type            string `json:"type"`
	Only            any    `json:"only"`
	Overridedefault any    `json:"overridedefault"`
	Constant        bool   `json:"constant"`
}

// Parse decodes a registry document. It does not validate cross references;
// see Validate.
func Parse(data []byte, format Format) (*Registry, error) {
	var tree any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("decode yaml registry: %w", err)
		}
	case FormatTOML:
		var m map[string]any
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
			return nil, fmt.Errorf("decode toml registry: %w", err)
		}
		tree = m
	case FormatJSON:
		if err := json.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("decode json registry: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported registry format %q", format)
	}

	normalized, err := json.Marshal(stringKeys(tree))
	if err != nil {
		return nil, fmt.Errorf("normalize registry: %w", err)
	}
	var ff fileFormat
	if err := json.Unmarshal(normalized, &ff); err != nil {
		return nil, fmt.Errorf("bind registry: %w", err)
	}
	return build(ff)
}

func build(ff fileFormat) (*Registry, error) {
	r := &Registry{
		Extensions:               map[string]*Extension{},
		DefaultExtensions:        ff.DefaultExtensions,
		DisallowedNamespaceNames: ff.Namespaces.DisallowedNames,
		NamespaceNames:           map[string]map[int32]string{},
		Permissions: PermissionDefaults{
			AdditionalRights:       ff.Permissions.AdditionalRights,
			AdditionalAddGroups:    ff.Permissions.AdditionalAddGroups,
			AdditionalRemoveGroups: ff.Permissions.AdditionalRemoveGroups,
			DefaultPrivateGroup:    ff.Permissions.DefaultPrivateGroup,
		},
	}

	for _, e := range ff.Extensions {
		r.AddExtension(&Extension{
			ID:        e.ID,
			Name:      e.Name,
			Var:       e.Var,
			Conflicts: e.Conflicts,
			Requires:  e.Requires,
			Install:   e.Install,
			Remove:    e.Remove,
		})
	}

	for name, entry := range ff.NamespaceSettings {
		setting, err := buildSetting(name, entry)
		if err != nil {
			return nil, err
		}
		r.NamespaceSettings = append(r.NamespaceSettings, setting)
	}
	sort.Slice(r.NamespaceSettings, func(i, j int) bool {
		return r.NamespaceSettings[i].Name < r.NamespaceSettings[j].Name
	})

	for lang, names := range ff.NamespaceNames {
		byID := make(map[int32]string, len(names))
		for rawID, name := range names {
			id, err := strconv.ParseInt(rawID, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("namespace_names.%s: bad namespace id %q", lang, rawID)
			}
			byID[int32(id)] = name
		}
		r.NamespaceNames[lang] = byID
	}

	return r, nil
}

func buildSetting(name string, e settingEntry) (NamespaceSetting, error) {
	s := NamespaceSetting{Name: name, Constant: e.Constant}

	switch e.Type {
	case "check":
		s.Kind = KindNamespaceFlag
	case "vestyle":
		s.Kind = KindNamespaceMap
	default:
		s.Kind = KindScalar
	}

	switch only := e.Only.(type) {
	case nil:
	case float64:
		s.Only = []int32{int32(only)}
	case []any:
		s.Only = []int32{}
		for _, v := range only {
			f, ok := v.(float64)
			if !ok {
				return s, fmt.Errorf("namespace_settings.%s: only must hold namespace ids", name)
			}
			s.Only = append(s.Only, int32(f))
		}
	default:
		return s, fmt.Errorf("namespace_settings.%s: only must be an id or a list of ids", name)
	}

	override, err := parseOverride(e.Overridedefault)
	if err != nil {
		return s, fmt.Errorf("namespace_settings.%s: %w", name, err)
	}
	s.Override = override
	return s, nil
}

// parseOverride reads overridedefault. A map keyed by namespace ids and/or
// "default" is per-namespace; anything else is one scalar for all.
func parseOverride(raw any) (Override, error) {
	m, ok := raw.(map[string]any)
	if !ok || !isOverrideMap(m) {
		return Override{Scalar: raw, HasScalar: raw != nil}, nil
	}

	o := Override{IsMap: true, PerNamespace: map[int32]any{}}
	for k, v := range m {
		if k == "default" {
			o.Default, o.HasDefault = v, true
			continue
		}
		id, err := strconv.ParseInt(k, 10, 32)
		if err != nil {
			return Override{}, fmt.Errorf("overridedefault: bad key %q", k)
		}
		o.PerNamespace[int32(id)] = v
	}
	return o, nil
}

// isOverrideMap tells a per-namespace override apart from a scalar value
// that happens to be a map: every key must be "default" or an integer.
func isOverrideMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if k == "default" {
			continue
		}
		if _, err := strconv.ParseInt(k, 10, 32); err != nil {
			return false
		}
	}
	return true
}

// stringKeys converts yaml's map[any]any nodes so the tree can be
// re-encoded as JSON.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = stringKeys(e)
		}
		return out
	case map[string]any:
		for k, e := range t {
			t[k] = stringKeys(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = stringKeys(e)
		}
		return t
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = stringKeys(e)
		}
		return out
	}
	return v
}
