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

// Package configcache builds the effective configuration snapshot of a
// wiki from its stored rows and the static registry, and caches it.
package configcache

import (
	"bytes"
	"encoding/json"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/registry"
)

// Input is the stored state of one wiki.
type Input struct {
	WikiID       string
	Private      bool
	LanguageCode string
	Settings     map[string]any
	Extensions   []string
	Namespaces   []configdb.WikiNamespace
	Permissions  []configdb.WikiPermission
}

type Namespace struct {
	ID           int32          `json:"id"`
	Name         string         `json:"name"`
	Searchable   bool           `json:"searchable"`
	Subpages     bool           `json:"subpages"`
	Content      bool           `json:"content"`
	ContentModel string         `json:"contentmodel"`
	Protection   string         `json:"protection"`
	Aliases      []string       `json:"aliases"`
	Core         bool           `json:"core"`
	Additional   map[string]any `json:"additional"`
}

type Group struct {
	Permissions  []string        `json:"permissions"`
	Addgroups    []string        `json:"addgroups"`
	Removegroups []string        `json:"removegroups"`
	Addself      []string        `json:"addself"`
	Removeself   []string        `json:"removeself"`
	Autopromote  json.RawMessage `json:"autopromote,omitempty"`
}

// Snapshot is the effective configuration of one wiki.
type Snapshot struct {
	WikiID       string               `json:"wiki_id"`
	Private      bool                 `json:"private"`
	LanguageCode string               `json:"language_code"`
	Extensions   []string             `json:"extensions"`
	Namespaces   map[string]Namespace `json:"namespaces"`
	Settings     map[string]any       `json:"settings"`
	Permissions  map[string]Group     `json:"permissions"`
	Hash         string               `json:"hash"`
	BuiltAt      time.Time            `json:"built_at"`
}

// Build resolves in against reg. It is pure apart from BuiltAt.
func Build(reg *registry.Registry, in Input) *Snapshot {
	if reg == nil {
		reg = &registry.Registry{}
	}
	lang := in.LanguageCode
	if lang == "" {
		lang = "en"
	}
	snap := &Snapshot{
		WikiID:       in.WikiID,
		Private:      in.Private,
		LanguageCode: lang,
		Extensions:   resolveExtensions(reg, in.Extensions),
		Namespaces:   resolveNamespaces(reg, lang, in.Namespaces),
		Settings:     resolveSettings(reg, in.Settings, in.Namespaces),
		Permissions:  resolvePermissions(reg, in.Permissions),
	}
	snap.Hash = hashOf(snap)
	snap.BuiltAt = time.Now().UTC()
	return snap
}

func resolveExtensions(reg *registry.Registry, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if ext, ok := reg.Extension(id); ok {
			out = append(out, ext.RuntimeName())
		}
	}
	return out
}

var underscorer = strings.NewReplacer(" ", "_", ":", "_")

func resolveNamespaces(reg *registry.Registry, lang string, rows []configdb.WikiNamespace) map[string]Namespace {
	out := make(map[string]Namespace, len(rows))
	for _, r := range rows {
		name := r.Name
		if localized, ok := reg.LocalizedNamespaceName(lang, r.NamespaceID); ok {
			name = localized
		}

		aliases := mapset.NewThreadUnsafeSet[string]()
		for _, a := range r.Aliases {
			aliases.Add(underscorer.Replace(a))
		}
		if lang != "en" {
			if en, ok := reg.LocalizedNamespaceName("en", r.NamespaceID); ok && en != name {
				aliases.Add(en)
			}
		}
		aliasList := aliases.ToSlice()
		slices.Sort(aliasList)

		contentModel := r.ContentModel
		if contentModel == "" {
			contentModel = "wikitext"
		}
		additional := r.Additional
		if additional == nil {
			additional = map[string]any{}
		}
		out[name] = Namespace{
			ID:           r.NamespaceID,
			Name:         name,
			Searchable:   r.Searchable,
			Subpages:     r.Subpages,
			Content:      r.Content,
			ContentModel: contentModel,
			Protection:   r.Protection,
			Aliases:      aliasList,
			Core:         r.Core,
			Additional:   additional,
		}
	}
	return out
}

func resolvePermissions(reg *registry.Registry, rows []configdb.WikiPermission) map[string]Group {
	defaults := reg.Permissions
	out := make(map[string]Group, len(rows))

	build := func(name string, row *configdb.WikiPermission) Group {
		rights := mapset.NewThreadUnsafeSet[string]()
		var g Group
		if row != nil {
			rights.Append(row.Permissions...)
			g = Group{
				Addgroups:    slices.Clone(row.Addgroups),
				Removegroups: slices.Clone(row.Removegroups),
				Addself:      slices.Clone(row.Addself),
				Removeself:   slices.Clone(row.Removeself),
				Autopromote:  row.Autopromote,
			}
		}
		for right, grant := range defaults.AdditionalRights[name] {
			if grant {
				rights.Add(right)
			} else {
				rights.Remove(right)
			}
		}
		g.Permissions = sortedSet(rights)
		g.Addgroups = union(g.Addgroups, defaults.AdditionalAddGroups[name])
		g.Removegroups = union(g.Removegroups, defaults.AdditionalRemoveGroups[name])
		g.Addself = union(g.Addself, nil)
		g.Removeself = union(g.Removeself, nil)
		if len(g.Autopromote) == 0 || bytes.Equal(g.Autopromote, []byte("null")) {
			g.Autopromote = nil
		}
		return g
	}

	for i := range rows {
		out[rows[i].GroupName] = build(rows[i].GroupName, &rows[i])
	}
	for name := range defaults.AdditionalRights {
		if _, ok := out[name]; !ok {
			out[name] = build(name, nil)
		}
	}
	return out
}

func union(a, b []string) []string {
	s := mapset.NewThreadUnsafeSet(a...)
	s.Append(b...)
	return sortedSet(s)
}

func sortedSet(s mapset.Set[string]) []string {
	out := s.ToSlice()
	slices.Sort(out)
	return out
}

// resolveSettings starts from the stored blob and overlays every
// registry namespace setting. Resolved flags are appended to a stored id
// list and resolved entries are written into a stored map; constants
// replace the stored value.
func resolveSettings(reg *registry.Registry, blob map[string]any, rows []configdb.WikiNamespace) map[string]any {
	settings := make(map[string]any, len(blob)+len(reg.NamespaceSettings))
	for k, v := range blob {
		settings[k] = v
	}

	ns := slices.Clone(rows)
	slices.SortFunc(ns, func(a, b configdb.WikiNamespace) int { return int(a.NamespaceID) - int(b.NamespaceID) })
	if !slices.ContainsFunc(ns, func(r configdb.WikiNamespace) bool { return r.NamespaceID == registry.SpecialNamespaceID }) {
		ns = append([]configdb.WikiNamespace{{NamespaceID: registry.SpecialNamespaceID}}, ns...)
	}

	for _, setting := range reg.NamespaceSettings {
		o := newOverlay(setting)
		for _, r := range ns {
			if !setting.AppliesTo(r.NamespaceID) {
				continue
			}
			o.apply(r.NamespaceID, r.Additional)
		}
		o.materialize(settings)
	}
	return settings
}

// overlay accumulates the resolved values of one setting across namespaces.
type overlay struct {
	setting  registry.NamespaceSetting
	flags    []int32
	entries  map[string]any
	constant any
	resolved bool
}

func newOverlay(s registry.NamespaceSetting) *overlay {
	return &overlay{setting: s, entries: map[string]any{}}
}

// lookup walks the precedence ladder for one namespace: the explicit
// additional value, then the registry override for the id, then the
// generic default.
func (o *overlay) lookup(id int32, additional map[string]any) (any, bool) {
	if v, ok := additional[o.setting.Name]; ok && v != nil {
		return v, true
	}
	return o.setting.Override.Lookup(id)
}

func (o *overlay) apply(id int32, additional map[string]any) {
	value, ok := o.lookup(id, additional)
	if o.setting.Constant {
		if o.constant != nil {
			return
		}
		if !ok && id != registry.SpecialNamespaceID {
			value, ok = o.setting.Override.Scalar, o.setting.Override.HasScalar
		}
		if ok && !isEmptyValue(value) {
			if s, isString := value.(string); isString {
				value = underscorer.Replace(s)
			}
			o.constant = value
			o.resolved = true
		}
		return
	}
	if !ok || isEmptyValue(value) {
		return
	}
	switch o.setting.Kind {
	case registry.KindNamespaceFlag:
		o.flags = append(o.flags, id)
	case registry.KindNamespaceMap:
		o.entries[strconv.Itoa(int(id))] = true
	default:
		o.entries[strconv.Itoa(int(id))] = value
	}
	o.resolved = true
}

func (o *overlay) materialize(settings map[string]any) {
	name := o.setting.Name
	if o.resolved {
		switch {
		case o.setting.Constant:
			settings[name] = o.constant
		case o.setting.Kind == registry.KindNamespaceFlag:
			flags, _ := idList(settings[name])
			for _, id := range o.flags {
				if !slices.Contains(flags, id) {
					flags = append(flags, id)
				}
			}
			settings[name] = flags
		default:
			entries := map[string]any{}
			if stored, ok := settings[name].(map[string]any); ok {
				maps.Copy(entries, stored)
			}
			maps.Copy(entries, o.entries)
			settings[name] = entries
		}
		return
	}
	if _, present := settings[name]; present || o.setting.Constant {
		return
	}
	if o.setting.Kind == registry.KindNamespaceFlag {
		settings[name] = []int32{}
	} else {
		settings[name] = map[string]any{}
	}
}

// idList reads a stored namespace id list. Anything that is not a list of
// whole numbers yields nil and is replaced by the overlay.
func idList(v any) ([]int32, bool) {
	var items []any
	switch t := v.(type) {
	case []int32:
		return slices.Clone(t), true
	case []any:
		items = t
	case []int:
		for _, n := range t {
			items = append(items, n)
		}
	default:
		return nil, false
	}
	out := make([]int32, 0, len(items))
	for _, item := range items {
		var n float64
		switch num := item.(type) {
		case int:
			n = float64(num)
		case int32:
			n = float64(num)
		case int64:
			n = float64(num)
		case uint64:
			n = float64(num)
		case float64:
			n = num
		default:
			return nil, false
		}
		if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, false
		}
		out = append(out, int32(n))
	}
	return out, true
}

// isEmptyValue reports nil, false, zero numbers, empty strings and empty
// containers. Empty values never materialize a namespace entry.
func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case int:
		return t == 0
	case int32:
		return t == 0
	case int64:
		return t == 0
	case uint64:
		return t == 0
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func hashOf(s *Snapshot) string {
	clone := *s
	clone.Hash = ""
	clone.BuiltAt = time.Time{}
	b, err := json.Marshal(clone)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64(b), 16)
}
