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

package namespaces

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/wikifarm/configdb"
)

// Namespace is the staged state of one namespace. MaintainPrefix is not
// persisted; it only travels with the migration job.
type Namespace struct {
	ID             int32          `json:"id"`
	Name           string         `json:"name"`
	Searchable     bool           `json:"searchable"`
	Subpages       bool           `json:"subpages"`
	Content        bool           `json:"content"`
	ContentModel   string         `json:"contentmodel"`
	Protection     string         `json:"protection"`
	Aliases        []string       `json:"aliases"`
	Core           bool           `json:"core"`
	Additional     map[string]any `json:"additional"`
	MaintainPrefix bool           `json:"-"`
}

// DefaultContentModel is used for namespaces that never set one.
const DefaultContentModel = "wikitext"

// Default is the shape of a namespace that has no stored row.
func Default(id int32) Namespace {
	return Namespace{
		ID:           id,
		ContentModel: DefaultContentModel,
		Aliases:      []string{},
		Additional:   map[string]any{},
	}
}

func fromRow(r configdb.WikiNamespace) Namespace {
	ns := Namespace{
		ID:           r.NamespaceID,
		Name:         r.Name,
		Searchable:   r.Searchable,
		Subpages:     r.Subpages,
		Content:      r.Content,
		ContentModel: r.ContentModel,
		Protection:   r.Protection,
		Aliases:      slices.Clone(r.Aliases),
		Core:         r.Core,
		Additional:   maps.Clone(r.Additional),
	}
	if ns.ContentModel == "" {
		ns.ContentModel = DefaultContentModel
	}
	if ns.Aliases == nil {
		ns.Aliases = []string{}
	}
	if ns.Additional == nil {
		ns.Additional = map[string]any{}
	}
	return ns
}

func (ns Namespace) row(wikiID string) configdb.WikiNamespace {
	return configdb.WikiNamespace{
		WikiID:       wikiID,
		NamespaceID:  ns.ID,
		Name:         ns.Name,
		Searchable:   ns.Searchable,
		Subpages:     ns.Subpages,
		Content:      ns.Content,
		ContentModel: ns.ContentModel,
		Protection:   ns.Protection,
		Aliases:      slices.Clone(ns.Aliases),
		Core:         ns.Core,
		Additional:   maps.Clone(ns.Additional),
	}
}

func (ns Namespace) clone() Namespace {
	ns.Aliases = slices.Clone(ns.Aliases)
	ns.Additional = maps.Clone(ns.Additional)
	return ns
}

// Update is a partial namespace modification. Nil fields are left alone.
type Update struct {
	Name         *string
	Searchable   *bool
	Subpages     *bool
	Content      *bool
	ContentModel *string
	Protection   *string
	Aliases      []string
	Core         *bool
	Additional   map[string]any
}

// Field names used in staged diffs.
const (
	FieldName         = "name"
	FieldSearchable   = "searchable"
	FieldSubpages     = "subpages"
	FieldContent      = "content"
	FieldContentModel = "contentmodel"
	FieldProtection   = "protection"
	FieldAliases      = "aliases"
	FieldCore         = "core"
	FieldAdditional   = "additional"
	FieldMaintain     = "maintainPrefix"
)

var fieldOrder = []string{
	FieldName, FieldSearchable, FieldSubpages, FieldContent, FieldContentModel,
	FieldProtection, FieldAliases, FieldCore, FieldAdditional,
}

// AsUpdate returns an update that sets every field of ns.
func (ns Namespace) AsUpdate() Update {
	c := ns.clone()
	if c.Aliases == nil {
		c.Aliases = []string{}
	}
	if c.Additional == nil {
		c.Additional = map[string]any{}
	}
	return Update{
		Name:         &c.Name,
		Searchable:   &c.Searchable,
		Subpages:     &c.Subpages,
		Content:      &c.Content,
		ContentModel: &c.ContentModel,
		Protection:   &c.Protection,
		Aliases:      c.Aliases,
		Core:         &c.Core,
		Additional:   c.Additional,
	}
}

func (ns *Namespace) apply(u Update) {
	if u.Name != nil {
		ns.Name = *u.Name
	}
	if u.Searchable != nil {
		ns.Searchable = *u.Searchable
	}
	if u.Subpages != nil {
		ns.Subpages = *u.Subpages
	}
	if u.Content != nil {
		ns.Content = *u.Content
	}
	if u.ContentModel != nil {
		ns.ContentModel = *u.ContentModel
	}
	if u.Protection != nil {
		ns.Protection = *u.Protection
	}
	if u.Aliases != nil {
		ns.Aliases = slices.Clone(u.Aliases)
	}
	if u.Core != nil {
		ns.Core = *u.Core
	}
	if u.Additional != nil {
		ns.Additional = maps.Clone(u.Additional)
	}
}

func (ns Namespace) field(name string) any {
	switch name {
	case FieldName:
		return ns.Name
	case FieldSearchable:
		return ns.Searchable
	case FieldSubpages:
		return ns.Subpages
	case FieldContent:
		return ns.Content
	case FieldContentModel:
		return ns.ContentModel
	case FieldProtection:
		return ns.Protection
	case FieldAliases:
		return slices.Clone(ns.Aliases)
	case FieldCore:
		return ns.Core
	case FieldAdditional:
		return maps.Clone(ns.Additional)
	}
	return nil
}

// fieldEqual compares aliases as sets and additional by JSON encoding,
// so that numbers decoded from different stores compare equal.
func fieldEqual(name string, a, b Namespace) bool {
	switch name {
	case FieldAliases:
		return mapset.NewThreadUnsafeSet(a.Aliases...).Equal(mapset.NewThreadUnsafeSet(b.Aliases...))
	case FieldAdditional:
		return jsonEqual(a.Additional, b.Additional)
	}
	return a.field(name) == b.field(name)
}

func jsonEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
