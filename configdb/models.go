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

package configdb

import (
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
)

// DefaultWikiID names the template tenant new wikis are seeded from.
const DefaultWikiID = "default"

// ErrNotFound is returned by single-row lookups when no row matches.
// Every Querier implementation returns this exact value so callers can
// use errors.Is regardless of the backing store.
var ErrNotFound = pgx.ErrNoRows

type Wiki struct {
	WikiID       string    `json:"wiki_id"`
	Private      bool      `json:"private"`
	LanguageCode string    `json:"language_code"`
	ActiveUsers  int64     `json:"active_users"`
	Articles     int64     `json:"articles"`
	Pages        int64     `json:"pages"`
	Images       int64     `json:"images"`
	CreatedAt    time.Time `json:"created_at"`
}

type WikiSetting struct {
	WikiID     string         `json:"wiki_id"`
	Settings   map[string]any `json:"settings"`
	Extensions []string       `json:"extensions"`
}

type WikiNamespace struct {
	WikiID       string         `json:"wiki_id"`
	NamespaceID  int32          `json:"namespace_id"`
	Name         string         `json:"name"`
	Searchable   bool           `json:"searchable"`
	Subpages     bool           `json:"subpages"`
	Content      bool           `json:"content"`
	ContentModel string         `json:"content_model"`
	Protection   string         `json:"protection"`
	Aliases      []string       `json:"aliases"`
	Core         bool           `json:"core"`
	Additional   map[string]any `json:"additional"`
}

type WikiPermission struct {
	WikiID       string          `json:"wiki_id"`
	GroupName    string          `json:"group_name"`
	Permissions  []string        `json:"permissions"`
	Addgroups    []string        `json:"addgroups"`
	Removegroups []string        `json:"removegroups"`
	Addself      []string        `json:"addself"`
	Removeself   []string        `json:"removeself"`
	Autopromote  json.RawMessage `json:"autopromote"`
}

type WikiJob struct {
	ID        string          `json:"id"`
	WikiID    string          `json:"wiki_id"`
	TaskName  string          `json:"task_name"`
	Spec      json.RawMessage `json:"spec"`
	Priority  int32           `json:"priority"`
	CreatedAt time.Time       `json:"created_at"`
}
