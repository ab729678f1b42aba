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

package sqlitedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cardinalhq/wikifarm/configdb"
)

// Queries mirrors configdb.Queries for SQLite. JSON columns are stored as TEXT.
type Queries struct {
	db dbtx
}

var _ configdb.Querier = (*Queries)(nil)

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return configdb.ErrNotFound
	}
	return err
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(raw string, dst any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, raw)
	return t
}

func strs(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (q *Queries) GetWiki(ctx context.Context, wikiID string) (configdb.Wiki, error) {
	row := q.db.QueryRowContext(ctx, `SELECT wiki_id, private, language_code, active_users, articles, pages, images, created_at
FROM wikis WHERE wiki_id = ?`, wikiID)
	var (
		w       configdb.Wiki
		created string
	)
	if err := row.Scan(&w.WikiID, &w.Private, &w.LanguageCode, &w.ActiveUsers, &w.Articles, &w.Pages, &w.Images, &created); err != nil {
		return configdb.Wiki{}, notFound(err)
	}
	w.CreatedAt = parseTime(created)
	return w, nil
}

func (q *Queries) UpsertWiki(ctx context.Context, arg configdb.UpsertWikiParams) error {
	lang := arg.LanguageCode
	if lang == "" {
		lang = "en"
	}
	_, err := q.db.ExecContext(ctx, `INSERT INTO wikis (wiki_id, private, language_code, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (wiki_id) DO UPDATE SET private = excluded.private, language_code = excluded.language_code`,
		arg.WikiID, arg.Private, lang, now())
	return err
}

func (q *Queries) SetWikiPrivate(ctx context.Context, arg configdb.SetWikiPrivateParams) error {
	_, err := q.db.ExecContext(ctx, `UPDATE wikis SET private = ? WHERE wiki_id = ?`, arg.Private, arg.WikiID)
	return err
}

func (q *Queries) ListWikiIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT wiki_id FROM wikis ORDER BY wiki_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *Queries) GetWikiSettings(ctx context.Context, wikiID string) (configdb.WikiSetting, error) {
	row := q.db.QueryRowContext(ctx, `SELECT wiki_id, settings, extensions FROM wiki_settings WHERE wiki_id = ?`, wikiID)
	var (
		ws                configdb.WikiSetting
		settings, enabled string
	)
	if err := row.Scan(&ws.WikiID, &settings, &enabled); err != nil {
		return configdb.WikiSetting{}, notFound(err)
	}
	ws.Settings = map[string]any{}
	if err := decode(settings, &ws.Settings); err != nil {
		return configdb.WikiSetting{}, fmt.Errorf("decode settings for %s: %w", wikiID, err)
	}
	if err := decode(enabled, &ws.Extensions); err != nil {
		return configdb.WikiSetting{}, fmt.Errorf("decode extensions for %s: %w", wikiID, err)
	}
	ws.Extensions = strs(ws.Extensions)
	return ws, nil
}

func (q *Queries) UpsertWikiExtensions(ctx context.Context, arg configdb.UpsertWikiExtensionsParams) error {
	enabled, err := encode(strs(arg.Extensions))
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `INSERT INTO wiki_settings (wiki_id, extensions) VALUES (?, ?)
ON CONFLICT (wiki_id) DO UPDATE SET extensions = excluded.extensions`, arg.WikiID, enabled)
	return err
}

func (q *Queries) UpsertWikiSettingsBlob(ctx context.Context, arg configdb.UpsertWikiSettingsBlobParams) error {
	settings := arg.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	blob, err := encode(settings)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `INSERT INTO wiki_settings (wiki_id, settings) VALUES (?, ?)
ON CONFLICT (wiki_id) DO UPDATE SET settings = excluded.settings`, arg.WikiID, blob)
	return err
}

func (q *Queries) ListWikiNamespaces(ctx context.Context, wikiID string) ([]configdb.WikiNamespace, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT wiki_id, namespace_id, name, searchable, subpages, content, content_model,
  protection, aliases, core, additional
FROM wiki_namespaces WHERE wiki_id = ? ORDER BY namespace_id`, wikiID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []configdb.WikiNamespace
	for rows.Next() {
		var (
			ns                  configdb.WikiNamespace
			aliases, additional string
		)
		if err := rows.Scan(&ns.WikiID, &ns.NamespaceID, &ns.Name, &ns.Searchable, &ns.Subpages, &ns.Content,
			&ns.ContentModel, &ns.Protection, &aliases, &ns.Core, &additional); err != nil {
			return nil, err
		}
		if err := decode(aliases, &ns.Aliases); err != nil {
			return nil, fmt.Errorf("decode aliases for namespace %d: %w", ns.NamespaceID, err)
		}
		ns.Additional = map[string]any{}
		if err := decode(additional, &ns.Additional); err != nil {
			return nil, fmt.Errorf("decode additional for namespace %d: %w", ns.NamespaceID, err)
		}
		ns.Aliases = strs(ns.Aliases)
		items = append(items, ns)
	}
	return items, rows.Err()
}

func (q *Queries) UpsertWikiNamespace(ctx context.Context, arg configdb.WikiNamespace) error {
	aliases, err := encode(strs(arg.Aliases))
	if err != nil {
		return err
	}
	additional := arg.Additional
	if additional == nil {
		additional = map[string]any{}
	}
	extra, err := encode(additional)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `INSERT INTO wiki_namespaces (
  wiki_id, namespace_id, name, searchable, subpages, content, content_model, protection, aliases, core, additional
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (wiki_id, namespace_id) DO UPDATE SET
  name = excluded.name, searchable = excluded.searchable, subpages = excluded.subpages,
  content = excluded.content, content_model = excluded.content_model, protection = excluded.protection,
  aliases = excluded.aliases, core = excluded.core, additional = excluded.additional`,
		arg.WikiID, arg.NamespaceID, arg.Name, arg.Searchable, arg.Subpages, arg.Content,
		arg.ContentModel, arg.Protection, aliases, arg.Core, extra)
	return err
}

func (q *Queries) DeleteWikiNamespace(ctx context.Context, arg configdb.DeleteWikiNamespaceParams) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM wiki_namespaces WHERE wiki_id = ? AND namespace_id = ?`, arg.WikiID, arg.NamespaceID)
	return err
}

func (q *Queries) ListWikiPermissions(ctx context.Context, wikiID string) ([]configdb.WikiPermission, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT wiki_id, group_name, permissions, addgroups, removegroups, addself, removeself, autopromote
FROM wiki_permissions WHERE wiki_id = ? ORDER BY group_name`, wikiID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []configdb.WikiPermission
	for rows.Next() {
		var (
			p                                configdb.WikiPermission
			perms, add, remove, aself, rself string
			autopromote                      sql.NullString
		)
		if err := rows.Scan(&p.WikiID, &p.GroupName, &perms, &add, &remove, &aself, &rself, &autopromote); err != nil {
			return nil, err
		}
		for _, col := range []struct {
			raw string
			dst *[]string
		}{
			{perms, &p.Permissions},
			{add, &p.Addgroups},
			{remove, &p.Removegroups},
			{aself, &p.Addself},
			{rself, &p.Removeself},
		} {
			if err := decode(col.raw, col.dst); err != nil {
				return nil, fmt.Errorf("decode group %s: %w", p.GroupName, err)
			}
			*col.dst = strs(*col.dst)
		}
		if autopromote.Valid {
			p.Autopromote = json.RawMessage(autopromote.String)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (q *Queries) UpsertWikiPermission(ctx context.Context, arg configdb.WikiPermission) error {
	cols := make([]any, 0, 5)
	for _, set := range [][]string{arg.Permissions, arg.Addgroups, arg.Removegroups, arg.Addself, arg.Removeself} {
		enc, err := encode(strs(set))
		if err != nil {
			return err
		}
		cols = append(cols, enc)
	}
	var autopromote sql.NullString
	if len(arg.Autopromote) > 0 {
		autopromote = sql.NullString{String: string(arg.Autopromote), Valid: true}
	}
	_, err := q.db.ExecContext(ctx, `INSERT INTO wiki_permissions (
  wiki_id, group_name, permissions, addgroups, removegroups, addself, removeself, autopromote
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (wiki_id, group_name) DO UPDATE SET
  permissions = excluded.permissions, addgroups = excluded.addgroups, removegroups = excluded.removegroups,
  addself = excluded.addself, removeself = excluded.removeself, autopromote = excluded.autopromote`,
		arg.WikiID, arg.GroupName, cols[0], cols[1], cols[2], cols[3], cols[4], autopromote)
	return err
}

func (q *Queries) DeleteWikiPermission(ctx context.Context, arg configdb.DeleteWikiPermissionParams) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM wiki_permissions WHERE wiki_id = ? AND group_name = ?`, arg.WikiID, arg.GroupName)
	return err
}

func (q *Queries) EnqueueWikiJob(ctx context.Context, arg configdb.EnqueueWikiJobParams) (configdb.WikiJob, error) {
	spec := string(arg.Spec)
	if spec == "" {
		spec = "{}"
	}
	created := now()
	if _, err := q.db.ExecContext(ctx, `INSERT INTO wiki_jobs (id, wiki_id, task_name, spec, priority, created_at)
VALUES (?, ?, ?, ?, ?, ?)`, arg.ID, arg.WikiID, arg.TaskName, spec, arg.Priority, created); err != nil {
		return configdb.WikiJob{}, err
	}
	return configdb.WikiJob{
		ID:        arg.ID,
		WikiID:    arg.WikiID,
		TaskName:  arg.TaskName,
		Spec:      json.RawMessage(spec),
		Priority:  arg.Priority,
		CreatedAt: parseTime(created),
	}, nil
}

func (q *Queries) ListWikiJobs(ctx context.Context, wikiID string) ([]configdb.WikiJob, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, wiki_id, task_name, spec, priority, created_at
FROM wiki_jobs WHERE wiki_id = ? ORDER BY priority, seq`, wikiID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var jobs []configdb.WikiJob
	for rows.Next() {
		var (
			j             configdb.WikiJob
			spec, created string
		)
		if err := rows.Scan(&j.ID, &j.WikiID, &j.TaskName, &spec, &j.Priority, &created); err != nil {
			return nil, err
		}
		j.Spec = json.RawMessage(spec)
		j.CreatedAt = parseTime(created)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
