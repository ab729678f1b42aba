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

// Package memdb is an in-process implementation of configdb.QuerierFull.
// Transactions run against a private copy of the tables which replaces
// the live copy only when the callback succeeds.
package memdb

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cardinalhq/wikifarm/configdb"
)

type nsKey struct {
	wikiID string
	id     int32
}

type permKey struct {
	wikiID string
	group  string
}

type tables struct {
	wikis       map[string]configdb.Wiki
	settings    map[string]configdb.WikiSetting
	namespaces  map[nsKey]configdb.WikiNamespace
	permissions map[permKey]configdb.WikiPermission
	jobs        []configdb.WikiJob
}

func newTables() *tables {
	return &tables{
		wikis:       map[string]configdb.Wiki{},
		settings:    map[string]configdb.WikiSetting{},
		namespaces:  map[nsKey]configdb.WikiNamespace{},
		permissions: map[permKey]configdb.WikiPermission{},
	}
}

func (t *tables) clone() *tables {
	c := &tables{
		wikis:       maps.Clone(t.wikis),
		settings:    make(map[string]configdb.WikiSetting, len(t.settings)),
		namespaces:  make(map[nsKey]configdb.WikiNamespace, len(t.namespaces)),
		permissions: make(map[permKey]configdb.WikiPermission, len(t.permissions)),
		jobs:        slices.Clone(t.jobs),
	}
	for k, v := range t.settings {
		c.settings[k] = copySetting(v)
	}
	for k, v := range t.namespaces {
		c.namespaces[k] = copyNamespace(v)
	}
	for k, v := range t.permissions {
		c.permissions[k] = copyPermission(v)
	}
	return c
}

// Store is safe for concurrent use. Transactions are serialized.
type Store struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	data   *tables
	writes int
	faults map[string]error
}

var _ configdb.QuerierFull = (*Store)(nil)

func New() *Store {
	return &Store{
		data:   newTables(),
		faults: map[string]error{},
	}
}

// Writes reports how many mutating queries have been applied to committed state.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// FailOn makes every later call of the named query return err.
// A nil err clears the fault.
func (s *Store) FailOn(query string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, query)
		return
	}
	s.faults[query] = err
}

// PutWiki stores a tenant row as-is, statistics included.
func (s *Store) PutWiki(w configdb.Wiki) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	s.data.wikis[w.WikiID] = w
}

func (s *Store) Close() {}

func (s *Store) WithTx(ctx context.Context, fn func(configdb.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	tx := &view{data: s.data.clone(), faults: maps.Clone(s.faults)}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = tx.data
	s.writes += tx.writes
	s.mu.Unlock()
	return nil
}

func (s *Store) read(fn func(v *view) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&view{data: s.data, faults: s.faults})
}

func (s *Store) write(fn func(v *view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &view{data: s.data, faults: s.faults}
	err := fn(v)
	s.writes += v.writes
	return err
}

func (s *Store) GetWiki(ctx context.Context, wikiID string) (w configdb.Wiki, err error) {
	err = s.read(func(v *view) error { w, err = v.GetWiki(ctx, wikiID); return err })
	return w, err
}

func (s *Store) UpsertWiki(ctx context.Context, arg configdb.UpsertWikiParams) error {
	return s.write(func(v *view) error { return v.UpsertWiki(ctx, arg) })
}

func (s *Store) SetWikiPrivate(ctx context.Context, arg configdb.SetWikiPrivateParams) error {
	return s.write(func(v *view) error { return v.SetWikiPrivate(ctx, arg) })
}

func (s *Store) ListWikiIDs(ctx context.Context) (ids []string, err error) {
	err = s.read(func(v *view) error { ids, err = v.ListWikiIDs(ctx); return err })
	return ids, err
}

func (s *Store) GetWikiSettings(ctx context.Context, wikiID string) (ws configdb.WikiSetting, err error) {
	err = s.read(func(v *view) error { ws, err = v.GetWikiSettings(ctx, wikiID); return err })
	return ws, err
}

func (s *Store) UpsertWikiExtensions(ctx context.Context, arg configdb.UpsertWikiExtensionsParams) error {
	return s.write(func(v *view) error { return v.UpsertWikiExtensions(ctx, arg) })
}

func (s *Store) UpsertWikiSettingsBlob(ctx context.Context, arg configdb.UpsertWikiSettingsBlobParams) error {
	return s.write(func(v *view) error { return v.UpsertWikiSettingsBlob(ctx, arg) })
}

func (s *Store) ListWikiNamespaces(ctx context.Context, wikiID string) (rows []configdb.WikiNamespace, err error) {
	err = s.read(func(v *view) error { rows, err = v.ListWikiNamespaces(ctx, wikiID); return err })
	return rows, err
}

func (s *Store) UpsertWikiNamespace(ctx context.Context, arg configdb.WikiNamespace) error {
	return s.write(func(v *view) error { return v.UpsertWikiNamespace(ctx, arg) })
}

func (s *Store) DeleteWikiNamespace(ctx context.Context, arg configdb.DeleteWikiNamespaceParams) error {
	return s.write(func(v *view) error { return v.DeleteWikiNamespace(ctx, arg) })
}

func (s *Store) ListWikiPermissions(ctx context.Context, wikiID string) (rows []configdb.WikiPermission, err error) {
	err = s.read(func(v *view) error { rows, err = v.ListWikiPermissions(ctx, wikiID); return err })
	return rows, err
}

func (s *Store) UpsertWikiPermission(ctx context.Context, arg configdb.WikiPermission) error {
	return s.write(func(v *view) error { return v.UpsertWikiPermission(ctx, arg) })
}

func (s *Store) DeleteWikiPermission(ctx context.Context, arg configdb.DeleteWikiPermissionParams) error {
	return s.write(func(v *view) error { return v.DeleteWikiPermission(ctx, arg) })
}

func (s *Store) EnqueueWikiJob(ctx context.Context, arg configdb.EnqueueWikiJobParams) (job configdb.WikiJob, err error) {
	err = s.write(func(v *view) error { job, err = v.EnqueueWikiJob(ctx, arg); return err })
	return job, err
}

func (s *Store) ListWikiJobs(ctx context.Context, wikiID string) (jobs []configdb.WikiJob, err error) {
	err = s.read(func(v *view) error { jobs, err = v.ListWikiJobs(ctx, wikiID); return err })
	return jobs, err
}

// view runs queries against one tables value without locking.
type view struct {
	data   *tables
	faults map[string]error
	writes int
}

var _ configdb.Querier = (*view)(nil)

func (v *view) fault(query string) error {
	return v.faults[query]
}

func (v *view) GetWiki(_ context.Context, wikiID string) (configdb.Wiki, error) {
	if err := v.fault("GetWiki"); err != nil {
		return configdb.Wiki{}, err
	}
	w, ok := v.data.wikis[wikiID]
	if !ok {
		return configdb.Wiki{}, configdb.ErrNotFound
	}
	return w, nil
}

func (v *view) UpsertWiki(_ context.Context, arg configdb.UpsertWikiParams) error {
	if err := v.fault("UpsertWiki"); err != nil {
		return err
	}
	w, ok := v.data.wikis[arg.WikiID]
	if !ok {
		w = configdb.Wiki{WikiID: arg.WikiID, CreatedAt: time.Now().UTC()}
	}
	w.Private = arg.Private
	w.LanguageCode = arg.LanguageCode
	if w.LanguageCode == "" {
		w.LanguageCode = "en"
	}
	v.data.wikis[arg.WikiID] = w
	v.writes++
	return nil
}

func (v *view) SetWikiPrivate(_ context.Context, arg configdb.SetWikiPrivateParams) error {
	if err := v.fault("SetWikiPrivate"); err != nil {
		return err
	}
	if w, ok := v.data.wikis[arg.WikiID]; ok {
		w.Private = arg.Private
		v.data.wikis[arg.WikiID] = w
		v.writes++
	}
	return nil
}

func (v *view) ListWikiIDs(_ context.Context) ([]string, error) {
	if err := v.fault("ListWikiIDs"); err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(v.data.wikis)), nil
}

func (v *view) GetWikiSettings(_ context.Context, wikiID string) (configdb.WikiSetting, error) {
	if err := v.fault("GetWikiSettings"); err != nil {
		return configdb.WikiSetting{}, err
	}
	ws, ok := v.data.settings[wikiID]
	if !ok {
		return configdb.WikiSetting{}, configdb.ErrNotFound
	}
	return copySetting(ws), nil
}

func (v *view) settingsRow(wikiID string) configdb.WikiSetting {
	ws, ok := v.data.settings[wikiID]
	if !ok {
		ws = configdb.WikiSetting{WikiID: wikiID, Settings: map[string]any{}, Extensions: []string{}}
	}
	return ws
}

func (v *view) UpsertWikiExtensions(_ context.Context, arg configdb.UpsertWikiExtensionsParams) error {
	if err := v.fault("UpsertWikiExtensions"); err != nil {
		return err
	}
	ws := v.settingsRow(arg.WikiID)
	ws.Extensions = nonNil(slices.Clone(arg.Extensions))
	v.data.settings[arg.WikiID] = ws
	v.writes++
	return nil
}

func (v *view) UpsertWikiSettingsBlob(_ context.Context, arg configdb.UpsertWikiSettingsBlobParams) error {
	if err := v.fault("UpsertWikiSettingsBlob"); err != nil {
		return err
	}
	ws := v.settingsRow(arg.WikiID)
	ws.Settings = copyMap(arg.Settings)
	v.data.settings[arg.WikiID] = ws
	v.writes++
	return nil
}

func (v *view) ListWikiNamespaces(_ context.Context, wikiID string) ([]configdb.WikiNamespace, error) {
	if err := v.fault("ListWikiNamespaces"); err != nil {
		return nil, err
	}
	var rows []configdb.WikiNamespace
	for k, ns := range v.data.namespaces {
		if k.wikiID == wikiID {
			rows = append(rows, copyNamespace(ns))
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].NamespaceID < rows[j].NamespaceID })
	return rows, nil
}

func (v *view) UpsertWikiNamespace(_ context.Context, arg configdb.WikiNamespace) error {
	if err := v.fault("UpsertWikiNamespace"); err != nil {
		return err
	}
	v.data.namespaces[nsKey{arg.WikiID, arg.NamespaceID}] = copyNamespace(arg)
	v.writes++
	return nil
}

func (v *view) DeleteWikiNamespace(_ context.Context, arg configdb.DeleteWikiNamespaceParams) error {
	if err := v.fault("DeleteWikiNamespace"); err != nil {
		return err
	}
	delete(v.data.namespaces, nsKey{arg.WikiID, arg.NamespaceID})
	v.writes++
	return nil
}

func (v *view) ListWikiPermissions(_ context.Context, wikiID string) ([]configdb.WikiPermission, error) {
	if err := v.fault("ListWikiPermissions"); err != nil {
		return nil, err
	}
	var rows []configdb.WikiPermission
	for k, p := range v.data.permissions {
		if k.wikiID == wikiID {
			rows = append(rows, copyPermission(p))
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].GroupName < rows[j].GroupName })
	return rows, nil
}

func (v *view) UpsertWikiPermission(_ context.Context, arg configdb.WikiPermission) error {
	if err := v.fault("UpsertWikiPermission"); err != nil {
		return err
	}
	v.data.permissions[permKey{arg.WikiID, arg.GroupName}] = copyPermission(arg)
	v.writes++
	return nil
}

func (v *view) DeleteWikiPermission(_ context.Context, arg configdb.DeleteWikiPermissionParams) error {
	if err := v.fault("DeleteWikiPermission"); err != nil {
		return err
	}
	delete(v.data.permissions, permKey{arg.WikiID, arg.GroupName})
	v.writes++
	return nil
}

func (v *view) EnqueueWikiJob(_ context.Context, arg configdb.EnqueueWikiJobParams) (configdb.WikiJob, error) {
	if err := v.fault("EnqueueWikiJob"); err != nil {
		return configdb.WikiJob{}, err
	}
	job := configdb.WikiJob{
		ID:        arg.ID,
		WikiID:    arg.WikiID,
		TaskName:  arg.TaskName,
		Spec:      slices.Clone(arg.Spec),
		Priority:  arg.Priority,
		CreatedAt: time.Now().UTC(),
	}
	v.data.jobs = append(v.data.jobs, job)
	v.writes++
	return job, nil
}

func (v *view) ListWikiJobs(_ context.Context, wikiID string) ([]configdb.WikiJob, error) {
	if err := v.fault("ListWikiJobs"); err != nil {
		return nil, err
	}
	var jobs []configdb.WikiJob
	for _, j := range v.data.jobs {
		if j.WikiID == wikiID {
			jobs = append(jobs, j)
		}
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].Priority < jobs[j].Priority })
	return jobs, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func copySetting(ws configdb.WikiSetting) configdb.WikiSetting {
	ws.Settings = copyMap(ws.Settings)
	ws.Extensions = nonNil(slices.Clone(ws.Extensions))
	return ws
}

func copyNamespace(ns configdb.WikiNamespace) configdb.WikiNamespace {
	ns.Aliases = nonNil(slices.Clone(ns.Aliases))
	ns.Additional = copyMap(ns.Additional)
	return ns
}

func copyPermission(p configdb.WikiPermission) configdb.WikiPermission {
	p.Permissions = nonNil(slices.Clone(p.Permissions))
	p.Addgroups = nonNil(slices.Clone(p.Addgroups))
	p.Removegroups = nonNil(slices.Clone(p.Removegroups))
	p.Addself = nonNil(slices.Clone(p.Addself))
	p.Removeself = nonNil(slices.Clone(p.Removeself))
	p.Autopromote = slices.Clone(p.Autopromote)
	return p
}

// copyMap deep-copies a JSON-shaped map so callers never share nested
// containers with stored rows.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return maps.Clone(m)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return maps.Clone(m)
	}
	return out
}
