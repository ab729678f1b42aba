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

// Package sqlitedb implements configdb.QuerierFull on an embedded SQLite
// database for single-node farms and local development.
package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/cardinalhq/wikifarm/configdb"
)

const schema = `
CREATE TABLE IF NOT EXISTS wikis (
  wiki_id       TEXT PRIMARY KEY,
  private       INTEGER NOT NULL DEFAULT 0,
  language_code TEXT NOT NULL DEFAULT 'en',
  active_users  INTEGER NOT NULL DEFAULT 0,
  articles      INTEGER NOT NULL DEFAULT 0,
  pages         INTEGER NOT NULL DEFAULT 0,
  images        INTEGER NOT NULL DEFAULT 0,
  created_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS wiki_settings (
  wiki_id    TEXT PRIMARY KEY,
  settings   TEXT NOT NULL DEFAULT '{}',
  extensions TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS wiki_namespaces (
  wiki_id       TEXT NOT NULL,
  namespace_id  INTEGER NOT NULL,
  name          TEXT NOT NULL,
  searchable    INTEGER NOT NULL DEFAULT 0,
  subpages      INTEGER NOT NULL DEFAULT 0,
  content       INTEGER NOT NULL DEFAULT 0,
  content_model TEXT NOT NULL DEFAULT 'wikitext',
  protection    TEXT NOT NULL DEFAULT '',
  aliases       TEXT NOT NULL DEFAULT '[]',
  core          INTEGER NOT NULL DEFAULT 0,
  additional    TEXT NOT NULL DEFAULT '{}',
  PRIMARY KEY (wiki_id, namespace_id)
);
CREATE TABLE IF NOT EXISTS wiki_permissions (
  wiki_id      TEXT NOT NULL,
  group_name   TEXT NOT NULL,
  permissions  TEXT NOT NULL DEFAULT '[]',
  addgroups    TEXT NOT NULL DEFAULT '[]',
  removegroups TEXT NOT NULL DEFAULT '[]',
  addself      TEXT NOT NULL DEFAULT '[]',
  removeself   TEXT NOT NULL DEFAULT '[]',
  autopromote  TEXT,
  PRIMARY KEY (wiki_id, group_name)
);
CREATE TABLE IF NOT EXISTS wiki_jobs (
  seq        INTEGER PRIMARY KEY AUTOINCREMENT,
  id         TEXT NOT NULL UNIQUE,
  wiki_id    TEXT NOT NULL,
  task_name  TEXT NOT NULL,
  spec       TEXT NOT NULL DEFAULT '{}',
  priority   INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);
`

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the database handle. It is safe for concurrent use.
type Store struct {
	*Queries
	db   *sql.DB
	path string
}

var _ configdb.QuerierFull = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-process database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: every :memory: connection is its own database, and
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{Queries: &Queries{db: db}, db: db, path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() {
	_ = s.db.Close()
}

func (s *Store) WithTx(ctx context.Context, fn func(configdb.Querier) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
	}()

	if err = fn(&Queries{db: tx}); err != nil {
		return err
	}
	return tx.Commit()
}
