// Copyright 2025 venslabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlstore keeps advisories in a SQL database (SQLite or PostgreSQL).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/venslabs/depgraph/pkg/advisory"
)

// Config selects the database.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string
	// DSN is a file path for SQLite, a connection string for PostgreSQL.
	DSN string
}

// Store implements advisory.Store and advisory.Source.
type Store struct {
	db      *sql.DB
	dialect dialect
}

type dialect struct {
	name   string
	lookup string
	all    string
	upsert string
}

var (
	sqliteDialect = dialect{
		name:   "sqlite",
		lookup: `SELECT body FROM advisories WHERE pkg_key = ? ORDER BY id`,
		all:    `SELECT pkg_key, body FROM advisories ORDER BY pkg_key, id`,
		upsert: `INSERT INTO advisories (pkg_key, id, body) VALUES (?, ?, ?) ON CONFLICT (pkg_key, id) DO UPDATE SET body = excluded.body`,
	}
	postgresDialect = dialect{
		name:   "postgres",
		lookup: `SELECT body FROM advisories WHERE pkg_key = $1 ORDER BY id`,
		all:    `SELECT pkg_key, body FROM advisories ORDER BY pkg_key, id`,
		upsert: `INSERT INTO advisories (pkg_key, id, body) VALUES ($1, $2, $3) ON CONFLICT (pkg_key, id) DO UPDATE SET body = EXCLUDED.body`,
	}
)

const schema = `
CREATE TABLE IF NOT EXISTS advisories (
	pkg_key TEXT NOT NULL,
	id TEXT NOT NULL,
	body TEXT NOT NULL,
	PRIMARY KEY (pkg_key, id)
);
`

// Open opens the database described by cfg and applies migrations.
func Open(cfg Config) (*Store, error) {
	var d dialect
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite", "sqlite3":
		d = sqliteDialect
		if cfg.DSN == "" {
			cfg.DSN = "advisories.db"
		}
	case "postgres", "postgresql":
		d = postgresDialect
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres connection string is required")
		}
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}

	db, err := sql.Open(d.name, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &Store{db: db, dialect: d}
	if err := s.migrate(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func newWithDB(db *sql.DB, d dialect) *Store {
	return &Store{db: db, dialect: d}
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Lookup(ctx context.Context, key string) ([]advisory.Advisory, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.lookup, key)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", advisory.ErrUnavailable, key, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []advisory.Advisory
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %w", advisory.ErrUnavailable, key, err)
		}
		var a advisory.Advisory
		if err := json.Unmarshal([]byte(body), &a); err != nil {
			return nil, fmt.Errorf("corrupt advisory record for %s: %w", key, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", advisory.ErrUnavailable, err)
	}
	return out, nil
}

func (s *Store) All(ctx context.Context) ([]advisory.Keyed, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.all)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", advisory.ErrUnavailable, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []advisory.Keyed
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, err
		}
		var a advisory.Advisory
		if err := json.Unmarshal([]byte(body), &a); err != nil {
			return nil, fmt.Errorf("corrupt advisory record for %s: %w", key, err)
		}
		out = append(out, advisory.Keyed{Key: key, Advisory: a})
	}
	return out, rows.Err()
}

// Import upserts entries in a single transaction and returns how many were
// written.
func (s *Store) Import(ctx context.Context, entries []advisory.Keyed) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, s.dialect.upsert)
	if err != nil {
		return 0, err
	}
	defer stmt.Close() //nolint:errcheck

	for i, e := range entries {
		body, err := json.Marshal(e.Advisory)
		if err != nil {
			return i, fmt.Errorf("failed to encode %s: %w", e.Advisory.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, e.Key, e.Advisory.ID, string(body)); err != nil {
			return i, fmt.Errorf("failed to write %s: %w", e.Advisory.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(entries), nil
}
