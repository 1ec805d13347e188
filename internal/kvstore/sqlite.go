// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated TIMESTAMP
)
`

const upsertSql = `
INSERT INTO kv (key, value, updated)
VALUES ($1, $2, datetime())
ON CONFLICT (key)
DO UPDATE SET value = $2, updated = datetime();
`

// SQLiteStore keeps keys in a single SQLite table.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the database at path and creates the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get returns the value for key.
func (s *SQLiteStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.Get(&value, "SELECT value FROM kv WHERE key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set creates or replaces key.
func (s *SQLiteStore) Set(key, value string) error {
	if _, err := s.db.Exec(upsertSql, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (s *SQLiteStore) Remove(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = $1", key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// ListKeys returns the sorted keys starting with prefix.
func (s *SQLiteStore) ListKeys(prefix string) ([]string, error) {
	var keys []string
	// substr avoids LIKE wildcard escaping for prefixes containing % or _
	err := s.db.Select(&keys, "SELECT key FROM kv WHERE substr(key, 1, length($1)) = $1 ORDER BY key", prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
