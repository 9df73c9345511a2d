// Package sqlite is the durable local cache: catalog copies, counting list mirrors
// and preferences, all in one SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS catalog_products (
		user_id TEXT NOT NULL,
		barcode TEXT NOT NULL,
		payload BLOB NOT NULL,
		PRIMARY KEY (user_id, barcode)
	)`,
	`CREATE TABLE IF NOT EXISTS counting_mirrors (
		mirror_key TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS prefs (
		pref_key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Store owns the SQLite handle.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the cache file and applies the schema.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "stockcount.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps writers serialized and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// LoadMirror returns the persisted list mirror stored under key.
func (s *Store) LoadMirror(ctx context.Context, key string) (models.MirrorState, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM counting_mirrors WHERE mirror_key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MirrorState{}, false, nil
	}
	if err != nil {
		return models.MirrorState{}, false, fmt.Errorf("select mirror %s: %w", key, err)
	}
	var state models.MirrorState
	if err := json.Unmarshal(payload, &state); err != nil {
		return models.MirrorState{}, false, fmt.Errorf("decode mirror %s: %w", key, err)
	}
	return state, true, nil
}

// SaveMirror replaces the persisted list mirror stored under key.
func (s *Store) SaveMirror(ctx context.Context, key string, state models.MirrorState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode mirror %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO counting_mirrors(mirror_key, payload) VALUES(?, ?)
		ON CONFLICT(mirror_key) DO UPDATE SET payload = excluded.payload`, key, payload)
	if err != nil {
		return fmt.Errorf("upsert mirror %s: %w", key, err)
	}
	return nil
}

// DeleteMirror drops the persisted list mirror stored under key.
func (s *Store) DeleteMirror(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM counting_mirrors WHERE mirror_key = ?`, key); err != nil {
		return fmt.Errorf("delete mirror %s: %w", key, err)
	}
	return nil
}
