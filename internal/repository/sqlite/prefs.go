package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Prefs implements repository.Prefs on the prefs table.
type Prefs struct {
	db *sql.DB
}

// Prefs returns the preference store backed by this database.
func (s *Store) Prefs() *Prefs {
	return &Prefs{db: s.db}
}

// Get returns the stored value or fallback when the key is unset.
func (p *Prefs) Get(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE pref_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("select pref %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key.
func (p *Prefs) Set(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO prefs(pref_key, value) VALUES(?, ?)
		ON CONFLICT(pref_key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("upsert pref %s: %w", key, err)
	}
	return nil
}
