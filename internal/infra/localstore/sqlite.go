// Package localstore provides per-user key/value state (history, theme,
// migration flags) backed by a SQLite file.
package localstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	zlog "github.com/rs/zerolog/log"
)

// DefaultPath is used when no path is configured.
const DefaultPath = "data/sonora.db"

const schema = `
CREATE TABLE IF NOT EXISTS local_state (
	user_id    TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (user_id, key)
);`

// Store is a SQLite key/value store scoped by user.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open local state database")
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	zlog.Info().Msgf("localstore: opened %s", path)
	return &Store{db: db, path: path}, nil
}

// Get returns the value stored under key for userID.
func (s *Store) Get(ctx context.Context, userID, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return "", false, errors.New("local state database is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM local_state WHERE user_id = ? AND key = ?`, userID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read %s", key)
	}
	return value, true, nil
}

// Set stores value under key for userID, replacing any previous value.
func (s *Store) Set(ctx context.Context, userID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.New("local state database is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_state (user_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		userID, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return errors.Wrapf(err, "failed to write %s", key)
	}
	return nil
}

// Delete removes key for userID. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.New("local state database is closed")
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM local_state WHERE user_id = ? AND key = ?`, userID, key); err != nil {
		return errors.Wrapf(err, "failed to delete %s", key)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
