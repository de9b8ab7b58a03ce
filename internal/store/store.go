// Package store provides the device-local persistent key/value store.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/fieldsync-io/fieldsync/internal/errors"
)

// Store is a durable key/value store backed by SQLite. Every Set is a
// single implicit transaction, so a crash between calls never exposes a
// torn value. Values are string-serialized (JSON by convention).
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store under dataDir. The database is opened
// with WAL mode and a single writer connection, matching SQLite's write
// model.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to create data directory", err)
	}

	dbPath := filepath.Join(dataDir, "fieldsync.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to open database", err)
	}

	// SQLite supports a single writer; serialize all access through one
	// connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, apperrors.Wrap(apperrors.ErrStore, fmt.Sprintf("failed to apply %s", pragma), err)
		}
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the kv table if it doesn't exist.
func (s *Store) initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY CHECK(length(key) > 0),
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(query); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to create kv table", err)
	}
	return nil
}

// Get returns the value stored under key. The second return is false when
// the key is absent.
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.Wrap(apperrors.ErrStore, "failed to read key", err)
	}
	return value, true, nil
}

// Set durably stores value under key, replacing any previous value. The
// write is one complete commit.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, value, time.Now().UnixMilli(),
	)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStoreWrite, "failed to write key", err)
	}
	return nil
}

// Delete removes key from the store. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreWrite, "failed to delete key", err)
	}
	return nil
}

// Clear removes every key. Used by the destructive offline-data reset only.
func (s *Store) Clear() error {
	if _, err := s.db.Exec("DELETE FROM kv"); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreWrite, "failed to clear store", err)
	}
	return nil
}

// Keys returns all keys with the given prefix, ordered lexicographically.
func (s *Store) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM kv WHERE key LIKE ? || '%' ORDER BY key", prefix)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to list keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStore, "failed to scan key", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
