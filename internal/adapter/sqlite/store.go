// Package sqlite persists chats, plugin storage, setting values and cached
// OAuth tokens in a single SQLite database, and gives each plugin its own
// database file for raw SQL access.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// Store is the host database. Its sub-stores share one connection.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// openDB opens a single-writer WAL database, creating its directory.
func openDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Chats returns the chat and message store.
func (s *Store) Chats() *ChatStore {
	return &ChatStore{db: s.db}
}

// Storage returns the provider of plugin key-value namespaces.
func (s *Store) Storage() *StorageProvider {
	return &StorageProvider{db: s.db}
}

// SettingValues returns the store for user-set plugin setting values.
func (s *Store) SettingValues() *SettingValueStore {
	return &SettingValueStore{db: s.db}
}

// Tokens returns the OAuth token cache.
func (s *Store) Tokens() *TokenStore {
	return &TokenStore{db: s.db}
}
