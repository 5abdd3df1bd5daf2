package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TokenStore caches OAuth tokens. Values are opaque to the store; callers
// encrypt them before Put.
type TokenStore struct {
	db *sql.DB
}

func (s *TokenStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM oauth_tokens WHERE cache_key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get token: %w", err)
	}
	return value, true, nil
}

func (s *TokenStore) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (cache_key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	return nil
}

func (s *TokenStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM oauth_tokens WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
