package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"limbo/internal/domain"
)

// StorageProvider hands out key-value namespaces scoped by plugin id.
type StorageProvider struct {
	db *sql.DB
}

// ForPlugin returns the storage namespace of one plugin.
func (p *StorageProvider) ForPlugin(pluginID string) domain.StorageNamespace {
	return &pluginStorage{db: p.db, pluginID: pluginID}
}

type pluginStorage struct {
	db       *sql.DB
	pluginID string
}

// Set stores value under key. The value must be valid JSON.
func (s *pluginStorage) Set(ctx context.Context, key string, value json.RawMessage) error {
	if key == "" {
		return domain.NewDomainError("Storage.Set", domain.ErrInvalidInput, "key is required")
	}
	if !json.Valid(value) {
		return domain.NewDomainError("Storage.Set", domain.ErrInvalidInput, fmt.Sprintf("value for %q is not valid JSON", key))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plugin_storage (plugin_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (plugin_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.pluginID, key, string(value), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("storage set %q: %w", key, err)
	}
	return nil
}

func (s *pluginStorage) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM plugin_storage WHERE plugin_id = ? AND key = ?", s.pluginID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage get %q: %w", key, err)
	}
	return json.RawMessage(value), true, nil
}

// Remove deletes key. Missing keys are ignored.
func (s *pluginStorage) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM plugin_storage WHERE plugin_id = ? AND key = ?", s.pluginID, key,
	); err != nil {
		return fmt.Errorf("storage remove %q: %w", key, err)
	}
	return nil
}

// Clear deletes every key of the plugin.
func (s *pluginStorage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM plugin_storage WHERE plugin_id = ?", s.pluginID); err != nil {
		return fmt.Errorf("storage clear: %w", err)
	}
	return nil
}
