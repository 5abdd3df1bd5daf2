package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SettingValueStore persists the values users set for plugin settings, JSON
// encoded and keyed by (plugin id, setting id).
type SettingValueStore struct {
	db *sql.DB
}

// Load returns the stored value. ok is false when none was set.
func (s *SettingValueStore) Load(ctx context.Context, pluginID, settingID string) (json.RawMessage, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM setting_values WHERE plugin_id = ? AND setting_id = ?", pluginID, settingID,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load setting %s/%s: %w", pluginID, settingID, err)
	}
	return json.RawMessage(value), true, nil
}

func (s *SettingValueStore) Save(ctx context.Context, pluginID, settingID string, value json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO setting_values (plugin_id, setting_id, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (plugin_id, setting_id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		pluginID, settingID, string(value), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save setting %s/%s: %w", pluginID, settingID, err)
	}
	return nil
}

// Delete resets a setting to its default.
func (s *SettingValueStore) Delete(ctx context.Context, pluginID, settingID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM setting_values WHERE plugin_id = ? AND setting_id = ?", pluginID, settingID,
	); err != nil {
		return fmt.Errorf("delete setting %s/%s: %w", pluginID, settingID, err)
	}
	return nil
}
