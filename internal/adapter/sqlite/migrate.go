package sqlite

import "database/sql"

// migrate creates the schema if it doesn't exist.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS chats (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			chat_id    TEXT NOT NULL REFERENCES chats(id),
			role       TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS messages_chat_created
			ON messages(chat_id, created_at, seq);

		CREATE TABLE IF NOT EXISTS plugin_storage (
			plugin_id  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (plugin_id, key)
		);

		CREATE TABLE IF NOT EXISTS setting_values (
			plugin_id  TEXT NOT NULL,
			setting_id TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (plugin_id, setting_id)
		);

		CREATE TABLE IF NOT EXISTS oauth_tokens (
			cache_key  TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	_, err := db.Exec(schema)
	return err
}
