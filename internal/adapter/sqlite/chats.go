package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"limbo/internal/domain"
)

// Compile-time check: ChatStore implements domain.ChatStore.
var _ domain.ChatStore = (*ChatStore)(nil)

// ChatStore persists chats and their messages.
type ChatStore struct {
	db *sql.DB
}

// Create inserts a chat, filling in its ID and CreatedAt when unset.
func (s *ChatStore) Create(ctx context.Context, chat *domain.Chat) error {
	if chat.ID == "" {
		chat.ID = domain.NewID()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM chats WHERE id = ?", chat.ID).Scan(&exists)
		switch {
		case err == nil:
			return domain.NewDomainError("Chats.Create", domain.ErrDuplicate, chat.ID)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO chats (id, name, created_at) VALUES (?, ?, ?)",
			chat.ID, chat.Name, formatTime(chat.CreatedAt),
		)
		return err
	})
}

// Get returns (nil, nil) for an unknown chat.
func (s *ChatStore) Get(ctx context.Context, chatID string) (*domain.Chat, error) {
	var c domain.Chat
	var created string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM chats WHERE id = ?", chatID,
	).Scan(&c.ID, &c.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	c.CreatedAt = parseTime(created)
	return &c, nil
}

// Rename fails with domain.ErrChatNotFound for an unknown chat.
func (s *ChatStore) Rename(ctx context.Context, chatID, name string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE chats SET name = ? WHERE id = ?", name, chatID)
	if err != nil {
		return fmt.Errorf("rename chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewDomainError("Chats.Rename", domain.ErrChatNotFound, chatID)
	}
	return nil
}

// Delete removes a chat and its messages. Unknown ids are ignored.
func (s *ChatStore) Delete(ctx context.Context, chatID string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", chatID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", chatID)
		return err
	})
}

// List returns every chat, newest first.
func (s *ChatStore) List(ctx context.Context) ([]domain.Chat, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at FROM chats ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []domain.Chat
	for rows.Next() {
		var c domain.Chat
		var created string
		if err := rows.Scan(&c.ID, &c.Name, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// AppendMessage stores a message at the end of its chat, filling in ID and
// CreatedAt when unset. The chat must exist.
func (s *ChatStore) AppendMessage(ctx context.Context, msg domain.ChatMessage) error {
	if !msg.Role.Valid() {
		return domain.NewDomainError("Chats.AppendMessage", domain.ErrInvalidInput, "unknown role "+string(msg.Role))
	}
	if msg.ID == "" {
		msg.ID = domain.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	content, err := domain.MarshalNodes(msg.Content)
	if err != nil {
		return domain.WrapOp("Chats.AppendMessage", err)
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM chats WHERE id = ?", msg.ChatID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewDomainError("Chats.AppendMessage", domain.ErrChatNotFound, msg.ChatID)
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO messages (id, chat_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
			msg.ID, msg.ChatID, string(msg.Role), string(content), formatTime(msg.CreatedAt),
		)
		return err
	})
}

// GetMessages returns up to Limit messages of a chat, optionally filtered by
// role. SortNewest returns the most recent first; SortOldest the oldest first.
// An unknown chat yields no messages.
func (s *ChatStore) GetMessages(ctx context.Context, opts domain.GetMessagesOptions) ([]domain.ChatMessage, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	order := "DESC"
	if opts.Sort == domain.SortOldest {
		order = "ASC"
	}
	query := "SELECT id, chat_id, role, content, created_at FROM messages WHERE chat_id = ?"
	args := []any{opts.ChatID}
	if opts.Role != "" {
		query += " AND role = ?"
		args = append(args, string(opts.Role))
	}
	query += fmt.Sprintf(" ORDER BY created_at %s, seq %s LIMIT ?", order, order)
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var role, content, created string
		if err := rows.Scan(&m.ID, &m.ChatID, &role, &content, &created); err != nil {
			return nil, err
		}
		m.Role = domain.ChatRole(role)
		m.CreatedAt = parseTime(created)
		if m.Content, err = domain.UnmarshalNodes([]byte(content)); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// withTx runs fn in a transaction, committing on success.
func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
