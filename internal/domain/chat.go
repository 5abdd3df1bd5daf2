package domain

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a new monotonic ULID string. Chats, messages and tool calls use it.
func NewID() string {
	return ulid.Make().String()
}

// Chat is a conversation's identity and metadata.
type Chat struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatRole is the author of a persisted chat message.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// Valid reports whether r is a known chat role.
func (r ChatRole) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ChatMessage is one persisted turn of a chat. Content nodes are ordered.
type ChatMessage struct {
	ID        string        `json:"id"`
	ChatID    string        `json:"chat_id"`
	Role      ChatRole      `json:"role"`
	Content   []ContentNode `json:"-"`
	CreatedAt time.Time     `json:"created_at"`
}

// SortOrder orders GetMessages results by creation time.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

// DefaultMessageLimit is used when GetMessagesOptions.Limit is zero.
const DefaultMessageLimit = 25

// GetMessagesOptions filters a chat's messages.
type GetMessagesOptions struct {
	ChatID string
	Limit  int       // 0 means DefaultMessageLimit
	Role   ChatRole  // empty means any role
	Sort   SortOrder // empty means SortNewest
}

// Normalize fills in defaults and validates the options.
func (o GetMessagesOptions) Normalize() (GetMessagesOptions, error) {
	if o.ChatID == "" {
		return o, NewDomainError("Chats.GetMessages", ErrInvalidInput, "chat id is required")
	}
	if o.Limit < 0 {
		return o, NewDomainError("Chats.GetMessages", ErrInvalidInput, "limit must be >= 0")
	}
	if o.Limit == 0 {
		o.Limit = DefaultMessageLimit
	}
	if o.Role != "" && !o.Role.Valid() {
		return o, NewDomainError("Chats.GetMessages", ErrInvalidInput, "unknown role "+string(o.Role))
	}
	switch o.Sort {
	case "":
		o.Sort = SortNewest
	case SortNewest, SortOldest:
	default:
		return o, NewDomainError("Chats.GetMessages", ErrInvalidInput, "unknown sort "+string(o.Sort))
	}
	return o, nil
}

// ChatReader is the read/rename surface plugins receive as the chats namespace.
// Get returns (nil, nil) for an unknown chat.
type ChatReader interface {
	Get(ctx context.Context, chatID string) (*Chat, error)
	Rename(ctx context.Context, chatID, name string) error
	GetMessages(ctx context.Context, opts GetMessagesOptions) ([]ChatMessage, error)
}

// ChatStore is the host-side persistence for chats and their messages.
type ChatStore interface {
	ChatReader
	Create(ctx context.Context, chat *Chat) error
	Delete(ctx context.Context, chatID string) error
	List(ctx context.Context) ([]Chat, error)
	AppendMessage(ctx context.Context, msg ChatMessage) error
}
