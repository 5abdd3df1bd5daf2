package domain

import (
	"context"
	"encoding/json"
)

// SettingsNamespace lets a plugin declare settings and read their values.
type SettingsNamespace interface {
	Register(s Setting) error
	Unregister(id string)
	// Get returns the stored value, else the default. ok is false when neither exists.
	Get(ctx context.Context, id string) (value any, ok bool, err error)
}

// StorageNamespace is a plugin-scoped JSON key-value store.
type StorageNamespace interface {
	Set(ctx context.Context, key string, value json.RawMessage) error
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// QueryResult is the outcome of Database.Query. Rows is set for statements
// that return rows; the counters are set for statements that don't.
type QueryResult struct {
	Rows         []map[string]any `json:"rows"`
	LastInsertID *int64           `json:"last_insert_id,omitempty"`
	RowsAffected *int64           `json:"rows_affected,omitempty"`
}

// Database is a SQL passthrough to the plugin's own database.
type Database interface {
	Query(ctx context.Context, query string, params ...any) (*QueryResult, error)
}

// ModelsNamespace is the process-wide LLM registry as seen by plugins.
type ModelsNamespace interface {
	GetLLM(id string) (LLM, bool)
	RegisterLLM(llm LLM) error
	UnregisterLLM(id string)
}

// ToolsNamespace is the process-wide tool registry as seen by plugins.
type ToolsNamespace interface {
	Register(t Tool) error
	Unregister(id string)
}

// MarkdownElement renders a custom element found in markdown content.
type MarkdownElement struct {
	Element string
	Render  func(attrs map[string]string, content string) (string, error)
}

// ChatNodeRenderer renders CustomNodes of one type as markdown.
type ChatNodeRenderer struct {
	Type   string
	Render func(node CustomNode) (string, error)
}

// ChatPanel is a side panel a plugin can open next to the chat.
type ChatPanel struct {
	ID     string
	Title  string
	Render func(data json.RawMessage) (string, error)
}

type ShowChatPanelOptions struct {
	ID   string
	Data json.RawMessage
}

type ConfirmDialogOptions struct {
	Title       string
	Description string
}

// NotificationLevel is the severity of a notification.
type NotificationLevel string

const (
	NotificationInfo    NotificationLevel = "info"
	NotificationWarning NotificationLevel = "warning"
	NotificationError   NotificationLevel = "error"
)

type Notification struct {
	Level   NotificationLevel `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
}

// UINamespace registers renderers and talks to the user.
type UINamespace interface {
	RegisterMarkdownElement(el MarkdownElement) error
	UnregisterMarkdownElement(element string)
	RegisterChatNode(r ChatNodeRenderer) error
	UnregisterChatNode(nodeType string)
	RegisterChatPanel(p ChatPanel) error
	UnregisterChatPanel(id string)
	ShowChatPanel(ctx context.Context, opts ShowChatPanelOptions) error
	ShowConfirmDialog(ctx context.Context, opts ConfirmDialogOptions) (bool, error)
	ShowNotification(ctx context.Context, n Notification)
}

// AuthenticateOptions describe an OAuth2 authorization server.
// RegistrationURL and ClientID are optional: without a client id the client is
// registered dynamically, discovering the registration endpoint when needed.
type AuthenticateOptions struct {
	AuthURL         string
	TokenURL        string
	RegistrationURL string
	Scopes          []string
	ClientID        string
	ClientName      string
}

// Authenticator obtains OAuth2 access tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, opts AuthenticateOptions) (string, error)
}

// Command is a user-invocable action contributed by a plugin.
type Command struct {
	ID      string
	Name    string
	Execute func(ctx context.Context) error
}

// CommandsNamespace registers commands.
type CommandsNamespace interface {
	Register(cmd Command) error
	Unregister(id string)
}
