package domain

import "context"

type ctxKey string

const (
	chatCtxKey   ctxKey = "chat_id"
	pluginCtxKey ctxKey = "plugin_id"
)

// ContextWithChatID returns a new context carrying the chat ID (ULID).
func ContextWithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatCtxKey, chatID)
}

// ChatIDFromContext extracts the chat ID from the context.
// Returns empty string if not set.
func ChatIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(chatCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithPluginID marks ctx as running on behalf of a plugin.
func ContextWithPluginID(ctx context.Context, pluginID string) context.Context {
	return context.WithValue(ctx, pluginCtxKey, pluginID)
}

// PluginIDFromContext returns the plugin on whose behalf ctx runs, or "".
func PluginIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(pluginCtxKey).(string); ok {
		return v
	}
	return ""
}
