package domain

import (
	"context"
	"log/slog"
)

// Permission names a gated API namespace a plugin may request.
type Permission string

const (
	PermissionDatabase Permission = "database"
	PermissionAuth     Permission = "auth"
	PermissionChats    Permission = "chats"
)

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	switch p {
	case PermissionDatabase, PermissionAuth, PermissionChats:
		return true
	}
	return false
}

// PluginManifest describes a plugin's identity and the permissions it requests.
type PluginManifest struct {
	ID          string       `json:"id"          yaml:"id"`
	Name        string       `json:"name"        yaml:"name"`
	Version     string       `json:"version"     yaml:"version"`
	Description string       `json:"description" yaml:"description"`
	Author      string       `json:"author"      yaml:"author"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
}

// Plugin is the interface every in-process plugin must implement. A plugin opts
// into lifecycle callbacks by implementing any of the single-hook interfaces
// below, or Hooks as a whole.
type Plugin interface {
	Manifest() PluginManifest
}

// Hooks declares every lifecycle callback. The plugin manager resolves each
// plugin to a complete Hooks value at activation; callbacks the plugin does not
// implement are no-ops.
type Hooks interface {
	OnActivate(ctx context.Context, api PluginAPI) error
	OnDeactivate(ctx context.Context) error
	OnChatCreated(ctx context.Context, chatID string) error
	OnChatDeleted(ctx context.Context, chatID string) error
	OnChatsDeleted(ctx context.Context, chatIDs []string) error
	OnBeforeChatGeneration(ctx context.Context, gen *ChatGeneration) error
	OnBeforeChatIteration(ctx context.Context, gen *ChatGeneration) error
	OnAfterChatIteration(ctx context.Context, gen *ChatGeneration) error
	OnAfterChatGeneration(ctx context.Context, gen *ChatGeneration) error
}

// Single-hook interfaces.
type (
	ActivateHook interface {
		OnActivate(ctx context.Context, api PluginAPI) error
	}
	DeactivateHook interface {
		OnDeactivate(ctx context.Context) error
	}
	ChatCreatedHook interface {
		OnChatCreated(ctx context.Context, chatID string) error
	}
	ChatDeletedHook interface {
		OnChatDeleted(ctx context.Context, chatID string) error
	}
	ChatsDeletedHook interface {
		OnChatsDeleted(ctx context.Context, chatIDs []string) error
	}
	BeforeChatGenerationHook interface {
		OnBeforeChatGeneration(ctx context.Context, gen *ChatGeneration) error
	}
	BeforeChatIterationHook interface {
		OnBeforeChatIteration(ctx context.Context, gen *ChatGeneration) error
	}
	AfterChatIterationHook interface {
		OnAfterChatIteration(ctx context.Context, gen *ChatGeneration) error
	}
	AfterChatGenerationHook interface {
		OnAfterChatGeneration(ctx context.Context, gen *ChatGeneration) error
	}
)

// PluginHooks pairs a plugin with its resolved hooks.
type PluginHooks struct {
	PluginID string
	Hooks    Hooks
}

// HookProvider lists the active plugins' hooks in activation order.
type HookProvider interface {
	Hooks() []PluginHooks
}

// PluginAPI is the per-plugin view of the host handed to OnActivate.
// Namespaces that need a permission the plugin did not request fail with
// ErrPermissionDenied.
type PluginAPI struct {
	PluginID string
	Logger   *slog.Logger
	Events   EventBus

	Settings SettingsNamespace
	Storage  StorageNamespace
	Database Database
	Models   ModelsNamespace
	Tools    ToolsNamespace
	UI       UINamespace
	Auth     Authenticator
	Chats    ChatReader
	Commands CommandsNamespace
}

// PluginManager handles the lifecycle of plugins.
type PluginManager interface {
	HookProvider
	Activate(ctx context.Context, p Plugin) error
	Deactivate(ctx context.Context, id string) error
	List() []PluginManifest
}
