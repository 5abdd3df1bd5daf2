// Package pluginsdk provides types and helpers for limbo plugin developers.
//
// The types are aliases of the host's domain types, so the package is usable
// by plugins built inside the limbo module.
package pluginsdk

import (
	"context"
	"encoding/json"

	"limbo/internal/adapter/tool"
	"limbo/internal/domain"
)

// Re-exported domain types for plugin developers.
type (
	Plugin         = domain.Plugin
	PluginManifest = domain.PluginManifest
	PluginAPI      = domain.PluginAPI
	Permission     = domain.Permission
	Hooks          = domain.Hooks

	ChatGeneration = domain.ChatGeneration
	ChatMessage    = domain.ChatMessage
	ContentNode    = domain.ContentNode
	TextNode       = domain.TextNode
	MarkdownNode   = domain.MarkdownNode
	ImageNode      = domain.ImageNode
	ToolCallNode   = domain.ToolCallNode
	CustomNode     = domain.CustomNode

	LLM             = domain.LLM
	ChatArgs        = domain.ChatArgs
	LLMEvent        = domain.LLMEvent
	TextDelta       = domain.TextDelta
	ToolCallRequest = domain.ToolCallRequest
	StreamError     = domain.StreamError
	Capability      = domain.Capability

	Tool            = domain.Tool
	ToolExecuteArgs = domain.ToolExecuteArgs

	Setting        = domain.Setting
	SettingBase    = domain.SettingBase
	TextSetting    = domain.TextSetting
	BooleanSetting = domain.BooleanSetting
	NumberSetting  = domain.NumberSetting
	EnumSetting    = domain.EnumSetting
	EnumOption     = domain.EnumOption
	LLMSetting     = domain.LLMSetting

	MarkdownElement  = domain.MarkdownElement
	ChatNodeRenderer = domain.ChatNodeRenderer
	ChatPanel        = domain.ChatPanel
	Notification     = domain.Notification
	Command          = domain.Command

	AuthenticateOptions = domain.AuthenticateOptions
)

// Re-exported constants.
const (
	PermissionDatabase = domain.PermissionDatabase
	PermissionAuth     = domain.PermissionAuth
	PermissionChats    = domain.PermissionChats

	CapabilityToolCalling       = domain.CapabilityToolCalling
	CapabilityStructuredOutputs = domain.CapabilityStructuredOutputs
)

// BasePlugin implements Plugin for a fixed manifest. Embed it together with
// BaseHooks and override the hooks you need.
type BasePlugin struct {
	manifest PluginManifest
}

// NewBasePlugin creates a BasePlugin with the given manifest.
func NewBasePlugin(m PluginManifest) BasePlugin {
	return BasePlugin{manifest: m}
}

func (b BasePlugin) Manifest() PluginManifest { return b.manifest }

// BaseHooks provides no-op implementations of every hook.
type BaseHooks struct{}

func (BaseHooks) OnActivate(context.Context, PluginAPI) error                   { return nil }
func (BaseHooks) OnDeactivate(context.Context) error                            { return nil }
func (BaseHooks) OnChatCreated(context.Context, string) error                   { return nil }
func (BaseHooks) OnChatDeleted(context.Context, string) error                   { return nil }
func (BaseHooks) OnChatsDeleted(context.Context, []string) error                { return nil }
func (BaseHooks) OnBeforeChatGeneration(context.Context, *ChatGeneration) error { return nil }
func (BaseHooks) OnBeforeChatIteration(context.Context, *ChatGeneration) error  { return nil }
func (BaseHooks) OnAfterChatIteration(context.Context, *ChatGeneration) error   { return nil }
func (BaseHooks) OnAfterChatGeneration(context.Context, *ChatGeneration) error  { return nil }

// NewTool builds a tool whose JSON arguments are decoded into P. The handler's
// result is used as is when it is a string and JSON-encoded otherwise.
func NewTool[P any](id, description string, schema json.RawMessage, handler func(ctx context.Context, args ToolExecuteArgs, params P) (any, error)) Tool {
	return tool.NewFunc(id, description, schema, handler)
}
