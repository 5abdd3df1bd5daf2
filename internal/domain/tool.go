package domain

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a tool to an LLM.
type ToolDefinition struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"` // JSON Schema of the arguments object
}

// ToolExecuteArgs is passed to Tool.Execute. The call is always pending.
type ToolExecuteArgs struct {
	Call             PendingToolCall
	AssistantMessage MessageBuilder
}

// Tool is a capability the LLM can invoke. Execute must return promptly once
// ctx is cancelled; the returned string is the call's result.
type Tool interface {
	ID() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, args ToolExecuteArgs) (string, error)
}

// DefinitionOf returns the LLM-facing definition of t.
func DefinitionOf(t Tool) ToolDefinition {
	return ToolDefinition{ID: t.ID(), Description: t.Description(), Schema: t.Schema()}
}
