package domain

import (
	"context"
	"encoding/json"
	"slices"
)

// Capability is an optional feature an LLM declares.
type Capability string

const (
	CapabilityToolCalling       Capability = "tool_calling"
	CapabilityStructuredOutputs Capability = "structured_outputs"
)

// LLM is a chat model backend registered by a plugin.
//
// Chat starts one model turn. The adapter emits events on the returned channel
// in generation order and closes it when the turn ends; a StreamError event
// reports a failure of the turn. Adapters must stop sending when ctx is done.
type LLM interface {
	ID() string
	Name() string
	Description() string
	Capabilities() []Capability
	Chat(ctx context.Context, args ChatArgs) (<-chan LLMEvent, error)
}

// NodeUnderstander is implemented by LLMs that accept only some node types.
// LLMs that don't implement it understand text and markdown nodes.
type NodeUnderstander interface {
	Understands(node ContentNode) bool
}

// HasCapability reports whether llm declares c.
func HasCapability(llm LLM, c Capability) bool {
	return slices.Contains(llm.Capabilities(), c)
}

// Understands applies llm's node filter, defaulting to text-like nodes.
func Understands(llm LLM, node ContentNode) bool {
	if llm != nil {
		if u, ok := llm.(NodeUnderstander); ok {
			return u.Understands(node)
		}
	}
	switch node.(type) {
	case TextNode, MarkdownNode:
		return true
	}
	return false
}

// ChatArgs are the inputs of one model turn. Tools is empty for LLMs lacking
// CapabilityToolCalling. AssistantMessage is the message being generated; an
// adapter may add nodes other than text and tool calls to it directly.
type ChatArgs struct {
	Tools            []ToolDefinition
	Prompt           ChatPrompt
	AssistantMessage MessageBuilder
}

// LLMEvent is one item of a model turn's output stream.
type LLMEvent interface {
	llmEvent()
}

// TextDelta is an incremental chunk of assistant text.
type TextDelta struct {
	Text string
}

// ToolCallRequest asks the host to invoke a tool.
type ToolCallRequest struct {
	ToolID    string
	Arguments json.RawMessage
}

// StreamError ends a turn with a failure.
type StreamError struct {
	Err error
}

func (TextDelta) llmEvent()       {}
func (ToolCallRequest) llmEvent() {}
func (StreamError) llmEvent()     {}
