package domain

import "encoding/json"

// PromptRole is the role of a message sent to an LLM.
type PromptRole string

const (
	PromptSystem    PromptRole = "system"
	PromptUser      PromptRole = "user"
	PromptAssistant PromptRole = "assistant"
	PromptTool      PromptRole = "tool"
)

// PromptMessage is a TextPromptMessage or a ToolPromptMessage.
type PromptMessage interface {
	PromptRole() PromptRole
	promptMessage()
}

// TextPromptMessage is free text from the system, the user or the assistant.
type TextPromptMessage struct {
	Role    PromptRole
	Content string
}

// ToolPromptMessage renders a settled tool call back into the prompt.
type ToolPromptMessage struct {
	ToolID    string
	CallID    string
	Arguments json.RawMessage
	Result    string
}

func (m TextPromptMessage) PromptRole() PromptRole { return m.Role }
func (ToolPromptMessage) PromptRole() PromptRole   { return PromptTool }

func (TextPromptMessage) promptMessage() {}
func (ToolPromptMessage) promptMessage() {}

// ToolPromptFromCall renders a settled call. Failures are prefixed with "error: ".
func ToolPromptFromCall(c SettledToolCall) ToolPromptMessage {
	base := c.Base()
	msg := ToolPromptMessage{ToolID: base.ToolID, CallID: base.ID, Arguments: base.Arguments}
	switch v := c.(type) {
	case SuccessToolCall:
		msg.Result = v.Result
	case ErrorToolCall:
		if v.Error != nil {
			msg.Result = "error: " + *v.Error
		} else {
			msg.Result = "error"
		}
	}
	return msg
}

// ChatPrompt is the immutable prompt snapshot handed to an LLM for one iteration.
type ChatPrompt struct {
	System   string
	Messages []PromptMessage
}

// MessageBuilder edits the ordered content nodes of one message.
// Out-of-range reads report absence; out-of-range edits fail with ErrIndexOutOfRange.
type MessageBuilder interface {
	ID() string
	Role() ChatRole
	Len() int
	Nodes() []ContentNode
	GetNode(index int) (ContentNode, bool)
	AppendNode(nodes ...ContentNode)
	PrependNode(nodes ...ContentNode)
	InsertNode(index int, nodes ...ContentNode) error
	// ReplaceNode splices nodes in place of the node at index; zero nodes removes it.
	ReplaceNode(index int, nodes ...ContentNode) error
	RemoveNode(index int) error
	// AppendText extends the trailing text node, creating one if absent.
	AppendText(text string)
	// PromptMessage renders the message for an LLM.
	PromptMessage() PromptMessage
}

// PromptBuilder is the mutable prompt plugins shape during a generation.
type PromptBuilder interface {
	SystemPrompt() string
	SetSystemPrompt(prompt string)
	PrependToSystemPrompt(text string)
	AppendToSystemPrompt(text string)

	// Messages returns a copy of the current messages.
	Messages() []PromptMessage
	Len() int
	Message(index int) (PromptMessage, bool)
	AppendMessage(msgs ...PromptMessage)
	PrependMessage(msgs ...PromptMessage)
	InsertMessage(index int, msgs ...PromptMessage) error
	// ReplaceMessage splices msgs in place of the message at index; zero msgs removes it.
	ReplaceMessage(index int, msgs ...PromptMessage) error
	RemoveMessage(index int) error

	// CreateMessage returns an empty message builder that renders with this
	// prompt's node filter.
	CreateMessage(role ChatRole) MessageBuilder

	// Snapshot freezes the prompt for an LLM call.
	Snapshot() ChatPrompt
}
