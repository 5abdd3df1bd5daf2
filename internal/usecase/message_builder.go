package usecase

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"limbo/internal/domain"
)

// Compile-time check: MessageBuilder implements domain.MessageBuilder.
var _ domain.MessageBuilder = (*MessageBuilder)(nil)

// NodeFilter reports whether a node should be sent to the LLM.
type NodeFilter func(domain.ContentNode) bool

// MessageBuilder holds the ordered nodes of one message (thread-safe).
// Tools running concurrently may edit the assistant message, so every
// operation takes the lock.
type MessageBuilder struct {
	mu        sync.RWMutex
	id        string
	role      domain.ChatRole
	nodes     []domain.ContentNode
	filter    NodeFilter
	createdAt time.Time
}

// NewMessageBuilder creates an empty message with a fresh ID.
// A nil filter keeps text-like nodes only.
func NewMessageBuilder(role domain.ChatRole, filter NodeFilter) *MessageBuilder {
	if filter == nil {
		filter = func(n domain.ContentNode) bool { return domain.Understands(nil, n) }
	}
	return &MessageBuilder{
		id:        domain.NewID(),
		role:      role,
		filter:    filter,
		createdAt: time.Now().UTC(),
	}
}

func (b *MessageBuilder) ID() string           { return b.id }
func (b *MessageBuilder) Role() domain.ChatRole { return b.role }

func (b *MessageBuilder) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.nodes)
}

// Nodes returns a copy of the current nodes.
func (b *MessageBuilder) Nodes() []domain.ContentNode {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.nodes)
}

func (b *MessageBuilder) GetNode(index int) (domain.ContentNode, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if index < 0 || index >= len(b.nodes) {
		return nil, false
	}
	return b.nodes[index], true
}

func (b *MessageBuilder) AppendNode(nodes ...domain.ContentNode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes = append(b.nodes, nodes...)
}

func (b *MessageBuilder) PrependNode(nodes ...domain.ContentNode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes = slices.Insert(b.nodes, 0, nodes...)
}

func (b *MessageBuilder) InsertNode(index int, nodes ...domain.ContentNode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index > len(b.nodes) {
		return outOfRange("MessageBuilder.InsertNode", index, len(b.nodes))
	}
	b.nodes = slices.Insert(b.nodes, index, nodes...)
	return nil
}

func (b *MessageBuilder) ReplaceNode(index int, nodes ...domain.ContentNode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.nodes) {
		return outOfRange("MessageBuilder.ReplaceNode", index, len(b.nodes))
	}
	b.nodes = slices.Replace(b.nodes, index, index+1, nodes...)
	return nil
}

func (b *MessageBuilder) RemoveNode(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.nodes) {
		return outOfRange("MessageBuilder.RemoveNode", index, len(b.nodes))
	}
	b.nodes = slices.Delete(b.nodes, index, index+1)
	return nil
}

func (b *MessageBuilder) AppendText(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.nodes); n > 0 {
		if last, ok := b.nodes[n-1].(domain.TextNode); ok {
			b.nodes[n-1] = domain.TextNode{Text: last.Text + text}
			return
		}
	}
	b.nodes = append(b.nodes, domain.TextNode{Text: text})
}

// ReplaceToolCall swaps the node holding call.ID for one holding call.
// It reports false when no such node exists, e.g. a plugin removed it.
func (b *MessageBuilder) ReplaceToolCall(call domain.ToolCall) bool {
	id := call.Base().ID
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.nodes {
		if tc, ok := n.(domain.ToolCallNode); ok && tc.Call != nil && tc.Call.Base().ID == id {
			b.nodes[i] = domain.ToolCallNode{Call: call}
			return true
		}
	}
	return false
}

func (b *MessageBuilder) PromptMessage() domain.PromptMessage {
	role := domain.PromptUser
	if b.role == domain.RoleAssistant {
		role = domain.PromptAssistant
	}
	return domain.TextPromptMessage{Role: role, Content: renderForPrompt(b.Nodes(), b.filter)}
}

// Message snapshots the builder as a persisted chat message.
func (b *MessageBuilder) Message(chatID string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        b.id,
		ChatID:    chatID,
		Role:      b.role,
		Content:   b.Nodes(),
		CreatedAt: b.createdAt,
	}
}

// renderForPrompt flattens the nodes filter accepts into prompt text.
// Tool call nodes are skipped; settled calls reach the prompt as tool messages.
func renderForPrompt(nodes []domain.ContentNode, filter NodeFilter) string {
	var sb strings.Builder
	for _, n := range nodes {
		if filter != nil && !filter(n) {
			continue
		}
		switch v := n.(type) {
		case domain.TextNode:
			sb.WriteString(v.Text)
		case domain.MarkdownNode:
			sb.WriteString(v.Markdown)
		case domain.ImageNode:
			fmt.Fprintf(&sb, "![%s](%s)", v.Alt, v.URL)
		case domain.CustomNode:
			sb.Write(v.Data)
		}
	}
	return sb.String()
}

func outOfRange(op string, index, length int) error {
	return domain.NewDomainError(op, domain.ErrIndexOutOfRange, fmt.Sprintf("index %d, length %d", index, length))
}
