package usecase

import (
	"slices"
	"sync"

	"limbo/internal/domain"
)

// Compile-time check: PromptBuilder implements domain.PromptBuilder.
var _ domain.PromptBuilder = (*PromptBuilder)(nil)

// PromptBuilder is the mutable prompt of one generation.
// Messages returns a snapshot: edits made after the call are not reflected in it.
type PromptBuilder struct {
	mu       sync.RWMutex
	system   string
	messages []domain.PromptMessage
	filter   NodeFilter
}

// NewPromptBuilder creates an empty prompt whose node filter follows llm.
func NewPromptBuilder(llm domain.LLM) *PromptBuilder {
	return &PromptBuilder{
		filter: func(n domain.ContentNode) bool { return domain.Understands(llm, n) },
	}
}

func (p *PromptBuilder) SystemPrompt() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.system
}

func (p *PromptBuilder) SetSystemPrompt(prompt string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.system = prompt
}

func (p *PromptBuilder) PrependToSystemPrompt(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.system = text + p.system
}

func (p *PromptBuilder) AppendToSystemPrompt(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.system += text
}

func (p *PromptBuilder) Messages() []domain.PromptMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.messages)
}

func (p *PromptBuilder) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.messages)
}

func (p *PromptBuilder) Message(index int) (domain.PromptMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if index < 0 || index >= len(p.messages) {
		return nil, false
	}
	return p.messages[index], true
}

func (p *PromptBuilder) AppendMessage(msgs ...domain.PromptMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msgs...)
}

func (p *PromptBuilder) PrependMessage(msgs ...domain.PromptMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = slices.Insert(p.messages, 0, msgs...)
}

func (p *PromptBuilder) InsertMessage(index int, msgs ...domain.PromptMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index > len(p.messages) {
		return outOfRange("PromptBuilder.InsertMessage", index, len(p.messages))
	}
	p.messages = slices.Insert(p.messages, index, msgs...)
	return nil
}

func (p *PromptBuilder) ReplaceMessage(index int, msgs ...domain.PromptMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.messages) {
		return outOfRange("PromptBuilder.ReplaceMessage", index, len(p.messages))
	}
	p.messages = slices.Replace(p.messages, index, index+1, msgs...)
	return nil
}

func (p *PromptBuilder) RemoveMessage(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.messages) {
		return outOfRange("PromptBuilder.RemoveMessage", index, len(p.messages))
	}
	p.messages = slices.Delete(p.messages, index, index+1)
	return nil
}

func (p *PromptBuilder) CreateMessage(role domain.ChatRole) domain.MessageBuilder {
	return NewMessageBuilder(role, p.filter)
}

func (p *PromptBuilder) Snapshot() domain.ChatPrompt {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return domain.ChatPrompt{System: p.system, Messages: slices.Clone(p.messages)}
}

// AppendHistory renders persisted messages into the prompt in order.
func (p *PromptBuilder) AppendHistory(msgs ...domain.ChatMessage) {
	var out []domain.PromptMessage
	for _, m := range msgs {
		out = append(out, historyMessages(m.Role, m.Content, p.filter)...)
	}
	p.AppendMessage(out...)
}

// historyMessages converts one message's nodes into prompt messages. Text runs
// become a text message for role; each settled tool call becomes a tool message
// at its position. Pending calls are dropped.
func historyMessages(role domain.ChatRole, nodes []domain.ContentNode, filter NodeFilter) []domain.PromptMessage {
	promptRole := domain.PromptUser
	if role == domain.RoleAssistant {
		promptRole = domain.PromptAssistant
	}

	var (
		out []domain.PromptMessage
		run []domain.ContentNode
	)
	flush := func() {
		if text := renderForPrompt(run, filter); text != "" {
			out = append(out, domain.TextPromptMessage{Role: promptRole, Content: text})
		}
		run = run[:0]
	}
	for _, n := range nodes {
		tc, ok := n.(domain.ToolCallNode)
		if !ok {
			run = append(run, n)
			continue
		}
		flush()
		if settled, ok := tc.Call.(domain.SettledToolCall); ok {
			out = append(out, domain.ToolPromptFromCall(settled))
		}
	}
	flush()
	return out
}
