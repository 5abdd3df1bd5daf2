package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"limbo/internal/domain"
)

// LLMResolver looks up registered LLMs by id.
type LLMResolver interface {
	GetLLM(id string) (domain.LLM, bool)
}

// ChatService is the host-side chat lifecycle: it creates and deletes chats,
// fires the matching plugin hooks, and runs a generation for each user message.
type ChatService struct {
	chats      domain.ChatStore
	models     LLMResolver
	generator  *Generator
	hooks      *HookDispatcher
	bus        domain.EventBus
	logger     *slog.Logger
	defaultLLM string
	locks      *chatLocks
}

// ChatServiceDeps holds injected dependencies for the chat service.
type ChatServiceDeps struct {
	Chats      domain.ChatStore
	Models     LLMResolver
	Generator  *Generator
	Hooks      *HookDispatcher
	Bus        domain.EventBus // optional
	Logger     *slog.Logger
	DefaultLLM string
}

// NewChatService creates a chat service.
func NewChatService(deps ChatServiceDeps) *ChatService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		chats:      deps.Chats,
		models:     deps.Models,
		generator:  deps.Generator,
		hooks:      deps.Hooks,
		bus:        deps.Bus,
		logger:     logger.With("component", "chat_service"),
		defaultLLM: deps.DefaultLLM,
		locks:      newChatLocks(),
	}
}

// CreateChat stores a new chat and fires OnChatCreated.
func (s *ChatService) CreateChat(ctx context.Context, name string) (*domain.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "New chat"
	}
	chat := &domain.Chat{ID: domain.NewID(), Name: name, CreatedAt: time.Now()}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, domain.WrapOp("ChatService.CreateChat", err)
	}
	s.logger.Info("chat created", "chat_id", chat.ID)
	domain.PublishEvent(ctx, s.bus, domain.EventChatCreated, chat.ID, chat)

	s.hooks.Dispatch(ctx, hookChatCreated, chat.ID, func(ctx context.Context, h domain.Hooks) error {
		return h.OnChatCreated(ctx, chat.ID)
	})
	return chat, nil
}

// DeleteChat removes one chat and fires OnChatDeleted. Unknown ids fail with
// domain.ErrChatNotFound.
func (s *ChatService) DeleteChat(ctx context.Context, chatID string) error {
	if err := s.delete(ctx, chatID); err != nil {
		return err
	}
	s.hooks.Dispatch(ctx, hookChatDeleted, chatID, func(ctx context.Context, h domain.Hooks) error {
		return h.OnChatDeleted(ctx, chatID)
	})
	return nil
}

// DeleteChats removes several chats and fires OnChatsDeleted once with the ids
// that were actually deleted. It stops at the first storage error.
func (s *ChatService) DeleteChats(ctx context.Context, chatIDs []string) error {
	deleted := make([]string, 0, len(chatIDs))
	var firstErr error
	for _, id := range chatIDs {
		if err := s.delete(ctx, id); err != nil {
			firstErr = err
			break
		}
		deleted = append(deleted, id)
	}
	if len(deleted) > 0 {
		s.hooks.Dispatch(ctx, hookChatsDeleted, "", func(ctx context.Context, h domain.Hooks) error {
			return h.OnChatsDeleted(ctx, deleted)
		})
	}
	return firstErr
}

func (s *ChatService) delete(ctx context.Context, chatID string) error {
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		return domain.WrapOp("ChatService.DeleteChat", err)
	}
	if chat == nil {
		return domain.NewDomainError("ChatService.DeleteChat", domain.ErrChatNotFound, chatID)
	}
	if err := s.chats.Delete(ctx, chatID); err != nil {
		return domain.WrapOp("ChatService.DeleteChat", err)
	}
	s.logger.Info("chat deleted", "chat_id", chatID)
	domain.PublishEvent(ctx, s.bus, domain.EventChatDeleted, chatID, nil)
	return nil
}

// SendMessage persists a user message and runs a generation with llmID, or the
// default LLM when llmID is empty.
func (s *ChatService) SendMessage(ctx context.Context, chatID, llmID string, content ...domain.ContentNode) (*domain.ChatGeneration, error) {
	if len(content) == 0 {
		return nil, domain.NewDomainError("ChatService.SendMessage", domain.ErrInvalidInput, "message is empty")
	}
	if llmID == "" {
		llmID = s.defaultLLM
	}
	llm, ok := s.models.GetLLM(llmID)
	if !ok {
		return nil, domain.NewSubSystemError("models", "ChatService.SendMessage", domain.ErrLLMNotFound, llmID)
	}

	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		return nil, domain.WrapOp("ChatService.SendMessage", err)
	}
	if chat == nil {
		return nil, domain.NewDomainError("ChatService.SendMessage", domain.ErrChatNotFound, chatID)
	}

	// One generation per chat at a time.
	unlock, err := s.locks.lock(ctx, chatID)
	if err != nil {
		return nil, domain.WrapOp("ChatService.SendMessage", err)
	}
	defer unlock()

	msg := domain.ChatMessage{
		ID:        domain.NewID(),
		ChatID:    chatID,
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.chats.AppendMessage(ctx, msg); err != nil {
		return nil, domain.WrapOp("ChatService.SendMessage", err)
	}
	domain.PublishEvent(ctx, s.bus, domain.EventMessageSaved, chatID, map[string]string{"message_id": msg.ID})

	return s.generator.Generate(ctx, chatID, llm)
}

// SendText is SendMessage with a single text node.
func (s *ChatService) SendText(ctx context.Context, chatID, llmID, text string) (*domain.ChatGeneration, error) {
	return s.SendMessage(ctx, chatID, llmID, domain.TextNode{Text: text})
}
