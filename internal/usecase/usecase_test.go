package usecase

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"sync"

	"limbo/internal/domain"
)

// --- Mocks ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// turnFunc scripts one LLM turn. It receives the iteration index (0-based
// call count) and the args the orchestrator passed.
type turnFunc func(ctx context.Context, turn int, args domain.ChatArgs) []domain.LLMEvent

type mockLLM struct {
	id   string
	caps []domain.Capability
	turn turnFunc
	err  error // returned from Chat when set

	noStream bool // Chat returns a nil channel and a nil error

	mu    sync.Mutex
	calls []domain.ChatArgs
}

func (m *mockLLM) ID() string                        { return m.id }
func (m *mockLLM) Name() string                      { return m.id }
func (m *mockLLM) Description() string               { return "mock" }
func (m *mockLLM) Capabilities() []domain.Capability { return m.caps }

func (m *mockLLM) Chat(ctx context.Context, args domain.ChatArgs) (<-chan domain.LLMEvent, error) {
	m.mu.Lock()
	turn := len(m.calls)
	m.calls = append(m.calls, args)
	m.mu.Unlock()
	if m.err != nil || m.noStream {
		return nil, m.err
	}

	var events []domain.LLMEvent
	if m.turn != nil {
		events = m.turn(ctx, turn, args)
	}
	ch := make(chan domain.LLMEvent)
	go func() {
		defer close(ch)
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (m *mockLLM) chatCalls() []domain.ChatArgs {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

func toolLLM(id string, turn turnFunc) *mockLLM {
	return &mockLLM{id: id, caps: []domain.Capability{domain.CapabilityToolCalling}, turn: turn}
}

func textTurn(texts ...string) turnFunc {
	return func(context.Context, int, domain.ChatArgs) []domain.LLMEvent {
		out := make([]domain.LLMEvent, 0, len(texts))
		for _, t := range texts {
			out = append(out, domain.TextDelta{Text: t})
		}
		return out
	}
}

type mockTool struct {
	id   string
	exec func(ctx context.Context, args domain.ToolExecuteArgs) (string, error)
}

func (t *mockTool) ID() string                  { return t.id }
func (t *mockTool) Description() string         { return "mock tool " + t.id }
func (t *mockTool) Schema() json.RawMessage     { return json.RawMessage(`{"type":"object"}`) }
func (t *mockTool) Execute(ctx context.Context, args domain.ToolExecuteArgs) (string, error) {
	return t.exec(ctx, args)
}

type mockCatalog struct {
	tools map[string]domain.Tool
}

func newMockCatalog(tools ...domain.Tool) *mockCatalog {
	c := &mockCatalog{tools: make(map[string]domain.Tool)}
	for _, t := range tools {
		c.tools[t.ID()] = t
	}
	return c
}

func (c *mockCatalog) Get(id string) (domain.Tool, bool) {
	t, ok := c.tools[id]
	return t, ok
}

func (c *mockCatalog) Definitions() []domain.ToolDefinition {
	var defs []domain.ToolDefinition
	for _, t := range c.tools {
		defs = append(defs, domain.DefinitionOf(t))
	}
	slices.SortFunc(defs, func(a, b domain.ToolDefinition) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return defs
}

type mockChatStore struct {
	mu       sync.Mutex
	chats    map[string]*domain.Chat
	messages []domain.ChatMessage
	deleted  []string
	appendFn func(domain.ChatMessage) error
}

func newMockChatStore(chatIDs ...string) *mockChatStore {
	s := &mockChatStore{chats: make(map[string]*domain.Chat)}
	for _, id := range chatIDs {
		s.chats[id] = &domain.Chat{ID: id, Name: id}
	}
	return s
}

func (s *mockChatStore) Get(_ context.Context, id string) (*domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *mockChatStore) Rename(_ context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return domain.ErrChatNotFound
	}
	c.Name = name
	return nil
}

func (s *mockChatStore) GetMessages(_ context.Context, opts domain.GetMessagesOptions) ([]domain.ChatMessage, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ChatMessage
	for _, m := range s.messages {
		if m.ChatID == opts.ChatID && (opts.Role == "" || m.Role == opts.Role) {
			out = append(out, m)
		}
	}
	if opts.Sort == domain.SortNewest {
		slices.Reverse(out)
	}
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *mockChatStore) Create(_ context.Context, chat *domain.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[chat.ID]; ok {
		return domain.ErrDuplicate
	}
	cp := *chat
	s.chats[chat.ID] = &cp
	return nil
}

func (s *mockChatStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *mockChatStore) List(context.Context) ([]domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Chat
	for _, c := range s.chats {
		out = append(out, *c)
	}
	return out, nil
}

func (s *mockChatStore) AppendMessage(_ context.Context, msg domain.ChatMessage) error {
	if s.appendFn != nil {
		if err := s.appendFn(msg); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *mockChatStore) saved(chatID string, role domain.ChatRole) []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ChatMessage
	for _, m := range s.messages {
		if m.ChatID == chatID && m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

// hookFuncs implements domain.Hooks with optional per-hook functions.
type hookFuncs struct {
	chatCreated     func(ctx context.Context, chatID string) error
	chatDeleted     func(ctx context.Context, chatID string) error
	chatsDeleted    func(ctx context.Context, ids []string) error
	beforeGen       func(ctx context.Context, gen *domain.ChatGeneration) error
	beforeIteration func(ctx context.Context, gen *domain.ChatGeneration) error
	afterIteration  func(ctx context.Context, gen *domain.ChatGeneration) error
	afterGen        func(ctx context.Context, gen *domain.ChatGeneration) error
}

func (h *hookFuncs) OnActivate(context.Context, domain.PluginAPI) error { return nil }
func (h *hookFuncs) OnDeactivate(context.Context) error                 { return nil }

func (h *hookFuncs) OnChatCreated(ctx context.Context, id string) error {
	if h.chatCreated == nil {
		return nil
	}
	return h.chatCreated(ctx, id)
}

func (h *hookFuncs) OnChatDeleted(ctx context.Context, id string) error {
	if h.chatDeleted == nil {
		return nil
	}
	return h.chatDeleted(ctx, id)
}

func (h *hookFuncs) OnChatsDeleted(ctx context.Context, ids []string) error {
	if h.chatsDeleted == nil {
		return nil
	}
	return h.chatsDeleted(ctx, ids)
}

func (h *hookFuncs) OnBeforeChatGeneration(ctx context.Context, g *domain.ChatGeneration) error {
	if h.beforeGen == nil {
		return nil
	}
	return h.beforeGen(ctx, g)
}

func (h *hookFuncs) OnBeforeChatIteration(ctx context.Context, g *domain.ChatGeneration) error {
	if h.beforeIteration == nil {
		return nil
	}
	return h.beforeIteration(ctx, g)
}

func (h *hookFuncs) OnAfterChatIteration(ctx context.Context, g *domain.ChatGeneration) error {
	if h.afterIteration == nil {
		return nil
	}
	return h.afterIteration(ctx, g)
}

func (h *hookFuncs) OnAfterChatGeneration(ctx context.Context, g *domain.ChatGeneration) error {
	if h.afterGen == nil {
		return nil
	}
	return h.afterGen(ctx, g)
}

type staticHooks []domain.PluginHooks

func (s staticHooks) Hooks() []domain.PluginHooks { return s }

// recordingBus collects published events.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) ofType(typ domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, ev := range b.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type generatorFixture struct {
	gen   *Generator
	chats *mockChatStore
	bus   *recordingBus
}

func newGeneratorFixture(hooks staticHooks, catalog ToolCatalog, opts ...func(*GeneratorDeps)) *generatorFixture {
	chats := newMockChatStore("c1")
	bus := &recordingBus{}
	if catalog == nil {
		catalog = newMockCatalog()
	}
	deps := GeneratorDeps{
		Chats:        chats,
		Tools:        catalog,
		Hooks:        NewHookDispatcher(hooks, discardLogger(), bus, nil),
		Logger:       discardLogger(),
		SystemPrompt: "You are limbo.",
		Bus:          bus,
	}
	for _, o := range opts {
		o(&deps)
	}
	return &generatorFixture{gen: NewGenerator(deps), chats: chats, bus: bus}
}
