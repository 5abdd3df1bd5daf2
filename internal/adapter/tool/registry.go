package tool

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"limbo/internal/domain"
)

// Compile-time check: Registry implements domain.ToolsNamespace.
var _ domain.ToolsNamespace = (*Registry)(nil)

// Registry holds the tools registered by plugins and MCP servers.
// Tools are wrapped with schema validation on Register.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds a tool. Returns an error if the id is empty or taken, or if
// the tool's schema does not compile.
func (r *Registry) Register(t domain.Tool) error {
	if t == nil || t.ID() == "" {
		return domain.NewSubSystemError("tools", "Tools.Register", domain.ErrInvalidInput, "tool id is required")
	}
	id := t.ID()

	wrapped, err := WithSchemaValidation(t)
	if err != nil {
		return domain.NewSubSystemError("tools", "Tools.Register", domain.ErrInvalidInput, err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[id]; exists {
		return domain.NewSubSystemError("tools", "Tools.Register", domain.ErrDuplicate, id)
	}
	r.tools[id] = wrapped
	r.logger.Debug("tool registered", "tool", id)
	return nil
}

// Unregister removes a tool. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[id]; ok {
		delete(r.tools, id)
		r.logger.Debug("tool unregistered", "tool", id)
	}
}

// Get retrieves a tool by id.
func (r *Registry) Get(id string) (domain.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// List returns all registered tools sorted by id.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	tools := make([]domain.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	r.mu.RUnlock()

	slices.SortFunc(tools, func(a, b domain.Tool) int { return strings.Compare(a.ID(), b.ID()) })
	return tools
}

// Definitions returns the LLM-facing definitions of every tool, sorted by id
// so that prompts are stable across turns.
func (r *Registry) Definitions() []domain.ToolDefinition {
	tools := r.List()
	defs := make([]domain.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, domain.DefinitionOf(t))
	}
	return defs
}
