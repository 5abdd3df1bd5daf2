package llm

import (
	"log/slog"
	"slices"
	"sync"

	"limbo/internal/domain"
	"limbo/internal/infra/config"
)

// Compile-time check: Registry implements domain.ModelsNamespace.
var _ domain.ModelsNamespace = (*Registry)(nil)

// Registry holds the LLMs registered by plugins, in registration order.
type Registry struct {
	mu      sync.RWMutex
	llms    map[string]domain.LLM
	order   []string
	breaker config.CircuitBreakerConfig
	logger  *slog.Logger
}

// NewRegistry creates an empty LLM registry. With breaker.Enabled every
// registered LLM is wrapped in a CircuitBreakerLLM.
func NewRegistry(logger *slog.Logger, breaker config.CircuitBreakerConfig) *Registry {
	return &Registry{
		llms:    make(map[string]domain.LLM),
		breaker: breaker,
		logger:  logger,
	}
}

// RegisterLLM adds an LLM. Returns an error if its id is empty or taken.
func (r *Registry) RegisterLLM(llm domain.LLM) error {
	if llm == nil || llm.ID() == "" {
		return domain.NewSubSystemError("models", "Models.RegisterLLM", domain.ErrInvalidInput, "llm id is required")
	}
	id := llm.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.llms[id]; exists {
		return domain.NewSubSystemError("models", "Models.RegisterLLM", domain.ErrDuplicate, id)
	}
	if r.breaker.Enabled {
		llm = NewCircuitBreakerLLM(llm, r.breaker, r.logger)
	}
	r.llms[id] = llm
	r.order = append(r.order, id)
	r.logger.Debug("llm registered", "llm", id, "capabilities", llm.Capabilities())
	return nil
}

// UnregisterLLM removes an LLM. Unknown ids are ignored.
func (r *Registry) UnregisterLLM(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.llms[id]; !ok {
		return
	}
	delete(r.llms, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	r.logger.Debug("llm unregistered", "llm", id)
}

// GetLLM returns the LLM registered under id.
func (r *Registry) GetLLM(id string) (domain.LLM, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	llm, ok := r.llms[id]
	return llm, ok
}

// List returns every registered LLM in registration order.
func (r *Registry) List() []domain.LLM {
	return r.WithCapabilities()
}

// WithCapabilities returns the LLMs that declare every capability in caps.
func (r *Registry) WithCapabilities(caps ...domain.Capability) []domain.LLM {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.LLM, 0, len(r.order))
	for _, id := range r.order {
		llm := r.llms[id]
		if hasAll(llm, caps) {
			out = append(out, llm)
		}
	}
	return out
}

func hasAll(llm domain.LLM, caps []domain.Capability) bool {
	for _, c := range caps {
		if !domain.HasCapability(llm, c) {
			return false
		}
	}
	return true
}
