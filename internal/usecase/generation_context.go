package usecase

import (
	"slices"
	"sync"

	"limbo/internal/domain"
)

// Compile-time check: GenerationContext implements domain.GenerationContext.
var _ domain.GenerationContext = (*GenerationContext)(nil)

type contextKey struct {
	owner string
	name  string
}

// GenerationContext is the (owner, name)-keyed store shared by the hooks of
// one generation (thread-safe).
type GenerationContext struct {
	mu     sync.RWMutex
	values map[contextKey]any
}

// NewGenerationContext creates an empty context.
func NewGenerationContext() *GenerationContext {
	return &GenerationContext{values: make(map[contextKey]any)}
}

func (c *GenerationContext) Get(owner, name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[contextKey{owner, name}]
	return v, ok
}

func (c *GenerationContext) Set(owner, name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[contextKey{owner, name}] = value
}

func (c *GenerationContext) Delete(owner, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, contextKey{owner, name})
}

// Keys returns owner's names in sorted order.
func (c *GenerationContext) Keys(owner string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var keys []string
	for k := range c.values {
		if k.owner == owner {
			keys = append(keys, k.name)
		}
	}
	slices.Sort(keys)
	return keys
}
