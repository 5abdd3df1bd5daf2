package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"limbo/internal/domain"
	"limbo/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerLLM wraps an LLM with circuit breaker protection.
// A turn counts as failed when Chat returns an error or the stream carries a
// StreamError; aborted turns count as successful. While the circuit is open
// Chat fails fast with domain.ErrProviderError.
type CircuitBreakerLLM struct {
	inner   domain.LLM
	breaker *gobreaker.TwoStepCircuitBreaker[struct{}]
	logger  *slog.Logger
}

// NewCircuitBreakerLLM wraps inner with a circuit breaker.
// Zero-valued settings fall back to the defaults.
func NewCircuitBreakerLLM(inner domain.LLM, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerLLM {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "llm:" + inner.ID(),
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &CircuitBreakerLLM{inner: inner, breaker: cb, logger: logger}
}

func (c *CircuitBreakerLLM) ID() string                        { return c.inner.ID() }
func (c *CircuitBreakerLLM) Name() string                      { return c.inner.Name() }
func (c *CircuitBreakerLLM) Description() string               { return c.inner.Description() }
func (c *CircuitBreakerLLM) Capabilities() []domain.Capability { return c.inner.Capabilities() }

// Understands forwards the wrapped LLM's node filter.
func (c *CircuitBreakerLLM) Understands(node domain.ContentNode) bool {
	return domain.Understands(c.inner, node)
}

// Unwrap returns the wrapped LLM.
func (c *CircuitBreakerLLM) Unwrap() domain.LLM { return c.inner }

// Chat routes the turn through the breaker. Events are forwarded unchanged and
// the outcome is reported once the inner stream closes.
func (c *CircuitBreakerLLM) Chat(ctx context.Context, args domain.ChatArgs) (<-chan domain.LLMEvent, error) {
	done, err := c.breaker.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: llm %q circuit open: %w", domain.ErrProviderError, c.ID(), err)
		}
		return nil, err
	}

	in, err := c.inner.Chat(ctx, args)
	if err != nil {
		done(ctx.Err() != nil)
		return nil, err
	}
	if in == nil {
		done(false)
		return nil, fmt.Errorf("%w: llm %q returned no event stream", domain.ErrProviderError, c.ID())
	}

	out := make(chan domain.LLMEvent)
	go func() {
		defer close(out)
		failed := false
		forwarding := true
		for ev := range in {
			if se, ok := ev.(domain.StreamError); ok && !errors.Is(se.Err, context.Canceled) {
				failed = true
			}
			if !forwarding {
				continue // drain so the adapter can finish
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				forwarding = false
			}
		}
		done(!failed || ctx.Err() != nil)
	}()
	return out, nil
}

// State returns the current circuit breaker state for monitoring.
func (c *CircuitBreakerLLM) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the current circuit breaker failure/success counts.
func (c *CircuitBreakerLLM) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

// Compile-time interface checks.
var (
	_ domain.LLM              = (*CircuitBreakerLLM)(nil)
	_ domain.NodeUnderstander = (*CircuitBreakerLLM)(nil)
)
