// Package command holds user-invocable commands contributed by plugins.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"limbo/internal/domain"
)

// Compile-time check: Registry implements domain.CommandsNamespace.
var _ domain.CommandsNamespace = (*Registry)(nil)

// Registry maps command ids to commands.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]domain.Command
	bus      domain.EventBus
	logger   *slog.Logger
}

func NewRegistry(bus domain.EventBus, logger *slog.Logger) *Registry {
	return &Registry{
		commands: make(map[string]domain.Command),
		bus:      bus,
		logger:   logger,
	}
}

func (r *Registry) Register(cmd domain.Command) error {
	if cmd.ID == "" || cmd.Execute == nil {
		return domain.NewSubSystemError("command", "Commands.Register", domain.ErrInvalidInput, "id and execute are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.ID]; exists {
		return domain.NewSubSystemError("command", "Commands.Register", domain.ErrDuplicate, cmd.ID)
	}
	r.commands[cmd.ID] = cmd
	return nil
}

// Unregister removes a command. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.commands, id)
}

// List returns every command sorted by id.
func (r *Registry) List() []domain.Command {
	r.mu.RLock()
	out := make([]domain.Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.Command) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Execute runs a command. A panic or error from the command is returned as
// domain.ErrCommandFailed; either way EventCommandExecuted is published.
func (r *Registry) Execute(ctx context.Context, id string) (err error) {
	r.mu.RLock()
	cmd, ok := r.commands[id]
	r.mu.RUnlock()
	if !ok {
		return domain.NewSubSystemError("command", "Commands.Execute", domain.ErrNotFound, id)
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		payload := domain.CommandPayload{CommandID: cmd.ID, Name: cmd.Name}
		if err != nil {
			r.logger.Warn("command failed", "command", id, "error", err)
			err = fmt.Errorf("%w: %s: %w", domain.ErrCommandFailed, id, err)
			payload.Error = err.Error()
		}
		domain.PublishEvent(ctx, r.bus, domain.EventCommandExecuted, domain.ChatIDFromContext(ctx), payload)
	}()
	return cmd.Execute(ctx)
}
