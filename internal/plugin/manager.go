package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"limbo/internal/domain"
)

// Compile-time check: Manager implements domain.PluginManager.
var _ domain.PluginManager = (*Manager)(nil)

// DefaultActivateTimeout bounds OnActivate and OnDeactivate.
const DefaultActivateTimeout = 10 * time.Second

type entry struct {
	manifest domain.PluginManifest
	hooks    domain.Hooks
	reg      *registrations
	logger   *slog.Logger
}

// Manager manages the lifecycle of in-process plugins. Hooks are dispatched
// in activation order.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	pending map[string]bool // ids whose OnActivate is running

	host   Host
	logger *slog.Logger
	bus    domain.EventBus

	// Permission lists for validation.
	allowPerms []string
	denyPerms  []string

	timeout time.Duration
}

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	AllowPermissions []string
	DenyPermissions  []string
	ActivateTimeout  time.Duration // 0 = DefaultActivateTimeout
}

// NewManager creates a plugin manager. bus may be nil.
func NewManager(logger *slog.Logger, bus domain.EventBus, host Host, opts ManagerOptions) *Manager {
	timeout := opts.ActivateTimeout
	if timeout <= 0 {
		timeout = DefaultActivateTimeout
	}
	return &Manager{
		entries:    make(map[string]*entry),
		pending:    make(map[string]bool),
		host:       host,
		logger:     logger,
		bus:        bus,
		allowPerms: opts.AllowPermissions,
		denyPerms:  opts.DenyPermissions,
		timeout:    timeout,
	}
}

// Activate validates p, hands it its API through OnActivate and starts
// dispatching its hooks. If OnActivate fails, everything the plugin
// registered so far is unregistered again.
func (m *Manager) Activate(ctx context.Context, p domain.Plugin) error {
	manifest := p.Manifest()
	if manifest.ID == "" {
		return domain.NewSubSystemError("plugin", "Manager.Activate", domain.ErrInvalidInput, "manifest id is required")
	}
	if err := ValidatePermissions(manifest, m.allowPerms, m.denyPerms); err != nil {
		return err
	}

	// Reserve the id before the potentially slow OnActivate.
	m.mu.Lock()
	if _, exists := m.entries[manifest.ID]; exists || m.pending[manifest.ID] {
		m.mu.Unlock()
		return domain.NewSubSystemError("plugin", "Manager.Activate", domain.ErrDuplicate, manifest.ID)
	}
	m.pending[manifest.ID] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, manifest.ID)
		m.mu.Unlock()
	}()

	logger := m.logger.With("plugin", manifest.ID)
	api, reg := newPluginAPI(manifest, m.host, logger, m.bus)
	hooks := ResolveHooks(p)

	actx, cancel := context.WithTimeout(domain.ContextWithPluginID(ctx, manifest.ID), m.timeout)
	defer cancel()
	if err := callSafely(func() error { return hooks.OnActivate(actx, api) }); err != nil {
		if n := reg.undoAll(); n > 0 {
			logger.Debug("rolled back registrations", "count", n)
		}
		return fmt.Errorf("activate plugin %q: %w", manifest.ID, err)
	}

	m.mu.Lock()
	m.entries[manifest.ID] = &entry{manifest: manifest, hooks: hooks, reg: reg, logger: logger}
	m.order = append(m.order, manifest.ID)
	m.mu.Unlock()

	logger.Info("plugin activated", "version", manifest.Version, "registrations", reg.len())
	domain.PublishEvent(ctx, m.bus, domain.EventPluginActivated, "", map[string]string{"plugin": manifest.ID})
	return nil
}

// Deactivate stops dispatching hooks to the plugin, calls OnDeactivate and
// unregisters everything the plugin registered. An OnDeactivate error is
// logged; the plugin is removed regardless.
func (m *Manager) Deactivate(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return domain.NewSubSystemError("plugin", "Manager.Deactivate", domain.ErrNotFound, id)
	}
	delete(m.entries, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	m.mu.Unlock()

	dctx, cancel := context.WithTimeout(domain.ContextWithPluginID(ctx, id), m.timeout)
	defer cancel()
	if err := callSafely(func() error { return e.hooks.OnDeactivate(dctx) }); err != nil {
		e.logger.Warn("plugin deactivate error", "error", err)
	}
	n := e.reg.undoAll()

	e.logger.Info("plugin deactivated", "unregistered", n)
	domain.PublishEvent(ctx, m.bus, domain.EventPluginDeactivated, "", map[string]string{"plugin": id})
	return nil
}

// Shutdown deactivates every plugin, newest first.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	ids := slices.Clone(m.order)
	m.mu.RUnlock()
	for _, id := range slices.Backward(ids) {
		if err := m.Deactivate(ctx, id); err != nil {
			m.logger.Warn("plugin shutdown error", "plugin", id, "error", err)
		}
	}
}

// List returns the active plugins' manifests in activation order.
func (m *Manager) List() []domain.PluginManifest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.PluginManifest, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.entries[id].manifest)
	}
	return result
}

// Hooks returns the active plugins' hooks in activation order.
func (m *Manager) Hooks() []domain.PluginHooks {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.PluginHooks, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, domain.PluginHooks{PluginID: id, Hooks: m.entries[id].hooks})
	}
	return result
}

func callSafely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
