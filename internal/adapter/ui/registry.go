// Package ui keeps the renderers plugins register and relays panels,
// notifications and confirm dialogs to the frontend.
package ui

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"limbo/internal/domain"
)

// Compile-time check: Registry implements domain.UINamespace.
var _ domain.UINamespace = (*Registry)(nil)

// Confirmer asks the user a yes/no question on behalf of a plugin.
type Confirmer interface {
	Confirm(ctx context.Context, opts domain.ConfirmDialogOptions) (bool, error)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, opts domain.ConfirmDialogOptions) (bool, error)

func (f ConfirmerFunc) Confirm(ctx context.Context, opts domain.ConfirmDialogOptions) (bool, error) {
	return f(ctx, opts)
}

// Registry holds markdown elements, chat node renderers and chat panels.
// Panels and notifications are published on the event bus for the frontend.
type Registry struct {
	mu        sync.RWMutex
	elements  map[string]domain.MarkdownElement
	nodes     map[string]domain.ChatNodeRenderer
	panels    map[string]domain.ChatPanel
	confirmer Confirmer

	bus    domain.EventBus
	logger *slog.Logger
}

// NewRegistry creates an empty UI registry publishing on bus.
func NewRegistry(bus domain.EventBus, logger *slog.Logger) *Registry {
	return &Registry{
		elements: make(map[string]domain.MarkdownElement),
		nodes:    make(map[string]domain.ChatNodeRenderer),
		panels:   make(map[string]domain.ChatPanel),
		bus:      bus,
		logger:   logger,
	}
}

// SetConfirmer installs the frontend's confirm dialog handler.
func (r *Registry) SetConfirmer(c Confirmer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmer = c
}

func (r *Registry) RegisterMarkdownElement(el domain.MarkdownElement) error {
	if el.Element == "" || el.Render == nil {
		return domain.NewSubSystemError("ui", "UI.RegisterMarkdownElement", domain.ErrInvalidInput, "element and render are required")
	}
	return register(r, r.elements, el.Element, el, "UI.RegisterMarkdownElement")
}

func (r *Registry) UnregisterMarkdownElement(element string) {
	unregister(r, r.elements, element)
}

func (r *Registry) RegisterChatNode(cr domain.ChatNodeRenderer) error {
	if cr.Type == "" || cr.Render == nil {
		return domain.NewSubSystemError("ui", "UI.RegisterChatNode", domain.ErrInvalidInput, "type and render are required")
	}
	return register(r, r.nodes, cr.Type, cr, "UI.RegisterChatNode")
}

func (r *Registry) UnregisterChatNode(nodeType string) {
	unregister(r, r.nodes, nodeType)
}

func (r *Registry) RegisterChatPanel(p domain.ChatPanel) error {
	if p.ID == "" {
		return domain.NewSubSystemError("ui", "UI.RegisterChatPanel", domain.ErrInvalidInput, "panel id is required")
	}
	return register(r, r.panels, p.ID, p, "UI.RegisterChatPanel")
}

func (r *Registry) UnregisterChatPanel(id string) {
	unregister(r, r.panels, id)
}

// MarkdownElement returns the renderer of a custom markdown element.
func (r *Registry) MarkdownElement(element string) (domain.MarkdownElement, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	el, ok := r.elements[element]
	return el, ok
}

// MarkdownElements returns the registered element names, sorted.
func (r *Registry) MarkdownElements() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.elements))
	for name := range r.elements {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ChatNodeRenderer returns the renderer for a custom node type.
func (r *Registry) ChatNodeRenderer(nodeType string) (domain.ChatNodeRenderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cr, ok := r.nodes[nodeType]
	return cr, ok
}

// ShowChatPanel renders a registered panel with opts.Data and publishes it.
// Unknown panels fail with a not-found error.
func (r *Registry) ShowChatPanel(ctx context.Context, opts domain.ShowChatPanelOptions) error {
	r.mu.RLock()
	p, ok := r.panels[opts.ID]
	r.mu.RUnlock()
	if !ok {
		return domain.NewSubSystemError("ui", "UI.ShowChatPanel", domain.ErrNotFound, opts.ID)
	}

	var content string
	if p.Render != nil {
		var err error
		if content, err = p.Render(opts.Data); err != nil {
			return domain.WrapOp("UI.ShowChatPanel", err)
		}
	}
	domain.PublishEvent(ctx, r.bus, domain.EventChatPanelShown, domain.ChatIDFromContext(ctx), domain.ChatPanelPayload{
		Plugin:  domain.PluginIDFromContext(ctx),
		PanelID: p.ID,
		Title:   p.Title,
		Content: content,
		Data:    opts.Data,
	})
	return nil
}

// ShowConfirmDialog asks the installed Confirmer. Without one it fails with
// domain.ErrNoConfirmer.
func (r *Registry) ShowConfirmDialog(ctx context.Context, opts domain.ConfirmDialogOptions) (bool, error) {
	if opts.Title == "" {
		return false, domain.NewSubSystemError("ui", "UI.ShowConfirmDialog", domain.ErrInvalidInput, "title is required")
	}
	r.mu.RLock()
	c := r.confirmer
	r.mu.RUnlock()
	if c == nil {
		return false, domain.NewDomainError("UI.ShowConfirmDialog", domain.ErrNoConfirmer, opts.Title)
	}
	return c.Confirm(ctx, opts)
}

// ShowNotification logs and publishes a notification. Unknown levels are
// shown as info.
func (r *Registry) ShowNotification(ctx context.Context, n domain.Notification) {
	switch n.Level {
	case domain.NotificationInfo, domain.NotificationWarning, domain.NotificationError:
	default:
		n.Level = domain.NotificationInfo
	}
	plugin := domain.PluginIDFromContext(ctx)

	level := slog.LevelInfo
	switch n.Level {
	case domain.NotificationWarning:
		level = slog.LevelWarn
	case domain.NotificationError:
		level = slog.LevelError
	}
	r.logger.Log(ctx, level, "notification", "plugin", plugin, "title", n.Title)

	domain.PublishEvent(ctx, r.bus, domain.EventNotificationShown, domain.ChatIDFromContext(ctx),
		domain.NotificationPayload{Plugin: plugin, Notification: n})
}

func register[T any](r *Registry, m map[string]T, id string, v T, op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := m[id]; exists {
		return domain.NewSubSystemError("ui", op, domain.ErrDuplicate, id)
	}
	m[id] = v
	return nil
}

func unregister[T any](r *Registry, m map[string]T, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(m, id)
}
