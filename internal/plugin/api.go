package plugin

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"limbo/internal/domain"
)

// SettingsProvider hands out plugin-scoped settings namespaces.
type SettingsProvider interface {
	ForPlugin(pluginID string) domain.SettingsNamespace
}

// StorageProvider hands out plugin-scoped key-value stores.
type StorageProvider interface {
	ForPlugin(pluginID string) domain.StorageNamespace
}

// DatabaseProvider hands out each plugin's own SQL database.
type DatabaseProvider interface {
	ForPlugin(pluginID string) domain.Database
}

// Host is the set of process-wide registries and services plugins are given
// access to. Models, Tools, UI and Commands are required. Database and Auth
// may be nil; plugins then get a namespace that refuses every call.
type Host struct {
	Settings SettingsProvider
	Storage  StorageProvider
	Database DatabaseProvider
	Models   domain.ModelsNamespace
	Tools    domain.ToolsNamespace
	UI       domain.UINamespace
	Auth     domain.Authenticator
	Chats    domain.ChatReader
	Commands domain.CommandsNamespace
}

// registrations records what a plugin registered so that deactivation can
// undo it.
type registrations struct {
	mu    sync.Mutex
	items []registration
}

type registration struct {
	kind string
	id   string
	undo func()
}

func (r *registrations) add(kind, id string, undo func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = slices.DeleteFunc(r.items, func(it registration) bool { return it.kind == kind && it.id == id })
	r.items = append(r.items, registration{kind: kind, id: id, undo: undo})
}

// remove forgets a registration and reports whether the plugin owned it.
func (r *registrations) remove(kind, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.items)
	r.items = slices.DeleteFunc(r.items, func(it registration) bool { return it.kind == kind && it.id == id })
	return len(r.items) < n
}

func (r *registrations) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// undoAll unregisters everything, newest first.
func (r *registrations) undoAll() int {
	r.mu.Lock()
	items := r.items
	r.items = nil
	r.mu.Unlock()
	for i := len(items) - 1; i >= 0; i-- {
		items[i].undo()
	}
	return len(items)
}

// newPluginAPI builds the namespaces handed to one plugin.
func newPluginAPI(manifest domain.PluginManifest, host Host, logger *slog.Logger, bus domain.EventBus) (domain.PluginAPI, *registrations) {
	id := manifest.ID
	reg := &registrations{}
	api := domain.PluginAPI{
		PluginID: id,
		Logger:   logger,
		Events:   bus,
		Models:   &scopedModels{inner: host.Models, reg: reg},
		Tools:    &scopedTools{inner: host.Tools, reg: reg},
		UI:       &scopedUI{inner: host.UI, reg: reg, pluginID: id},
		Commands: &scopedCommands{inner: host.Commands, reg: reg},
	}
	if host.Settings != nil {
		api.Settings = &scopedSettings{inner: host.Settings.ForPlugin(id), reg: reg}
	}
	if host.Storage != nil {
		api.Storage = host.Storage.ForPlugin(id)
	}

	switch {
	case !HasPermission(manifest, domain.PermissionDatabase):
		api.Database = denied{pluginID: id, perm: domain.PermissionDatabase}
	case host.Database == nil:
		api.Database = denied{pluginID: id, perm: domain.PermissionDatabase, reason: "no database configured"}
	default:
		api.Database = host.Database.ForPlugin(id)
	}
	switch {
	case !HasPermission(manifest, domain.PermissionAuth):
		api.Auth = denied{pluginID: id, perm: domain.PermissionAuth}
	case host.Auth == nil:
		api.Auth = denied{pluginID: id, perm: domain.PermissionAuth, reason: "no authenticator configured"}
	default:
		api.Auth = host.Auth
	}
	if HasPermission(manifest, domain.PermissionChats) && host.Chats != nil {
		api.Chats = host.Chats
	} else {
		api.Chats = denied{pluginID: id, perm: domain.PermissionChats}
	}
	return api, reg
}

// --- Tracked namespaces ---

// Unregister only acts on ids the plugin registered itself; anything else is
// a no-op.

type scopedTools struct {
	inner domain.ToolsNamespace
	reg   *registrations
}

func (s *scopedTools) Register(t domain.Tool) error {
	if err := s.inner.Register(t); err != nil {
		return err
	}
	id := t.ID()
	s.reg.add("tool", id, func() { s.inner.Unregister(id) })
	return nil
}

func (s *scopedTools) Unregister(id string) {
	if s.reg.remove("tool", id) {
		s.inner.Unregister(id)
	}
}

type scopedModels struct {
	inner domain.ModelsNamespace
	reg   *registrations
}

func (s *scopedModels) GetLLM(id string) (domain.LLM, bool) { return s.inner.GetLLM(id) }

func (s *scopedModels) RegisterLLM(llm domain.LLM) error {
	if err := s.inner.RegisterLLM(llm); err != nil {
		return err
	}
	id := llm.ID()
	s.reg.add("llm", id, func() { s.inner.UnregisterLLM(id) })
	return nil
}

func (s *scopedModels) UnregisterLLM(id string) {
	if s.reg.remove("llm", id) {
		s.inner.UnregisterLLM(id)
	}
}

type scopedSettings struct {
	inner domain.SettingsNamespace
	reg   *registrations
}

func (s *scopedSettings) Register(st domain.Setting) error {
	if err := s.inner.Register(st); err != nil {
		return err
	}
	id := st.Base().ID
	s.reg.add("setting", id, func() { s.inner.Unregister(id) })
	return nil
}

func (s *scopedSettings) Unregister(id string) {
	if s.reg.remove("setting", id) {
		s.inner.Unregister(id)
	}
}

func (s *scopedSettings) Get(ctx context.Context, id string) (any, bool, error) {
	return s.inner.Get(ctx, id)
}

type scopedUI struct {
	inner    domain.UINamespace
	reg      *registrations
	pluginID string
}

func (s *scopedUI) RegisterMarkdownElement(el domain.MarkdownElement) error {
	if err := s.inner.RegisterMarkdownElement(el); err != nil {
		return err
	}
	s.reg.add("markdown_element", el.Element, func() { s.inner.UnregisterMarkdownElement(el.Element) })
	return nil
}

func (s *scopedUI) UnregisterMarkdownElement(element string) {
	if s.reg.remove("markdown_element", element) {
		s.inner.UnregisterMarkdownElement(element)
	}
}

func (s *scopedUI) RegisterChatNode(r domain.ChatNodeRenderer) error {
	if err := s.inner.RegisterChatNode(r); err != nil {
		return err
	}
	s.reg.add("chat_node", r.Type, func() { s.inner.UnregisterChatNode(r.Type) })
	return nil
}

func (s *scopedUI) UnregisterChatNode(nodeType string) {
	if s.reg.remove("chat_node", nodeType) {
		s.inner.UnregisterChatNode(nodeType)
	}
}

func (s *scopedUI) RegisterChatPanel(p domain.ChatPanel) error {
	if err := s.inner.RegisterChatPanel(p); err != nil {
		return err
	}
	s.reg.add("chat_panel", p.ID, func() { s.inner.UnregisterChatPanel(p.ID) })
	return nil
}

func (s *scopedUI) UnregisterChatPanel(id string) {
	if s.reg.remove("chat_panel", id) {
		s.inner.UnregisterChatPanel(id)
	}
}

func (s *scopedUI) ShowChatPanel(ctx context.Context, opts domain.ShowChatPanelOptions) error {
	return s.inner.ShowChatPanel(domain.ContextWithPluginID(ctx, s.pluginID), opts)
}

func (s *scopedUI) ShowConfirmDialog(ctx context.Context, opts domain.ConfirmDialogOptions) (bool, error) {
	return s.inner.ShowConfirmDialog(domain.ContextWithPluginID(ctx, s.pluginID), opts)
}

func (s *scopedUI) ShowNotification(ctx context.Context, n domain.Notification) {
	s.inner.ShowNotification(domain.ContextWithPluginID(ctx, s.pluginID), n)
}

type scopedCommands struct {
	inner domain.CommandsNamespace
	reg   *registrations
}

func (s *scopedCommands) Register(cmd domain.Command) error {
	if err := s.inner.Register(cmd); err != nil {
		return err
	}
	s.reg.add("command", cmd.ID, func() { s.inner.Unregister(cmd.ID) })
	return nil
}

func (s *scopedCommands) Unregister(id string) {
	if s.reg.remove("command", id) {
		s.inner.Unregister(id)
	}
}

// --- Permission-gated namespaces ---

// denied stands in for a namespace the plugin may not use.
type denied struct {
	pluginID string
	perm     domain.Permission
	reason   string
}

func (d denied) err(op string) error {
	detail := d.reason
	if detail == "" {
		detail = "plugin " + d.pluginID + " lacks permission " + string(d.perm)
	}
	sub := "plugin"
	if d.perm == domain.PermissionDatabase {
		sub = "database"
	}
	return domain.NewSubSystemError(sub, op, domain.ErrPermissionDenied, detail)
}

func (d denied) Query(context.Context, string, ...any) (*domain.QueryResult, error) {
	return nil, d.err("Database.Query")
}

func (d denied) Authenticate(context.Context, domain.AuthenticateOptions) (string, error) {
	return "", d.err("Auth.Authenticate")
}

func (d denied) Get(context.Context, string) (*domain.Chat, error) {
	return nil, d.err("Chats.Get")
}

func (d denied) Rename(context.Context, string, string) error {
	return d.err("Chats.Rename")
}

func (d denied) GetMessages(context.Context, domain.GetMessagesOptions) ([]domain.ChatMessage, error) {
	return nil, d.err("Chats.GetMessages")
}
