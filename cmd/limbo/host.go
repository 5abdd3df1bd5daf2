package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"limbo/internal/adapter/auth"
	"limbo/internal/adapter/command"
	"limbo/internal/adapter/llm"
	"limbo/internal/adapter/settings"
	"limbo/internal/adapter/sqlite"
	"limbo/internal/adapter/tool"
	"limbo/internal/adapter/ui"
	"limbo/internal/infra/config"
	"limbo/internal/infra/metrics"
	"limbo/internal/plugin"
	"limbo/internal/plugin/builtin"
	"limbo/internal/usecase"
	"limbo/internal/usecase/eventbus"
)

// host holds every long-lived component of a running limbo process.
type host struct {
	cfg      *config.Config
	store    *sqlite.Store
	dbs      *sqlite.PluginDatabases
	bus      *eventbus.Bus
	models   *llm.Registry
	tools    *tool.Registry
	settings *settings.Registry
	ui       *ui.Registry
	commands *command.Registry
	manager  *plugin.Manager
	chats    *usecase.ChatService
	mcp      *tool.MCPBridge

	closers []func() error
}

// newHost opens storage, builds the registries, activates the enabled
// built-in plugins and bridges the configured MCP servers.
func newHost(ctx context.Context, cfg *config.Config, log *slog.Logger, rec *metrics.Recorder, prompter auth.AuthorizationPrompter) (*host, error) {
	h := &host{cfg: cfg}

	// 1. Storage
	store, err := sqlite.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	h.store = store
	h.closers = append(h.closers, store.Close)
	h.dbs = sqlite.NewPluginDatabases(cfg.PluginDataDir(), log)
	h.closers = append(h.closers, h.dbs.Close)

	// 2. Event bus and registries
	h.bus = eventbus.New(log)
	h.closers = append(h.closers, func() error { h.bus.Close(); return nil })

	h.models = llm.NewRegistry(log, cfg.LLM.CircuitBreaker)
	h.tools = tool.NewRegistry(log)
	h.settings = settings.NewRegistry(store.SettingValues(), h.models, log)
	h.ui = ui.NewRegistry(h.bus, log)
	h.commands = command.NewRegistry(h.bus, log)
	authn := auth.New(cfg.Auth, prompter, store.Tokens(), log)

	// 3. Plugins
	h.manager = plugin.NewManager(log, h.bus, plugin.Host{
		Settings: h.settings,
		Storage:  store.Storage(),
		Database: h.dbs,
		Models:   h.models,
		Tools:    h.tools,
		UI:       h.ui,
		Auth:     authn,
		Chats:    store.Chats(),
		Commands: h.commands,
	}, plugin.ManagerOptions{
		AllowPermissions: cfg.Plugins.AllowPermissions,
		DenyPermissions:  cfg.Plugins.DenyPermissions,
		ActivateTimeout:  cfg.Plugins.ActivateTimeout,
	})
	h.closers = append(h.closers, func() error {
		h.manager.Shutdown(context.WithoutCancel(ctx))
		return nil
	})
	for _, p := range builtin.Plugins() {
		id := p.Manifest().ID
		if !cfg.Plugins.IsEnabled(id) {
			log.Debug("plugin disabled", "plugin", id)
			continue
		}
		if err := h.manager.Activate(ctx, p); err != nil {
			log.Error("plugin activation failed", "plugin", id, "error", err)
		}
	}

	// 4. MCP tools
	if len(cfg.MCP.Servers) > 0 {
		bridge, err := tool.NewMCPBridge(ctx, cfg.MCP.Servers, log)
		if err != nil {
			log.Warn("mcp disabled", "error", err)
		} else {
			h.mcp = bridge
			unregister := bridge.RegisterAll(h.tools)
			h.closers = append(h.closers, func() error {
				unregister()
				return bridge.Close()
			})
		}
	}

	// 5. Generation
	hooks := usecase.NewHookDispatcher(h.manager, log, h.bus, rec)
	gen := usecase.NewGenerator(usecase.GeneratorDeps{
		Chats:            store.Chats(),
		Tools:            h.tools,
		Hooks:            hooks,
		Logger:           log,
		SystemPrompt:     cfg.Host.SystemPrompt,
		MaxIterations:    cfg.Generation.MaxIterations,
		MaxParallelTools: cfg.Generation.MaxParallelTools,
		HistoryLimit:     cfg.Generation.HistoryLimit,
		ToolTimeout:      cfg.Generation.ToolTimeout,
		Bus:              h.bus,
		Metrics:          rec,
	})
	h.chats = usecase.NewChatService(usecase.ChatServiceDeps{
		Chats:      store.Chats(),
		Models:     h.models,
		Generator:  gen,
		Hooks:      hooks,
		Bus:        h.bus,
		Logger:     log,
		DefaultLLM: cfg.Host.DefaultLLM,
	})
	return h, nil
}

// Close releases everything newHost acquired, newest first.
func (h *host) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	h.closers = nil
	return errors.Join(errs...)
}
