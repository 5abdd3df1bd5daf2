// Package settings holds the settings plugins declare and the values the user
// sets for them.
package settings

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"limbo/internal/domain"
)

// ValueStore persists user-set values as JSON.
type ValueStore interface {
	Load(ctx context.Context, pluginID, settingID string) (json.RawMessage, bool, error)
	Save(ctx context.Context, pluginID, settingID string, value json.RawMessage) error
	Delete(ctx context.Context, pluginID, settingID string) error
}

// LLMLookup resolves LLM ids for llm settings.
type LLMLookup interface {
	GetLLM(id string) (domain.LLM, bool)
}

type key struct {
	pluginID  string
	settingID string
}

// Entry is a declared setting together with its owner.
type Entry struct {
	PluginID string
	Setting  domain.Setting
}

// Registry holds setting declarations of every plugin.
type Registry struct {
	mu       sync.RWMutex
	settings map[key]domain.Setting
	values   ValueStore
	models   LLMLookup
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. models may be nil, in which case llm
// settings accept any id.
func NewRegistry(values ValueStore, models LLMLookup, logger *slog.Logger) *Registry {
	return &Registry{
		settings: make(map[key]domain.Setting),
		values:   values,
		models:   models,
		logger:   logger,
	}
}

// ForPlugin returns the settings namespace of one plugin.
func (r *Registry) ForPlugin(pluginID string) domain.SettingsNamespace {
	return &namespace{registry: r, pluginID: pluginID}
}

// Lookup returns the declaration of a setting.
func (r *Registry) Lookup(pluginID, settingID string) (domain.Setting, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settings[key{pluginID, settingID}]
	return s, ok
}

// List returns every declared setting sorted by plugin id, then setting id.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.settings))
	for k, s := range r.settings {
		out = append(out, Entry{PluginID: k.pluginID, Setting: s})
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.PluginID, b.PluginID), cmp.Compare(a.Setting.Base().ID, b.Setting.Base().ID))
	})
	return out
}

// Set validates value against the setting's variant and stores it. Values of
// llm settings must name a registered LLM with every required capability.
func (r *Registry) Set(ctx context.Context, pluginID, settingID string, value any) error {
	s, ok := r.Lookup(pluginID, settingID)
	if !ok {
		return domain.NewSubSystemError("settings", "Settings.Set", domain.ErrSettingUnknown, pluginID+"/"+settingID)
	}
	v, err := s.Normalize(value)
	if err != nil {
		return err
	}
	if llmSetting, ok := s.(domain.LLMSetting); ok {
		if err := r.checkLLM(llmSetting, v.(string)); err != nil {
			return err
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return domain.WrapOp("Settings.Set", err)
	}
	if err := r.values.Save(ctx, pluginID, settingID, data); err != nil {
		return domain.WrapOp("Settings.Set", err)
	}
	r.logger.Info("setting updated", "plugin", pluginID, "setting", settingID)
	return nil
}

// Reset removes the user-set value so the default applies again.
func (r *Registry) Reset(ctx context.Context, pluginID, settingID string) error {
	if _, ok := r.Lookup(pluginID, settingID); !ok {
		return domain.NewSubSystemError("settings", "Settings.Reset", domain.ErrSettingUnknown, pluginID+"/"+settingID)
	}
	if err := r.values.Delete(ctx, pluginID, settingID); err != nil {
		return domain.WrapOp("Settings.Reset", err)
	}
	return nil
}

func (r *Registry) checkLLM(s domain.LLMSetting, id string) error {
	if r.models == nil {
		return nil
	}
	llm, ok := r.models.GetLLM(id)
	if !ok {
		return domain.NewDomainError("Settings.Set", domain.ErrLLMNotFound, id)
	}
	for _, c := range s.Capabilities {
		if !domain.HasCapability(llm, c) {
			return domain.NewDomainError("Settings.Set", domain.ErrCapabilityMissing,
				fmt.Sprintf("%s: llm %q lacks %s", s.ID, id, c))
		}
	}
	return nil
}

func (r *Registry) register(pluginID string, s domain.Setting) error {
	if err := domain.ValidateSetting(s); err != nil {
		return err
	}
	k := key{pluginID, s.Base().ID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.settings[k]; exists {
		return domain.NewSubSystemError("settings", "Settings.Register", domain.ErrDuplicate, k.settingID)
	}
	r.settings[k] = s
	r.logger.Debug("setting registered", "plugin", pluginID, "setting", k.settingID, "type", s.Type())
	return nil
}

// unregister forgets the declaration. The stored value is kept for the next
// time the plugin declares the setting.
func (r *Registry) unregister(pluginID, settingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.settings, key{pluginID, settingID})
}

// get returns the stored value if it still satisfies the declaration, else
// the default.
func (r *Registry) get(ctx context.Context, pluginID, settingID string) (any, bool, error) {
	s, ok := r.Lookup(pluginID, settingID)
	if !ok {
		return nil, false, domain.NewSubSystemError("settings", "Settings.Get", domain.ErrSettingUnknown, settingID)
	}

	raw, found, err := r.values.Load(ctx, pluginID, settingID)
	if err != nil {
		return nil, false, domain.WrapOp("Settings.Get", err)
	}
	if found {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			if nv, err := s.Normalize(v); err == nil {
				return nv, true, nil
			}
		}
		r.logger.Warn("stored setting value no longer valid, using default",
			"plugin", pluginID, "setting", settingID)
	}
	def, ok := s.DefaultValue()
	return def, ok, nil
}

type namespace struct {
	registry *Registry
	pluginID string
}

func (n *namespace) Register(s domain.Setting) error { return n.registry.register(n.pluginID, s) }
func (n *namespace) Unregister(id string)            { n.registry.unregister(n.pluginID, id) }

func (n *namespace) Get(ctx context.Context, id string) (any, bool, error) {
	return n.registry.get(ctx, n.pluginID, id)
}
