package config

import (
	"fmt"
	"net"
	"strings"

	"limbo/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Unwrap lets errors.Is match domain.ErrConfigLoad.
func (v *ValidationError) Unwrap() error { return domain.ErrConfigLoad }

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateHost(cfg, ve)
	validateGeneration(cfg, ve)
	validateLLM(cfg, ve)
	validatePlugins(cfg, ve)
	validateMCP(cfg, ve)
	validateAuth(cfg, ve)
	validateObservability(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateHost(cfg *Config, ve *ValidationError) {
	if cfg.Host.DataDir == "" {
		ve.Add("host.data_dir must not be empty")
	}
}

func validateGeneration(cfg *Config, ve *ValidationError) {
	g := cfg.Generation
	if g.MaxIterations <= 0 {
		ve.Add("generation.max_iterations must be > 0")
	}
	if g.MaxParallelTools < 0 {
		ve.Add("generation.max_parallel_tools must be >= 0 (0 = unlimited)")
	}
	if g.HistoryLimit <= 0 {
		ve.Add("generation.history_limit must be > 0")
	}
	if g.ToolTimeout < 0 {
		ve.Add("generation.tool_timeout must be >= 0")
	}
}

func validateLLM(cfg *Config, ve *ValidationError) {
	cb := cfg.LLM.CircuitBreaker
	if !cb.Enabled {
		return
	}
	if cb.MaxFailures == 0 {
		ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
	}
	if cb.Timeout <= 0 {
		ve.Add("llm.circuit_breaker.timeout must be > 0 when enabled")
	}
	if cb.Interval < 0 {
		ve.Add("llm.circuit_breaker.interval must be >= 0")
	}
}

func validatePlugins(cfg *Config, ve *ValidationError) {
	p := cfg.Plugins
	for _, list := range []struct {
		name  string
		perms []string
	}{
		{"allow_permissions", p.AllowPermissions},
		{"deny_permissions", p.DenyPermissions},
	} {
		for _, perm := range list.perms {
			if !domain.Permission(perm).Valid() {
				ve.Add("plugins.%s: unknown permission %q", list.name, perm)
			}
		}
	}
	seen := make(map[string]bool)
	for i, id := range p.Enabled {
		if id == "" {
			ve.Add("plugins.enabled[%d] must not be empty", i)
			continue
		}
		if seen[id] {
			ve.Add("plugins.enabled[%d]: duplicate plugin %q", i, id)
		}
		seen[id] = true
	}
	if p.ActivateTimeout < 0 {
		ve.Add("plugins.activate_timeout must be >= 0")
	}
}

func validateMCP(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool)
	for i, srv := range cfg.MCP.Servers {
		if srv.Name == "" {
			ve.Add("mcp.servers[%d].name must not be empty", i)
		} else if seen[srv.Name] {
			ve.Add("mcp.servers[%d]: duplicate server name %q", i, srv.Name)
		}
		seen[srv.Name] = true

		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				ve.Add("mcp.servers[%d].command is required for stdio transport", i)
			}
		case "http":
			if srv.URL == "" {
				ve.Add("mcp.servers[%d].url is required for http transport", i)
			}
		default:
			ve.Add("mcp.servers[%d].transport %q is invalid (want: stdio, http)", i, srv.Transport)
		}
		if srv.CallTimeout < 0 {
			ve.Add("mcp.servers[%d].call_timeout must be >= 0", i)
		}
	}
}

func validateAuth(cfg *Config, ve *ValidationError) {
	if _, _, err := net.SplitHostPort(cfg.Auth.CallbackAddr); err != nil {
		ve.Add("auth.callback_addr %q is not a valid host:port", cfg.Auth.CallbackAddr)
	}
	if cfg.Auth.Timeout <= 0 {
		ve.Add("auth.timeout must be > 0")
	}
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
	validExporters  = map[string]bool{"noop": true, "stdout": true, "": true}
)

func validateObservability(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
	if cfg.Tracer.Enabled && !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			ve.Add("metrics.addr %q is not a valid host:port", cfg.Metrics.Addr)
		}
	}
}
