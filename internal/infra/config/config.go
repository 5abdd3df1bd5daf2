package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"limbo/internal/domain"
)

// Config is the top-level host configuration.
type Config struct {
	Host       HostConfig       `yaml:"host"`
	Generation GenerationConfig `yaml:"generation"`
	LLM        LLMConfig        `yaml:"llm"`
	Plugins    PluginsConfig    `yaml:"plugins"`
	MCP        MCPConfig        `yaml:"mcp"`
	Auth       AuthConfig       `yaml:"auth"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Includes   []string         `yaml:"includes,omitempty"`
}

// HostConfig holds process-wide settings.
type HostConfig struct {
	DataDir      string `yaml:"data_dir"`
	SystemPrompt string `yaml:"system_prompt"`
	DefaultLLM   string `yaml:"default_llm"`
}

// GenerationConfig bounds the chat generation loop.
type GenerationConfig struct {
	MaxIterations    int           `yaml:"max_iterations"`
	MaxParallelTools int           `yaml:"max_parallel_tools"` // 0 = unlimited
	HistoryLimit     int           `yaml:"history_limit"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"` // 0 = none
}

// LLMConfig holds settings applied to every registered LLM.
type LLMConfig struct {
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM adapters.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PluginsConfig selects the built-in plugins to activate and the permissions
// they may hold.
type PluginsConfig struct {
	Enabled          []string      `yaml:"enabled"` // empty = all built-ins
	AllowPermissions []string      `yaml:"allow_permissions"`
	DenyPermissions  []string      `yaml:"deny_permissions"`
	ActivateTimeout  time.Duration `yaml:"activate_timeout"`
}

// IsEnabled reports whether the plugin with id should be activated.
func (p PluginsConfig) IsEnabled(id string) bool {
	if len(p.Enabled) == 0 {
		return true
	}
	for _, e := range p.Enabled {
		if e == id {
			return true
		}
	}
	return false
}

// MCPConfig lists MCP servers whose tools are bridged into the tool registry.
type MCPConfig struct {
	Servers []MCPServer `yaml:"servers"`
}

// MCPServer configures an MCP server connection.
type MCPServer struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`

	CallTimeout time.Duration `yaml:"call_timeout,omitempty"` // 0 = 30s
}

// AuthConfig configures the OAuth2 authenticator offered to plugins.
type AuthConfig struct {
	CallbackAddr  string        `yaml:"callback_addr"`
	Timeout       time.Duration `yaml:"timeout"`
	TokenCacheKey string        `yaml:"token_cache_key"` // empty = LIMBO_CONFIG_KEY
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ConfigKeyEnv names the variable holding the secrets passphrase.
const ConfigKeyEnv = "LIMBO_CONFIG_KEY"

// defaultDataDir returns $HOME/.limbo, falling back to "./data".
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".limbo")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Host: HostConfig{
			DataDir:      defaultDataDir(),
			SystemPrompt: "You are limbo, a helpful assistant.",
			DefaultLLM:   "echo",
		},
		Generation: GenerationConfig{
			MaxIterations: 10,
			HistoryLimit:  domain.DefaultMessageLimit,
		},
		LLM: LLMConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     false,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Plugins: PluginsConfig{
			AllowPermissions: []string{
				string(domain.PermissionDatabase),
				string(domain.PermissionAuth),
				string(domain.PermissionChats),
			},
			ActivateTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			CallbackAddr: "127.0.0.1:0",
			Timeout:      5 * time.Minute,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: read config: %w", domain.ErrConfigLoad, err)
		}
		data = nil
	}

	if data != nil {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve config path: %w", domain.ErrConfigLoad, err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config: %w", domain.ErrConfigLoad, err)
		}
		if len(cfg.Includes) > 0 {
			visited := map[string]bool{absPath: true}
			if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
			}
			// The including file wins over what it includes.
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parse config: %w", domain.ErrConfigLoad, err)
			}
			cfg.Includes = nil
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(ConfigKeyEnv); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
		if cfg.Auth.TokenCacheKey == "" {
			cfg.Auth.TokenCacheKey = passphrase
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps LIMBO_* env vars to config fields. Malformed numbers
// and durations are ignored.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIMBO_DATA_DIR"); v != "" {
		cfg.Host.DataDir = v
	}
	if v := os.Getenv("LIMBO_SYSTEM_PROMPT"); v != "" {
		cfg.Host.SystemPrompt = v
	}
	if v := os.Getenv("LIMBO_DEFAULT_LLM"); v != "" {
		cfg.Host.DefaultLLM = v
	}

	if n, ok := envInt("LIMBO_MAX_ITERATIONS"); ok {
		cfg.Generation.MaxIterations = n
	}
	if n, ok := envInt("LIMBO_MAX_PARALLEL_TOOLS"); ok {
		cfg.Generation.MaxParallelTools = n
	}
	if n, ok := envInt("LIMBO_HISTORY_LIMIT"); ok {
		cfg.Generation.HistoryLimit = n
	}
	if d, ok := envDuration("LIMBO_TOOL_TIMEOUT"); ok {
		cfg.Generation.ToolTimeout = d
	}

	if v := os.Getenv("LIMBO_LLM_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.LLM.CircuitBreaker.Enabled = v == "true"
	}

	if v := os.Getenv("LIMBO_PLUGINS_ENABLED"); v != "" {
		cfg.Plugins.Enabled = splitAndTrim(v, ",")
	}
	if v := os.Getenv("LIMBO_PLUGINS_ALLOW_PERMISSIONS"); v != "" {
		cfg.Plugins.AllowPermissions = splitAndTrim(v, ",")
	}
	if v := os.Getenv("LIMBO_PLUGINS_DENY_PERMISSIONS"); v != "" {
		cfg.Plugins.DenyPermissions = splitAndTrim(v, ",")
	}

	if v := os.Getenv("LIMBO_AUTH_CALLBACK_ADDR"); v != "" {
		cfg.Auth.CallbackAddr = v
	}

	if v := os.Getenv("LIMBO_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LIMBO_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("LIMBO_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("LIMBO_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("LIMBO_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("LIMBO_METRICS_ENABLED"); v == "true" {
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("LIMBO_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

// splitAndTrim splits s by sep, trims each element and drops empty ones.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PluginDataDir is where per-plugin databases live.
func (c *Config) PluginDataDir() string {
	return filepath.Join(c.Host.DataDir, "plugins")
}

// DatabasePath is the host database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Host.DataDir, "limbo.db")
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
