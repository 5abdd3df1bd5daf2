package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"limbo/internal/domain"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Generation.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want 10", cfg.Generation.MaxIterations)
	}
	if cfg.Generation.HistoryLimit != domain.DefaultMessageLimit {
		t.Errorf("HistoryLimit = %d, want %d", cfg.Generation.HistoryLimit, domain.DefaultMessageLimit)
	}
	if cfg.Host.DefaultLLM != "echo" {
		t.Errorf("DefaultLLM = %q, want %q", cfg.Host.DefaultLLM, "echo")
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generation.MaxIterations != 10 {
		t.Errorf("expected defaults, got MaxIterations=%d", cfg.Generation.MaxIterations)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
host:
  system_prompt: "test bot"
  default_llm: "local"
generation:
  max_iterations: 4
  max_parallel_tools: 2
  tool_timeout: 5s
llm:
  circuit_breaker:
    enabled: true
    max_failures: 3
    timeout: 10s
plugins:
  enabled: ["echo", "clock"]
mcp:
  servers:
    - name: "fs"
      transport: "stdio"
      command: "mcp-fs"
logger:
  level: "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host.SystemPrompt != "test bot" || cfg.Host.DefaultLLM != "local" {
		t.Errorf("Host = %+v", cfg.Host)
	}
	if cfg.Generation.MaxIterations != 4 || cfg.Generation.MaxParallelTools != 2 {
		t.Errorf("Generation = %+v", cfg.Generation)
	}
	if cfg.Generation.ToolTimeout != 5*time.Second {
		t.Errorf("ToolTimeout = %v, want 5s", cfg.Generation.ToolTimeout)
	}
	if !cfg.LLM.CircuitBreaker.Enabled || cfg.LLM.CircuitBreaker.MaxFailures != 3 {
		t.Errorf("CircuitBreaker = %+v", cfg.LLM.CircuitBreaker)
	}
	if !cfg.Plugins.IsEnabled("clock") || cfg.Plugins.IsEnabled("chat-title") {
		t.Errorf("Plugins.Enabled = %v", cfg.Plugins.Enabled)
	}
	if len(cfg.MCP.Servers) != 1 || cfg.MCP.Servers[0].Command != "mcp-fs" {
		t.Errorf("MCP.Servers = %+v", cfg.MCP.Servers)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want debug", cfg.Logger.Level)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", "host: [unterminated")
	_, err := Load(path)
	if !errors.Is(err, domain.ErrConfigLoad) {
		t.Fatalf("err = %v, want ErrConfigLoad", err)
	}
	if domain.ErrorCodeOf(err) != domain.CodeConfigLoad {
		t.Errorf("code = %s", domain.ErrorCodeOf(err))
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("host: {}\n"), 0o666); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected permission error")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", "generation:\n  max_iterations: 0\n")
	_, err := Load(path)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if !errors.Is(err, domain.ErrConfigLoad) {
		t.Error("validation error should match ErrConfigLoad")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LIMBO_DEFAULT_LLM", "ollama")
	t.Setenv("LIMBO_LOGGER_LEVEL", "debug")
	t.Setenv("LIMBO_MAX_ITERATIONS", "3")
	t.Setenv("LIMBO_TOOL_TIMEOUT", "2s")
	t.Setenv("LIMBO_PLUGINS_ENABLED", " echo , clock ,")
	t.Setenv("LIMBO_LLM_CIRCUIT_BREAKER_ENABLED", "true")
	t.Setenv("LIMBO_METRICS_ENABLED", "true")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Host.DefaultLLM != "ollama" {
		t.Errorf("DefaultLLM = %q, want %q", cfg.Host.DefaultLLM, "ollama")
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "debug")
	}
	if cfg.Generation.MaxIterations != 3 {
		t.Errorf("MaxIterations = %d, want 3", cfg.Generation.MaxIterations)
	}
	if cfg.Generation.ToolTimeout != 2*time.Second {
		t.Errorf("ToolTimeout = %v", cfg.Generation.ToolTimeout)
	}
	if len(cfg.Plugins.Enabled) != 2 || cfg.Plugins.Enabled[1] != "clock" {
		t.Errorf("Plugins.Enabled = %q", cfg.Plugins.Enabled)
	}
	if !cfg.LLM.CircuitBreaker.Enabled || !cfg.Metrics.Enabled {
		t.Error("boolean overrides not applied")
	}
}

func TestEnvOverridesIgnoreMalformedNumbers(t *testing.T) {
	t.Setenv("LIMBO_MAX_ITERATIONS", "many")
	t.Setenv("LIMBO_TOOL_TIMEOUT", "soon")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Generation.MaxIterations != 10 || cfg.Generation.ToolTimeout != 0 {
		t.Errorf("Generation = %+v", cfg.Generation)
	}
}

func TestPluginsIsEnabledEmptyMeansAll(t *testing.T) {
	var p PluginsConfig
	if !p.IsEnabled("anything") {
		t.Error("empty enabled list should enable every plugin")
	}
}

func TestDataPaths(t *testing.T) {
	cfg := Defaults()
	cfg.Host.DataDir = "/var/lib/limbo"
	if got := cfg.DatabasePath(); got != "/var/lib/limbo/limbo.db" {
		t.Errorf("DatabasePath = %q", got)
	}
	if got := cfg.PluginDataDir(); got != "/var/lib/limbo/plugins" {
		t.Errorf("PluginDataDir = %q", got)
	}
}

// --- Secrets ---

func TestEncryptDecryptRoundTrip(t *testing.T) {
	passphrase := "test-passphrase-123"
	plaintext := "sk-abcdef123456"

	encrypted, err := EncryptValue(plaintext, passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	decrypted, err := DecryptValue(encrypted, passphrase)
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}

	if decrypted != plaintext {
		t.Errorf("got %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := EncryptValue("secret", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}

	_, err = DecryptValue(encrypted, "wrong-pass")
	if !errors.Is(err, domain.ErrDecryption) {
		t.Errorf("err = %v, want ErrDecryption", err)
	}
}

func TestDecryptMalformed(t *testing.T) {
	for _, in := range []string{"", "nocolon", "zz:00", "00:zz", "00:00"} {
		if _, err := DecryptValue(in, "pass"); !errors.Is(err, domain.ErrDecryption) {
			t.Errorf("DecryptValue(%q) err = %v, want ErrDecryption", in, err)
		}
	}
}

func TestLoadDecryptsMCPSecrets(t *testing.T) {
	passphrase := "test-config-key"
	encrypted, err := EncryptValue("tok-123", passphrase)
	if err != nil {
		t.Fatal(err)
	}
	path := writeConfigFile(t, t.TempDir(), "config.yaml", `
mcp:
  servers:
    - name: "remote"
      transport: "http"
      url: "https://mcp.example.com"
      headers:
        Authorization: "`+EncPrefix+encrypted+`"
        X-Plain: "plain"
`)
	t.Setenv(ConfigKeyEnv, passphrase)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	h := cfg.MCP.Servers[0].Headers
	if h["Authorization"] != "tok-123" || h["X-Plain"] != "plain" {
		t.Errorf("headers = %v", h)
	}
	if cfg.Auth.TokenCacheKey != passphrase {
		t.Errorf("TokenCacheKey should default to the config key")
	}
}

func TestLoadDecryptFailure(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", `
mcp:
  servers:
    - name: "local"
      transport: "stdio"
      command: "x"
      env:
        TOKEN: "enc:00:00"
`)
	t.Setenv(ConfigKeyEnv, "pass")
	if _, err := Load(path); !errors.Is(err, domain.ErrDecryption) {
		t.Fatalf("err = %v, want ErrDecryption", err)
	}
}
