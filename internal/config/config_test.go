package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Agent.MaxToolIterations != 20 {
		t.Errorf("expected 20 max iterations, got %d", cfg.Agent.MaxToolIterations)
	}
	if cfg.Agent.MemoryWindow != 50 {
		t.Errorf("expected memory window 50, got %d", cfg.Agent.MemoryWindow)
	}
	if !cfg.Tools.RestrictToWorkspace {
		t.Error("expected workspace restriction on by default")
	}
	if cfg.Heartbeat.Interval != 1800 {
		t.Errorf("expected 30 minute heartbeat, got %d", cfg.Heartbeat.Interval)
	}
	if cfg.ExecTimeout() != 60*time.Second {
		t.Errorf("expected 60s exec timeout, got %v", cfg.ExecTimeout())
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"agent": {"model": "openrouter/test-model", "maxToolIterations": 7},
		"providers": {"openrouter": {"apiKey": "or-key"}},
		"channels": {"telegram": {"enabled": true, "token": "tg-token", "allowFrom": ["123"]}}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOCLAW_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Agent.Model != "openrouter/test-model" {
		t.Errorf("unexpected model: %q", cfg.Agent.Model)
	}
	if cfg.Agent.MaxToolIterations != 7 {
		t.Errorf("unexpected iterations: %d", cfg.Agent.MaxToolIterations)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "tg-token" {
		t.Errorf("unexpected telegram config: %+v", cfg.Channels.Telegram)
	}

	p, name := cfg.ActiveProvider()
	if name != "openrouter" || p.APIKey != "or-key" {
		t.Errorf("unexpected provider: %s %+v", name, p)
	}
	if p.APIBase != "https://openrouter.ai/api/v1" {
		t.Errorf("expected default openrouter base, got %q", p.APIBase)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"agent": {"model": "file-model"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOCLAW_CONFIG", path)
	t.Setenv("GOCLAW_AGENT_MODEL", "env-model")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Agent.Model != "env-model" {
		t.Errorf("expected env override, got %q", cfg.Agent.Model)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GOCLAW_CONFIG", filepath.Join(t.TempDir(), "nope.json"))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Agent.MaxToolIterations != 20 {
		t.Errorf("expected defaults, got %+v", cfg.Agent)
	}
}

func TestEnvSubstitutionInFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	t.Setenv("TEST_SUBST_KEY", "secret-value")
	content := `{"providers": {"openai": {"apiKey": "${TEST_SUBST_KEY}"}}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOCLAW_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "secret-value" {
		t.Errorf("expected env substitution, got %q", cfg.Providers.OpenAI.APIKey)
	}
}

func TestIncludeMerge(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.json")
	if err := os.WriteFile(base, []byte(`{"agent": {"model": "base-model", "memoryWindow": 30}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(dir, "config.json")
	if err := os.WriteFile(main, []byte(`{"$include": "base.json", "agent": {"model": "main-model"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOCLAW_CONFIG", main)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Agent.Model != "main-model" {
		t.Errorf("including file should win, got %q", cfg.Agent.Model)
	}
	if cfg.Agent.MemoryWindow != 30 {
		t.Errorf("included values should merge, got %d", cfg.Agent.MemoryWindow)
	}
}

func TestActiveProviderKeywordMatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agent.Model = "anthropic/claude-sonnet-4-5"
	cfg.Providers.Anthropic.APIKey = "ant-key"
	cfg.Providers.OpenAI.APIKey = "oai-key"

	p, name := cfg.ActiveProvider()
	if name != "anthropic" || p.APIKey != "ant-key" {
		t.Errorf("expected anthropic by keyword, got %s %+v", name, p)
	}
}

func TestActiveProviderFallbackFirstKeyed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agent.Model = "some/unknown-model"
	cfg.Providers.OpenAI.APIKey = "oai-key"

	_, name := cfg.ActiveProvider()
	if name != "openai" {
		t.Errorf("expected first keyed provider, got %s", name)
	}
}

func TestChannelAllowlist(t *testing.T) {
	cfg := DefaultConfig()
	list := cfg.ChannelAllowlist("telegram")
	if list == nil {
		t.Fatal("expected telegram allowlist")
	}
	*list = append(*list, "42")
	if len(cfg.Channels.Telegram.AllowFrom) != 1 {
		t.Error("allowlist pointer should mutate config")
	}
	if cfg.ChannelAllowlist("carrier-pigeon") != nil {
		t.Error("unknown channel should return nil")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("GOCLAW_CONFIG", path)

	cfg := DefaultConfig()
	cfg.Agent.Model = "saved-model"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if loaded.Agent.Model != "saved-model" {
		t.Errorf("round trip lost model: %q", loaded.Agent.Model)
	}
}
