// Package config provides configuration types and loading for goclaw.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration struct.
type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Tools     ToolsConfig     `json:"tools"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
}

// AgentConfig groups model and agent-loop settings.
type AgentConfig struct {
	Workspace         string  `json:"workspace" envconfig:"WORKSPACE"`
	Model             string  `json:"model" envconfig:"MODEL"`
	MaxTokens         int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature       float64 `json:"temperature" envconfig:"TEMPERATURE"`
	MaxToolIterations int     `json:"maxToolIterations" envconfig:"MAX_TOOL_ITERATIONS"`
	MemoryWindow      int     `json:"memoryWindow" envconfig:"MEMORY_WINDOW"`
	HistoryWindow     int     `json:"historyWindow" envconfig:"HISTORY_WINDOW"`
}

// ChannelsConfig contains all channel configurations.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"ENABLED"`
	Token     string   `json:"token" envconfig:"TOKEN"`
	AllowFrom []string `json:"allowFrom"`
}

// SlackConfig configures the Slack channel (socket mode).
type SlackConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"ENABLED"`
	BotToken  string   `json:"botToken" envconfig:"BOT_TOKEN"`
	AppToken  string   `json:"appToken" envconfig:"APP_TOKEN"`
	AllowFrom []string `json:"allowFrom"`
}

// ProvidersConfig holds LLM provider credentials. All providers speak the
// OpenAI-compatible chat completions API.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
	Anthropic  ProviderConfig `json:"anthropic"`
}

// ProviderConfig holds one provider's credentials.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ToolsConfig groups tool settings.
type ToolsConfig struct {
	Web                 WebToolsConfig `json:"web"`
	Exec                ExecToolConfig `json:"exec"`
	RestrictToWorkspace bool           `json:"restrictToWorkspace" envconfig:"RESTRICT_TO_WORKSPACE"`
}

// WebToolsConfig groups web tool settings.
type WebToolsConfig struct {
	Search WebSearchConfig `json:"search"`
}

// WebSearchConfig configures the web_search tool.
type WebSearchConfig struct {
	APIKey     string `json:"apiKey" envconfig:"API_KEY"`
	MaxResults int    `json:"maxResults" envconfig:"MAX_RESULTS"`
}

// ExecToolConfig configures the exec tool.
type ExecToolConfig struct {
	Timeout int `json:"timeout" envconfig:"TIMEOUT"` // seconds
}

// HeartbeatConfig configures the periodic heartbeat turn.
type HeartbeatConfig struct {
	Enabled  bool `json:"enabled" envconfig:"ENABLED"`
	Interval int  `json:"interval" envconfig:"INTERVAL"` // seconds
}

// DefaultConfig returns a config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Workspace:         "~/.goclaw/workspace",
			Model:             "",
			MaxTokens:         8192,
			Temperature:       0.7,
			MaxToolIterations: 20,
			MemoryWindow:      50,
			HistoryWindow:     0,
		},
		Tools: ToolsConfig{
			Web: WebToolsConfig{
				Search: WebSearchConfig{MaxResults: 5},
			},
			Exec:                ExecToolConfig{Timeout: 60},
			RestrictToWorkspace: true,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  true,
			Interval: 30 * 60,
		},
	}
}

// WorkspacePath returns the expanded workspace path.
func (c *Config) WorkspacePath() string {
	return ExpandHome(c.Agent.Workspace)
}

// ExecTimeout returns the exec tool timeout as a duration.
func (c *Config) ExecTimeout() time.Duration {
	if c.Tools.Exec.Timeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Tools.Exec.Timeout) * time.Second
}

// ActiveProvider resolves the provider credentials to use for the configured
// model. Model names containing a provider keyword pick that provider; the
// first provider with an API key wins otherwise.
func (c *Config) ActiveProvider() (ProviderConfig, string) {
	model := strings.ToLower(c.Agent.Model)
	candidates := []struct {
		name     string
		cfg      ProviderConfig
		keywords []string
		base     string
	}{
		{"openrouter", c.Providers.OpenRouter, []string{"openrouter"}, "https://openrouter.ai/api/v1"},
		{"anthropic", c.Providers.Anthropic, []string{"anthropic", "claude"}, "https://api.anthropic.com/v1"},
		{"openai", c.Providers.OpenAI, []string{"openai", "gpt"}, "https://api.openai.com/v1"},
	}

	for _, cand := range candidates {
		for _, kw := range cand.keywords {
			if strings.Contains(model, kw) && cand.cfg.APIKey != "" {
				return withDefaultBase(cand.cfg, cand.base), cand.name
			}
		}
	}
	for _, cand := range candidates {
		if cand.cfg.APIKey != "" {
			return withDefaultBase(cand.cfg, cand.base), cand.name
		}
	}
	return ProviderConfig{}, ""
}

func withDefaultBase(p ProviderConfig, base string) ProviderConfig {
	if p.APIBase == "" {
		p.APIBase = base
	}
	return p
}

// ChannelAllowlist returns a pointer to the allowlist for a channel name, or
// nil when the channel does not support allowlist pairing.
func (c *Config) ChannelAllowlist(channel string) *[]string {
	switch channel {
	case "telegram":
		return &c.Channels.Telegram.AllowFrom
	case "slack":
		return &c.Channels.Slack.AllowFrom
	default:
		return nil
	}
}

// ExpandHome expands a leading ~ to the user home directory.
func ExpandHome(p string) string {
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}

// DataPath returns the goclaw data directory (~/.goclaw by default,
// GOCLAW_HOME overrides).
func DataPath() (string, error) {
	if h := strings.TrimSpace(os.Getenv("GOCLAW_HOME")); h != "" {
		return ExpandHome(h), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".goclaw"), nil
}
