package onboarding

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/goclaw/goclaw/internal/config"
)

func TestWizardNonInteractiveOpenAI(t *testing.T) {
	cfg := config.DefaultConfig()
	err := RunProfileWizard(cfg, strings.NewReader(""), &bytes.Buffer{}, WizardParams{
		LLMPreset:      "openai",
		LLMToken:       "sk-test",
		LLMModel:       "gpt-4.1",
		NonInteractive: true,
	})
	if err != nil {
		t.Fatalf("wizard: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-test" {
		t.Fatalf("unexpected api key: %q", cfg.Providers.OpenAI.APIKey)
	}
	if cfg.Agent.Model != "gpt-4.1" {
		t.Fatalf("unexpected model: %q", cfg.Agent.Model)
	}
}

func TestWizardNonInteractiveSkipLeavesConfigAlone(t *testing.T) {
	cfg := config.DefaultConfig()
	err := RunProfileWizard(cfg, strings.NewReader(""), &bytes.Buffer{}, WizardParams{
		NonInteractive: true,
	})
	if err != nil {
		t.Fatalf("wizard: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "" || cfg.Providers.OpenRouter.APIKey != "" || cfg.Providers.Anthropic.APIKey != "" {
		t.Fatal("expected no provider keys set")
	}
	if cfg.Channels.Telegram.Enabled || cfg.Channels.Slack.Enabled {
		t.Fatal("expected no channels enabled")
	}
}

func TestWizardOpenAICompatibleRequiresBase(t *testing.T) {
	cfg := config.DefaultConfig()
	err := RunProfileWizard(cfg, strings.NewReader(""), &bytes.Buffer{}, WizardParams{
		LLMPreset:      "openai-compatible",
		NonInteractive: true,
	})
	if err == nil || !strings.Contains(err.Error(), "api base") {
		t.Fatalf("expected api base error, got %v", err)
	}
}

func TestWizardOpenAICompatibleAppliesEndpoint(t *testing.T) {
	cfg := config.DefaultConfig()
	err := RunProfileWizard(cfg, strings.NewReader(""), &bytes.Buffer{}, WizardParams{
		LLMPreset:      "ollama",
		LLMAPIBase:     "http://localhost:11434/v1",
		LLMModel:       "llama3.3",
		NonInteractive: true,
	})
	if err != nil {
		t.Fatalf("wizard: %v", err)
	}
	if cfg.Providers.OpenAI.APIBase != "http://localhost:11434/v1" {
		t.Fatalf("unexpected api base: %q", cfg.Providers.OpenAI.APIBase)
	}
	if cfg.Agent.Model != "llama3.3" {
		t.Fatalf("unexpected model: %q", cfg.Agent.Model)
	}
}

func TestWizardChannelsFromParams(t *testing.T) {
	cfg := config.DefaultConfig()
	err := RunProfileWizard(cfg, strings.NewReader(""), &bytes.Buffer{}, WizardParams{
		TelegramToken:     "123:abc",
		TelegramAllowFrom: "100, 200, 100",
		SlackBotToken:     "xoxb-1",
		SlackAppToken:     "xapp-1",
		NonInteractive:    true,
	})
	if err != nil {
		t.Fatalf("wizard: %v", err)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "123:abc" {
		t.Fatalf("telegram not configured: %+v", cfg.Channels.Telegram)
	}
	if len(cfg.Channels.Telegram.AllowFrom) != 2 {
		t.Fatalf("expected deduped allowlist, got %v", cfg.Channels.Telegram.AllowFrom)
	}
	if !cfg.Channels.Slack.Enabled || cfg.Channels.Slack.AppToken != "xapp-1" {
		t.Fatalf("slack not configured: %+v", cfg.Channels.Slack)
	}
}

func TestWizardInteractivePrompts(t *testing.T) {
	// Choose openai, accept key, accept model, decline both channels.
	input := "1\nsk-live\ngpt-4.1\nn\nn\n"
	cfg := config.DefaultConfig()
	var out bytes.Buffer
	err := RunProfileWizard(cfg, strings.NewReader(input), &out, WizardParams{})
	if err != nil {
		t.Fatalf("wizard: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-live" {
		t.Fatalf("unexpected api key: %q", cfg.Providers.OpenAI.APIKey)
	}
	if !strings.Contains(out.String(), "Select LLM provider") {
		t.Fatal("expected provider menu in output")
	}
}

func TestNormalizeLLMPreset(t *testing.T) {
	cases := map[string]LLMPreset{
		"openai":     LLMPresetOpenAI,
		"GPT":        LLMPresetOpenAI,
		"claude":     LLMPresetAnthropic,
		"openrouter": LLMPresetOpenRouter,
		"vllm":       LLMPresetOpenAICompatible,
		"skip":       LLMPresetSkip,
		"":           "",
		"bogus":      "",
	}
	for in, want := range cases {
		if got := normalizeLLMPreset(in); got != want {
			t.Errorf("normalizeLLMPreset(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildProfileSummary(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agent.Model = "gpt-4.1"
	cfg.Providers.OpenAI.APIKey = "sk-test"
	cfg.Channels.Telegram.Enabled = true

	summary := BuildProfileSummary(cfg)
	for _, want := range []string{"gpt-4.1", "openai", "channels.telegram: enabled", "channels.slack: disabled"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestConfirmApply(t *testing.T) {
	var out bytes.Buffer
	ok, err := ConfirmApply(bufio.NewReader(strings.NewReader("y\n")), &out)
	if err != nil || !ok {
		t.Fatalf("expected yes, got ok=%v err=%v", ok, err)
	}
	ok, err = ConfirmApply(bufio.NewReader(strings.NewReader("\n")), &out)
	if err != nil || ok {
		t.Fatalf("expected default no, got ok=%v err=%v", ok, err)
	}
}
