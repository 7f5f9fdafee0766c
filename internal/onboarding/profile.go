// Package onboarding sets up a fresh install: config wizard, workspace
// scaffolding helpers, and systemd service installation.
package onboarding

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goclaw/goclaw/internal/config"
)

type LLMPreset string

const (
	LLMPresetSkip             LLMPreset = "skip"
	LLMPresetOpenAI           LLMPreset = "openai"
	LLMPresetOpenRouter       LLMPreset = "openrouter"
	LLMPresetAnthropic        LLMPreset = "anthropic"
	LLMPresetOpenAICompatible LLMPreset = "openai-compatible"
)

// WizardParams pre-seeds wizard answers. Any empty field is prompted for
// interactively unless NonInteractive is set.
type WizardParams struct {
	LLMPreset  string
	LLMToken   string
	LLMAPIBase string
	LLMModel   string

	TelegramToken     string
	TelegramAllowFrom string
	SlackBotToken     string
	SlackAppToken     string
	SlackAllowFrom    string

	NonInteractive bool
}

// RunProfileWizard fills cfg from params and interactive prompts. It never
// writes the config to disk; callers persist it after ConfirmApply.
func RunProfileWizard(cfg *config.Config, in io.Reader, out io.Writer, p WizardParams) error {
	reader := bufio.NewReader(in)

	preset, err := resolveLLMPreset(reader, out, p)
	if err != nil {
		return err
	}
	if err := applyLLM(cfg, preset, reader, out, p); err != nil {
		return err
	}
	return applyChannels(cfg, reader, out, p)
}

func resolveLLMPreset(reader *bufio.Reader, out io.Writer, p WizardParams) (LLMPreset, error) {
	preset := normalizeLLMPreset(p.LLMPreset)
	if preset != "" {
		return preset, nil
	}
	if p.NonInteractive {
		return LLMPresetSkip, nil
	}
	fmt.Fprintln(out, "\nSelect LLM provider:")
	fmt.Fprintln(out, "1) openai            (OpenAI API key)")
	fmt.Fprintln(out, "2) openrouter        (OpenRouter API key)")
	fmt.Fprintln(out, "3) anthropic         (Anthropic API key)")
	fmt.Fprintln(out, "4) openai-compatible (vLLM/Ollama/custom endpoint)")
	fmt.Fprintln(out, "5) skip              (keep current)")
	choice, err := prompt(reader, out, "LLM provider [1-5]", "5")
	if err != nil {
		return "", err
	}
	switch strings.TrimSpace(choice) {
	case "1":
		return LLMPresetOpenAI, nil
	case "2":
		return LLMPresetOpenRouter, nil
	case "3":
		return LLMPresetAnthropic, nil
	case "4":
		return LLMPresetOpenAICompatible, nil
	case "5":
		return LLMPresetSkip, nil
	default:
		return "", fmt.Errorf("invalid llm provider choice: %s", choice)
	}
}

func applyLLM(cfg *config.Config, preset LLMPreset, reader *bufio.Reader, out io.Writer, p WizardParams) error {
	switch preset {
	case LLMPresetSkip:
		return nil

	case LLMPresetOpenAI:
		return applyAPIKeyPreset(cfg, reader, out, p, applyAPIKeyOpts{
			providerLabel: "OpenAI",
			envVar:        "OPENAI_API_KEY",
			defaultModel:  "gpt-4.1",
			setKey:        func(c *config.Config, k string) { c.Providers.OpenAI.APIKey = k },
		})

	case LLMPresetOpenRouter:
		return applyAPIKeyPreset(cfg, reader, out, p, applyAPIKeyOpts{
			providerLabel: "OpenRouter",
			envVar:        "OPENROUTER_API_KEY",
			defaultModel:  "anthropic/claude-sonnet-4-5",
			setKey:        func(c *config.Config, k string) { c.Providers.OpenRouter.APIKey = k },
		})

	case LLMPresetAnthropic:
		return applyAPIKeyPreset(cfg, reader, out, p, applyAPIKeyOpts{
			providerLabel: "Anthropic",
			envVar:        "ANTHROPIC_API_KEY",
			defaultModel:  "claude-sonnet-4-5",
			setKey:        func(c *config.Config, k string) { c.Providers.Anthropic.APIKey = k },
		})

	case LLMPresetOpenAICompatible:
		token := strings.TrimSpace(p.LLMToken)
		base := strings.TrimSpace(p.LLMAPIBase)
		model := strings.TrimSpace(p.LLMModel)
		if base == "" && !p.NonInteractive {
			val, err := prompt(reader, out, "OpenAI-compatible API base", "http://localhost:11434/v1")
			if err != nil {
				return err
			}
			base = strings.TrimSpace(val)
		}
		if base == "" {
			return fmt.Errorf("openai-compatible setup requires api base")
		}
		if token == "" && !p.NonInteractive {
			val, err := prompt(reader, out, "API token (optional)", "")
			if err != nil {
				return err
			}
			token = strings.TrimSpace(val)
		}
		if model == "" && !p.NonInteractive {
			val, err := prompt(reader, out, "Model", cfg.Agent.Model)
			if err != nil {
				return err
			}
			model = strings.TrimSpace(val)
		}
		cfg.Providers.OpenAI.APIBase = base
		cfg.Providers.OpenAI.APIKey = token
		if model != "" {
			cfg.Agent.Model = model
		}
		return nil

	default:
		return fmt.Errorf("unsupported llm preset: %s", preset)
	}
}

func applyChannels(cfg *config.Config, reader *bufio.Reader, out io.Writer, p WizardParams) error {
	if token := strings.TrimSpace(p.TelegramToken); token != "" {
		cfg.Channels.Telegram.Enabled = true
		cfg.Channels.Telegram.Token = token
	} else if !p.NonInteractive {
		enable, err := confirm(reader, out, "Enable Telegram?")
		if err != nil {
			return err
		}
		if enable {
			val, err := prompt(reader, out, "Telegram bot token", "")
			if err != nil {
				return err
			}
			cfg.Channels.Telegram.Enabled = true
			cfg.Channels.Telegram.Token = strings.TrimSpace(val)
		}
	}
	if allow := parseCSV(p.TelegramAllowFrom); len(allow) > 0 {
		cfg.Channels.Telegram.AllowFrom = allow
	}

	if bot := strings.TrimSpace(p.SlackBotToken); bot != "" {
		cfg.Channels.Slack.Enabled = true
		cfg.Channels.Slack.BotToken = bot
		cfg.Channels.Slack.AppToken = strings.TrimSpace(p.SlackAppToken)
	} else if !p.NonInteractive {
		enable, err := confirm(reader, out, "Enable Slack?")
		if err != nil {
			return err
		}
		if enable {
			botVal, err := prompt(reader, out, "Slack bot token (xoxb-...)", "")
			if err != nil {
				return err
			}
			appVal, err := prompt(reader, out, "Slack app token (xapp-...)", "")
			if err != nil {
				return err
			}
			cfg.Channels.Slack.Enabled = true
			cfg.Channels.Slack.BotToken = strings.TrimSpace(botVal)
			cfg.Channels.Slack.AppToken = strings.TrimSpace(appVal)
		}
	}
	if allow := parseCSV(p.SlackAllowFrom); len(allow) > 0 {
		cfg.Channels.Slack.AllowFrom = allow
	}
	return nil
}

// applyAPIKeyOpts holds parameters for the common API-key preset pattern.
type applyAPIKeyOpts struct {
	providerLabel string
	envVar        string
	defaultModel  string
	setKey        func(*config.Config, string)
}

// applyAPIKeyPreset handles the common flow: prompt for API key, prompt for
// model, set config.
func applyAPIKeyPreset(cfg *config.Config, reader *bufio.Reader, out io.Writer, p WizardParams, opts applyAPIKeyOpts) error {
	token := strings.TrimSpace(p.LLMToken)
	model := strings.TrimSpace(p.LLMModel)
	if token == "" && !p.NonInteractive {
		val, err := prompt(reader, out, opts.providerLabel+" API key", os.Getenv(opts.envVar))
		if err != nil {
			return err
		}
		token = strings.TrimSpace(val)
	}
	if model == "" && !p.NonInteractive {
		val, err := prompt(reader, out, "Model", opts.defaultModel)
		if err != nil {
			return err
		}
		model = strings.TrimSpace(val)
	}
	if token == "" && p.NonInteractive {
		token = strings.TrimSpace(os.Getenv(opts.envVar))
	}
	if token != "" {
		opts.setKey(cfg, token)
	}
	if model == "" {
		model = opts.defaultModel
	}
	cfg.Agent.Model = model
	return nil
}

// BuildProfileSummary renders the configuration the wizard is about to apply.
func BuildProfileSummary(cfg *config.Config) string {
	lines := []string{
		"",
		"Planned configuration:",
		fmt.Sprintf("- agent.model: %s", firstNonEmpty(strings.TrimSpace(cfg.Agent.Model), "(provider default)")),
		fmt.Sprintf("- agent.workspace: %s", cfg.Agent.Workspace),
	}

	providerEntries := []struct {
		id     string
		hasKey bool
	}{
		{"openai", cfg.Providers.OpenAI.APIKey != "" || cfg.Providers.OpenAI.APIBase != ""},
		{"openrouter", cfg.Providers.OpenRouter.APIKey != ""},
		{"anthropic", cfg.Providers.Anthropic.APIKey != ""},
	}
	var configured []string
	for _, pe := range providerEntries {
		if pe.hasKey {
			configured = append(configured, pe.id)
		}
	}
	if len(configured) == 0 {
		configured = []string{"(none)"}
	}
	lines = append(lines,
		fmt.Sprintf("- providers: %s", strings.Join(configured, ", ")),
		fmt.Sprintf("- channels.telegram: %s", enabledState(cfg.Channels.Telegram.Enabled)),
		fmt.Sprintf("- channels.slack: %s", enabledState(cfg.Channels.Slack.Enabled)),
		fmt.Sprintf("- heartbeat: %s", enabledState(cfg.Heartbeat.Enabled)),
		"",
	)
	return strings.Join(lines, "\n")
}

// ConfirmApply asks the user to commit the planned configuration.
func ConfirmApply(reader *bufio.Reader, out io.Writer) (bool, error) {
	answer, err := prompt(reader, out, "Apply this configuration? [y/N]", "N")
	if err != nil {
		return false, err
	}
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes", nil
}

func normalizeLLMPreset(v string) LLMPreset {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "", "auto":
		return ""
	case "skip":
		return LLMPresetSkip
	case "openai", "gpt":
		return LLMPresetOpenAI
	case "openrouter":
		return LLMPresetOpenRouter
	case "anthropic", "claude":
		return LLMPresetAnthropic
	case "openai-compatible", "compatible", "vllm", "ollama":
		return LLMPresetOpenAICompatible
	default:
		return ""
	}
}

func prompt(r *bufio.Reader, out io.Writer, label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	val := strings.TrimSpace(line)
	if val == "" {
		return def, nil
	}
	return val, nil
}

func confirm(r *bufio.Reader, out io.Writer, label string) (bool, error) {
	answer, err := prompt(r, out, label+" [y/N]", "N")
	if err != nil {
		return false, err
	}
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes", nil
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{})
	for _, part := range parts {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func enabledState(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}

func firstNonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}
