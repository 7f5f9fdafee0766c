package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/identity"
	"github.com/goclaw/goclaw/internal/onboarding"
)

var (
	onboardLLM           string
	onboardLLMToken      string
	onboardLLMBase       string
	onboardModel         string
	onboardTelegramToken string
	onboardTelegramAllow string
	onboardSlackBot      string
	onboardSlackApp      string
	onboardSlackAllow    string
	onboardYes           bool
	onboardForce         bool
)

func init() {
	onboardCmd.Flags().StringVar(&onboardLLM, "llm", "", "Provider preset: openai, openrouter, anthropic, openai-compatible, skip")
	onboardCmd.Flags().StringVar(&onboardLLMToken, "llm-token", "", "Provider API key")
	onboardCmd.Flags().StringVar(&onboardLLMBase, "llm-base", "", "Provider API base URL")
	onboardCmd.Flags().StringVar(&onboardModel, "model", "", "Default model")
	onboardCmd.Flags().StringVar(&onboardTelegramToken, "telegram-token", "", "Telegram bot token")
	onboardCmd.Flags().StringVar(&onboardTelegramAllow, "telegram-allow", "", "Comma-separated Telegram sender allowlist")
	onboardCmd.Flags().StringVar(&onboardSlackBot, "slack-bot-token", "", "Slack bot token (xoxb-...)")
	onboardCmd.Flags().StringVar(&onboardSlackApp, "slack-app-token", "", "Slack app token (xapp-...)")
	onboardCmd.Flags().StringVar(&onboardSlackAllow, "slack-allow", "", "Comma-separated Slack sender allowlist")
	onboardCmd.Flags().BoolVarP(&onboardYes, "yes", "y", false, "Apply without asking (implies non-interactive)")
	onboardCmd.Flags().BoolVar(&onboardForce, "force", false, "Overwrite existing workspace files")
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Set up config and workspace for a fresh install",
	RunE: func(cmd *cobra.Command, args []string) error {
		printHeader("Onboarding")

		configPath, err := config.ConfigPath()
		if err != nil {
			return err
		}
		cfg := config.DefaultConfig()
		if _, statErr := os.Stat(configPath); statErr == nil {
			loaded, loadErr := config.Load()
			if loadErr != nil {
				return fmt.Errorf("load existing config: %w", loadErr)
			}
			cfg = loaded
			fmt.Printf("Updating existing config at %s\n", configPath)
		}

		params := onboarding.WizardParams{
			LLMPreset:         onboardLLM,
			LLMToken:          onboardLLMToken,
			LLMAPIBase:        onboardLLMBase,
			LLMModel:          onboardModel,
			TelegramToken:     onboardTelegramToken,
			TelegramAllowFrom: onboardTelegramAllow,
			SlackBotToken:     onboardSlackBot,
			SlackAppToken:     onboardSlackApp,
			SlackAllowFrom:    onboardSlackAllow,
			NonInteractive:    onboardYes,
		}
		if err := onboarding.RunProfileWizard(cfg, os.Stdin, os.Stdout, params); err != nil {
			return err
		}

		fmt.Print(onboarding.BuildProfileSummary(cfg))
		if !onboardYes {
			ok, err := onboarding.ConfirmApply(bufio.NewReader(os.Stdin), os.Stdout)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted; nothing written.")
				return nil
			}
		}

		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Printf("Wrote config to %s\n", configPath)

		workspace := cfg.WorkspacePath()
		result, err := identity.ScaffoldWorkspace(workspace, onboardForce)
		if err != nil {
			return fmt.Errorf("scaffold workspace: %w", err)
		}
		for _, name := range result.Created {
			fmt.Printf("Created %s\n", name)
		}
		if len(result.Errors) > 0 {
			for _, e := range result.Errors {
				fmt.Fprintf(os.Stderr, "scaffold: %s\n", e)
			}
		}
		fmt.Printf("Workspace ready at %s\n", workspace)

		fmt.Println()
		color.Green("goclaw is ready.")
		fmt.Println("Next steps:")
		fmt.Println("1. Chat: goclaw chat -m \"Hello!\"")
		fmt.Println("2. Run channels: goclaw run")
		return nil
	},
}
