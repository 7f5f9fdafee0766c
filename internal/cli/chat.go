package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/goclaw/goclaw/internal/agent"
	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/provider"
)

var (
	chatMessage string
	chatSession string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent in the terminal",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and exit")
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "cli:direct", "Session key")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loop, _, err := buildLoop(cfg, bus.NewMessageBus(), nil)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if chatMessage != "" {
		response, err := loop.ProcessDirect(ctx, chatMessage, chatSession)
		if err != nil {
			return err
		}
		fmt.Println(response)
		return nil
	}

	printHeader("goclaw chat")
	fmt.Println("Type a message, or 'exit' to quit.")

	prompt := color.New(color.FgGreen, color.Bold).Sprint("you:")
	reply := color.New(color.FgCyan, color.Bold).Sprint("goclaw:")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(prompt + " ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		response, err := loop.ProcessDirect(ctx, line, chatSession)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Println(reply + " " + response)
	}
}

// buildLoop assembles the agent loop from config. The cron service is
// optional; chat mode runs without one.
func buildLoop(cfg *config.Config, messageBus *bus.MessageBus, opts *agent.LoopOptions) (*agent.Loop, provider.LLMProvider, error) {
	providerCfg, _ := cfg.ActiveProvider()
	if providerCfg.APIKey == "" {
		return nil, nil, fmt.Errorf("no provider API key configured (set providers in config or OPENAI_API_KEY / OPENROUTER_API_KEY / ANTHROPIC_API_KEY)")
	}

	prov := provider.NewOpenAIProvider(providerCfg.APIKey, providerCfg.APIBase, cfg.Agent.Model)

	dataDir, err := config.DataPath()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve data dir: %w", err)
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create workspace: %w", err)
	}

	loopOpts := agent.LoopOptions{
		Bus:                 messageBus,
		Provider:            prov,
		Workspace:           workspace,
		Model:               cfg.Agent.Model,
		MaxIterations:       cfg.Agent.MaxToolIterations,
		MemoryWindow:        cfg.Agent.MemoryWindow,
		HistoryWindow:       cfg.Agent.HistoryWindow,
		BraveAPIKey:         cfg.Tools.Web.Search.APIKey,
		SearchMaxResults:    cfg.Tools.Web.Search.MaxResults,
		ExecTimeout:         cfg.ExecTimeout(),
		RestrictToWorkspace: cfg.Tools.RestrictToWorkspace,
		DataDir:             dataDir,
	}
	if opts != nil {
		loopOpts.CronService = opts.CronService
		loopOpts.Timeline = opts.Timeline
	}

	loop, err := agent.NewLoop(loopOpts)
	if err != nil {
		return nil, nil, err
	}
	return loop, prov, nil
}
