package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/pairing"
	"github.com/goclaw/goclaw/internal/timeline"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("goclaw version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("goclaw status")
		fmt.Printf("Version: %s\n", version)

		configPath, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Println("Config:  found (" + configPath + ")")
			} else {
				fmt.Println("Config:  not found (" + configPath + ")")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config load failed: %v\n", err)
			return
		}

		providerCfg, providerName := cfg.ActiveProvider()
		if providerCfg.APIKey != "" {
			fmt.Printf("Provider: %s\n", providerName)
		} else {
			fmt.Println("Provider: no API key configured")
		}
		if cfg.Agent.Model != "" {
			fmt.Printf("Model:    %s\n", cfg.Agent.Model)
		}
		fmt.Printf("Workspace: %s\n", cfg.WorkspacePath())

		for _, name := range []string{"telegram", "slack"} {
			enabled := false
			switch name {
			case "telegram":
				enabled = cfg.Channels.Telegram.Enabled
			case "slack":
				enabled = cfg.Channels.Slack.Enabled
			}
			state := "disabled"
			if enabled {
				state = "enabled"
			}
			fmt.Printf("Channel %-9s %s\n", name+":", state)
		}

		if dataDir, err := config.DataPath(); err == nil {
			if tl, err := timeline.NewService(filepath.Join(dataDir, "timeline.db")); err == nil {
				if counts, err := tl.CountByChannel(); err == nil && len(counts) > 0 {
					fmt.Println("Messages logged:")
					for channel, n := range counts {
						fmt.Printf("  %-10s %d\n", channel, n)
					}
				}
				tl.Close()
			}
		}

		if pending, err := pairing.ListPending(); err == nil && len(pending) > 0 {
			fmt.Printf("Pending pairings: %d (see 'goclaw pair list')\n", len(pending))
		}
	},
}
