// Package cli implements the goclaw command tree.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/goclaw/goclaw/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"                  _\n" +
		"   __ _  ___  ___| | __ ___      __\n" +
		"  / _` |/ _ \\/ __| |/ _` \\ \\ /\\ / /\n" +
		" | (_| | (_) | (__| | (_| |\\ V  V /\n" +
		"  \\__, |\\___/ \\___|_|\\__,_| \\_/\\_/\n" +
		"  |___/\n"
)

var rootCmd = &cobra.Command{
	Use:   "goclaw",
	Short: "goclaw - Personal AI Assistant",
	Long:  color.CyanString(logo) + "\nA lightweight personal AI agent runtime written in Go.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(cronCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(serviceCmd)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}
