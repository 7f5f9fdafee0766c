package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goclaw/goclaw/internal/onboarding"
)

var (
	serviceUser   string
	serviceBinary string
)

func init() {
	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceStatusCmd)
	serviceInstallCmd.Flags().StringVar(&serviceUser, "user", "goclaw", "System user the service runs as")
	serviceInstallCmd.Flags().StringVar(&serviceBinary, "binary", "", "Path to the goclaw binary (defaults to the current executable)")
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the systemd service",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install a systemd unit that runs 'goclaw run'",
	RunE: func(cmd *cobra.Command, args []string) error {
		binary := serviceBinary
		if binary == "" {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve binary path: %w", err)
			}
			binary = exe
		}

		res, err := onboarding.SetupSystemdService(onboarding.SetupOptions{
			ServiceUser: serviceUser,
			BinaryPath:  binary,
			Version:     version,
		})
		if err != nil {
			return err
		}

		if res.UserCreated {
			fmt.Printf("Created system user %q\n", serviceUser)
		}
		fmt.Printf("Wrote %s\n", res.ServicePath)
		fmt.Printf("Wrote %s\n", res.OverridePath)
		fmt.Printf("Secrets env file: %s\n", res.EnvPath)
		fmt.Println()
		fmt.Println("Enable and start with:")
		fmt.Println("  systemctl daemon-reload")
		fmt.Println("  systemctl enable --now goclaw")
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the systemd service state",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := exec.Command("systemctl", "is-active", "goclaw").CombinedOutput()
		state := strings.TrimSpace(string(out))
		if state == "" {
			state = "unknown"
		}
		fmt.Printf("goclaw.service: %s\n", state)
		if err != nil && state == "unknown" {
			return fmt.Errorf("query systemd: %w", err)
		}
		return nil
	},
}
