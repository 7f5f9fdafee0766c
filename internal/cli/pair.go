package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/goclaw/goclaw/internal/pairing"
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Manage channel pairing requests",
}

func init() {
	pairCmd.AddCommand(pairListCmd)
	pairCmd.AddCommand(pairApproveCmd)
	pairCmd.AddCommand(pairRejectCmd)
}

var pairListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending pairing requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		pending, err := pairing.ListPending()
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("No pending pairing requests.")
			return nil
		}
		for _, p := range pending {
			seen := time.UnixMilli(p.LastSeenAtMs).Format(time.RFC3339)
			fmt.Printf("%-10s %-8s sender=%s chat=%s requests=%d last_seen=%s\n",
				p.Channel, p.Code, p.SenderID, p.ChatID, p.RequestCount, seen)
		}
		return nil
	},
}

var pairApproveCmd = &cobra.Command{
	Use:   "approve <channel> <code>",
	Short: "Approve a pairing code and allow the sender",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		approved, err := pairing.ApprovePairing(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Approved %s on %s.\n", approved.SenderID, approved.Channel)
		return nil
	},
}

var pairRejectCmd = &cobra.Command{
	Use:   "reject <channel> <code>",
	Short: "Reject a pending pairing code",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := pairing.RejectPairing(args[0], args[1])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("no pending pairing %q on %s", args[1], args[0])
		}
		fmt.Println("Rejected.")
		return nil
	},
}
