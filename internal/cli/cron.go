package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/cron"
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Manage scheduled jobs",
}

var (
	cronName     string
	cronMessage  string
	cronEvery    time.Duration
	cronAt       string
	cronExpr     string
	cronChannel  string
	cronTo       string
	cronOneShot  bool
	cronDisabled bool
)

func init() {
	cronCmd.AddCommand(cronListCmd)
	cronCmd.AddCommand(cronAddCmd)
	cronCmd.AddCommand(cronRemoveCmd)

	cronListCmd.Flags().BoolVar(&cronDisabled, "all", false, "Include disabled jobs")

	cronAddCmd.Flags().StringVar(&cronName, "name", "", "Job name")
	cronAddCmd.Flags().StringVarP(&cronMessage, "message", "m", "", "Message the agent receives when the job fires")
	cronAddCmd.Flags().DurationVar(&cronEvery, "every", 0, "Fixed interval (e.g. 30m, 2h)")
	cronAddCmd.Flags().StringVar(&cronAt, "at", "", "One-shot time (RFC3339)")
	cronAddCmd.Flags().StringVar(&cronExpr, "cron", "", "5-field cron expression")
	cronAddCmd.Flags().StringVar(&cronChannel, "channel", "", "Deliver the result to this channel")
	cronAddCmd.Flags().StringVar(&cronTo, "to", "", "Deliver the result to this chat id")
	cronAddCmd.Flags().BoolVar(&cronOneShot, "delete-after-run", false, "Remove the job after it fires")
}

func cronService() (*cron.Service, error) {
	dataDir, err := config.DataPath()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	svc := cron.NewService(filepath.Join(dataDir, "cron", "jobs.json"))
	if err := svc.Load(); err != nil {
		return nil, err
	}
	return svc, nil
}

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := cronService()
		if err != nil {
			return err
		}
		jobs := svc.ListJobs(cronDisabled)
		if len(jobs) == 0 {
			fmt.Println("No scheduled jobs.")
			return nil
		}
		for _, job := range jobs {
			next := "-"
			if job.State.NextRunAtMs != nil {
				next = time.UnixMilli(*job.State.NextRunAtMs).Format(time.RFC3339)
			}
			fmt.Printf("%s  %-20s %-6s next=%s  %q\n", job.ID, job.Name, job.Schedule.Kind, next, job.Payload.Message)
		}
		return nil
	},
}

var cronAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a scheduled job",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cronMessage == "" {
			return fmt.Errorf("--message is required")
		}

		var schedule cron.Schedule
		switch {
		case cronEvery > 0:
			ms := cronEvery.Milliseconds()
			schedule = cron.Schedule{Kind: "every", EveryMs: &ms}
		case cronAt != "":
			t, err := time.Parse(time.RFC3339, cronAt)
			if err != nil {
				return fmt.Errorf("parse --at: %w", err)
			}
			ms := t.UnixMilli()
			schedule = cron.Schedule{Kind: "at", AtMs: &ms}
		case cronExpr != "":
			schedule = cron.Schedule{Kind: "cron", Expr: cronExpr}
		default:
			return fmt.Errorf("one of --every, --at, --cron is required")
		}

		svc, err := cronService()
		if err != nil {
			return err
		}
		deliver := cronChannel != "" && cronTo != ""
		job, err := svc.AddJob(cronName, schedule, cronMessage, deliver, cronChannel, cronTo, cronOneShot)
		if err != nil {
			return err
		}
		fmt.Printf("Added job %s (%s)\n", job.ID, job.Schedule.Kind)
		return nil
	},
}

var cronRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := cronService()
		if err != nil {
			return err
		}
		removed, err := svc.RemoveJob(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("no job with id %q", args[0])
		}
		fmt.Println("Removed.")
		return nil
	},
}
