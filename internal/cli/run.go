package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/goclaw/goclaw/internal/agent"
	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/channels"
	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/cron"
	"github.com/goclaw/goclaw/internal/heartbeat"
	"github.com/goclaw/goclaw/internal/timeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent with all enabled channels",
	RunE:  runGateway,
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dataDir, err := config.DataPath()
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	printHeader("goclaw run")

	messageBus := bus.NewMessageBus()

	tl, err := timeline.NewService(filepath.Join(dataDir, "timeline.db"))
	if err != nil {
		slog.Warn("timeline disabled", "error", err)
		tl = nil
	} else {
		defer tl.Close()
	}

	cronSvc := cron.NewService(filepath.Join(dataDir, "cron", "jobs.json"))

	loop, prov, err := buildLoop(cfg, messageBus, &agent.LoopOptions{CronService: cronSvc, Timeline: tl})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Due cron jobs run as system turns; their origin channel/chat is
	// carried in the chat_id.
	cronSvc.SetOnJob(func(job cron.Job) (string, error) {
		if job.Payload.Deliver && job.Payload.Channel != "" && job.Payload.To != "" {
			msg := bus.NewInboundMessage("system", "cron", job.Payload.Channel+":"+job.Payload.To, job.Payload.Message)
			if err := messageBus.PublishInbound(ctx, msg); err != nil {
				return "", err
			}
			return "enqueued", nil
		}
		return loop.ProcessDirect(ctx, job.Payload.Message, "")
	})
	if err := cronSvc.Start(ctx); err != nil {
		return fmt.Errorf("start cron: %w", err)
	}
	defer cronSvc.Stop()

	manager := channels.NewManager(cfg, messageBus, dataDir)
	if tl != nil {
		manager.SetTimeline(tl)
	}
	if ch, ok := manager.Get("telegram"); ok {
		if tg, ok := ch.(*channels.TelegramChannel); ok {
			tg.SetTranscriber(prov)
		}
	}

	hb := heartbeat.NewService(loop.Workspace(), time.Duration(cfg.Heartbeat.Interval)*time.Second, cfg.Heartbeat.Enabled)
	hb.OnHeartbeat(func(ctx context.Context, prompt string) (string, error) {
		return loop.ProcessDirect(ctx, prompt, "cli:heartbeat")
	})

	manager.StartAll(ctx)
	hb.Start(ctx)

	enabled := manager.EnabledChannels()
	if len(enabled) == 0 {
		fmt.Println("No channels enabled; agent reachable via 'goclaw chat'.")
	} else {
		fmt.Printf("Channels: %s\n", strings.Join(enabled, ", "))
	}
	fmt.Println("Agent running. Press Ctrl+C to stop.")

	loopErr := loop.Run(ctx)

	hb.Stop()
	manager.StopAll()
	loop.Stop()
	return loopErr
}
