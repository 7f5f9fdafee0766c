package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goclaw/goclaw/internal/cron"
)

// CronTool lets the model schedule reminders and recurring tasks.
type CronTool struct {
	cron *cron.Service

	mu      sync.Mutex
	channel string
	chatID  string
}

// NewCronTool creates a CronTool backed by svc.
func NewCronTool(svc *cron.Service) *CronTool {
	return &CronTool{cron: svc}
}

// SetContext rebinds the session context new jobs deliver to.
func (t *CronTool) SetContext(channel, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channel = channel
	t.chatID = chatID
}

func (t *CronTool) Name() string { return "cron" }

func (t *CronTool) Description() string {
	return "Schedule reminders and recurring tasks. Actions: add, list, remove."
}

func (t *CronTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":        map[string]any{"type": "string", "enum": []any{"add", "list", "remove"}},
			"message":       map[string]any{"type": "string"},
			"every_seconds": map[string]any{"type": "integer"},
			"cron_expr":     map[string]any{"type": "string"},
			"at":            map[string]any{"type": "string"},
			"job_id":        map[string]any{"type": "string"},
		},
		"required": []any{"action"},
	}
}

func (t *CronTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	action := GetString(params, "action", "")

	switch action {
	case "add":
		return t.addJob(params)
	case "list":
		return t.listJobs()
	case "remove":
		return t.removeJob(params)
	default:
		return fmt.Sprintf("Unknown action: %s", action), nil
	}
}

func parseAtMs(raw string) (int64, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UnixMilli(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return ts.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("invalid at datetime: expected ISO datetime string")
}

func (t *CronTool) addJob(params map[string]any) (string, error) {
	message := GetString(params, "message", "")
	if message == "" {
		return "Error: message is required for add", nil
	}

	t.mu.Lock()
	channel, chatID := t.channel, t.chatID
	t.mu.Unlock()
	if channel == "" || chatID == "" {
		return "Error: no session context (channel/chat_id)", nil
	}

	var schedule cron.Schedule
	deleteAfterRun := false
	switch {
	case params["every_seconds"] != nil:
		seconds := int64(GetInt(params, "every_seconds", 0))
		everyMs := seconds * 1000
		schedule = cron.Schedule{Kind: "every", EveryMs: &everyMs}
	case GetString(params, "cron_expr", "") != "":
		schedule = cron.Schedule{Kind: "cron", Expr: GetString(params, "cron_expr", "")}
	case GetString(params, "at", "") != "":
		atMs, err := parseAtMs(GetString(params, "at", ""))
		if err != nil {
			return "", err
		}
		deleteAfterRun = true
		schedule = cron.Schedule{Kind: "at", AtMs: &atMs}
	default:
		return "Error: either every_seconds, cron_expr, or at is required", nil
	}

	name := message
	if len(name) > 30 {
		name = name[:30]
	}
	job, err := t.cron.AddJob(name, schedule, message, true, channel, chatID, deleteAfterRun)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created job '%s' (id: %s)", job.Name, job.ID), nil
}

func (t *CronTool) listJobs() (string, error) {
	jobs := t.cron.ListJobs(false)
	if len(jobs) == 0 {
		return "No scheduled jobs.", nil
	}
	lines := make([]string, 0, len(jobs))
	for _, j := range jobs {
		lines = append(lines, fmt.Sprintf("- %s (id: %s, %s)", j.Name, j.ID, j.Schedule.Kind))
	}
	return "Scheduled jobs:\n" + strings.Join(lines, "\n"), nil
}

func (t *CronTool) removeJob(params map[string]any) (string, error) {
	jobID := GetString(params, "job_id", "")
	if jobID == "" {
		return "Error: job_id is required for remove", nil
	}
	removed, err := t.cron.RemoveJob(jobID)
	if err != nil {
		return "", err
	}
	if removed {
		return fmt.Sprintf("Removed job %s", jobID), nil
	}
	return fmt.Sprintf("Job %s not found", jobID), nil
}
