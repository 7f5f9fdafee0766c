package cli

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goclaw/goclaw/internal/pairing"
)

func setupHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("GOCLAW_HOME", dir)
	t.Setenv("GOCLAW_CONFIG", filepath.Join(dir, "config.json"))
	return dir
}

func resetCronFlags() {
	cronName = ""
	cronMessage = ""
	cronEvery = 0
	cronAt = ""
	cronExpr = ""
	cronChannel = ""
	cronTo = ""
	cronOneShot = false
}

func TestCronAddListRemove(t *testing.T) {
	setupHome(t)
	resetCronFlags()

	cronMessage = "water the plants"
	cronEvery = time.Hour
	if err := cronAddCmd.RunE(cronAddCmd, nil); err != nil {
		t.Fatalf("cron add failed: %v", err)
	}

	svc, err := cronService()
	if err != nil {
		t.Fatal(err)
	}
	jobs := svc.ListJobs(false)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Payload.Message != "water the plants" || jobs[0].Schedule.Kind != "every" {
		t.Errorf("unexpected job: %+v", jobs[0])
	}

	if err := cronRemoveCmd.RunE(cronRemoveCmd, []string{jobs[0].ID}); err != nil {
		t.Fatalf("cron remove failed: %v", err)
	}
	svc, err = cronService()
	if err != nil {
		t.Fatal(err)
	}
	if remaining := svc.ListJobs(true); len(remaining) != 0 {
		t.Errorf("job not removed: %+v", remaining)
	}
}

func TestCronAddRequiresSchedule(t *testing.T) {
	setupHome(t)
	resetCronFlags()

	cronMessage = "no schedule"
	err := cronAddCmd.RunE(cronAddCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "--every") {
		t.Errorf("expected schedule error, got %v", err)
	}
}

func TestCronAddRequiresMessage(t *testing.T) {
	setupHome(t)
	resetCronFlags()

	cronEvery = time.Minute
	err := cronAddCmd.RunE(cronAddCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "--message") {
		t.Errorf("expected message error, got %v", err)
	}
}

func TestCronRemoveUnknownJob(t *testing.T) {
	setupHome(t)
	if err := cronRemoveCmd.RunE(cronRemoveCmd, []string{"nope"}); err == nil {
		t.Error("expected error for unknown job id")
	}
}

func TestPairApproveFlow(t *testing.T) {
	setupHome(t)

	issue, err := pairing.IssuePairing("telegram", "12345", "67890")
	if err != nil {
		t.Fatal(err)
	}
	if err := pairApproveCmd.RunE(pairApproveCmd, []string{"telegram", issue.Code}); err != nil {
		t.Fatalf("pair approve failed: %v", err)
	}

	pending, err := pairing.ListPending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pairing still pending: %+v", pending)
	}
}

func TestPairRejectUnknownCode(t *testing.T) {
	setupHome(t)
	if err := pairRejectCmd.RunE(pairRejectCmd, []string{"telegram", "ZZZZZZ"}); err == nil {
		t.Error("expected error for unknown code")
	}
}

func TestRootCommandTree(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "chat", "status", "cron", "pair", "version", "onboard", "service"} {
		if !names[want] {
			t.Errorf("missing command %q", want)
		}
	}
}
