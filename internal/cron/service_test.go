package cron

import (
	"path/filepath"
	"testing"
	"time"
)

func TestComputeNextRunEvery(t *testing.T) {
	interval := int64(5000)
	next := computeNextRun(Schedule{Kind: "every", EveryMs: &interval}, 1000)
	if next == nil || *next != 6000 {
		t.Fatalf("unexpected next run: %v", next)
	}
}

func TestComputeNextRunAtPast(t *testing.T) {
	past := int64(1000)
	if next := computeNextRun(Schedule{Kind: "at", AtMs: &past}, 2000); next != nil {
		t.Fatalf("past at schedule should not fire, got %v", next)
	}
}

func TestComputeNextRunCronExpr(t *testing.T) {
	now := time.Now().UnixMilli()
	next := computeNextRun(Schedule{Kind: "cron", Expr: "*/5 * * * *"}, now)
	if next == nil || *next <= now {
		t.Fatalf("expected future next run, got %v", next)
	}
}

func TestComputeNextRunInvalidExpr(t *testing.T) {
	if next := computeNextRun(Schedule{Kind: "cron", Expr: "not-a-cron"}, 0); next != nil {
		t.Fatalf("invalid expr should yield nil, got %v", next)
	}
}

func TestAddListRemove(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	interval := int64(60000)

	job, err := svc.AddJob("reminder", Schedule{Kind: "every", EveryMs: &interval}, "check email", true, "telegram", "42", false)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if len(job.ID) != 8 {
		t.Errorf("expected 8-char id, got %q", job.ID)
	}

	jobs := svc.ListJobs(false)
	if len(jobs) != 1 || jobs[0].Name != "reminder" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}

	removed, err := svc.RemoveJob(job.ID)
	if err != nil || !removed {
		t.Fatalf("remove failed: %v %v", removed, err)
	}
	if removed, _ := svc.RemoveJob(job.ID); removed {
		t.Error("second remove should report missing")
	}
}

func TestStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	svc := NewService(path)
	interval := int64(60000)
	if _, err := svc.AddJob("persisted", Schedule{Kind: "every", EveryMs: &interval}, "hi", false, "", "", false); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	svc2 := NewService(path)
	svc2.mu.Lock()
	err := svc2.loadStoreLocked()
	svc2.mu.Unlock()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	jobs := svc2.ListJobs(true)
	if len(jobs) != 1 || jobs[0].Name != "persisted" {
		t.Fatalf("unexpected jobs after reload: %+v", jobs)
	}
}

func TestEnableDisable(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	interval := int64(60000)
	job, _ := svc.AddJob("toggle", Schedule{Kind: "every", EveryMs: &interval}, "hi", false, "", "", false)

	updated, err := svc.EnableJob(job.ID, false)
	if err != nil || updated == nil || updated.Enabled {
		t.Fatalf("disable failed: %+v %v", updated, err)
	}
	if updated.State.NextRunAtMs != nil {
		t.Error("disabled job should have no next run")
	}

	if len(svc.ListJobs(false)) != 0 {
		t.Error("disabled job should be hidden from default list")
	}

	updated, err = svc.EnableJob(job.ID, true)
	if err != nil || updated == nil || !updated.Enabled || updated.State.NextRunAtMs == nil {
		t.Fatalf("enable failed: %+v %v", updated, err)
	}
}
