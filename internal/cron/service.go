package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	cronlib "github.com/robfig/cron/v3"
)

// Callback handles a due job. The optional string result is reserved for
// delivery summaries; errors are recorded on the job state.
type Callback func(job Job) (string, error)

func nowMs() int64 {
	return time.Now().UnixMilli()
}

var exprParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

func computeNextRun(schedule Schedule, now int64) *int64 {
	switch schedule.Kind {
	case "at":
		if schedule.AtMs != nil && *schedule.AtMs > now {
			return schedule.AtMs
		}
	case "every":
		if schedule.EveryMs != nil && *schedule.EveryMs > 0 {
			next := now + *schedule.EveryMs
			return &next
		}
	case "cron":
		if schedule.Expr == "" {
			return nil
		}
		parsed, err := exprParser.Parse(schedule.Expr)
		if err != nil {
			return nil
		}
		next := parsed.Next(time.UnixMilli(now)).UnixMilli()
		return &next
	}
	return nil
}

// Service owns the job store and the 1s tick loop that fires due jobs.
type Service struct {
	storePath string

	mu    sync.Mutex
	store Store
	onJob Callback

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewService creates a Service persisting jobs at storePath.
func NewService(storePath string) *Service {
	return &Service{storePath: storePath}
}

// Load reads the persisted store without starting the tick loop. Use it
// when inspecting or editing jobs outside a running service.
func (s *Service) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadStoreLocked()
}

// SetOnJob installs the due-job callback.
func (s *Service) SetOnJob(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJob = cb
}

// Start loads the store, recomputes next runs, and launches the tick loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if err := s.loadStoreLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	now := nowMs()
	for i := range s.store.Jobs {
		if s.store.Jobs[i].Enabled {
			s.store.Jobs[i].State.NextRunAtMs = computeNextRun(s.store.Jobs[i].Schedule, now)
		}
	}
	if err := s.saveStoreLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.running = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// Stop halts the tick loop and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue()
		}
	}
}

func (s *Service) fireDue() {
	now := nowMs()

	s.mu.Lock()
	cb := s.onJob
	var due []Job
	for i := range s.store.Jobs {
		job := &s.store.Jobs[i]
		if job.Enabled && job.State.NextRunAtMs != nil && now >= *job.State.NextRunAtMs {
			ts := nowMs()
			job.State.LastRunAtMs = &ts
			due = append(due, *job)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		var err error
		if cb != nil {
			_, err = cb(job)
		}

		s.mu.Lock()
		for i := range s.store.Jobs {
			target := &s.store.Jobs[i]
			if target.ID != job.ID {
				continue
			}
			if err != nil {
				target.State.LastStatus = "error"
				target.State.LastError = err.Error()
			} else {
				target.State.LastStatus = "ok"
				target.State.LastError = ""
			}
			target.UpdatedAtMs = nowMs()

			if job.Schedule.Kind == "at" {
				if job.DeleteAfterRun {
					s.store.Jobs = append(s.store.Jobs[:i], s.store.Jobs[i+1:]...)
				} else {
					target.Enabled = false
					target.State.NextRunAtMs = nil
				}
			} else {
				target.State.NextRunAtMs = computeNextRun(target.Schedule, nowMs())
			}
			break
		}
		if saveErr := s.saveStoreLocked(); saveErr != nil {
			slog.Warn("cron store save failed", "error", saveErr)
		}
		s.mu.Unlock()
	}
}

// AddJob creates, persists, and schedules a new job.
func (s *Service) AddJob(name string, schedule Schedule, message string, deliver bool, channel, to string, deleteAfterRun bool) (Job, error) {
	now := nowMs()
	job := Job{
		ID:       strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Name:     name,
		Enabled:  true,
		Schedule: schedule,
		Payload: Payload{
			Kind:    "agent_turn",
			Message: message,
			Deliver: deliver,
			Channel: channel,
			To:      to,
		},
		State: JobState{
			NextRunAtMs: computeNextRun(schedule, now),
		},
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
		DeleteAfterRun: deleteAfterRun,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Jobs = append(s.store.Jobs, job)
	if err := s.saveStoreLocked(); err != nil {
		return Job{}, err
	}
	return job, nil
}

// RemoveJob deletes a job by id, reporting whether it existed.
func (s *Service) RemoveJob(jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.store.Jobs)
	kept := s.store.Jobs[:0]
	for _, job := range s.store.Jobs {
		if job.ID != jobID {
			kept = append(kept, job)
		}
	}
	s.store.Jobs = kept
	removed := len(s.store.Jobs) < before
	if removed {
		if err := s.saveStoreLocked(); err != nil {
			return true, err
		}
	}
	return removed, nil
}

// ListJobs returns jobs sorted by next run time. Disabled jobs are
// included only when requested.
func (s *Service) ListJobs(includeDisabled bool) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []Job
	for _, job := range s.store.Jobs {
		if includeDisabled || job.Enabled {
			jobs = append(jobs, job)
		}
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return nextOrMax(jobs[i]) < nextOrMax(jobs[j])
	})
	return jobs
}

// EnableJob toggles a job and recomputes its next run.
func (s *Service) EnableJob(jobID string, enabled bool) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.store.Jobs {
		job := &s.store.Jobs[i]
		if job.ID != jobID {
			continue
		}
		job.Enabled = enabled
		job.UpdatedAtMs = nowMs()
		if enabled {
			job.State.NextRunAtMs = computeNextRun(job.Schedule, nowMs())
		} else {
			job.State.NextRunAtMs = nil
		}
		out := *job
		if err := s.saveStoreLocked(); err != nil {
			return nil, err
		}
		return &out, nil
	}
	return nil, nil
}

func nextOrMax(job Job) int64 {
	if job.State.NextRunAtMs != nil {
		return *job.State.NextRunAtMs
	}
	return int64(1) << 62
}

func (s *Service) loadStoreLocked() error {
	raw, err := os.ReadFile(s.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.store = Store{}
			return nil
		}
		return fmt.Errorf("failed to read cron store: %w", err)
	}
	var store Store
	if err := json.Unmarshal(raw, &store); err != nil {
		store = Store{}
	}
	s.store = store
	return nil
}

func (s *Service) saveStoreLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.storePath, raw, 0644)
}
