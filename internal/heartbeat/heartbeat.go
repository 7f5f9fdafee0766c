// Package heartbeat runs the periodic wake-up turn that lets the agent
// work through standing tasks in HEARTBEAT.md.
package heartbeat

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultInterval is used when config does not set one.
const DefaultInterval = 30 * time.Minute

// Prompt is what the agent receives on each heartbeat tick.
const Prompt = "Read HEARTBEAT.md in your workspace (if it exists).\nFollow any instructions or tasks listed there.\nIf nothing needs attention, reply with just: HEARTBEAT_OK"

// OKToken is the reply that signals nothing needed attention.
const OKToken = "HEARTBEAT_OK"

// Callback processes one heartbeat prompt and returns the agent's reply.
type Callback func(ctx context.Context, prompt string) (string, error)

// Service fires the heartbeat prompt on a fixed interval while
// HEARTBEAT.md has actionable content.
type Service struct {
	workspace string
	interval  time.Duration
	enabled   bool
	log       *slog.Logger

	mu       sync.Mutex
	callback Callback
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewService(workspace string, interval time.Duration, enabled bool) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		workspace: workspace,
		interval:  interval,
		enabled:   enabled,
		log:       slog.Default().With("component", "heartbeat"),
	}
}

// OnHeartbeat sets the callback invoked on each tick.
func (s *Service) OnHeartbeat(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// File returns the heartbeat task file path.
func (s *Service) File() string {
	return filepath.Join(s.workspace, "HEARTBEAT.md")
}

// Start launches the ticker goroutine. It returns immediately and does
// nothing when the service is disabled.
func (s *Service) Start(ctx context.Context) {
	if !s.enabled {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop halts the ticker and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// TriggerNow fires one heartbeat immediately, regardless of the file
// contents. Returns the agent's reply.
func (s *Service) TriggerNow(ctx context.Context) (string, error) {
	s.mu.Lock()
	cb := s.callback
	s.mu.Unlock()
	if cb == nil {
		return "", nil
	}
	return cb(ctx, Prompt)
}

func (s *Service) tick(ctx context.Context) {
	content, err := os.ReadFile(s.File())
	if err != nil || IsEmpty(string(content)) {
		return
	}

	s.mu.Lock()
	cb := s.callback
	s.mu.Unlock()
	if cb == nil {
		return
	}

	reply, err := cb(ctx, Prompt)
	if err != nil {
		s.log.Warn("heartbeat turn failed", "error", err)
		return
	}
	if IsOK(reply) {
		s.log.Debug("heartbeat ok")
	}
}

// IsEmpty reports whether heartbeat content has no actionable lines.
// Blank lines, headers, HTML comments, and bare checkbox markers do not
// count as work.
func IsEmpty(content string) bool {
	skip := map[string]bool{"- [ ]": true, "* [ ]": true, "- [x]": true, "* [x]": true}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "<!--") || skip[line] {
			continue
		}
		return false
	}
	return true
}

// IsOK reports whether a reply is the bare acknowledgement token,
// tolerating case and underscore variations.
func IsOK(reply string) bool {
	normalized := strings.ReplaceAll(strings.ToUpper(reply), "_", "")
	return strings.Contains(normalized, strings.ReplaceAll(OKToken, "_", ""))
}
