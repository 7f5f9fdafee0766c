package channels

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/timeline"
)

// Manager owns the enabled transports and the outbound dispatch loop.
type Manager struct {
	bus      *bus.MessageBus
	channels map[string]Channel
	timeline *timeline.Service

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running map[string]bool
}

// NewManager builds the transports that are enabled in config. A channel
// that fails to construct is logged and skipped so the rest still run.
func NewManager(cfg *config.Config, messageBus *bus.MessageBus, dataDir string) *Manager {
	m := &Manager{
		bus:      messageBus,
		channels: make(map[string]Channel),
		running:  make(map[string]bool),
	}

	if cfg.Channels.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Channels.Telegram, messageBus, dataDir)
		if err != nil {
			slog.Error("telegram channel disabled", "error", err)
		} else {
			m.channels[ch.Name()] = ch
		}
	}
	if cfg.Channels.Slack.Enabled {
		ch, err := NewSlackChannel(cfg.Channels.Slack, messageBus)
		if err != nil {
			slog.Error("slack channel disabled", "error", err)
		} else {
			m.channels[ch.Name()] = ch
		}
	}

	return m
}

// Register adds a transport. Used for the CLI channel and in tests.
func (m *Manager) Register(ch Channel) {
	m.channels[ch.Name()] = ch
}

// SetTimeline enables outbound delivery logging.
func (m *Manager) SetTimeline(tl *timeline.Service) {
	m.timeline = tl
}

// EnabledChannels returns the sorted names of configured transports.
func (m *Manager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a transport by name.
func (m *Manager) Get(name string) (Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

// StartAll launches every transport plus the outbound dispatch loop and
// returns immediately. The dispatch loop runs even with no transports
// configured so agent replies cannot back up the bounded outbound queue.
func (m *Manager) StartAll(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	for name, ch := range m.channels {
		m.bus.Subscribe(name, m.deliver(ctx, ch))
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.bus.DispatchOutbound(ctx)
	}()

	for name, ch := range m.channels {
		m.mu.Lock()
		m.running[name] = true
		m.mu.Unlock()

		m.wg.Add(1)
		go func(name string, ch Channel) {
			defer m.wg.Done()
			if err := ch.Start(ctx); err != nil {
				slog.Error("channel stopped", "channel", name, "error", err)
			}
			m.mu.Lock()
			m.running[name] = false
			m.mu.Unlock()
		}(name, ch)
	}
}

// StopAll stops every transport and waits for their goroutines.
func (m *Manager) StopAll() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	for name, ch := range m.channels {
		if err := ch.Stop(); err != nil {
			slog.Warn("channel stop failed", "channel", name, "error", err)
		}
	}
	m.wg.Wait()
}

// Status reports which transports are currently running.
func (m *Manager) Status() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := make(map[string]bool, len(m.channels))
	for name := range m.channels {
		status[name] = m.running[name]
	}
	return status
}

// deliver returns the dispatch callback for one transport.
func (m *Manager) deliver(ctx context.Context, ch Channel) func(*bus.OutboundMessage) {
	return func(msg *bus.OutboundMessage) {
		if err := ch.Send(ctx, msg); err != nil {
			slog.Error("outbound send failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
			return
		}
		if m.timeline != nil {
			if err := m.timeline.LogOutbound(msg); err != nil {
				slog.Warn("timeline write failed", "error", err)
			}
		}
	}
}
