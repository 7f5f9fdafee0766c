// Package timeline persists a log of message traffic in sqlite so the
// owner can audit what the agent saw and said.
package timeline

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/goclaw/goclaw/internal/bus"
)

// Direction of a logged event relative to the agent.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

const schema = `
CREATE TABLE IF NOT EXISTS timeline (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	direction TEXT NOT NULL,
	channel TEXT NOT NULL,
	sender_id TEXT NOT NULL DEFAULT '',
	chat_id TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_timeline_channel ON timeline(channel, created_at);
`

// Event is one logged message.
type Event struct {
	ID        int64
	Direction string
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Service wraps the sqlite event log.
type Service struct {
	db *sql.DB
}

func NewService(dbPath string) (*Service, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open timeline db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply timeline schema: %w", err)
	}
	return &Service{db: db}, nil
}

func (s *Service) Close() error {
	return s.db.Close()
}

// LogInbound records a message arriving from a channel.
func (s *Service) LogInbound(msg *bus.InboundMessage) error {
	return s.log(DirectionIn, msg.Channel, msg.SenderID, msg.ChatID, msg.Content, msg.Metadata)
}

// LogOutbound records an agent reply headed to a channel.
func (s *Service) LogOutbound(msg *bus.OutboundMessage) error {
	return s.log(DirectionOut, msg.Channel, "", msg.ChatID, msg.Content, msg.Metadata)
}

func (s *Service) log(direction, channel, senderID, chatID, content string, metadata map[string]any) error {
	meta := ""
	if len(metadata) > 0 {
		if raw, err := json.Marshal(metadata); err == nil {
			meta = string(raw)
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO timeline (direction, channel, sender_id, chat_id, content, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		direction, channel, senderID, chatID, content, meta,
	)
	if err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}
	return nil
}

// Recent returns the newest events, most recent first.
func (s *Service) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, direction, channel, sender_id, chat_id, content, metadata, created_at
		 FROM timeline ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RecentByChat returns the newest events for one conversation, most
// recent first.
func (s *Service) RecentByChat(channel, chatID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, direction, channel, sender_id, chat_id, content, metadata, created_at
		 FROM timeline WHERE channel = ? AND chat_id = ? ORDER BY id DESC LIMIT ?`,
		channel, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CountByChannel returns event totals per channel.
func (s *Service) CountByChannel() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT channel, COUNT(*) FROM timeline GROUP BY channel`)
	if err != nil {
		return nil, fmt.Errorf("count timeline: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var channel string
		var n int
		if err := rows.Scan(&channel, &n); err != nil {
			return nil, err
		}
		counts[channel] = n
	}
	return counts, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var ev Event
		var meta string
		if err := rows.Scan(&ev.ID, &ev.Direction, &ev.Channel, &ev.SenderID, &ev.ChatID, &ev.Content, &meta, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &ev.Metadata)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
