package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/goclaw/goclaw/internal/bus"
)

// MessageTool sends a message to a chat channel via the outbound queue.
// The current channel/chat target is rebound by the agent loop before
// each turn so the model does not have to re-specify it.
type MessageTool struct {
	bus *bus.MessageBus

	mu      sync.Mutex
	channel string
	chatID  string
}

// NewMessageTool creates a MessageTool publishing to b.
func NewMessageTool(b *bus.MessageBus) *MessageTool {
	return &MessageTool{bus: b}
}

// SetContext rebinds the default delivery target for this turn.
func (t *MessageTool) SetContext(channel, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channel = channel
	t.chatID = chatID
}

func (t *MessageTool) Name() string { return "message" }

func (t *MessageTool) Description() string {
	return "Send a message to the user. Use this when you need to communicate a progress update to a chat channel."
}

func (t *MessageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "string", "description": "The message content to send"},
			"channel": map[string]any{"type": "string", "description": "Optional target channel"},
			"chat_id": map[string]any{"type": "string", "description": "Optional target chat/user ID"},
		},
		"required": []any{"content"},
	}
}

func (t *MessageTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	content := GetString(params, "content", "")
	if content == "" {
		return "Error: content is required", nil
	}

	channel := GetString(params, "channel", "")
	chatID := GetString(params, "chat_id", "")
	if channel == "" || chatID == "" {
		t.mu.Lock()
		channel = t.channel
		chatID = t.chatID
		t.mu.Unlock()
	}

	if channel == "" || chatID == "" {
		return "Error: No target channel/chat specified", nil
	}

	err := t.bus.PublishOutbound(ctx, &bus.OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: content,
	})
	if err != nil {
		return "", fmt.Errorf("Error sending message: %w", err)
	}

	return fmt.Sprintf("Message sent to %s:%s", channel, chatID), nil
}
