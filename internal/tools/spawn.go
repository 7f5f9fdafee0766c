package tools

import (
	"context"
	"sync"
)

// SpawnFunc launches a background subagent run and returns the
// acknowledgement text shown to the model.
type SpawnFunc func(ctx context.Context, task, label, originChannel, originChatID string) string

// SpawnTool hands a task off to the subagent manager. The origin
// channel/chat is rebound per turn so completion announcements find
// their way back to the right conversation.
type SpawnTool struct {
	spawn SpawnFunc

	mu            sync.Mutex
	originChannel string
	originChatID  string
}

// NewSpawnTool creates a SpawnTool delegating to spawnFn.
func NewSpawnTool(spawnFn SpawnFunc) *SpawnTool {
	return &SpawnTool{
		spawn:         spawnFn,
		originChannel: "cli",
		originChatID:  "direct",
	}
}

// SetContext rebinds the origin conversation for spawned tasks.
func (t *SpawnTool) SetContext(channel, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.originChannel = channel
	t.originChatID = chatID
}

func (t *SpawnTool) Name() string { return "spawn" }

func (t *SpawnTool) Description() string {
	return "Spawn a subagent to handle a task in the background. Use this for complex or time-consuming tasks."
}

func (t *SpawnTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task":  map[string]any{"type": "string", "description": "The task for the subagent to complete"},
			"label": map[string]any{"type": "string", "description": "Optional short label for the task"},
		},
		"required": []any{"task"},
	}
}

func (t *SpawnTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	task := GetString(params, "task", "")
	if task == "" {
		return "Error: task is required", nil
	}
	label := GetString(params, "label", "")

	t.mu.Lock()
	originChannel := t.originChannel
	originChatID := t.originChatID
	t.mu.Unlock()

	return t.spawn(ctx, task, label, originChannel, originChatID), nil
}
