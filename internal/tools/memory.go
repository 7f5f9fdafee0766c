package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/goclaw/goclaw/internal/memory"
)

// RememberTool appends a fact to long-term memory.
type RememberTool struct {
	store *memory.Store
}

// NewRememberTool creates a RememberTool writing to store.
func NewRememberTool(store *memory.Store) *RememberTool {
	return &RememberTool{store: store}
}

func (t *RememberTool) Name() string { return "remember" }

func (t *RememberTool) Description() string {
	return "Store a piece of information in long-term memory for later recall. Use this when the user asks you to remember something."
}

func (t *RememberTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "The information to remember",
			},
		},
		"required": []any{"content"},
	}
}

func (t *RememberTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	content := GetString(params, "content", "")
	if content == "" {
		return "Error: content is required", nil
	}

	existing := strings.TrimRight(t.store.ReadLongTerm(), "\n")
	entry := "- " + content
	if existing != "" {
		entry = existing + "\n" + entry
	}
	if err := t.store.WriteLongTerm(entry + "\n"); err != nil {
		return fmt.Sprintf("Error storing memory: %v", err), nil
	}

	return fmt.Sprintf("Remembered: %q", truncate(content, 80)), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
