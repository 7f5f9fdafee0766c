package agent

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goclaw/goclaw/internal/identity"
	"github.com/goclaw/goclaw/internal/memory"
	"github.com/goclaw/goclaw/internal/provider"
	"github.com/goclaw/goclaw/internal/skills"
)

// ContextBuilder assembles the system prompt and per-turn message list.
type ContextBuilder struct {
	workspace string
	memory    *memory.Store
	skills    *skills.Loader
}

// NewContextBuilder creates a context builder rooted at the workspace.
func NewContextBuilder(workspace string) (*ContextBuilder, error) {
	store, err := memory.NewStore(workspace)
	if err != nil {
		return nil, fmt.Errorf("init memory store: %w", err)
	}
	return &ContextBuilder{
		workspace: workspace,
		memory:    store,
		skills:    skills.NewLoader(workspace, ""),
	}, nil
}

// BuildSystemPrompt concatenates the prompt sections in fixed order, skipping
// any section whose content is empty.
func (b *ContextBuilder) BuildSystemPrompt(skillNames []string) string {
	var parts []string

	parts = append(parts, b.identitySection())

	// Bootstrap files are loaded from the workspace root when present.
	// Missing files are silently skipped.
	var bootstrap []string
	for _, filename := range identity.TemplateNames {
		data, err := os.ReadFile(filepath.Join(b.workspace, filename))
		if err != nil {
			continue
		}
		bootstrap = append(bootstrap, fmt.Sprintf("## %s\n\n%s", filename, string(data)))
	}
	if len(bootstrap) > 0 {
		parts = append(parts, strings.Join(bootstrap, "\n\n"))
	}

	if mem := b.memory.GetMemoryContext(); mem != "" {
		parts = append(parts, "# Memory\n\n"+mem)
	}

	if always := b.skills.AlwaysSkills(); len(always) > 0 {
		if content := b.skills.LoadSkillsForContext(always); content != "" {
			parts = append(parts, "# Active Skills\n\n"+content)
		}
	}

	if len(skillNames) > 0 {
		if content := b.skills.LoadSkillsForContext(skillNames); content != "" {
			parts = append(parts, "# Requested Skills\n\n"+content)
		}
	}

	if summary := b.skills.BuildSummary(); summary != "" {
		parts = append(parts, "# Skills\n\nThe following skills extend your capabilities. To use a skill, read its SKILL.md file using the read_file tool.\n\n"+summary)
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func (b *ContextBuilder) identitySection() string {
	now := time.Now()
	tz, _ := now.Zone()
	if strings.TrimSpace(tz) == "" {
		tz = "UTC"
	}
	runtimeInfo := runtime.GOOS + " " + runtime.GOARCH
	ws := b.workspace

	return fmt.Sprintf(`# goclaw

You are goclaw, a helpful AI assistant.

## Current Time
%s (%s)

## Runtime
%s

## Workspace
%s
- Memory files: %s/memory/MEMORY.md
- Daily notes: %s/memory/YYYY-MM-DD.md

IMPORTANT: Respond directly in text for normal chat.
Only use the 'message' tool for proactive channel messages.
Always be helpful, accurate, and concise. When using tools, think step by step: what you know, what you need, and why you chose this tool.
When remembering something, write to %s/memory/MEMORY.md`,
		now.Format("2006-01-02 15:04 (Monday)"), tz, runtimeInfo, ws, ws, ws, ws)
}

// BuildMessages produces [system, ...history, user]. When channel/chatID are
// set, a session locator is appended to the system prompt. Media paths become
// image parts in the user message.
func (b *ContextBuilder) BuildMessages(history []provider.Message, currentMessage string, skillNames []string, channel, chatID string, media []string) []provider.Message {
	systemPrompt := b.BuildSystemPrompt(skillNames)
	if channel != "" && chatID != "" {
		systemPrompt += fmt.Sprintf("\n\n## Current Session\nChannel: %s\nChat ID: %s", channel, chatID)
	}

	messages := make([]provider.Message, 0, len(history)+2)
	messages = append(messages, provider.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, provider.Message{Role: "user", Content: buildUserContent(currentMessage, media)})
	return messages
}

// AddToolResult appends a tool message carrying the call id, tool name, and
// output text.
func (b *ContextBuilder) AddToolResult(messages []provider.Message, toolCallID, toolName, result string) []provider.Message {
	return append(messages, provider.Message{
		Role:       "tool",
		ToolCallID: toolCallID,
		Name:       toolName,
		Content:    result,
	})
}

// AddAssistantMessage appends an assistant message with optional tool calls
// and reasoning text.
func (b *ContextBuilder) AddAssistantMessage(messages []provider.Message, content string, toolCalls []provider.ToolCall, reasoningContent string) []provider.Message {
	return append(messages, provider.Message{
		Role:             "assistant",
		Content:          content,
		ToolCalls:        toolCalls,
		ReasoningContent: reasoningContent,
	})
}

// buildUserContent converts media paths into base64 image parts. Files that
// are unreadable or not images are dropped; when no image survives, the
// content degrades to plain text.
func buildUserContent(text string, media []string) any {
	if len(media) == 0 {
		return text
	}

	var parts []provider.ContentPart
	for _, path := range media {
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if !strings.HasPrefix(mimeType, "image/") {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		parts = append(parts, provider.ContentPart{
			Type:     "image_url",
			ImageURL: &provider.ImageURL{URL: fmt.Sprintf("data:%s;base64,%s", mimeType, encoded)},
		})
	}

	if len(parts) == 0 {
		return text
	}
	parts = append(parts, provider.ContentPart{Type: "text", Text: text})
	return parts
}
