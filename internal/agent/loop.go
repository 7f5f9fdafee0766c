package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/cron"
	"github.com/goclaw/goclaw/internal/memory"
	"github.com/goclaw/goclaw/internal/provider"
	"github.com/goclaw/goclaw/internal/session"
	"github.com/goclaw/goclaw/internal/timeline"
	"github.com/goclaw/goclaw/internal/tools"
)

// LoopOptions configures an agent Loop.
type LoopOptions struct {
	Bus                 *bus.MessageBus
	Provider            provider.LLMProvider
	Workspace           string
	Model               string // empty uses the provider default
	MaxIterations       int
	MemoryWindow        int
	HistoryWindow       int // user messages replayed per turn
	BraveAPIKey         string
	SearchMaxResults    int // web search results per query, default 5
	ExecTimeout         time.Duration
	RestrictToWorkspace bool
	CronService         *cron.Service        // optional
	Sessions            *session.Manager     // optional, created when nil
	DataDir             string               // session storage root when Sessions is nil
	Timeline            *timeline.Service    // optional inbound audit log
}

// Loop consumes inbound messages, runs agent turns against the LLM provider,
// and publishes outbound responses.
type Loop struct {
	bus           *bus.MessageBus
	provider      provider.LLMProvider
	workspace     string
	model         string
	maxIterations int
	memoryWindow  int
	historyWindow int
	context       *ContextBuilder
	sessions      *session.Manager
	tools         *tools.Registry
	messageTool   *tools.MessageTool
	spawnTool     *tools.SpawnTool
	cronTool      *tools.CronTool
	subagents     *SubagentManager
	timeline      *timeline.Service
	running       atomic.Bool
}

// NewLoop creates the agent loop and registers the default tool set.
func NewLoop(opts LoopOptions) (*Loop, error) {
	ctxBuilder, err := NewContextBuilder(opts.Workspace)
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if model == "" {
		model = opts.Provider.DefaultModel()
	}
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 20
	}

	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewManager(opts.DataDir)
	}
	searchMaxResults := opts.SearchMaxResults
	if searchMaxResults <= 0 {
		searchMaxResults = 5
	}

	l := &Loop{
		bus:           opts.Bus,
		provider:      opts.Provider,
		workspace:     opts.Workspace,
		model:         model,
		maxIterations: maxIterations,
		memoryWindow:  opts.MemoryWindow,
		historyWindow: opts.HistoryWindow,
		context:       ctxBuilder,
		sessions:      sessions,
		tools:         tools.NewRegistry(),
		timeline:      opts.Timeline,
	}

	workspaceRestriction := ""
	if opts.RestrictToWorkspace {
		workspaceRestriction = opts.Workspace
	}

	l.tools.Register(tools.NewReadFileTool())
	l.tools.Register(tools.NewWriteFileTool(workspaceRestriction))
	l.tools.Register(tools.NewEditFileTool(workspaceRestriction))
	l.tools.Register(tools.NewListDirTool())
	l.tools.Register(tools.NewExecTool(opts.ExecTimeout, opts.RestrictToWorkspace, opts.Workspace))
	l.tools.Register(tools.NewWebSearchTool(opts.BraveAPIKey, searchMaxResults))
	l.tools.Register(tools.NewWebFetchTool(50_000))

	memStore, err := memory.NewStore(opts.Workspace)
	if err != nil {
		return nil, err
	}
	l.tools.Register(tools.NewRememberTool(memStore))

	l.messageTool = tools.NewMessageTool(opts.Bus)
	l.tools.Register(l.messageTool)

	l.subagents = NewSubagentManager(opts.Provider, opts.Workspace, opts.Bus, model, opts.BraveAPIKey, searchMaxResults, opts.ExecTimeout, opts.RestrictToWorkspace)
	l.spawnTool = tools.NewSpawnTool(l.subagents.Spawn)
	l.tools.Register(l.spawnTool)

	if opts.CronService != nil {
		l.cronTool = tools.NewCronTool(opts.CronService)
		l.tools.Register(l.cronTool)
	}

	return l, nil
}

// Run consumes inbound messages until Stop is called or the context ends.
// Provider errors surface to the user as an apology message, never a crash.
func (l *Loop) Run(ctx context.Context) error {
	l.running.Store(true)
	for l.running.Load() {
		consumeCtx, cancel := context.WithTimeout(ctx, time.Second)
		msg, err := l.bus.ConsumeInbound(consumeCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if msg == nil {
			return nil
		}

		if l.timeline != nil {
			if err := l.timeline.LogInbound(msg); err != nil {
				slog.Warn("timeline write failed", "error", err)
			}
		}

		response, err := l.processMessage(ctx, msg, "")
		if err != nil {
			response = &bus.OutboundMessage{
				Channel:  msg.Channel,
				ChatID:   msg.ChatID,
				Content:  fmt.Sprintf("Sorry, I encountered an error: %v", err),
				Metadata: msg.Metadata,
			}
		}
		if err := l.bus.PublishOutbound(ctx, response); err != nil {
			slog.Warn("publish outbound failed", "error", err)
		}
	}
	return nil
}

// Stop signals Run to exit after the current message.
func (l *Loop) Stop() {
	l.running.Store(false)
}

// ProcessDirect runs one turn for CLI/cron/web front-ends and returns the
// answer text.
func (l *Loop) ProcessDirect(ctx context.Context, content, sessionKey string) (string, error) {
	if sessionKey == "" {
		sessionKey = "cli:direct"
	}
	channel, chatID, ok := strings.Cut(sessionKey, ":")
	if !ok {
		channel, chatID = "cli", "direct"
	}

	msg := bus.NewInboundMessage(channel, "user", chatID, content)
	response, err := l.processMessage(ctx, msg, sessionKey)
	if err != nil {
		return "", err
	}
	return response.Content, nil
}

// RunningSubagents reports the number of in-flight background tasks.
func (l *Loop) RunningSubagents() int {
	return l.subagents.RunningCount()
}

// Workspace returns the agent workspace root.
func (l *Loop) Workspace() string {
	return l.workspace
}

func (l *Loop) availableToolsText() string {
	names := l.tools.Names()
	if len(names) == 0 {
		return "(none)"
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func (l *Loop) runtimeFactsMessage() provider.Message {
	return provider.Message{
		Role: "system",
		Content: fmt.Sprintf(
			"Runtime facts (authoritative): active model is '%s'; available tools are: %s. "+
				"If a user asks for external actions (network/file/command/scheduling), do not claim tools are unavailable; call the matching tool directly. "+
				"Focus on the current user message only; do not summarize prior tasks unless explicitly requested.",
			l.model, l.availableToolsText()),
	}
}

// buildTurnMessages assembles [system, runtime-facts, ...history, user].
func (l *Loop) buildTurnMessages(history []provider.Message, currentMessage, channel, chatID string, media []string) []provider.Message {
	built := l.context.BuildMessages(history, currentMessage, nil, channel, chatID, media)
	messages := make([]provider.Message, 0, len(built)+1)
	messages = append(messages, built[0], l.runtimeFactsMessage())
	messages = append(messages, built[1:]...)
	return messages
}

func (l *Loop) toolDefinitions() []provider.ToolDefinition {
	defs := make([]provider.ToolDefinition, 0)
	for _, tool := range l.tools.List() {
		defs = append(defs, provider.ToolDefinition{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return defs
}

func (l *Loop) setToolContext(channel, chatID string) {
	l.messageTool.SetContext(channel, chatID)
	l.spawnTool.SetContext(channel, chatID)
	if l.cronTool != nil {
		l.cronTool.SetContext(channel, chatID)
	}
}

func (l *Loop) processMessage(ctx context.Context, msg *bus.InboundMessage, sessionKey string) (*bus.OutboundMessage, error) {
	if msg.Channel == "system" {
		return l.processSystemMessage(ctx, msg)
	}

	if sessionKey == "" {
		sessionKey = msg.SessionKey()
	}
	sess := l.sessions.GetOrCreate(sessionKey)
	if sess.MessageCount() > l.memoryWindow {
		if err := l.consolidateMemory(ctx, sess); err != nil {
			slog.Warn("memory consolidation failed", "error", err)
		}
	}

	l.setToolContext(msg.Channel, msg.ChatID)

	history := sessionHistory(sess, l.historyWindow)
	messages := l.buildTurnMessages(history, msg.Content, msg.Channel, msg.ChatID, msg.Media)

	answer, toolsUsed, err := l.runTurn(ctx, messages, msg.Content, msg.Channel, msg.ChatID, msg.Media, true)
	if err != nil {
		return nil, err
	}

	sess.AddMessage("user", msg.Content)
	sess.AddMessageWithTools("assistant", answer, toolsUsed)
	if err := l.sessions.Save(sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	return &bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		Content:  answer,
		Metadata: msg.Metadata,
	}, nil
}

// processSystemMessage handles background turns (cron, subagent completions).
// The true destination is encoded in chat_id as "channel:chat_id".
func (l *Loop) processSystemMessage(ctx context.Context, msg *bus.InboundMessage) (*bus.OutboundMessage, error) {
	originChannel, originChatID, ok := strings.Cut(msg.ChatID, ":")
	if !ok {
		originChannel, originChatID = "cli", msg.ChatID
	}

	l.setToolContext(originChannel, originChatID)

	sessionKey := originChannel + ":" + originChatID
	sess := l.sessions.GetOrCreate(sessionKey)
	history := sessionHistory(sess, l.historyWindow)
	messages := l.buildTurnMessages(history, msg.Content, originChannel, originChatID, nil)

	answer, _, err := l.runTurn(ctx, messages, msg.Content, originChannel, originChatID, nil, false)
	if err != nil {
		return nil, err
	}
	if answer == exhaustedFallback {
		answer = "Background task completed."
	}

	sess.AddMessage("user", fmt.Sprintf("[System: %s] %s", msg.SenderID, msg.Content))
	sess.AddMessage("assistant", answer)
	if err := l.sessions.Save(sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	return &bus.OutboundMessage{Channel: originChannel, ChatID: originChatID, Content: answer}, nil
}

const exhaustedFallback = "I've completed processing but have no response to give."

// runTurn drives the tool-calling iteration loop until the model produces a
// text-only answer or the iteration budget is spent. Tool calls execute
// sequentially, in the order returned; later calls may depend on side effects
// of earlier ones.
func (l *Loop) runTurn(ctx context.Context, messages []provider.Message, currentMessage, channel, chatID string, media []string, trackTools bool) (string, []string, error) {
	var toolsUsed []string
	finalContent := ""
	haveFinal := false
	retriedWithFreshContext := false
	guard := NewTurnGuard(l.model, l.availableToolsText())

	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		response, err := l.provider.Chat(ctx, &provider.ChatRequest{
			Messages:    messages,
			Tools:       l.toolDefinitions(),
			Model:       l.model,
			MaxTokens:   4096,
			Temperature: 0.7,
		})
		if err != nil {
			return "", nil, err
		}

		if len(response.ToolCalls) > 0 {
			messages = l.context.AddAssistantMessage(messages, response.Content, response.ToolCalls, response.ReasoningContent)
			for _, tc := range response.ToolCalls {
				if trackTools {
					toolsUsed = append(toolsUsed, tc.Name)
				}
				result := l.tools.Execute(ctx, tc.Name, tc.Arguments)
				messages = l.context.AddToolResult(messages, tc.ID, tc.Name, result)
			}
			messages = append(messages, provider.Message{
				Role:    "user",
				Content: "Reflect on the results and decide next steps.",
			})
			continue
		}

		if guard.ShouldRetryAfterFalseNoToolsClaim(response.Content) {
			if !retriedWithFreshContext {
				messages = l.buildTurnMessages(nil, currentMessage, channel, chatID, media)
				messages = append(messages, guard.CorrectionMessage())
				retriedWithFreshContext = true
				continue
			}
			finalContent = guard.ToolsAvailableResponse()
			haveFinal = true
			break
		}
		finalContent = response.Content
		haveFinal = true
		break
	}

	if !haveFinal {
		finalContent = exhaustedFallback
	}
	return finalContent, toolsUsed, nil
}

// sessionHistory converts stored user messages into provider messages.
func sessionHistory(sess *session.Session, window int) []provider.Message {
	stored := sess.GetHistory(window)
	history := make([]provider.Message, 0, len(stored))
	for _, m := range stored {
		history = append(history, provider.Message{Role: m.Role, Content: m.Content})
	}
	return history
}

// extractJSONObject parses text as a JSON object, tolerating markdown code
// fences around the payload.
func extractJSONObject(text string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(text)
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return obj, true
	}
	if strings.HasPrefix(trimmed, "```") {
		lines := strings.Split(trimmed, "\n")
		body := strings.Join(lines[1:], "\n")
		if idx := strings.LastIndex(body, "```"); idx >= 0 {
			body = body[:idx]
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &obj); err == nil {
			return obj, true
		}
	}
	return nil, false
}

// consolidateMemory summarizes older session messages into the long-term
// memory store and history log, then truncates the session to the most recent
// keep-count messages.
func (l *Loop) consolidateMemory(ctx context.Context, sess *session.Session) error {
	memStore, err := memory.NewStore(l.workspace)
	if err != nil {
		return err
	}
	keepCount := min(10, max(2, l.memoryWindow/2))
	if sess.MessageCount() <= keepCount {
		return nil
	}

	all := sess.AllMessages()
	splitIdx := len(all) - keepCount
	var lines []string
	for _, m := range all[:splitIdx] {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		timestamp := "?"
		if !m.Timestamp.IsZero() {
			ts := m.Timestamp.Format(time.RFC3339)
			if len(ts) > 16 {
				ts = ts[:16]
			}
			timestamp = ts
		}
		toolsSuffix := ""
		if len(m.ToolsUsed) > 0 {
			toolsSuffix = fmt.Sprintf(" [tools: %s]", strings.Join(m.ToolsUsed, ", "))
		}
		lines = append(lines, fmt.Sprintf("[%s] %s%s: %s", timestamp, strings.ToUpper(m.Role), toolsSuffix, content))
	}

	if len(lines) == 0 {
		sess.Truncate(keepCount)
		return l.sessions.Save(sess)
	}

	currentMemory := memStore.ReadLongTerm()
	memoryForPrompt := strings.TrimSpace(currentMemory)
	if memoryForPrompt == "" {
		memoryForPrompt = "(empty)"
	}
	now := time.Now().Format("2006-01-02 15:04")
	prompt := fmt.Sprintf(
		"You are a memory consolidation agent. Process this conversation and return a JSON object with exactly two keys:\n\n"+
			"1. \"history_entry\": A paragraph (2-5 sentences) summarizing the key events/decisions/topics. Start with a timestamp like [%s]. Include enough detail to be useful when found by grep search later.\n\n"+
			"2. \"memory_update\": The updated long-term memory content. Add any new facts: user preferences, personal info, habits, project context, technical decisions, tools/services used. If nothing new, return the existing content unchanged.\n\n"+
			"## Current Long-term Memory\n%s\n\n"+
			"## Conversation to Process\n%s\n\n"+
			"Respond with ONLY valid JSON, no markdown fences.",
		now, memoryForPrompt, strings.Join(lines, "\n"))

	response, err := l.provider.Chat(ctx, &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "system", Content: "You are a memory consolidation agent. Respond only with valid JSON."},
			{Role: "user", Content: prompt},
		},
		Model:       l.model,
		MaxTokens:   1200,
		Temperature: 0.0,
	})
	if err != nil {
		return err
	}

	parsed, ok := extractJSONObject(response.Content)
	if !ok {
		return fmt.Errorf("memory consolidation returned non-JSON content")
	}

	if entry, ok := parsed["history_entry"].(string); ok && strings.TrimSpace(entry) != "" {
		if err := memStore.AppendHistory(entry); err != nil {
			slog.Warn("append memory history failed", "error", err)
		}
	}
	if update, ok := parsed["memory_update"].(string); ok && strings.TrimSpace(update) != strings.TrimSpace(currentMemory) {
		if err := memStore.WriteLongTerm(update); err != nil {
			slog.Warn("write long-term memory failed", "error", err)
		}
	}

	sess.Truncate(keepCount)
	return l.sessions.Save(sess)
}
