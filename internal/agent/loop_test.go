package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/provider"
	"github.com/goclaw/goclaw/internal/session"
	"github.com/goclaw/goclaw/internal/tools"
)

// mockProvider returns scripted responses in order and records requests.
type mockProvider struct {
	mu        sync.Mutex
	responses []*provider.ChatResponse
	requests  []*provider.ChatRequest
	err       error
}

func (m *mockProvider) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &provider.ChatResponse{Content: "(exhausted)", FinishReason: "stop"}, nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *mockProvider) Transcribe(ctx context.Context, req *provider.AudioRequest) (*provider.AudioResponse, error) {
	return &provider.AudioResponse{Text: ""}, nil
}

func (m *mockProvider) DefaultModel() string { return "mock-model" }

func (m *mockProvider) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockProvider) request(i int) *provider.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func newTestLoop(t *testing.T, p provider.LLMProvider) (*Loop, *bus.MessageBus) {
	t.Helper()
	b := bus.NewMessageBus()
	loop, err := NewLoop(LoopOptions{
		Bus:           b,
		Provider:      p,
		Workspace:     t.TempDir(),
		MaxIterations: 5,
		MemoryWindow:  50,
		ExecTimeout:   5 * time.Second,
		DataDir:       t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return loop, b
}

func TestWebSearchResultCountConfigurable(t *testing.T) {
	loop, err := NewLoop(LoopOptions{
		Bus:              bus.NewMessageBus(),
		Provider:         &mockProvider{},
		Workspace:        t.TempDir(),
		SearchMaxResults: 3,
		DataDir:          t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	tool, ok := loop.tools.Get("web_search")
	if !ok {
		t.Fatal("web_search tool not registered")
	}
	if got := tool.(*tools.WebSearchTool).DefaultResults(); got != 3 {
		t.Errorf("expected 3 default results, got %d", got)
	}

	dflt, _ := newTestLoop(t, &mockProvider{})
	tool, _ = dflt.tools.Get("web_search")
	if got := tool.(*tools.WebSearchTool).DefaultResults(); got != 5 {
		t.Errorf("expected fallback of 5 default results, got %d", got)
	}
}

func TestProcessDirectSimpleAnswer(t *testing.T) {
	p := &mockProvider{responses: []*provider.ChatResponse{
		{Content: "4", FinishReason: "stop"},
	}}
	loop, _ := newTestLoop(t, p)

	answer, err := loop.ProcessDirect(context.Background(), "What's 2+2?", "cli:direct")
	if err != nil {
		t.Fatalf("ProcessDirect error: %v", err)
	}
	if answer != "4" {
		t.Errorf("expected answer '4', got %q", answer)
	}

	sess := loop.sessions.GetOrCreate("cli:direct")
	if sess.MessageCount() != 2 {
		t.Errorf("expected exactly 2 session messages, got %d", sess.MessageCount())
	}
	msgs := sess.AllMessages()
	if msgs[0].Role != "user" || msgs[0].Content != "What's 2+2?" {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "4" {
		t.Errorf("unexpected second message: %+v", msgs[1])
	}
}

func TestProcessDirectToolCallIteration(t *testing.T) {
	p := &mockProvider{responses: []*provider.ChatResponse{
		{
			ToolCalls: []provider.ToolCall{
				{ID: "call_1", Name: "list_dir", Arguments: map[string]any{"path": "."}},
			},
			FinishReason: "tool_calls",
		},
		{Content: "The directory is empty.", FinishReason: "stop"},
	}}
	loop, _ := newTestLoop(t, p)

	answer, err := loop.ProcessDirect(context.Background(), "List the files", "cli:direct")
	if err != nil {
		t.Fatalf("ProcessDirect error: %v", err)
	}
	if answer != "The directory is empty." {
		t.Errorf("unexpected answer: %q", answer)
	}
	if p.requestCount() != 2 {
		t.Fatalf("expected 2 provider calls, got %d", p.requestCount())
	}

	// Second request must carry the assistant tool call, the tool result,
	// and the reflect nudge.
	second := p.request(1)
	var sawToolResult, sawReflect bool
	for _, m := range second.Messages {
		if m.Role == "tool" && m.ToolCallID == "call_1" {
			sawToolResult = true
		}
		if m.Role == "user" && m.TextContent() == "Reflect on the results and decide next steps." {
			sawReflect = true
		}
	}
	if !sawToolResult {
		t.Error("expected tool result in second request")
	}
	if !sawReflect {
		t.Error("expected reflect nudge in second request")
	}

	sess := loop.sessions.GetOrCreate("cli:direct")
	msgs := sess.AllMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 session messages, got %d", len(msgs))
	}
	if len(msgs[1].ToolsUsed) != 1 || msgs[1].ToolsUsed[0] != "list_dir" {
		t.Errorf("expected tools used recorded, got %v", msgs[1].ToolsUsed)
	}
}

func TestProcessDirectExhaustedIterations(t *testing.T) {
	// Every response carries a tool call, so the iteration budget runs out.
	var responses []*provider.ChatResponse
	for i := 0; i < 10; i++ {
		responses = append(responses, &provider.ChatResponse{
			ToolCalls: []provider.ToolCall{
				{ID: "call_x", Name: "list_dir", Arguments: map[string]any{"path": "."}},
			},
		})
	}
	p := &mockProvider{responses: responses}
	loop, _ := newTestLoop(t, p)

	answer, err := loop.ProcessDirect(context.Background(), "loop forever", "cli:direct")
	if err != nil {
		t.Fatalf("ProcessDirect error: %v", err)
	}
	if answer != "I've completed processing but have no response to give." {
		t.Errorf("expected exhaustion fallback, got %q", answer)
	}
	if p.requestCount() != 5 {
		t.Errorf("expected exactly 5 provider calls (max iterations), got %d", p.requestCount())
	}
}

func TestTurnGuardRetryThenTerminal(t *testing.T) {
	p := &mockProvider{responses: []*provider.ChatResponse{
		{Content: "I'm sorry, but I don't have access to tools to do that.", FinishReason: "stop"},
		{Content: "As I said, there are no tools available to me.", FinishReason: "stop"},
	}}
	loop, _ := newTestLoop(t, p)

	answer, err := loop.ProcessDirect(context.Background(), "Fetch example.com", "cli:direct")
	if err != nil {
		t.Fatalf("ProcessDirect error: %v", err)
	}
	if p.requestCount() != 2 {
		t.Fatalf("expected exactly one retry (2 calls), got %d", p.requestCount())
	}
	if !strings.Contains(answer, "I do have tools available") {
		t.Errorf("expected terminal tools-available response, got %q", answer)
	}

	// The retry must carry a correction and a fresh context.
	retry := p.request(1)
	last := retry.Messages[len(retry.Messages)-1]
	if last.Role != "system" || !strings.Contains(last.TextContent(), "Correction") {
		t.Errorf("expected correction message at end of retry, got %+v", last)
	}
}

func TestTurnGuardRetrySucceeds(t *testing.T) {
	p := &mockProvider{responses: []*provider.ChatResponse{
		{Content: "I don't have any tools for that.", FinishReason: "stop"},
		{Content: "Done, I fetched the page.", FinishReason: "stop"},
	}}
	loop, _ := newTestLoop(t, p)

	answer, err := loop.ProcessDirect(context.Background(), "Fetch example.com", "cli:direct")
	if err != nil {
		t.Fatalf("ProcessDirect error: %v", err)
	}
	if answer != "Done, I fetched the page." {
		t.Errorf("expected recovered answer, got %q", answer)
	}
}

func TestRunPublishesApologyOnProviderError(t *testing.T) {
	p := &mockProvider{err: context.DeadlineExceeded}
	loop, b := newTestLoop(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	msg := bus.NewInboundMessage("telegram", "42", "42", "hello")
	if err := b.PublishInbound(ctx, msg); err != nil {
		t.Fatal(err)
	}

	outCtx, outCancel := context.WithTimeout(ctx, 5*time.Second)
	defer outCancel()
	out, err := b.ConsumeOutbound(outCtx)
	if err != nil {
		t.Fatalf("ConsumeOutbound error: %v", err)
	}
	if out.Channel != "telegram" || out.ChatID != "42" {
		t.Errorf("unexpected destination: %s:%s", out.Channel, out.ChatID)
	}
	if !strings.HasPrefix(out.Content, "Sorry, I encountered an error:") {
		t.Errorf("expected apology, got %q", out.Content)
	}

	loop.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestEndToEndTelegramTurn(t *testing.T) {
	p := &mockProvider{responses: []*provider.ChatResponse{
		{Content: "4", FinishReason: "stop"},
	}}
	loop, b := newTestLoop(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	defer loop.Stop()

	msg := bus.NewInboundMessage("telegram", "99", "99", "What's 2+2?")
	if err := b.PublishInbound(ctx, msg); err != nil {
		t.Fatal(err)
	}

	outCtx, outCancel := context.WithTimeout(ctx, 5*time.Second)
	defer outCancel()
	out, err := b.ConsumeOutbound(outCtx)
	if err != nil {
		t.Fatalf("ConsumeOutbound error: %v", err)
	}
	if out.Content != "4" {
		t.Errorf("expected '4', got %q", out.Content)
	}

	sess := loop.sessions.GetOrCreate("telegram:99")
	if sess.MessageCount() != 2 {
		t.Errorf("expected exactly 2 session messages, got %d", sess.MessageCount())
	}
}

func TestSystemMessageRoutesToOrigin(t *testing.T) {
	p := &mockProvider{responses: []*provider.ChatResponse{
		{Content: "The background task finished fine.", FinishReason: "stop"},
	}}
	loop, _ := newTestLoop(t, p)

	msg := bus.NewInboundMessage("system", "cron", "telegram:123", "Job done: backup")
	out, err := loop.processMessage(context.Background(), msg, "")
	if err != nil {
		t.Fatalf("processMessage error: %v", err)
	}
	if out.Channel != "telegram" || out.ChatID != "123" {
		t.Errorf("expected destination telegram:123, got %s:%s", out.Channel, out.ChatID)
	}

	sess := loop.sessions.GetOrCreate("telegram:123")
	msgs := sess.AllMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 session messages, got %d", len(msgs))
	}
	if msgs[0].Content != "[System: cron] Job done: backup" {
		t.Errorf("unexpected system-turn user record: %q", msgs[0].Content)
	}
}

func TestSystemMessageMalformedChatID(t *testing.T) {
	p := &mockProvider{responses: []*provider.ChatResponse{
		{Content: "ok", FinishReason: "stop"},
	}}
	loop, _ := newTestLoop(t, p)

	msg := bus.NewInboundMessage("system", "cron", "lonelyid", "ping")
	out, err := loop.processMessage(context.Background(), msg, "")
	if err != nil {
		t.Fatalf("processMessage error: %v", err)
	}
	if out.Channel != "cli" || out.ChatID != "lonelyid" {
		t.Errorf("expected cli:lonelyid fallback, got %s:%s", out.Channel, out.ChatID)
	}
}

func TestRuntimeFactsMessagePosition(t *testing.T) {
	p := &mockProvider{responses: []*provider.ChatResponse{
		{Content: "hi", FinishReason: "stop"},
	}}
	loop, _ := newTestLoop(t, p)

	if _, err := loop.ProcessDirect(context.Background(), "hello", "cli:direct"); err != nil {
		t.Fatal(err)
	}

	req := p.request(0)
	if len(req.Messages) < 3 {
		t.Fatalf("expected at least 3 messages, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != "system" {
		t.Errorf("expected system prompt first, got role %q", req.Messages[0].Role)
	}
	facts := req.Messages[1]
	if facts.Role != "system" || !strings.Contains(facts.TextContent(), "Runtime facts (authoritative)") {
		t.Errorf("expected runtime facts at index 1, got %+v", facts)
	}
	if !strings.Contains(facts.TextContent(), "mock-model") {
		t.Errorf("expected model name in runtime facts, got %q", facts.TextContent())
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != "user" || last.TextContent() != "hello" {
		t.Errorf("expected user message last, got %+v", last)
	}
}

func TestHistoryReplaysOnlyUserMessages(t *testing.T) {
	p := &mockProvider{responses: []*provider.ChatResponse{
		{Content: "first answer", FinishReason: "stop"},
		{Content: "second answer", FinishReason: "stop"},
	}}
	b := bus.NewMessageBus()
	loop, err := NewLoop(LoopOptions{
		Bus:           b,
		Provider:      p,
		Workspace:     t.TempDir(),
		MaxIterations: 5,
		MemoryWindow:  50,
		HistoryWindow: -1,
		ExecTimeout:   5 * time.Second,
		DataDir:       t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := loop.ProcessDirect(context.Background(), "first question", "cli:direct"); err != nil {
		t.Fatal(err)
	}
	if _, err := loop.ProcessDirect(context.Background(), "second question", "cli:direct"); err != nil {
		t.Fatal(err)
	}

	second := p.request(1)
	for _, m := range second.Messages {
		if m.Role == "assistant" {
			t.Errorf("assistant message replayed into later turn: %q", m.TextContent())
		}
	}
	var sawFirst bool
	for _, m := range second.Messages {
		if m.Role == "user" && m.TextContent() == "first question" {
			sawFirst = true
		}
	}
	if !sawFirst {
		t.Error("expected prior user message in history")
	}
}

func TestConsolidateMemoryTruncatesSession(t *testing.T) {
	workspace := t.TempDir()
	p := &mockProvider{responses: []*provider.ChatResponse{
		{Content: `{"history_entry": "[2026-01-01 10:00] Talked about birds.", "memory_update": "User likes birds."}`},
	}}
	b := bus.NewMessageBus()
	loop, err := NewLoop(LoopOptions{
		Bus:           b,
		Provider:      p,
		Workspace:     workspace,
		MaxIterations: 5,
		MemoryWindow:  6,
		ExecTimeout:   5 * time.Second,
		DataDir:       t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}

	sess := loop.sessions.GetOrCreate("cli:direct")
	for i := 0; i < 5; i++ {
		sess.AddMessage("user", "question about birds")
		sess.AddMessage("assistant", "answer about birds")
	}

	if err := loop.consolidateMemory(context.Background(), sess); err != nil {
		t.Fatalf("consolidateMemory error: %v", err)
	}

	keep := min(10, max(2, 6/2))
	if sess.MessageCount() != keep {
		t.Errorf("expected session truncated to %d messages, got %d", keep, sess.MessageCount())
	}

	store := loop.context.memory
	if !strings.Contains(store.ReadLongTerm(), "User likes birds.") {
		t.Errorf("expected long-term memory updated, got %q", store.ReadLongTerm())
	}
}

func TestExtractJSONObject(t *testing.T) {
	obj, ok := extractJSONObject(`{"a": 1}`)
	if !ok || obj["a"].(float64) != 1 {
		t.Errorf("plain JSON object not parsed: %v %v", obj, ok)
	}

	fenced := "```json\n{\"history_entry\": \"x\"}\n```"
	obj, ok = extractJSONObject(fenced)
	if !ok || obj["history_entry"] != "x" {
		t.Errorf("fenced JSON object not parsed: %v %v", obj, ok)
	}

	if _, ok := extractJSONObject("not json at all"); ok {
		t.Error("expected failure for non-JSON text")
	}
	if _, ok := extractJSONObject(`[1, 2]`); ok {
		t.Error("expected failure for non-object JSON")
	}
}

func TestSessionHistoryWindow(t *testing.T) {
	sess := session.NewSession("cli:direct")
	sess.AddMessage("user", "one")
	sess.AddMessage("assistant", "a1")
	sess.AddMessage("user", "two")
	sess.AddMessage("user", "three")

	history := sessionHistory(sess, 2)
	if len(history) != 2 {
		t.Fatalf("expected 2 history messages, got %d", len(history))
	}
	if history[0].TextContent() != "two" || history[1].TextContent() != "three" {
		t.Errorf("unexpected history order: %v", history)
	}

	if got := sessionHistory(sess, 0); len(got) != 0 {
		t.Errorf("expected empty history for zero window, got %d", len(got))
	}
}
