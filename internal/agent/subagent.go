package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/provider"
	"github.com/goclaw/goclaw/internal/tools"
)

const subagentMaxIterations = 15

// SubagentManager runs reduced-capability background agents. Subagents get a
// tool subset without message or spawn, so they can't contact users or
// recurse.
type SubagentManager struct {
	provider            provider.LLMProvider
	workspace           string
	bus                 *bus.MessageBus
	model               string
	braveAPIKey         string
	searchMaxResults    int
	execTimeout         time.Duration
	restrictToWorkspace bool

	mu      sync.Mutex
	running map[string]struct{}
}

// NewSubagentManager creates a subagent manager sharing the parent's provider
// and bus.
func NewSubagentManager(p provider.LLMProvider, workspace string, b *bus.MessageBus, model, braveAPIKey string, searchMaxResults int, execTimeout time.Duration, restrictToWorkspace bool) *SubagentManager {
	return &SubagentManager{
		provider:            p,
		workspace:           workspace,
		bus:                 b,
		model:               model,
		braveAPIKey:         braveAPIKey,
		searchMaxResults:    searchMaxResults,
		execTimeout:         execTimeout,
		restrictToWorkspace: restrictToWorkspace,
		running:             make(map[string]struct{}),
	}
}

// Spawn launches a background task and returns an acknowledgement
// immediately. On completion, exactly one system-channel inbound message is
// published back to the bus, addressed to the origin conversation.
func (m *SubagentManager) Spawn(ctx context.Context, task, label, originChannel, originChatID string) string {
	taskID := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	displayLabel := label
	if displayLabel == "" {
		displayLabel = task
		if len(displayLabel) > 30 {
			displayLabel = displayLabel[:30] + "..."
		}
	}

	m.mu.Lock()
	m.running[taskID] = struct{}{}
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.running, taskID)
			m.mu.Unlock()
		}()

		result, err := m.runSubagent(context.Background(), task)
		statusText := "completed successfully"
		content := result
		if err != nil {
			statusText = "failed"
			content = fmt.Sprintf("Error: %v", err)
		}

		announce := fmt.Sprintf(
			"[Subagent '%s' %s]\n\nTask: %s\n\nResult:\n%s\n\nSummarize this naturally for the user. Keep it brief (1-2 sentences). Do not mention technical details like \"subagent\" or task IDs.",
			displayLabel, statusText, task, content)

		msg := bus.NewInboundMessage("system", "subagent", originChannel+":"+originChatID, announce)
		if err := m.bus.PublishInbound(context.Background(), msg); err != nil {
			return
		}
	}()

	return fmt.Sprintf("Subagent [%s] started (id: %s). I'll notify you when it completes.", displayLabel, taskID)
}

// RunningCount reports the number of in-flight subagent tasks.
func (m *SubagentManager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

func (m *SubagentManager) subagentTools() *tools.Registry {
	registry := tools.NewRegistry()
	workspaceRestriction := ""
	if m.restrictToWorkspace {
		workspaceRestriction = m.workspace
	}
	registry.Register(tools.NewReadFileTool())
	registry.Register(tools.NewWriteFileTool(workspaceRestriction))
	registry.Register(tools.NewListDirTool())
	registry.Register(tools.NewExecTool(m.execTimeout, m.restrictToWorkspace, m.workspace))
	registry.Register(tools.NewWebSearchTool(m.braveAPIKey, m.searchMaxResults))
	registry.Register(tools.NewWebFetchTool(50_000))
	return registry
}

func (m *SubagentManager) runSubagent(ctx context.Context, task string) (string, error) {
	registry := m.subagentTools()

	systemPrompt := fmt.Sprintf(`# Subagent

You are a subagent spawned by the main agent to complete a specific task.

## Your Task
%s

## Rules
1. Stay focused - complete only the assigned task, nothing else
2. Your final response will be reported back to the main agent
3. Do not initiate conversations or take on side tasks
4. Be concise but informative in your findings

## What You Can Do
- Read and write files in the workspace
- Execute shell commands
- Search the web and fetch web pages

## What You Cannot Do
- Send messages directly to users
- Spawn other subagents

## Workspace
%s
`, task, m.workspace)

	messages := []provider.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: task},
	}

	var defs []provider.ToolDefinition
	for _, tool := range registry.List() {
		defs = append(defs, provider.ToolDefinition{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}

	finalResult := ""
	for i := 0; i < subagentMaxIterations; i++ {
		response, err := m.provider.Chat(ctx, &provider.ChatRequest{
			Messages:    messages,
			Tools:       defs,
			Model:       m.model,
			MaxTokens:   4096,
			Temperature: 0.7,
		})
		if err != nil {
			return "", err
		}

		if len(response.ToolCalls) == 0 {
			finalResult = response.Content
			break
		}

		messages = append(messages, provider.Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})
		for _, tc := range response.ToolCalls {
			result := registry.Execute(ctx, tc.Name, tc.Arguments)
			messages = append(messages, provider.Message{
				Role:       "tool",
				ToolCallID: tc.ID,
				Name:       tc.Name,
				Content:    result,
			})
		}
	}

	if finalResult == "" {
		finalResult = "Task completed but no final response was generated."
	}
	return finalResult, nil
}
