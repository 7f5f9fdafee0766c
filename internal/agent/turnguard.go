package agent

import (
	"fmt"
	"strings"

	"github.com/goclaw/goclaw/internal/provider"
)

// defaultNoToolsPatterns match assistant text that falsely claims the agent
// has no tools. Matching is case-insensitive substring.
var defaultNoToolsPatterns = []string{
	"don't have access to tools",
	"do not have access to tools",
	"don't have any tools",
	"do not have any tools",
	"no tools available",
	"no tools are available",
	"don't have the ability to",
	"do not have the ability to",
	"unable to access external",
	"cannot access external",
	"can't access external",
	"cannot browse the internet",
	"can't browse the internet",
	"cannot execute commands",
	"can't execute commands",
	"cannot run commands",
	"can't run commands",
	"as a text-based ai",
	"as an ai language model, i don't",
	"as an ai language model, i cannot",
	"i'm just a language model",
	"i am just a language model",
}

// TurnGuard detects the model failure mode where it claims no tools are
// available despite having a full registry. It is reset per inbound message:
// first occurrence triggers a fresh-context retry, a second occurrence in the
// same turn terminates with a canned response.
type TurnGuard struct {
	model     string
	toolsText string
	patterns  []string
}

// NewTurnGuard creates a guard for one turn with the default pattern set.
func NewTurnGuard(model, toolsText string) *TurnGuard {
	return &TurnGuard{model: model, toolsText: toolsText, patterns: defaultNoToolsPatterns}
}

// SetPatterns replaces the claim-detection pattern set.
func (g *TurnGuard) SetPatterns(patterns []string) {
	g.patterns = patterns
}

// ShouldRetryAfterFalseNoToolsClaim reports whether the response text is a
// false "no tools" claim worth correcting. It never matches when the response
// carried tool calls (the caller only consults the guard on text-only
// responses) or when the content is empty.
func (g *TurnGuard) ShouldRetryAfterFalseNoToolsClaim(content string) bool {
	text := strings.ToLower(strings.TrimSpace(content))
	if text == "" {
		return false
	}
	for _, pattern := range g.patterns {
		if strings.Contains(text, pattern) {
			return true
		}
	}
	return false
}

// CorrectionMessage is injected after a fresh-context rebuild to steer the
// model away from repeating the false claim.
func (g *TurnGuard) CorrectionMessage() provider.Message {
	return provider.Message{
		Role: "system",
		Content: fmt.Sprintf(
			"Correction: you DO have tools available. Active model: '%s'. Available tools: %s. Answer the user's request by calling the appropriate tool instead of claiming tools are unavailable.",
			g.model, g.toolsText),
	}
}

// ToolsAvailableResponse is the terminal answer used when the model repeats
// the false claim after one corrected retry.
func (g *TurnGuard) ToolsAvailableResponse() string {
	return fmt.Sprintf(
		"I do have tools available (%s), but I wasn't able to apply them to this request. Could you rephrase or be more specific about what you'd like me to do?",
		g.toolsText)
}
