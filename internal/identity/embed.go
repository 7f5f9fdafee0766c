// Package identity provides embedded workspace templates and first-run scaffolding.
package identity

import "embed"

//go:embed templates/*.md
var templateFS embed.FS

// TemplateNames is the canonical ordered list of bootstrap files loaded
// into the system prompt. agent/context.go reads this slice instead of
// maintaining its own copy.
var TemplateNames = []string{
	"AGENTS.md",
	"SOUL.md",
	"USER.md",
	"TOOLS.md",
	"IDENTITY.md",
}

// Template returns the embedded content of a template file.
func Template(name string) ([]byte, error) {
	return templateFS.ReadFile("templates/" + name)
}
