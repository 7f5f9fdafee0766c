// Package skills discovers and loads agent skills. A skill is a directory
// containing a SKILL.md file with optional YAML-style frontmatter; workspace
// skills shadow builtin skills with the same name.
package skills

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// SkillInfo describes a discovered skill.
type SkillInfo struct {
	Name   string
	Path   string
	Source string // "workspace" or "builtin"
}

// Loader discovers skills in the workspace and builtin directories.
type Loader struct {
	workspaceSkills string
	builtinSkills   string
}

// NewLoader creates a skills loader. builtinDir may be empty when no builtin
// skills are shipped.
func NewLoader(workspace, builtinDir string) *Loader {
	return &Loader{
		workspaceSkills: filepath.Join(workspace, "skills"),
		builtinSkills:   builtinDir,
	}
}

// ListSkills returns all discovered skills. Workspace skills take precedence
// over builtin skills of the same name. When filterUnavailable is true,
// skills whose requirements are not met are dropped.
func (l *Loader) ListSkills(filterUnavailable bool) []SkillInfo {
	var skills []SkillInfo
	seen := make(map[string]bool)

	l.collectFromDir(l.workspaceSkills, "workspace", seen, &skills)
	l.collectFromDir(l.builtinSkills, "builtin", seen, &skills)

	if !filterUnavailable {
		return skills
	}

	filtered := skills[:0]
	for _, s := range skills {
		meta := l.SkillMetadata(s.Name)
		if l.checkRequirements(parseSkillMetadata(meta["metadata"])) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

func (l *Loader) collectFromDir(dir, source string, seen map[string]bool, out *[]SkillInfo) {
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if seen[name] {
			continue
		}
		skillFile := filepath.Join(dir, name, "SKILL.md")
		if _, err := os.Stat(skillFile); err != nil {
			continue
		}
		seen[name] = true
		*out = append(*out, SkillInfo{Name: name, Path: skillFile, Source: source})
	}
}

// LoadSkill returns the raw SKILL.md content for a skill, or "" when the
// skill does not exist.
func (l *Loader) LoadSkill(name string) string {
	for _, dir := range []string{l.workspaceSkills, l.builtinSkills} {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, name, "SKILL.md")
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data)
		}
	}
	return ""
}

// LoadSkillsForContext loads the named skills, strips their frontmatter, and
// joins them into a single prompt section.
func (l *Loader) LoadSkillsForContext(skillNames []string) string {
	var parts []string
	for _, name := range skillNames {
		content := l.LoadSkill(name)
		if content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("### Skill: %s\n\n%s", name, stripFrontmatter(content)))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// BuildSummary renders an XML-style catalog of all skills, marking each as
// available or not so the model knows what it can request.
func (l *Loader) BuildSummary() string {
	skills := l.ListSkills(false)
	if len(skills) == 0 {
		return ""
	}

	lines := []string{"<skills>"}
	for _, s := range skills {
		meta := l.SkillMetadata(s.Name)
		desc := meta["description"]
		if desc == "" {
			desc = s.Name
		}
		skillMeta := parseSkillMetadata(meta["metadata"])
		available := l.checkRequirements(skillMeta)

		lines = append(lines, fmt.Sprintf("  <skill available=%q>", boolString(available)))
		lines = append(lines, fmt.Sprintf("    <name>%s</name>", escapeXML(s.Name)))
		lines = append(lines, fmt.Sprintf("    <description>%s</description>", escapeXML(desc)))
		lines = append(lines, fmt.Sprintf("    <location>%s</location>", escapeXML(s.Path)))
		if !available {
			if missing := l.missingRequirements(skillMeta); missing != "" {
				lines = append(lines, fmt.Sprintf("    <requires>%s</requires>", escapeXML(missing)))
			}
		}
		lines = append(lines, "  </skill>")
	}
	lines = append(lines, "</skills>")
	return strings.Join(lines, "\n")
}

// AlwaysSkills returns the names of available skills marked always-load.
func (l *Loader) AlwaysSkills() []string {
	var out []string
	for _, s := range l.ListSkills(true) {
		meta := l.SkillMetadata(s.Name)
		parsed := parseSkillMetadata(meta["metadata"])
		always := strings.EqualFold(meta["always"], "true")
		if !always {
			if v, ok := parsed["always"].(bool); ok {
				always = v
			}
		}
		if always {
			out = append(out, s.Name)
		}
	}
	return out
}

// SkillMetadata parses the frontmatter of a skill into a flat string map.
// Returns an empty map when the skill or frontmatter is missing.
func (l *Loader) SkillMetadata(name string) map[string]string {
	content := l.LoadSkill(name)
	if content == "" {
		return map[string]string{}
	}
	return parseFrontmatter(content)
}

func (l *Loader) checkRequirements(meta map[string]any) bool {
	requires, ok := meta["requires"].(map[string]any)
	if !ok {
		return true
	}
	if bins, ok := requires["bins"].([]any); ok {
		for _, b := range bins {
			bin, ok := b.(string)
			if !ok {
				continue
			}
			if _, err := exec.LookPath(bin); err != nil {
				return false
			}
		}
	}
	if envVars, ok := requires["env"].([]any); ok {
		for _, e := range envVars {
			key, ok := e.(string)
			if !ok {
				continue
			}
			if os.Getenv(key) == "" {
				return false
			}
		}
	}
	return true
}

func (l *Loader) missingRequirements(meta map[string]any) string {
	requires, ok := meta["requires"].(map[string]any)
	if !ok {
		return ""
	}
	var missing []string
	if bins, ok := requires["bins"].([]any); ok {
		for _, b := range bins {
			bin, ok := b.(string)
			if !ok {
				continue
			}
			if _, err := exec.LookPath(bin); err != nil {
				missing = append(missing, "CLI: "+bin)
			}
		}
	}
	if envVars, ok := requires["env"].([]any); ok {
		for _, e := range envVars {
			key, ok := e.(string)
			if !ok {
				continue
			}
			if os.Getenv(key) == "" {
				missing = append(missing, "ENV: "+key)
			}
		}
	}
	return strings.Join(missing, ", ")
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// parseFrontmatter extracts "key: value" pairs from a leading --- block.
func parseFrontmatter(content string) map[string]string {
	out := map[string]string{}
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return out
	}
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "---" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		v := strings.TrimSpace(value)
		v = strings.Trim(v, `"`)
		v = strings.Trim(v, `'`)
		out[strings.TrimSpace(key)] = v
	}
	return out
}

// stripFrontmatter removes the leading --- block from skill content.
func stripFrontmatter(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return content
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		}
	}
	return content
}

// parseSkillMetadata parses the JSON "metadata" frontmatter value. A top-level
// "goclaw" object takes precedence when present.
func parseSkillMetadata(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return map[string]any{}
	}
	if inner, ok := v["goclaw"].(map[string]any); ok {
		return inner
	}
	return v
}
