// Package memory persists the agent's long-term memory files.
package memory

import (
	"os"
	"path/filepath"
	"strings"
)

// Store keeps MEMORY.md and the append-only HISTORY.md under the
// workspace memory directory.
type Store struct {
	MemoryDir   string
	MemoryFile  string
	HistoryFile string
}

// NewStore creates the memory directory under workspace if needed.
func NewStore(workspace string) (*Store, error) {
	memoryDir := filepath.Join(workspace, "memory")
	if err := os.MkdirAll(memoryDir, 0755); err != nil {
		return nil, err
	}
	return &Store{
		MemoryDir:   memoryDir,
		MemoryFile:  filepath.Join(memoryDir, "MEMORY.md"),
		HistoryFile: filepath.Join(memoryDir, "HISTORY.md"),
	}, nil
}

// ReadLongTerm returns the long-term memory content, empty when absent.
func (s *Store) ReadLongTerm() string {
	content, err := os.ReadFile(s.MemoryFile)
	if err != nil {
		return ""
	}
	return string(content)
}

// WriteLongTerm replaces the long-term memory content.
func (s *Store) WriteLongTerm(content string) error {
	return os.WriteFile(s.MemoryFile, []byte(content), 0644)
}

// AppendHistory appends an entry to the history log.
func (s *Store) AppendHistory(entry string) error {
	existing := ""
	if raw, err := os.ReadFile(s.HistoryFile); err == nil {
		existing = string(raw)
	}
	existing += strings.TrimRight(entry, "\n") + "\n\n"
	return os.WriteFile(s.HistoryFile, []byte(existing), 0644)
}

// GetMemoryContext renders long-term memory as a prompt section, empty
// when there is none.
func (s *Store) GetMemoryContext() string {
	longTerm := s.ReadLongTerm()
	if longTerm == "" {
		return ""
	}
	return "## Long-term Memory\n" + longTerm
}
