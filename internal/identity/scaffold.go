package identity

import (
	"fmt"
	"os"
	"path/filepath"
)

// ScaffoldResult reports which files were created, skipped, or errored.
type ScaffoldResult struct {
	Created []string
	Skipped []string
	Errors  []string
}

// ScaffoldWorkspace lays out a fresh agent workspace: the bootstrap files,
// HEARTBEAT.md, the memory directory with its seed files, and an empty
// skills directory. If force is false, existing files are skipped. If
// force is true, they are overwritten.
func ScaffoldWorkspace(path string, force bool) (*ScaffoldResult, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}

	result := &ScaffoldResult{}

	for _, name := range append(append([]string{}, TemplateNames...), "HEARTBEAT.md") {
		data, err := Template(name)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		writeScaffoldFile(result, filepath.Join(path, name), name, data, force)
	}

	memoryDir := filepath.Join(path, "memory")
	if err := os.MkdirAll(memoryDir, 0755); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("memory: %v", err))
		return result, nil
	}
	if data, err := Template("MEMORY.md"); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("memory/MEMORY.md: %v", err))
	} else {
		writeScaffoldFile(result, filepath.Join(memoryDir, "MEMORY.md"), "memory/MEMORY.md", data, force)
	}
	writeScaffoldFile(result, filepath.Join(memoryDir, "HISTORY.md"), "memory/HISTORY.md", nil, force)

	if err := os.MkdirAll(filepath.Join(path, "skills"), 0755); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("skills: %v", err))
	}

	return result, nil
}

func writeScaffoldFile(result *ScaffoldResult, dst, name string, data []byte, force bool) {
	if !force {
		if _, err := os.Stat(dst); err == nil {
			result.Skipped = append(result.Skipped, name)
			return
		}
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
		return
	}
	result.Created = append(result.Created, name)
}
