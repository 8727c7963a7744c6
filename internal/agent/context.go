package agent

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// ContextExtensions are the synced files included in the system prompt.
var ContextExtensions = map[string]bool{
	".md": true, ".txt": true, ".sql": true, ".yml": true, ".yaml": true,
	".json": true, ".csv": true,
}

// DefaultMaxContextBytes bounds the synced context injected per request.
const DefaultMaxContextBytes = 200_000

// ContextBuilder assembles the system prompt for the agent.
type ContextBuilder struct {
	ProjectName     string
	ProjectRoot     string
	ContextDir      string
	Memory          *MemoryStore
	MaxContextBytes int
	Now             func() time.Time
}

// NewContextBuilder creates a ContextBuilder for a project.
func NewContextBuilder(projectName, projectRoot, contextDir string) *ContextBuilder {
	return &ContextBuilder{
		ProjectName:     projectName,
		ProjectRoot:     projectRoot,
		ContextDir:      contextDir,
		Memory:          NewMemoryStore(projectRoot),
		MaxContextBytes: DefaultMaxContextBytes,
		Now:             time.Now,
	}
}

// BuildSystemPrompt builds the full system prompt from identity, memory and
// synced context files.
func (c *ContextBuilder) BuildSystemPrompt() string {
	var parts []string

	parts = append(parts, c.getIdentity())

	if mem := c.Memory.GetMemoryContext(); mem != "" {
		parts = append(parts, fmt.Sprintf("# Memory\n\n%s", mem))
	}

	if ctx := c.loadContextFiles(); ctx != "" {
		parts = append(parts, fmt.Sprintf("# Project Context\n\nThe following files were synced from the project's sources. Ground your answers in them and say so when they do not cover a question.\n\n%s", ctx))
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func (c *ContextBuilder) getIdentity() string {
	now := c.Now().Format("2006-01-02 15:04 (Monday)")
	name := c.ProjectName
	if name == "" {
		name = filepath.Base(c.ProjectRoot)
	}

	return fmt.Sprintf(`# nao

You are nao, an analytics assistant for the %q project. You answer questions about the project's data, metrics and definitions.

## Current Time
%s

## Runtime
%s %s

Be accurate and concise. When you are not sure, say so instead of guessing.`, name, now, runtime.GOOS, runtime.GOARCH)
}

// ContextFiles lists the context files that would be injected, relative to
// the context directory, in prompt order.
func (c *ContextBuilder) ContextFiles() []string {
	var files []string
	if c.ContextDir == "" {
		return files
	}
	filepath.WalkDir(c.ContextDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != c.ContextDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !ContextExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(c.ContextDir, path)
		if err != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(files)
	return files
}

func (c *ContextBuilder) loadContextFiles() string {
	budget := c.MaxContextBytes
	if budget <= 0 {
		budget = DefaultMaxContextBytes
	}

	var parts, skipped []string
	for _, rel := range c.ContextFiles() {
		data, err := os.ReadFile(filepath.Join(c.ContextDir, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		if len(data) > budget {
			skipped = append(skipped, rel)
			continue
		}
		budget -= len(data)
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", rel, strings.TrimSpace(string(data))))
	}
	if len(skipped) > 0 {
		parts = append(parts, fmt.Sprintf("## Omitted\n\nThese files did not fit in the context budget: %s", strings.Join(skipped, ", ")))
	}
	return strings.Join(parts, "\n\n")
}
