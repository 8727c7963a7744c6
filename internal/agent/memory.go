// Package agent implements the nao chat agent: project memory, context
// assembly, history trimming and the ask loop.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MemoryStore provides two-layer project memory: MEMORY.md (curated notes
// injected into every prompt) and HISTORY.md (append-only question log).
type MemoryStore struct {
	MemoryDir   string
	MemoryFile  string
	HistoryFile string
}

// NewMemoryStore creates a MemoryStore rooted at projectRoot/memory.
func NewMemoryStore(projectRoot string) *MemoryStore {
	dir := filepath.Join(projectRoot, "memory")
	return &MemoryStore{
		MemoryDir:   dir,
		MemoryFile:  filepath.Join(dir, "MEMORY.md"),
		HistoryFile: filepath.Join(dir, "HISTORY.md"),
	}
}

// ReadLongTerm reads MEMORY.md.
func (m *MemoryStore) ReadLongTerm() string {
	data, err := os.ReadFile(m.MemoryFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// WriteLongTerm writes MEMORY.md.
func (m *MemoryStore) WriteLongTerm(content string) error {
	if err := os.MkdirAll(m.MemoryDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.MemoryFile, []byte(content), 0o644)
}

// AppendHistory appends an entry to HISTORY.md.
func (m *MemoryStore) AppendHistory(entry string) error {
	if err := os.MkdirAll(m.MemoryDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(m.HistoryFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(strings.TrimRight(entry, "\n") + "\n\n")
	return err
}

// RecordExchange logs one question/answer pair to HISTORY.md.
func (m *MemoryStore) RecordExchange(sessionKey, question, answer string, at time.Time) error {
	entry := fmt.Sprintf("[%s] (%s)\nQ: %s\nA: %s", at.Format(time.RFC3339), sessionKey,
		strings.TrimSpace(question), firstLine(answer))
	return m.AppendHistory(entry)
}

// GetMemoryContext returns formatted memory for inclusion in prompts.
func (m *MemoryStore) GetMemoryContext() string {
	if lt := m.ReadLongTerm(); lt != "" {
		return fmt.Sprintf("## Long-term Memory\n%s", lt)
	}
	return ""
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
