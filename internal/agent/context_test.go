package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) (*ContextBuilder, string) {
	t.Helper()
	root := t.TempDir()
	ctxDir := filepath.Join(root, "context")
	require.NoError(t, os.MkdirAll(ctxDir, 0o755))
	cb := NewContextBuilder("sales", root, ctxDir)
	cb.Now = func() time.Time { return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC) }
	return cb, ctxDir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestContextBuilder_BuildSystemPrompt_Basic(t *testing.T) {
	cb, _ := newTestBuilder(t)
	prompt := cb.BuildSystemPrompt()
	assert.Contains(t, prompt, "# nao")
	assert.Contains(t, prompt, `"sales" project`)
	assert.Contains(t, prompt, "2026-05-04 10:00 (Monday)")
	assert.NotContains(t, prompt, "# Project Context")
}

func TestContextBuilder_BuildSystemPrompt_WithMemory(t *testing.T) {
	cb, _ := newTestBuilder(t)
	require.NoError(t, cb.Memory.WriteLongTerm("Churn is measured monthly"))
	prompt := cb.BuildSystemPrompt()
	assert.Contains(t, prompt, "# Memory")
	assert.Contains(t, prompt, "Churn is measured monthly")
}

func TestContextBuilder_ContextFiles(t *testing.T) {
	cb, dir := newTestBuilder(t)
	writeFile(t, filepath.Join(dir, "dbt", "orders.sql"), "select * from orders")
	writeFile(t, filepath.Join(dir, "glossary.md"), "ARR: annual recurring revenue")
	writeFile(t, filepath.Join(dir, "logo.png"), "\x89PNG")
	writeFile(t, filepath.Join(dir, ".cache", "x.md"), "hidden")

	assert.Equal(t, []string{"dbt/orders.sql", "glossary.md"}, cb.ContextFiles())

	prompt := cb.BuildSystemPrompt()
	assert.Contains(t, prompt, "# Project Context")
	assert.Contains(t, prompt, "## dbt/orders.sql\n\nselect * from orders")
	assert.Contains(t, prompt, "ARR: annual recurring revenue")
	assert.NotContains(t, prompt, "hidden")
}

func TestContextBuilder_Budget(t *testing.T) {
	cb, dir := newTestBuilder(t)
	cb.MaxContextBytes = 50
	writeFile(t, filepath.Join(dir, "a.md"), "short")
	writeFile(t, filepath.Join(dir, "b.md"), strings.Repeat("x", 100))

	prompt := cb.BuildSystemPrompt()
	assert.Contains(t, prompt, "## a.md")
	assert.NotContains(t, prompt, strings.Repeat("x", 100))
	assert.Contains(t, prompt, "did not fit in the context budget: b.md")
}

func TestContextBuilder_MissingContextDir(t *testing.T) {
	cb := NewContextBuilder("", t.TempDir(), filepath.Join(t.TempDir(), "nope"))
	assert.Empty(t, cb.ContextFiles())
	assert.NotEmpty(t, cb.BuildSystemPrompt())
}
