package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// --- Schema Tests ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.Equal(t, 0.2, *cfg.LLM.Temperature)
	assert.Equal(t, "context", cfg.ContextDir)
	assert.Equal(t, "tests", cfg.TestsDir)
	assert.Equal(t, 5005, cfg.Server.Port)
	assert.Equal(t, DefaultReleaseURL, cfg.Update.URL)
	assert.Empty(t, cfg.Sources)
}

func TestConfig_SnakeCaseYAML(t *testing.T) {
	doc := `
project_name: sales
llm:
  model: deepseek/deepseek-chat
  max_tokens: 2048
sources:
  - name: dbt
    type: local
    path: ../dbt/models
    include: ["*.sql", "*.yml"]
  - name: glossary
    type: http
    url: https://example.com/glossary.md
context_dir: ctx
redis:
  url: redis://localhost:6379
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))

	assert.Equal(t, "sales", cfg.ProjectName)
	assert.Equal(t, "deepseek/deepseek-chat", cfg.LLM.Model)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, []string{"*.sql", "*.yml"}, cfg.Sources[0].Include)
	assert.Equal(t, SourceHTTP, cfg.Sources[1].Type)
	assert.Equal(t, "ctx", cfg.ContextDir)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
}

// --- Loader Tests ---

func TestLoad_FileNotExist(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := "llm:\n  model: gpt-4o\n  max_tokens: 1024\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)
	// Defaults should be preserved for unset fields
	require.NotNil(t, cfg.LLM.Temperature)
	assert.Equal(t, 0.2, *cfg.LLM.Temperature)
	assert.Equal(t, "context", cfg.ContextDir)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unterminated"), 0644))

	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSave_And_Load_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", FileName)

	cfg := DefaultConfig()
	cfg.ProjectName = "finance"
	cfg.Sources = []SourceConfig{{Name: "docs", Type: SourceLocal, Path: "docs"}}

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSave_And_Load_ZeroTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	cfg := DefaultConfig()
	cfg.LLM.Temperature = Float(0)
	require.NoError(t, Save(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "temperature: 0")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded.LLM.Temperature)
	assert.Equal(t, 0.0, *loaded.LLM.Temperature)

	// An absent key keeps the default.
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: gpt-4o\n"), 0644))
	loaded, err = Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded.LLM.Temperature)
	assert.Equal(t, 0.2, *loaded.LLM.Temperature)
}

// --- Discovery ---

func TestFindProjectRoot_WalksUp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Save(DefaultConfig(), filepath.Join(root, FileName)))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	found, err := FindProjectRoot(nested)
	require.NoError(t, err)

	want, _ := filepath.EvalSymlinks(root)
	got, _ := filepath.EvalSymlinks(found)
	assert.Equal(t, want, got)
}

func TestFindProjectRoot_None(t *testing.T) {
	_, err := FindProjectRoot(t.TempDir())
	assert.ErrorIs(t, err, ErrNoProject)
}

func TestLoadProject_Paths(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.TestsDir = "/abs/tests"
	require.NoError(t, Save(cfg, filepath.Join(root, FileName)))

	p, err := LoadProject(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.Root, "context"), p.ContextPath())
	assert.Equal(t, "/abs/tests", p.TestsPath())
	assert.Equal(t, filepath.Join(p.Root, ".nao"), p.StatePath())
	assert.Equal(t, filepath.Join(p.Root, FileName), p.ConfigPath())
}

func TestLoadProject_InvalidSources(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Sources = []SourceConfig{{Name: "x", Type: "ftp"}}
	require.NoError(t, Save(cfg, filepath.Join(root, FileName)))

	_, err := LoadProject(root)
	assert.ErrorContains(t, err, "unknown type")
}

// --- Env ---

func TestApplyEnv(t *testing.T) {
	t.Setenv("NAO_LLM_MODEL", "gpt-4.1")
	t.Setenv("NAO_LLM_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("NAO_REDIS_URL", "redis://cache:6379")
	t.Setenv("NAO_SERVER_TOKEN", "s3cret")

	cfg := ApplyEnv(DefaultConfig())
	assert.Equal(t, "s3cret", cfg.Server.Token)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "redis://cache:6379", cfg.Redis.URL)
}

func TestLoadEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("NAO_TEST_A=from-file\nNAO_TEST_B=from-file\n"), 0644))
	t.Setenv("NAO_TEST_A", "from-env")
	t.Setenv("NAO_TEST_B", "")
	os.Unsetenv("NAO_TEST_B")

	LoadEnv(path, filepath.Join(dir, "missing.env"))
	assert.Equal(t, "from-env", os.Getenv("NAO_TEST_A"))
	assert.Equal(t, "from-file", os.Getenv("NAO_TEST_B"))
}

// --- Validation ---

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Sources = []SourceConfig{
		{Name: "a", Type: SourceLocal, Path: "x"},
		{Name: "a", Type: SourceHTTP, URL: "http://x"},
		{Name: "", Type: SourceLocal},
		{Name: "b", Type: SourceHTTP},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate name")
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "url is required")
}

func TestValidate_SourceNameStaysInContextDir(t *testing.T) {
	for _, name := range []string{"..", ".", "../x", "a/b", `a\b`, "/etc"} {
		cfg := DefaultConfig()
		cfg.Sources = []SourceConfig{{Name: name, Type: SourceLocal, Path: "docs"}}
		err := cfg.Validate()
		if assert.Error(t, err, name) {
			assert.Contains(t, err.Error(), "single path element", name)
		}
	}

	cfg := DefaultConfig()
	cfg.Sources = []SourceConfig{{Name: "dbt-docs", Type: SourceLocal, Path: "docs"}, {Name: "wiki.v2", Type: SourceHTTP, URL: "http://x"}}
	assert.NoError(t, cfg.Validate())
}
