// Package config handles the nao project configuration (nao_config.yaml),
// its defaults, discovery and environment overrides.
package config

// FileName is the project configuration file looked up by every command.
const FileName = "nao_config.yaml"

// Config is the top-level project configuration.
// Uses yaml tags in snake_case to match the config file format.
type Config struct {
	ProjectName string         `yaml:"project_name"`
	LLM         LLMConfig      `yaml:"llm"`
	Sources     []SourceConfig `yaml:"sources,omitempty"`
	ContextDir  string         `yaml:"context_dir,omitempty"`
	TestsDir    string         `yaml:"tests_dir,omitempty"`
	Redis       RedisConfig    `yaml:"redis,omitempty"`
	Server      ServerConfig   `yaml:"server,omitempty"`
	Update      UpdateConfig   `yaml:"update,omitempty"`
}

// LLMConfig selects the chat model.
type LLMConfig struct {
	Provider    string   `yaml:"provider,omitempty"`
	Model       string   `yaml:"model,omitempty"`
	APIKey      string   `yaml:"api_key,omitempty"` // prefer the provider's env var
	BaseURL     string   `yaml:"base_url,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"` // nil: provider default
}

// Source types understood by `nao sync`.
const (
	SourceLocal = "local"
	SourceHTTP  = "http"
)

// SourceConfig is one entry synced into the context directory.
type SourceConfig struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Path    string   `yaml:"path,omitempty"`
	URL     string   `yaml:"url,omitempty"`
	Include []string `yaml:"include,omitempty"` // base-name globs, empty = everything
}

// RedisConfig enables the optional session cache.
type RedisConfig struct {
	URL      string `yaml:"url,omitempty"` // redis://host:port
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// ServerConfig holds `nao chat --serve` settings.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
	// Bearer token required on /api/chat and /ws when set.
	Token string `yaml:"token,omitempty"`
}

// UpdateConfig controls the startup release check.
type UpdateConfig struct {
	URL      string `yaml:"url,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// DefaultReleaseURL is queried for the latest published release.
const DefaultReleaseURL = "https://api.github.com/repos/getnao/nao-cli/releases/latest"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProjectName: "nao-project",
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			MaxTokens:   4096,
			Temperature: Float(0.2),
		},
		ContextDir: "context",
		TestsDir:   "tests",
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 5005,
		},
		Update: UpdateConfig{
			URL: DefaultReleaseURL,
		},
	}
}

// Float returns a pointer to v, for optional settings such as temperature.
func Float(v float64) *float64 { return &v }
