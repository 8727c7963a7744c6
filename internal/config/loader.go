package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrNoProject is returned when no nao_config.yaml is found.
var ErrNoProject = errors.New("not inside a nao project (no " + FileName + " found)")

// LoadEnv loads .env files into the process environment. Missing files are
// ignored; variables already set are never overwritten.
func LoadEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

// FindProjectRoot walks up from start to the first directory holding a
// nao_config.yaml.
func FindProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoProject
		}
		dir = parent
	}
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, returns DefaultConfig().
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, err
	}

	cfg := DefaultConfig() // start with defaults so zero-value fields get filled
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes configuration to a YAML file, creating parent directories.
func Save(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overlays NAO_* environment variables on cfg.
func ApplyEnv(cfg Config) Config {
	if v := strings.TrimSpace(os.Getenv("NAO_LLM_MODEL")); v != "" {
		cfg.LLM.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("NAO_LLM_BASE_URL")); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("NAO_REDIS_URL")); v != "" {
		cfg.Redis.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("NAO_SERVER_TOKEN")); v != "" {
		cfg.Server.Token = v
	}
	return cfg
}

// Validate checks source definitions.
func (c Config) Validate() error {
	seen := map[string]bool{}
	var errs []error
	for i, src := range c.Sources {
		name := strings.TrimSpace(src.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name is required", i))
			continue
		}
		if !validSourceName(name) {
			errs = append(errs, fmt.Errorf("sources[%d]: name %q must be a single path element", i, name))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate name %q", i, name))
		}
		seen[name] = true

		switch src.Type {
		case SourceLocal:
			if strings.TrimSpace(src.Path) == "" {
				errs = append(errs, fmt.Errorf("source %q: path is required", name))
			}
		case SourceHTTP:
			if strings.TrimSpace(src.URL) == "" {
				errs = append(errs, fmt.Errorf("source %q: url is required", name))
			}
		default:
			errs = append(errs, fmt.Errorf("source %q: unknown type %q", name, src.Type))
		}
	}
	return errors.Join(errs...)
}

// validSourceName reports whether name can be used as a directory under
// the context dir without escaping it.
func validSourceName(name string) bool {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.Clean(name) == name && !filepath.IsAbs(name) && filepath.VolumeName(name) == ""
}

// Project is a loaded configuration together with the directory it lives in.
type Project struct {
	Root   string
	Config Config
}

// LoadProject discovers the project around start and loads its config with
// environment overrides applied.
func LoadProject(start string) (*Project, error) {
	root, err := FindProjectRoot(start)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(filepath.Join(root, FileName))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg = ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Project{Root: root, Config: cfg}, nil
}

// ConfigPath returns the path of the project's nao_config.yaml.
func (p *Project) ConfigPath() string { return filepath.Join(p.Root, FileName) }

// ContextPath returns the absolute synced-context directory.
func (p *Project) ContextPath() string { return p.resolve(p.Config.ContextDir, "context") }

// TestsPath returns the absolute test-case directory.
func (p *Project) TestsPath() string { return p.resolve(p.Config.TestsDir, "tests") }

// StatePath returns the project's private state directory (.nao).
func (p *Project) StatePath() string { return filepath.Join(p.Root, ".nao") }

func (p *Project) resolve(dir, fallback string) string {
	if strings.TrimSpace(dir) == "" {
		dir = fallback
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(p.Root, dir)
}
