package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/getnao/nao-cli/internal/agent"
	"github.com/getnao/nao-cli/internal/cache"
	"github.com/getnao/nao-cli/internal/config"
	"github.com/getnao/nao-cli/internal/providers"
	"github.com/getnao/nao-cli/internal/session"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// loadProject finds and loads the project from --project or the working directory.
func loadProject() (*config.Project, error) {
	start := projectDir
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		start = wd
	}
	return config.LoadProject(start)
}

// releaseURL returns the release endpoint, preferring the project's config.
func releaseURL() string {
	if p, err := loadProject(); err == nil {
		if p.Config.Update.Disabled {
			return ""
		}
		if p.Config.Update.URL != "" {
			return p.Config.Update.URL
		}
	}
	return config.DefaultReleaseURL
}

// openCache connects to Redis when configured. Connection failures fall back
// to no cache.
func openCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, func()) {
	if cfg.URL == "" {
		return cache.Nop{}, func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	r, err := cache.Connect(ctx, cache.Config{URL: cfg.URL, Password: cfg.Password, DB: cfg.DB}, logger)
	if err != nil {
		logger.Warn("redis unavailable, continuing without cache", "err", err)
		return cache.Nop{}, func() {}
	}
	return r, func() { _ = r.Close() }
}

// newAgent wires the provider, session store and agent for a project.
// The returned func releases the cache connection.
func newAgent(ctx context.Context, p *config.Project) (*agent.Agent, func(), error) {
	provider, err := providers.FromConfig(p.Config.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("configure LLM provider: %w", err)
	}
	store, closeCache := openCache(ctx, p.Config.Redis)
	sessions := session.NewManager(p.StatePath(), session.WithCache(store, 24*time.Hour))

	a := agent.New(provider, sessions, agent.Config{
		ProjectName: p.Config.ProjectName,
		ProjectRoot: p.Root,
		ContextDir:  p.ContextPath(),
		Model:       provider.DefaultModel(),
		MaxTokens:   p.Config.LLM.MaxTokens,
		Temperature: p.Config.LLM.Temperature,
	}, logger)
	return a, closeCache, nil
}
