package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/getnao/nao-cli/internal/buildinfo"
	"github.com/getnao/nao-cli/internal/cache"
	"github.com/getnao/nao-cli/internal/mode"
	"github.com/getnao/nao-cli/internal/providers"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Show build, project and connectivity diagnostics",
	Args:  cobra.NoArgs,
	RunE:  runDebug,
}

var debugPing bool

func init() {
	debugCmd.Flags().BoolVar(&debugPing, "ping", false, "Send a test message to the LLM")
	rootCmd.AddCommand(debugCmd)
}

func runDebug(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	fmt.Fprintln(out, bold("Build"))
	row(out, "Mode", fmt.Sprintf("%s (%s)", mode.Current(), modeSource()))
	row(out, "Version", cmd.Root().Version)
	row(out, "Commit", buildinfo.Commit)
	row(out, "Built", buildinfo.Date)
	row(out, "Go", fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH))

	fmt.Fprintln(out)
	fmt.Fprintln(out, bold("Project"))
	p, err := loadProject()
	if err != nil {
		row(out, "Config", red(err.Error()))
		return nil
	}
	cfg := p.Config
	row(out, "Config", p.ConfigPath())
	row(out, "Name", cfg.ProjectName)
	row(out, "Context", fmt.Sprintf("%s (%d sources)", p.ContextPath(), len(cfg.Sources)))
	row(out, "Tests", p.TestsPath())

	fmt.Fprintln(out)
	fmt.Fprintln(out, bold("LLM"))
	settings, err := providers.Resolve(cfg.LLM)
	if err != nil {
		row(out, "Provider", red(err.Error()))
	} else {
		row(out, "Provider", settings.Spec.Label())
		row(out, "Model", settings.Model)
		if settings.BaseURL != "" {
			row(out, "Base URL", settings.BaseURL)
		}
		row(out, "API key", maskKey(settings.APIKey))
		if debugPing {
			row(out, "Ping", pingLLM(ctx, settings))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, bold("Redis"))
	if cfg.Redis.URL == "" {
		row(out, "Status", faint("not configured"))
	} else {
		row(out, "Status", redisStatus(ctx, cache.Config{URL: cfg.Redis.URL, Password: cfg.Redis.Password, DB: cfg.Redis.DB}))
	}
	return nil
}

func row(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-10s %s\n", label+":", value)
}

// modeSource names the lookup that produced the current mode.
func modeSource() string {
	if raw, ok := buildinfo.LookupMode(); ok {
		if _, valid := mode.Parse(raw); valid {
			return "build"
		}
	}
	if _, ok := mode.FromEnv(os.Getenv)(); ok {
		return mode.EnvVar + " env"
	}
	return "default"
}

func maskKey(key string) string {
	switch {
	case key == "":
		return yellow("not set")
	case len(key) <= 8:
		return "****"
	default:
		return key[:4] + strings.Repeat("*", 4) + key[len(key)-4:]
	}
}

func pingLLM(ctx context.Context, s providers.Settings) string {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	start := time.Now()
	resp, err := providers.NewOpenAIProvider(s).Chat(ctx, providers.ChatRequest{
		Messages:  []providers.Message{{Role: providers.RoleUser, Content: "Reply with the single word: pong"}},
		MaxTokens: 16,
	})
	if err != nil {
		return red(err.Error())
	}
	return green(fmt.Sprintf("ok in %s: %q", time.Since(start).Round(time.Millisecond), strings.TrimSpace(resp.Content)))
}

func redisStatus(ctx context.Context, cfg cache.Config) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	r, err := cache.Connect(ctx, cfg, logger)
	if err != nil {
		return red(err.Error())
	}
	defer r.Close()
	return green("reachable")
}
