package cmd

import (
	"context"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/getnao/nao-cli/internal/buildinfo"
	"github.com/getnao/nao-cli/internal/logging"
	"github.com/getnao/nao-cli/internal/mode"
	"github.com/getnao/nao-cli/internal/version"
)

var (
	projectDir string
	verbose    bool

	logger = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "nao",
	Short: "nao: chat with and test your analytics context",
	Long: `nao keeps an analytics context project (synced reference material, prompt
tests and project memory) and lets you chat with an LLM grounded in it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = buildinfo.ResolvedVersion()
	rootCmd.PersistentPreRunE = preRun
	rootCmd.SetVersionTemplate("nao {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "Project directory (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func preRun(cmd *cobra.Command, _ []string) error {
	m := mode.Current()
	logger = logging.New(cmd.ErrOrStderr(), m, verbose)
	logger.Debug("starting", "mode", m, "version", cmd.Root().Version, "command", cmd.Name())

	if cmd.Name() == "upgrade" {
		return nil
	}
	checkForUpdates(cmd)
	return nil
}

// checkForUpdates prints a notice when a newer release exists. It never fails
// the command and is skipped for development builds.
func checkForUpdates(cmd *cobra.Command) {
	if mode.IsDev() {
		return
	}
	url := releaseURL()
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
	defer cancel()
	version.NewChecker(url).Notify(ctx, cmd.Root().Version, cmd.ErrOrStderr(), logger)
}
