package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/getnao/nao-cli/internal/buildinfo"
	"github.com/getnao/nao-cli/internal/config"
	"github.com/getnao/nao-cli/internal/version"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade nao to the latest release",
	Args:  cobra.NoArgs,
	RunE:  runUpgrade,
}

var upgradeDryRun bool

// runInstall runs an external command; replaced in tests.
var runInstall = func(ctx context.Context, name string, args ...string) error {
	c := exec.CommandContext(ctx, name, args...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}

// lookPath is exec.LookPath; replaced in tests.
var lookPath = exec.LookPath

func init() {
	upgradeCmd.Flags().BoolVar(&upgradeDryRun, "dry-run", false, "Print the upgrade command without running it")
	rootCmd.AddCommand(upgradeCmd)
}

func runUpgrade(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	current := cmd.Root().Version

	url := releaseURL()
	if url == "" {
		url = config.DefaultReleaseURL
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	tag, htmlURL, err := version.NewChecker(url).Latest(ctx)
	if err != nil {
		return fmt.Errorf("check latest release: %w", err)
	}

	if version.Normalize(current) != "" && !version.IsNewer(current, tag) {
		fmt.Fprintf(out, "%s nao %s is up to date\n", green("✓"), current)
		return nil
	}
	fmt.Fprintf(out, "Upgrading nao %s → %s\n", current, bold(tag))
	if htmlURL != "" {
		fmt.Fprintf(out, "  Release notes: %s\n", htmlURL)
	}

	target := buildinfo.ModulePath + "@" + tag
	goBin, err := lookPath("go")
	if upgradeDryRun || err != nil {
		if err != nil {
			fmt.Fprintln(out, yellow("Go toolchain not found; install the release manually or run:"))
		}
		fmt.Fprintf(out, "  go install %s\n", target)
		return nil
	}

	if err := runInstall(cmd.Context(), goBin, "install", target); err != nil {
		return fmt.Errorf("go install %s: %w", target, err)
	}
	fmt.Fprintf(out, "%s Installed nao %s\n", green("✓"), tag)
	return nil
}
