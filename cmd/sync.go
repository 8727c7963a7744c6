package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/getnao/nao-cli/internal/contextsync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync configured sources into the context folder",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

var (
	syncDryRun  bool
	syncSources []string
)

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Show what would change without writing")
	syncCmd.Flags().StringArrayVar(&syncSources, "source", nil, "Only sync the named source (repeatable)")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(p.Config.Sources) == 0 {
		fmt.Fprintln(out, yellow("No sources configured in "+p.ConfigPath()))
		return nil
	}

	s := contextsync.New(p, logger)
	s.DryRun = syncDryRun
	s.UserAgent = "nao/" + cmd.Root().Version

	report, err := s.Run(cmd.Context(), p.Config.Sources, syncSources...)
	printSyncReport(out, report)
	return err
}

func printSyncReport(w io.Writer, r contextsync.Report) {
	for _, f := range r.Added {
		fmt.Fprintf(w, "  %s %s\n", green("+"), f)
	}
	for _, f := range r.Updated {
		fmt.Fprintf(w, "  %s %s\n", yellow("~"), f)
	}
	for _, f := range r.Removed {
		fmt.Fprintf(w, "  %s %s\n", red("-"), f)
	}
	for _, name := range r.Failed {
		fmt.Fprintf(w, "  %s source %s failed\n", red("✗"), name)
	}

	prefix := "Synced"
	if r.DryRun {
		prefix = "Dry run"
	}
	fmt.Fprintf(w, "%s: %d added, %d updated, %d removed, %d unchanged\n",
		prefix, len(r.Added), len(r.Updated), len(r.Removed), len(r.Unchanged))
}
