package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/getnao/nao-cli/internal/testrunner"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run prompt tests against the agent",
	Args:  cobra.NoArgs,
	RunE:  runTest,
}

var (
	testFilter   string
	testParallel int
	testJSON     bool
)

func init() {
	testCmd.Flags().StringVar(&testFilter, "filter", "", "Only run cases whose name contains this text")
	testCmd.Flags().IntVar(&testParallel, "parallel", 1, "Number of cases to run at once")
	testCmd.Flags().BoolVar(&testJSON, "json", false, "Print results as JSON")
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, _ []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	cases, err := testrunner.LoadCases(p.TestsPath())
	if err != nil {
		return err
	}
	cases = testrunner.Filter(cases, testFilter)

	out := cmd.OutOrStdout()
	if len(cases) == 0 {
		fmt.Fprintln(out, yellow("No test cases found in "+p.TestsPath()))
		return nil
	}

	a, closeCache, err := newAgent(cmd.Context(), p)
	if err != nil {
		return err
	}
	defer closeCache()

	r := testrunner.NewRunner(a, logger)
	r.Parallel = testParallel
	if !testJSON {
		r.OnResult = func(res testrunner.Result) { printTestResult(out, res) }
	}

	sum := r.Run(cmd.Context(), cases)
	if testJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "\n%d passed, %d failed (%s)\n", sum.Passed, sum.Failed, sum.Duration.Round(time.Millisecond))
	}
	return sum.Err()
}

func printTestResult(w io.Writer, res testrunner.Result) {
	if res.Passed {
		fmt.Fprintf(w, "%s %s %s\n", green("✓"), res.Name, faint(res.Duration.Round(time.Millisecond).String()))
		return
	}
	fmt.Fprintf(w, "%s %s\n", red("✗"), res.Name)
	for _, f := range res.Failures {
		fmt.Fprintf(w, "    %s\n", f)
	}
}
