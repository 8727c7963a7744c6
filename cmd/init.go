package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/getnao/nao-cli/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a nao project",
	Long:  "Create nao_config.yaml and the context/, tests/ and memory/ folders in dir (default: the working directory).",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

var (
	initForce bool
	initName  string
)

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing nao_config.yaml")
	initCmd.Flags().StringVar(&initName, "name", "", "Project name (default: the directory name)")
	rootCmd.AddCommand(initCmd)
}

const exampleTest = `# Prompt tests run with ` + "`nao test`" + `.
name: example
prompt: Which tables are documented in the project context?
expect:
  not_contains:
    - "I don't know"
`

const memoryTemplate = "# Project Memory\n\nNotes here are added to every chat. Record definitions, caveats and conventions.\n"

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", root, err)
	}

	out := cmd.OutOrStdout()
	cfgPath := filepath.Join(root, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
	}

	cfg := config.DefaultConfig()
	cfg.ProjectName = initName
	if cfg.ProjectName == "" {
		cfg.ProjectName = filepath.Base(root)
	}
	if err := config.Save(cfg, cfgPath); err != nil {
		return fmt.Errorf("creating config: %w", err)
	}
	fmt.Fprintf(out, "%s Created %s\n", green("✓"), config.FileName)

	for _, d := range []string{cfg.ContextDir, cfg.TestsDir, "memory"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return err
		}
	}

	files := []struct{ path, content string }{
		{filepath.Join(cfg.TestsDir, "example.yaml"), exampleTest},
		{filepath.Join("memory", "MEMORY.md"), memoryTemplate},
	}
	for _, f := range files {
		created, err := writeIfMissing(filepath.Join(root, f.path), f.content)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(out, "  Created %s\n", filepath.ToSlash(f.path))
		}
	}

	if err := ensureGitignore(filepath.Join(root, ".gitignore"), ".nao/"); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%s is ready.\n\nNext steps:\n", bold(cfg.ProjectName))
	fmt.Fprintln(out, "  1. Add sources to nao_config.yaml and run `nao sync`")
	fmt.Fprintln(out, "  2. Set OPENAI_API_KEY (or another provider key) in .env")
	fmt.Fprintln(out, "  3. Chat: nao chat")
	return nil
}

func writeIfMissing(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// ensureGitignore appends entry to the .gitignore at path unless present.
func ensureGitignore(path, entry string) error {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == entry {
			return nil
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		entry = "\n" + entry
	}
	_, err = fmt.Fprintln(f, entry)
	return err
}
