// Package logging builds the leveled logger shared by all commands.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/getnao/nao-cli/internal/mode"
)

// LevelEnvVar overrides the level picked from the build mode.
const LevelEnvVar = "NAO_LOG_LEVEL"

// DefaultLevel returns the level for a build mode: chatty in development,
// warnings only in releases.
func DefaultLevel(m mode.Mode) log.Level {
	if m == mode.Prod {
		return log.WarnLevel
	}
	return log.DebugLevel
}

// New returns a logger writing to w. verbose forces debug level.
func New(w io.Writer, m mode.Mode, verbose bool) *log.Logger {
	if w == nil {
		w = io.Discard
	}
	level := DefaultLevel(m)
	if raw := strings.TrimSpace(os.Getenv(LevelEnvVar)); raw != "" {
		if parsed, err := log.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: m == mode.Dev,
		Prefix:          "nao",
	})
}

// Discard returns a logger that drops everything. Used by tests and library
// callers that do not care about logs.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
