// Package logging builds the zerolog logger used for a conversion run.
// Output is human-readable on a terminal and JSON otherwise.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level (trace, debug, info, warn, error).
	Level string

	// JSON forces JSON output even on a terminal.
	JSON bool

	// Output defaults to os.Stderr; stdout may carry the rendered chat.
	Output io.Writer

	// RunID tags every entry. A random one is generated when empty.
	RunID string
}

// New creates a logger for one run.
func New(cfg Config) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = zerolog.ParseLevel(cfg.Level); err != nil {
			return zerolog.Nop(), fmt.Errorf("parsing log level: %w", err)
		}
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSON && IsTerminal(out) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("run_id", runID).
		Logger(), nil
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}
