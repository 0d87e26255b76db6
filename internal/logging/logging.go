// Package logging builds the application zerolog logger and the per-session
// transcript log.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// TimeFormat is used for console timestamps and transcript lines.
const TimeFormat = "2006-01-02 15:04:05"

// Options selects the logger's level, encoding and optional file output.
type Options struct {
	Level  zerolog.Level
	Format string // "console" or "json"
	File   string // appended to in addition to Out when non-empty
	Out    io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a configured logger. The returned Closer releases the log file,
// if any, and is always non-nil.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var console io.Writer = out
	if opts.Format != "json" {
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: TimeFormat}
	}

	var closer io.Closer = nopCloser{}
	w := console
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("logging: create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("logging: open %q: %w", opts.File, err)
		}
		closer = f
		var fileW io.Writer = f
		if opts.Format != "json" {
			fileW = zerolog.ConsoleWriter{Out: f, TimeFormat: TimeFormat, NoColor: true}
		}
		w = zerolog.MultiLevelWriter(console, fileW)
	}

	logger := zerolog.New(w).Level(opts.Level).With().Timestamp().Logger()
	return logger, closer, nil
}
