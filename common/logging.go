// Package common holds process-wide helpers shared by the commands: build
// metadata and structured logger construction.
package common

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// PackageName is used as the service tag when none is configured.
const PackageName = "accountgenerator"

type LoggingOpts struct {
	Level   slog.Level
	JSON    bool
	Service string
	Version string

	// Output defaults to os.Stdout.
	Output io.Writer
}

// SetupLogger builds the root logger for a process. Every other component
// receives this logger (or a child of it) explicitly.
func SetupLogger(opts *LoggingOpts) (log *slog.Logger) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		log = slog.New(slog.NewJSONHandler(out, handlerOpts))
	} else {
		log = slog.New(slog.NewTextHandler(out, handlerOpts))
	}

	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}

	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}

	return log
}

// ParseLogLevel accepts debug, info, warn and error (case-insensitive).
func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// DiscardLogger returns a logger that drops everything. Used as the default
// when a component is constructed without one.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
