// Package logger builds the zerolog loggers used across the service and carries
// them through context.Context.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

const (
	// LoggerKey is the context key for the logger instance
	LoggerKey ContextKey = "logger"
)

// Output formats accepted by Options.Format.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configures NewWithOptions.
type Options struct {
	Level  string // zerolog level name; empty or unknown means info
	Format string // FormatConsole (default) or FormatJSON
	Out    io.Writer
}

// New returns an info level console logger on stdout.
func New() zerolog.Logger {
	return NewWithOptions(Options{})
}

// NewWithWriter returns a JSON logger writing to w.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// NewWithOptions creates a logger with the given level and output format.
// Binaries build theirs from the LOG_LEVEL and LOG_FORMAT settings.
func NewWithOptions(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	var log zerolog.Logger
	if strings.EqualFold(opts.Format, FormatJSON) {
		log = NewWithWriter(out)
	} else {
		log = NewWithWriter(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return log.Level(ParseLevel(opts.Level))
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	if name == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// WithContext stores the logger in ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext returns the logger stored in ctx, or New() when there is none.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return New()
}
