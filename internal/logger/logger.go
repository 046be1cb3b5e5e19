package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the logging surface used across charcomplete. It mirrors the
// slog.Logger methods so packages can accept a fake in tests.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

// SlogLogger adapts *slog.Logger. Only the methods returning a derived
// logger need wrapping.
type SlogLogger struct {
	*slog.Logger
}

func New(handler slog.Handler) Logger {
	return SlogLogger{slog.New(handler)}
}

func (l SlogLogger) With(args ...any) Logger {
	return SlogLogger{l.Logger.With(args...)}
}

func (l SlogLogger) WithGroup(name string) Logger {
	return SlogLogger{l.Logger.WithGroup(name)}
}

func options(level slog.Level, source bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{Level: level, AddSource: source}
}

// Default writes info and above as text to stderr.
func Default() Logger {
	return New(slog.NewTextHandler(os.Stderr, options(slog.LevelInfo, false)))
}

// Discard drops every record. Used by the TUI, which owns the terminal.
func Discard() Logger {
	return New(slog.DiscardHandler)
}

// JSON is for machine consumption; records carry their source position.
func JSON(w io.Writer, level slog.Level) Logger {
	return New(slog.NewJSONHandler(w, options(level, true)))
}

func Text(w io.Writer, level slog.Level) Logger {
	return New(slog.NewTextHandler(w, options(level, false)))
}

// Pretty creates a Logger with colored output for interactive use.
func Pretty(w io.Writer, level slog.Level) Logger {
	return New(NewPrettyHandler(w, options(level, false)))
}

// Setup builds the logger selected by the --log-format and --log-level
// flags. debug forces the debug level.
func Setup(w io.Writer, format, level string, debug bool) Logger {
	lvl := ParseLevel(level)
	if debug {
		lvl = slog.LevelDebug
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return JSON(w, lvl)
	case "text":
		return Text(w, lvl)
	default:
		return Pretty(w, lvl)
	}
}

type loggerKey struct{}

// FromContext returns the logger installed by WithContext, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return Default()
}

func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// ParseLevel maps a flag value to a level. Unknown values are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
