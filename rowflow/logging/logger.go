// Package logging provides the leveled logger handed to the engine through
// the execution context. It is a thin layer over log/slog that adds a
// VERBOSE level between DEBUG and INFO for row-count diagnostics.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelVerbose sits between slog.LevelDebug and slog.LevelInfo
const LevelVerbose = slog.Level(-2)

// Config holds logger configuration
type Config struct {
	Level  string    // DEBUG, VERBOSE, INFO, WARN, ERROR
	Format string    // json or text
	Output io.Writer // defaults to stderr
}

// Logger is a leveled logger
type Logger struct {
	slog *slog.Logger
}

// ParseLevel maps a level name to its slog level, defaulting to INFO
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "VERBOSE":
		return LevelVerbose
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New builds a logger from configuration
func New(cfg Config) *Logger {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelVerbose {
					a.Value = slog.StringValue("VERBOSE")
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{slog: slog.New(handler)}
}

// FromSlog wraps an existing slog logger
func FromSlog(l *slog.Logger) *Logger { return &Logger{slog: l} }

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{slog: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

// With returns a child logger carrying the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.get().With(args...)}
}

// Slog exposes the underlying slog logger
func (l *Logger) Slog() *slog.Logger { return l.get() }

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level slog.Level) bool {
	return l.get().Enabled(context.Background(), level)
}

func (l *Logger) Debug(msg string, args ...any) { l.get().Debug(msg, args...) }

func (l *Logger) Verbose(msg string, args ...any) {
	l.get().Log(context.Background(), LevelVerbose, msg, args...)
}

func (l *Logger) Info(msg string, args ...any)  { l.get().Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.get().Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.get().Error(msg, args...) }

// get tolerates a nil receiver so an unset logger never panics
func (l *Logger) get() *slog.Logger {
	if l == nil || l.slog == nil {
		return Nop().slog
	}
	return l.slog
}
