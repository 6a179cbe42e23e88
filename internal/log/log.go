// Package log provides structured logging for go-mouthfx.
// It wraps slog with sensible defaults for production use.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// ParseLevel maps a level name to a slog level.
// Valid levels: "debug", "info", "warn", "error". Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// New builds a logger writing to w. format is "json" or "text"; an empty
// format selects JSON when GO_ENV=production and text otherwise.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	if format == "" && os.Getenv("GO_ENV") == "production" {
		format = "json"
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Init initializes the global logger with the specified level and format.
// Output goes to stderr and to any extra writers. Only the first call has
// an effect.
func Init(level, format string, extra ...io.Writer) {
	once.Do(func() {
		var w io.Writer = os.Stderr
		if len(extra) > 0 {
			w = io.MultiWriter(append([]io.Writer{os.Stderr}, extra...)...)
		}
		logger = New(w, level, format)
		slog.SetDefault(logger)
	})
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info", "")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Component returns a child logger tagged with a component name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}

// Sink is an io.Writer whose destination is attached after Init, for
// outputs that need a logger before they exist. Writes before Attach are
// discarded.
type Sink struct {
	w atomic.Pointer[io.Writer]
}

// Attach directs subsequent writes to w. nil detaches.
func (s *Sink) Attach(w io.Writer) {
	if w == nil {
		s.w.Store(nil)
		return
	}
	s.w.Store(&w)
}

// Write implements io.Writer.
func (s *Sink) Write(p []byte) (int, error) {
	if w := s.w.Load(); w != nil {
		return (*w).Write(p)
	}
	return len(p), nil
}
