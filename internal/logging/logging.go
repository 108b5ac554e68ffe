// Package logging provides structured logging for tplot.
//
// This package wraps the standard library's log/slog package so that all
// components log the same way. It supports text and JSON output, a
// configurable level, and component-based loggers.
//
// Usage:
//
//	logging.Init(slog.LevelInfo, false)
//
//	log := logging.Component("registry")
//	log.Info("variable stored", "name", name, "samples", n)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Log output goes to stderr so that command output on stdout stays clean.
var output io.Writer = os.Stderr

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if jsonFormat {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel converts a level name (debug, info, warn, error) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// With returns a new logger with additional attributes.
func With(args ...any) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelWarn, false)
	}
	return Logger.With(args...)
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// The returned logger is bound to the handler that is current at call
// time; package-level component loggers therefore go through
// componentHandler, which resolves the global logger lazily.
func Component(name string) *slog.Logger {
	return slog.New(&componentHandler{component: name})
}

// componentHandler forwards to the current global logger's handler so that
// loggers created in package var blocks honor a later Init.
type componentHandler struct {
	component string
	attrs     []slog.Attr
	groups    []string
}

func (h *componentHandler) target() slog.Handler {
	if Logger == nil {
		Init(slog.LevelWarn, false)
	}
	handler := Logger.Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	for _, g := range h.groups {
		handler = handler.WithGroup(g)
	}
	return handler
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.target().Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.target().Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

// WithContext returns a logger that includes context values.
func WithContext(ctx context.Context) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelWarn, false)
	}

	logger := Logger

	if sessionID, ok := ctx.Value(contextKeySessionID).(string); ok {
		logger = logger.With("session_id", sessionID)
	}
	if variable, ok := ctx.Value(contextKeyVariable).(string); ok {
		logger = logger.With("variable", variable)
	}
	if command, ok := ctx.Value(contextKeyCommand).(string); ok {
		logger = logger.With("command", command)
	}

	return logger
}

// Context key types for type-safe context value extraction.
type contextKey int

const (
	contextKeySessionID contextKey = iota
	contextKeyVariable
	contextKeyCommand
)

// ContextWithSessionID adds a session ID to the context for logging.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKeySessionID, sessionID)
}

// ContextWithVariable adds a variable name to the context for logging.
func ContextWithVariable(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, contextKeyVariable, name)
}

// ContextWithCommand adds the running CLI command to the context for logging.
func ContextWithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, contextKeyCommand, command)
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	With().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	With().Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	With().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	With().Error(msg, args...)
}
