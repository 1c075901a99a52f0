// Package logging provides structured logging configuration using log/slog.
//
// Every import run gets an id that travels in the context under chi's
// RequestID key, so the same id shows up in every log entry of the run
// whether it was started from the CLI or from a request handler.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattn/go-isatty"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json", "auto" (default: "text")
//
// "auto" writes text to a terminal and JSON otherwise.
func Setup(level, format string) {
	SetupWriter(os.Stderr, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if resolveFormat(w, format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func resolveFormat(w io.Writer, format string) string {
	format = strings.ToLower(format)
	if format != "auto" {
		return format
	}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "text"
	}
	return "json"
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
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

// WithRunID returns a context carrying the id of an import run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, middleware.RequestIDKey, runID)
}

// RunID returns the run id carried by ctx, or "".
func RunID(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

// FromContext returns a logger enriched with the run id carried by ctx.
//
// Usage:
//
//	logger := logging.FromContext(ctx)
//	logger.Info("policy applied", "policy", id)
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if runID := middleware.GetReqID(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	tableLogger := logging.WithFields(ctx, "table", name)
//	tableLogger.Info("rows added", "count", n)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
