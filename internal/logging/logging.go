// Package logging configures the process-wide slog logger and hands out
// component-tagged loggers. Log output goes to stderr so it never mixes
// with query results on stdout.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

var level = new(slog.LevelVar)

// Init installs the global slog handler. Call once at startup.
// levelStr is one of "debug", "info", "warn", "error" (default "info");
// format is "text" or "json" (default "text").
func Init(levelStr, format string) {
	level.Set(ParseLevel(levelStr))

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// For returns a logger tagged with a component name. Each call delegates
// to the current slog default, so package-level loggers created before
// Init (or before a test swaps the default) still pick up the change.
func For(component string) *slog.Logger {
	return slog.New(&componentHandler{component: component})
}

// SetLevel adjusts the global level at runtime.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

type componentHandler struct {
	component string
}

func (h *componentHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return slog.Default().Handler().Enabled(ctx, l)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.String("component", h.component))
	return slog.Default().Handler().Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	return h
}
