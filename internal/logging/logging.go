// Package logging configures the process-wide slog logger and carries
// request-scoped attributes on a context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	identifierKey    contextKey = "identifier"
	connectionKey    contextKey = "connection"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// Init installs the default slog logger writing to stderr.
func Init(cfg Config) {
	slog.SetDefault(New(os.Stderr, cfg))
}

// New builds a logger for w without installing it.
func New(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog level; unknown names mean info.
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

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func WithIdentifier(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, identifierKey, id)
}

func WithConnection(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connectionKey, id)
}

// CorrelationID returns the correlation id carried by ctx, if any.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// With returns the default logger enriched with the values carried by ctx.
func With(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	for _, key := range []contextKey{connectionKey, correlationIDKey, identifierKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			logger = logger.With(string(key), v)
		}
	}
	return logger
}
