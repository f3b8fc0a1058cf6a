// Package logging provides the process-wide structured logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how logs are written.
type Config struct {
	Level    string // debug, info, warn, error
	FilePath string // empty disables file logging
	MaxSizeMB int
	MaxBackups int
	MaxAgeDays int
	JSON     bool
}

// New builds a *slog.Logger per cfg. Output always includes stderr; when
// FilePath is set, a lumberjack-backed rotating file sink is added too.
func New(cfg Config) *slog.Logger {
	level := parseLevel(cfg.Level)

	writers := []io.Writer{os.Stderr}
	if cfg.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		})
	}

	w := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ctxKey is the context key used to carry a per-request logger.
type ctxKey struct{}

// Into attaches a logger to ctx, typically enriched with request_id/credential fields.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the logger attached to ctx, or a disabled fallback if none was set.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// RedactCredential returns a display-safe suffix of a refresh token / credential id.
func RedactCredential(id string) string {
	if len(id) <= 6 {
		return "***"
	}
	return "***" + id[len(id)-6:]
}
