// Package logging builds the process logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"fwd-proxy-go/internal/config"
)

// New returns a logger configured from cfg. Error records go to stderr,
// everything else to stdout.
func New(cfg *config.Config) *slog.Logger {
	return NewWithWriters(cfg, os.Stdout, os.Stderr)
}

// NewWithWriters is New with explicit destinations.
func NewWithWriters(cfg *config.Config, stdout, stderr io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Log.Level)}

	var out, errOut slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		out = slog.NewTextHandler(stdout, opts)
		errOut = slog.NewTextHandler(stderr, opts)
	default:
		out = slog.NewJSONHandler(stdout, opts)
		errOut = slog.NewJSONHandler(stderr, opts)
	}

	return slog.New(&splitHandler{out: out, err: errOut})
}

// ParseLevel maps a config level name to a slog level; unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// splitHandler routes records at slog.LevelError and above to err.
type splitHandler struct {
	out slog.Handler
	err slog.Handler
}

func (h *splitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= slog.LevelError {
		return h.err.Enabled(ctx, level)
	}
	return h.out.Enabled(ctx, level)
}

func (h *splitHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return h.err.Handle(ctx, r)
	}
	return h.out.Handle(ctx, r)
}

func (h *splitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &splitHandler{out: h.out.WithAttrs(attrs), err: h.err.WithAttrs(attrs)}
}

func (h *splitHandler) WithGroup(name string) slog.Handler {
	return &splitHandler{out: h.out.WithGroup(name), err: h.err.WithGroup(name)}
}
