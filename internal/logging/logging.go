// Package logging builds the application's slog loggers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Config holds logging parameters.
type Config struct {
	// Level is the minimum level ("debug", "info", "warn", "error").
	Level string `env:"LEVEL" default:"info"`

	// JSON selects JSON output instead of text.
	JSON bool `env:"JSON" default:"false"`

	// Output is "stdout", "stderr" or "discard".
	Output string `env:"OUTPUT" default:"stderr"`
}

// ParseLevel maps a level name to a slog.Level, falling back to info.
func ParseLevel(s string) slog.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return slog.LevelInfo
}

// New creates a logger for cfg. A nil w selects the writer named by
// cfg.Output.
func New(cfg Config, w io.Writer) *slog.Logger {
	if w == nil {
		switch cfg.Output {
		case "stdout":
			w = os.Stdout
		case "discard":
			return Nop()
		default:
			w = os.Stderr
		}
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(&requestIDHandler{h: h})
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored in ctx.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}

// requestIDHandler adds the request id from the context to every record.
type requestIDHandler struct {
	h slog.Handler
}

func (h *requestIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}

func (h *requestIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := RequestIDFromContext(ctx); ok {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.h.Handle(ctx, r)
}

func (h *requestIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &requestIDHandler{h: h.h.WithAttrs(attrs)}
}

func (h *requestIDHandler) WithGroup(name string) slog.Handler {
	return &requestIDHandler{h: h.h.WithGroup(name)}
}
