// Package logging builds the slog loggers used across xployt. Loggers are
// always passed explicitly; nothing here installs a process-wide default.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// levelSilent sits above every standard level so nothing is emitted.
const levelSilent = slog.Level(100)

// New returns a logger writing to w at the given level. format is "json" or
// "text"; anything else falls back to text.
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: levelSilent}))
}

// LevelFromString converts debug, info, warn or error (case-insensitive) to a
// slog.Level. Unrecognized strings map to info.
func LevelFromString(s string) slog.Level {
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

// TeeHandler fans each record out to several handlers.
type TeeHandler struct {
	handlers []slog.Handler
}

// NewTeeHandler creates a handler that writes to all provided handlers.
func NewTeeHandler(handlers ...slog.Handler) *TeeHandler {
	return &TeeHandler{handlers: handlers}
}

// Enabled reports whether any wrapped handler accepts the level.
func (t *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes the record to every enabled handler and returns the first error.
func (t *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithAttrs returns a TeeHandler whose handlers all carry attrs.
func (t *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &TeeHandler{handlers: hs}
}

// WithGroup returns a TeeHandler whose handlers all open group name.
func (t *TeeHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &TeeHandler{handlers: hs}
}

// Capture is a bounded, concurrency-safe buffer that records log output for
// later display. Once the limit is reached further writes are dropped and
// Truncated reports true.
type Capture struct {
	mu        sync.Mutex
	buf       strings.Builder
	limit     int
	truncated bool
}

// NewCapture returns a Capture holding at most limit bytes. A non-positive
// limit defaults to 64 KiB.
func NewCapture(limit int) *Capture {
	if limit <= 0 {
		limit = 64 << 10
	}
	return &Capture{limit: limit}
}

// Write implements io.Writer. It never returns an error so a full capture
// cannot fail the logger that feeds it.
func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.limit - c.buf.Len()
	if room <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}

// String returns the captured text.
func (c *Capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.truncated {
		return c.buf.String() + "\n[truncated]\n"
	}
	return c.buf.String()
}

// Truncated reports whether writes were dropped.
func (c *Capture) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}

// Tee returns a logger that writes to base's handler and also records text
// output at debug level and above into c.
func Tee(base *slog.Logger, c *Capture) *slog.Logger {
	capture := slog.NewTextHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewTeeHandler(base.Handler(), capture))
}
