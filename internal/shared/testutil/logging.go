package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// LogRecord is one captured log record with its attributes flattened,
// including those added through Logger.With
type LogRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogCapture stores every record written through loggers derived from it
type LogCapture struct {
	mu      sync.Mutex
	records []LogRecord
}

type captureHandler struct {
	capture *LogCapture
	attrs   []slog.Attr
}

// NewTestLogger returns a debug-level logger and the capture behind it
func NewTestLogger() (*slog.Logger, *LogCapture) {
	c := &LogCapture{}
	return slog.New(&captureHandler{capture: c}), c
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.capture.mu.Lock()
	h.capture.records = append(h.capture.records, LogRecord{Level: r.Level, Message: r.Message, Attrs: attrs})
	h.capture.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &captureHandler{capture: h.capture, attrs: merged}
}

// WithGroup keeps attributes flat; tests match on keys only
func (h *captureHandler) WithGroup(string) slog.Handler { return h }

// Records returns a copy of the captured records
func (c *LogCapture) Records() []LogRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Find returns the first record at level whose message contains msg
func (c *LogCapture) Find(level slog.Level, msg string) (LogRecord, bool) {
	for _, r := range c.Records() {
		if r.Level == level && strings.Contains(r.Message, msg) {
			return r, true
		}
	}
	return LogRecord{}, false
}

// AssertLogged fails the test unless a record at level contains msg
func (c *LogCapture) AssertLogged(t testing.TB, level slog.Level, msg string) LogRecord {
	t.Helper()
	r, ok := c.Find(level, msg)
	if !ok {
		var got []string
		for _, rec := range c.Records() {
			got = append(got, rec.Level.String()+" "+rec.Message)
		}
		assert.Failf(t, "log message not found", "want %s %q, captured:\n%s", level, msg, strings.Join(got, "\n"))
	}
	return r
}

// AssertNoErrors fails the test if anything was logged at error level
func (c *LogCapture) AssertNoErrors(t testing.TB) {
	t.Helper()
	for _, r := range c.Records() {
		if r.Level >= slog.LevelError {
			assert.Failf(t, "unexpected error log", "%s: %v", r.Message, r.Attrs)
		}
	}
}
