package server

import (
	"context"
	"encoding/json"
	"log/slog"
)

// JobLogHandler is a slog.Handler that records every entry for a job
// and forwards it to the next handler.
type JobLogHandler struct {
	Record func(LogEntry)
	Next   slog.Handler
	attrs  []slog.Attr
}

func NewJobLogHandler(record func(LogEntry), next slog.Handler) *JobLogHandler {
	return &JobLogHandler{Record: record, Next: next}
}

func (h *JobLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true // Record everything; Next filters its own output.
}

func (h *JobLogHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		v := a.Value.Resolve().Any()
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		attrs[a.Key] = v
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}
	h.Record(LogEntry{Timestamp: r.Time, Level: r.Level.String(), Message: r.Message, Metadata: metaJSON})

	if h.Next != nil && h.Next.Enabled(ctx, r.Level) {
		return h.Next.Handle(ctx, r)
	}
	return nil
}

func (h *JobLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.Next
	if next != nil {
		next = next.WithAttrs(attrs)
	}
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &JobLogHandler{Record: h.Record, Next: next, attrs: merged}
}

// WithGroup only groups the forwarded output; recorded metadata stays flat.
func (h *JobLogHandler) WithGroup(name string) slog.Handler {
	next := h.Next
	if next != nil {
		next = next.WithGroup(name)
	}
	return &JobLogHandler{Record: h.Record, Next: next, attrs: h.attrs}
}
