package server

import (
	"context"
	"log/slog"
)

// JobLogHandler is a slog.Handler that records entries on a job and passes them on
// to the process handler.
type JobLogHandler struct {
	Next   slog.Handler
	record func(LogEntry)
	attrs  []slog.Attr
	group  string
}

func NewJobLogHandler(next slog.Handler, record func(LogEntry)) *JobLogHandler {
	return &JobLogHandler{Next: next, record: record}
}

func (h *JobLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	// Jobs keep their Info log even when the console is quieter.
	return level >= slog.LevelInfo || (h.Next != nil && h.Next.Enabled(ctx, level))
}

func (h *JobLogHandler) Handle(ctx context.Context, r slog.Record) error {
	meta := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		meta[a.Key] = attrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		meta[key] = attrValue(a.Value)
		return true
	})

	h.record(LogEntry{
		Timestamp: r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
		Metadata:  meta,
	})

	if h.Next != nil && h.Next.Enabled(ctx, r.Level) {
		return h.Next.Handle(ctx, r)
	}
	return nil
}

// attrValue keeps errors and durations readable once the entry is encoded as JSON.
func attrValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

func (h *JobLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	if h.Next != nil {
		next.Next = h.Next.WithAttrs(attrs)
	}
	return &next
}

func (h *JobLogHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.group = name
	if h.group != "" {
		next.group = h.group + "." + name
	}
	if h.Next != nil {
		next.Next = h.Next.WithGroup(name)
	}
	return &next
}
