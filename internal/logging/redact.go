package logging

import (
	"context"
	"log/slog"
	"regexp"
)

const redacted = "[REDACTED]"

// redactor replaces credentials that leak into log text.
type redactor struct {
	patterns []*regexp.Regexp
}

func defaultRedactor() *redactor {
	patterns := []string{
		// Anthropic
		`sk-ant-[a-zA-Z0-9_-]{20,}`,
		// OpenAI
		`sk-[A-Za-z0-9_-]{20,}`,
		// Google AI
		`AIza[a-zA-Z0-9_-]{35}`,
		// AWS access key
		`AKIA[0-9A-Z]{16}`,
		`(?i)bearer\s+[a-zA-Z0-9._-]{16,}`,
		`(?i)(api[_-]?key|token|secret)["'\s:=]+[a-zA-Z0-9_-]{16,}`,
	}
	r := &redactor{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		r.patterns = append(r.patterns, regexp.MustCompile(p))
	}
	return r
}

func (r *redactor) redact(s string) string {
	for _, p := range r.patterns {
		s = p.ReplaceAllString(s, redacted)
	}
	return s
}

// redactingHandler wraps another handler and redacts the message, string
// attributes and error attributes of every record.
type redactingHandler struct {
	handler  slog.Handler
	redactor *redactor
}

func newRedactingHandler(h slog.Handler, r *redactor) *redactingHandler {
	return &redactingHandler{handler: h, redactor: r}
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redactor.redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.handler.Handle(ctx, out)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.redactAttr(a)
	}
	return &redactingHandler{handler: h.handler.WithAttrs(clean), redactor: h.redactor}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{handler: h.handler.WithGroup(name), redactor: h.redactor}
}

func (h *redactingHandler) redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.redactor.redact(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		clean := make([]slog.Attr, len(group))
		for i, g := range group {
			clean[i] = h.redactAttr(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, h.redactor.redact(err.Error()))
		}
	}
	return a
}
