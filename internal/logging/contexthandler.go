package logging

import (
	"context"
	"log/slog"
)

// Counter reports a live size, such as the number of loaded trajectories.
type Counter interface {
	Len() int
}

// Session identifies the running process on every record.
type Session struct {
	ID string
	// Trajectories is read at log time, so records show the set as it is
	// when they are written. Optional.
	Trajectories Counter
}

func (s *Session) attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 2)
	if s.ID != "" {
		attrs = append(attrs, slog.String("session", s.ID))
	}
	if s.Trajectories != nil {
		attrs = append(attrs, slog.Int("trajectories", s.Trajectories.Len()))
	}
	return attrs
}

type attrsKey struct{}

// WithAttrs returns a copy of ctx carrying attrs. Records logged with that
// context through a ContextHandler (the *Context logger methods) include them.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	prev := AttrsFrom(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

// AttrsFrom returns the attributes stored by WithAttrs.
func AttrsFrom(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	return attrs
}

// ContextHandler adds the session attributes and any attributes carried by
// the record's context before passing it on.
type ContextHandler struct {
	inner   slog.Handler
	session *Session
}

// NewContextHandler wraps inner. A nil session adds only context attributes.
func NewContextHandler(inner slog.Handler, session *Session) *ContextHandler {
	return &ContextHandler{inner: inner, session: session}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.session != nil {
		r.AddAttrs(h.session.attrs()...)
	}
	r.AddAttrs(AttrsFrom(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), session: h.session}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), session: h.session}
}
