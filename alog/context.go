package alog

import (
	"context"
	"log/slog"

	"github.com/go-arrower/api/ctx"
)

const ctxAttr ctx.CTXKey = "alog.attr"

// AddAttr adds a single attribute to ctx.
// All attributes in the context are added to each record logged with this ctx.
func AddAttr(c context.Context, attr slog.Attr) context.Context {
	return AddAttrs(c, attr)
}

// AddAttrs adds multiple attributes to ctx, see AddAttr.
func AddAttrs(c context.Context, attrs ...slog.Attr) context.Context {
	existing, _ := FromContext(c)

	merged := make([]slog.Attr, 0, len(existing)+len(attrs))
	merged = append(merged, existing...)
	merged = append(merged, attrs...)

	return context.WithValue(c, ctxAttr, merged)
}

// ClearAttrs returns a context without any attributes.
func ClearAttrs(c context.Context) context.Context {
	return context.WithValue(c, ctxAttr, nil)
}

// FromContext returns all attributes stored in ctx.
func FromContext(c context.Context) ([]slog.Attr, bool) {
	attrs, ok := c.Value(ctxAttr).([]slog.Attr)
	if !ok || len(attrs) == 0 {
		return nil, false
	}

	return attrs, true
}
