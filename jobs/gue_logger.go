package jobs

import (
	"context"
	"log/slog"

	"github.com/vgarvardt/gue/v5/adapter"

	"github.com/go-arrower/api/alog"
)

// gueLogAdapter redirects the gue and gueron logs to the api log levels.
// Regular worker chatter is only visible on alog.LevelDebug.
type gueLogAdapter struct {
	l *slog.Logger
}

var _ adapter.Logger = (*gueLogAdapter)(nil)

func (l *gueLogAdapter) Debug(msg string, fields ...adapter.Field) {
	l.l.Log(context.Background(), alog.LevelDebug, msg, slogFields(fields)...)
}

func (l *gueLogAdapter) Info(msg string, fields ...adapter.Field) {
	l.l.Log(context.Background(), alog.LevelDebug, msg, slogFields(fields)...)
}

// Error logs to alog.LevelInfo, as failing jobs are retried by gue.
func (l *gueLogAdapter) Error(msg string, fields ...adapter.Field) {
	l.l.Log(context.Background(), alog.LevelInfo, msg, slogFields(fields)...)
}

func (l *gueLogAdapter) With(fields ...adapter.Field) adapter.Logger { //nolint:ireturn // required for adapter.Logger
	return &gueLogAdapter{l: l.l.With(slogFields(fields)...)}
}

func slogFields(fields []adapter.Field) []any {
	result := make([]any, len(fields))

	for i, f := range fields {
		result[i] = slog.Any(f.Key, f.Value)
	}

	return result
}
