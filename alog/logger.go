// Package alog is the structured logging of the api.
// It is built on log/slog and adds tracing correlation,
// runtime control over the level and attributes carried in the context.
package alog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Logger interface is a subset of slog.Logger, with the aim to
// encourage the use of the methods offering context.Context,
// so that tracing information can be correlated.
type Logger interface {
	Log(ctx context.Context, level slog.Level, msg string, args ...any)
	LogAttrs(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr)
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
}

const (
	// LevelInfo is used to see what is going on inside the framework parts of the api.
	LevelInfo = slog.Level(-8)

	// LevelDebug is used, if you really want to know what is going on.
	LevelDebug = slog.Level(-12)
)

var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel maps the name of a level, as used in the logging settings, to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "api:debug":
		return LevelDebug, nil
	case "api:info":
		return LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return slog.LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, name)
}

// MapLogLevelsToName replaces the default name of a custom log level with a speaking name.
func MapLogLevelsToName(_ []string, attr slog.Attr) slog.Attr {
	if attr.Key == slog.LevelKey {
		level, _ := attr.Value.Any().(slog.Level)

		levelLabel, exists := levelNames()[level]
		if !exists {
			levelLabel = level.String()
		}

		attr.Value = slog.StringValue(levelLabel)
	}

	return attr
}

func levelNames() map[slog.Leveler]string {
	return map[slog.Leveler]string{
		LevelInfo:  "API:INFO",
		LevelDebug: "API:DEBUG",
	}
}
