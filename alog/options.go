package alog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

var ErrInvalidFormat = errors.New("invalid log format")

// Options are the values of the logging settings.
type Options struct {
	// Output defaults to os.Stderr.
	Output    io.Writer
	Level     string
	Format    string
	AddSource bool

	// Loki is only used, if a PushURL is set.
	Loki LokiHandlerOptions
}

// NewFromOptions returns a logger as described by the logging settings.
func NewFromOptions(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	hOpts := defaultHandlerOptions()
	hOpts.AddSource = opts.AddSource

	var handler slog.Handler

	switch opts.Format {
	case "", "json":
		handler = slog.NewJSONHandler(out, hOpts)
	case "text":
		handler = slog.NewTextHandler(out, hOpts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, opts.Format)
	}

	loggerOpts := []LoggerOpt{WithLevel(level), WithHandler(handler)}

	if opts.Loki.PushURL != "" {
		loggerOpts = append(loggerOpts, WithHandler(NewLokiHandler(&opts.Loki)))
	}

	return New(loggerOpts...), nil
}
