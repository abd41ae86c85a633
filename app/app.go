// Package app decorates the handlers of the installed apps, e.g. the jobs they register
// with the task queue, with logging, metrics, tracing, validation and transactions.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Handler runs a unit of work of an app with the input in.
type Handler[T any] interface {
	H(ctx context.Context, in T) error
}

// HandlerFunc turns a plain function into a Handler.
// The H method of any decorated handler is a valid jobs.JobFunc.
type HandlerFunc[T any] func(ctx context.Context, in T) error

func (f HandlerFunc[T]) H(ctx context.Context, in T) error { return f(ctx, in) }

// Instrumented traces, meters and logs h, in this order of calling.
func Instrumented[T any](
	traceProvider trace.TracerProvider,
	meterProvider metric.MeterProvider,
	logger *slog.Logger,
	h Handler[T],
) Handler[T] {
	return Traced(traceProvider, Metered(meterProvider, Logged(logger, h)))
}

// name returns package.Type of in, e.g. user.ExportUsers.
// Types in an internal package are named after the package owning the internal directory.
func name(in any) string {
	typ := reflect.TypeOf(in)
	if typ == nil {
		return "<nil>"
	}

	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}

	if owner, _, found := strings.Cut(typ.PkgPath(), "/internal/"); found && typ.Name() != "" {
		return fmt.Sprintf("%s.%s", owner[strings.LastIndex(owner, "/")+1:], typ.Name())
	}

	return strings.TrimPrefix(fmt.Sprintf("%T", in), "*")
}
