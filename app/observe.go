package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/go-arrower/api/app"

// Logged logs each call of h on debug level and its failure.
func Logged[T any](logger *slog.Logger, h Handler[T]) Handler[T] {
	return HandlerFunc[T](func(ctx context.Context, in T) error {
		attr := slog.String("handler", name(in))

		logger.DebugContext(ctx, "run handler", attr)

		if err := h.H(ctx, in); err != nil {
			logger.DebugContext(ctx, "handler failed", attr, slog.String("error", err.Error()))

			return err
		}

		logger.DebugContext(ctx, "handler done", attr)

		return nil
	})
}

// Metered records app_handlers_total and app_handler_duration_seconds,
// labelled by the handler and the outcome of the call.
func Metered[T any](meterProvider metric.MeterProvider, h Handler[T]) Handler[T] {
	meter := meterProvider.Meter(instrumentationName)

	counter, _ := meter.Int64Counter("app_handlers", metric.WithDescription("calls of app handlers"))
	duration, _ := meter.Float64Histogram("app_handler_duration_seconds",
		metric.WithDescription("duration of app handler calls"),
		metric.WithUnit("s"),
	)

	return HandlerFunc[T](func(ctx context.Context, in T) error {
		start := time.Now()

		err := h.H(ctx, in)

		outcome := "success"
		if err != nil {
			outcome = "failure"
		}

		opts := metric.WithAttributes(attribute.String("handler", name(in)), attribute.String("outcome", outcome))
		counter.Add(ctx, 1, opts)
		duration.Record(ctx, time.Since(start).Seconds(), opts)

		return err
	})
}

// Traced runs h in a span named after the handler's input type.
func Traced[T any](traceProvider trace.TracerProvider, h Handler[T]) Handler[T] {
	tracer := traceProvider.Tracer(instrumentationName)

	return HandlerFunc[T](func(ctx context.Context, in T) error {
		ctx, span := tracer.Start(ctx, name(in), trace.WithSpanKind(trace.SpanKindInternal))
		defer span.End()

		err := h.H(ctx, in)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	})
}
