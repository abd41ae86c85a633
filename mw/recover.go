package mw

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Recover turns a panic into a 500 Internal Server Error.
// The panic is logged and recorded on the span of the request, so it shows up in the error tracking.
func Recover(logger *slog.Logger) echo.MiddlewareFunc {
	const stackSize = 4 << 10

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (returnErr error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}

				if r == http.ErrAbortHandler { //nolint:errorlint,goerr113 // sentinel panic of net/http
					panic(r)
				}

				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r) //nolint:goerr113 // panic value is not an error
				}

				stack := make([]byte, stackSize)
				stack = stack[:runtime.Stack(stack, false)]

				ctx := c.Request().Context()

				span := trace.SpanFromContext(ctx)
				span.RecordError(err, trace.WithAttributes(attribute.String("exception.stacktrace", string(stack))))
				span.SetStatus(codes.Error, "panic: "+err.Error())

				logger.ErrorContext(ctx, "recovered from panic",
					slog.String("error", err.Error()),
					slog.String("path", c.Request().URL.Path),
					slog.String("stack", string(stack)),
				)

				returnErr = echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
			}()

			return next(c)
		}
	}
}
