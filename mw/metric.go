package mw

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metered counts the requests and measures their duration per route.
func Metered(meterProvider metric.MeterProvider) echo.MiddlewareFunc {
	meter := meterProvider.Meter("api.http")

	counter, _ := meter.Int64Counter("http_requests", metric.WithDescription("handled http requests"))
	duration, _ := meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("duration of the handled http requests"),
		metric.WithUnit("s"),
	)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError

				var httpErr *echo.HTTPError
				if errors.As(err, &httpErr) {
					status = httpErr.Code
				}
			}

			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", c.Path()),
				attribute.String("status", strconv.Itoa(status)),
			)

			counter.Add(c.Request().Context(), 1, attrs)
			duration.Record(c.Request().Context(), time.Since(start).Seconds(), attrs)

			return err
		}
	}
}
