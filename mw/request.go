package mw

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/go-arrower/api/alog"
	apictx "github.com/go-arrower/api/ctx"
)

const HeaderRequestID = "Request-Id"

// RequestID sets the id of each request as response header and adds it to all logs of the request.
func RequestID() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{ //nolint:exhaustruct // default generator
		TargetHeader: HeaderRequestID,
		RequestIDHandler: func(c echo.Context, rid string) {
			ctx := context.WithValue(c.Request().Context(), apictx.CtxRequestID, rid)
			ctx = alog.AddAttr(ctx, slog.String("request_id", rid))

			c.SetRequest(c.Request().WithContext(ctx))
		},
	})
}

// RequestLogger logs every request after it is handled.
// Server errors are logged as error, everything else on debug.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{ //nolint:exhaustruct // only the logged values
		LogMethod:    true,
		LogURI:       true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.String("route", v.RoutePath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency.Round(time.Microsecond)),
				slog.String("remote_ip", v.RemoteIP),
			}

			level := slog.LevelDebug
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}

			if v.Status >= 500 { //nolint:mnd // server errors
				level = slog.LevelError
			}

			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)

			return nil
		},
	})
}
