package lockout

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	defaultAttemptsLimit = 50
	maxAttemptsLimit     = 500
)

// RegisterAdmin lists the newest failed login attempts at GET /lockout/attempts/?limit=n.
func RegisterAdmin(group *echo.Group, log AttemptLog) {
	group.GET("/lockout/attempts/", func(c echo.Context) error {
		limit := defaultAttemptsLimit

		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return echo.NewHTTPError(http.StatusBadRequest, "limit has to be a positive number")
			}

			limit = min(n, maxAttemptsLimit)
		}

		attempts, err := log.Recent(c.Request().Context(), limit)
		if err != nil {
			return err //nolint:wrapcheck // handled by the router's error handler
		}

		return c.JSON(http.StatusOK, map[string]any{"attempts": attempts})
	})
}
