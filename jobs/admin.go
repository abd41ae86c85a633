package jobs

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RegisterAdmin adds the pending jobs of a PostgresQueue to the admin group:
//
//	GET    /jobs/               all queues
//	GET    /jobs/:queue/        pending jobs of the queue, by priority
//	DELETE /jobs/:queue/:id/    remove a pending job, 409 if a worker holds it
func RegisterAdmin(group *echo.Group, repo Repository) {
	jobs := group.Group("/jobs")

	jobs.GET("/", func(c echo.Context) error {
		queues, err := repo.Queues(c.Request().Context())
		if err != nil {
			return err //nolint:wrapcheck // handled by the router's error handler
		}

		return c.JSON(http.StatusOK, map[string]any{"queues": queues})
	})

	jobs.GET("/:queue/", func(c echo.Context) error {
		pending, err := repo.PendingJobs(c.Request().Context(), c.Param("queue"))
		if err != nil {
			return err //nolint:wrapcheck // handled by the router's error handler
		}

		return c.JSON(http.StatusOK, map[string]any{"queue": c.Param("queue"), "pending": pending})
	})

	jobs.DELETE("/:queue/:id/", func(c echo.Context) error {
		err := repo.Delete(c.Request().Context(), c.Param("id"))
		if errors.Is(err, ErrDeleteFailed) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}

		if err != nil {
			return err //nolint:wrapcheck // handled by the router's error handler
		}

		return c.NoContent(http.StatusNoContent)
	})
}
