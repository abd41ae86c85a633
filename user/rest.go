package user

import (
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/go-arrower/api/auth"
	"github.com/go-arrower/api/jobs"
	"github.com/go-arrower/api/rest"
	"github.com/go-arrower/api/storage"
)

// NewController serves the exports from store, it must not be a served storage.
func NewController(repo Repository, queue jobs.Enqueuer, store storage.Storage, settings rest.Settings) *Controller {
	return &Controller{
		repo:     repo,
		queue:    queue,
		store:    store,
		settings: settings,
	}
}

// Controller serves the users of the rest api.
type Controller struct {
	repo     Repository
	queue    jobs.Enqueuer
	store    storage.Storage
	settings rest.Settings
}

// List returns a page of users, filtered by the query parameter search.
func (ctrl *Controller) List() echo.HandlerFunc {
	return func(c echo.Context) error {
		page, err := rest.PageFromRequest(c, ctrl.settings)
		if err != nil {
			return err //nolint:wrapcheck // mapped to a response by the error handler
		}

		filter := Filter{Search: c.QueryParam("search"), Page: page}

		users, err := ctrl.repo.All(c.Request().Context(), filter)
		if err != nil {
			return err //nolint:wrapcheck // mapped to a response by the error handler
		}

		count, err := ctrl.repo.Count(c.Request().Context(), filter)
		if err != nil {
			return err //nolint:wrapcheck // mapped to a response by the error handler
		}

		return rest.JSONList(c, page, count, users)
	}
}

func (ctrl *Controller) Detail() echo.HandlerFunc {
	return func(c echo.Context) error {
		u, err := ctrl.repo.FindByID(c.Request().Context(), c.Param("id"))
		if err != nil {
			return err //nolint:wrapcheck // mapped to a response by the error handler
		}

		return c.JSON(http.StatusOK, u) //nolint:wrapcheck // echo error is handled by the router
	}
}

// Export enqueues an ExportUsers job for the current user.
func (ctrl *Controller) Export() echo.HandlerFunc {
	return func(c echo.Context) error {
		job := ExportUsers{RequestedBy: auth.CurrentUserID(c.Request().Context())}

		if err := ctrl.queue.Enqueue(c.Request().Context(), job); err != nil {
			return err //nolint:wrapcheck // mapped to a response by the error handler
		}

		return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"}) //nolint:wrapcheck // echo error is handled by the router
	}
}

// Exports lists the names of the finished exports.
func (ctrl *Controller) Exports() echo.HandlerFunc {
	return func(c echo.Context) error {
		files, err := ctrl.store.List(c.Request().Context(), exportDir)
		if err != nil {
			return err //nolint:wrapcheck // mapped to a response by the error handler
		}

		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, path.Base(f))
		}

		return c.JSON(http.StatusOK, map[string][]string{"exports": names}) //nolint:wrapcheck // echo error is handled by the router
	}
}

// DownloadExport sends the csv file of one export.
func (ctrl *Controller) DownloadExport() echo.HandlerFunc {
	return func(c echo.Context) error {
		name := c.Param("name")
		if name == "" || strings.ContainsAny(name, "/\\") || strings.HasPrefix(name, ".") {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		f, err := ctrl.store.Open(c.Request().Context(), path.Join(exportDir, name))
		if err != nil {
			return err //nolint:wrapcheck // mapped to a response by the error handler
		}
		defer f.Close()

		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)

		return c.Stream(http.StatusOK, "text/csv", f) //nolint:wrapcheck // echo error is handled by the router
	}
}
