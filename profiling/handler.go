package profiling

import (
	"errors"
	"net/http"
	"net/http/pprof"

	"github.com/labstack/echo/v4"
)

// Register adds the listing of the profiles to group, e.g. the group of the admin:
// GET /profiling/ lists all profiles, GET /profiling/:id/ shows one, DELETE /profiling/ clears them.
func (r *Recorder) Register(group *echo.Group) {
	group.GET("/profiling/", func(c echo.Context) error {
		profiles := r.Profiles()
		for i := range profiles {
			profiles[i].Queries = nil
		}

		return c.JSON(http.StatusOK, map[string]any{ //nolint:wrapcheck // echo error is handled by the router
			"count":   len(profiles),
			"results": profiles,
		})
	})

	group.GET("/profiling/:id/", func(c echo.Context) error {
		p, err := r.Get(c.Param("id"))
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}

		return c.JSON(http.StatusOK, p) //nolint:wrapcheck // echo error is handled by the router
	})

	group.DELETE("/profiling/", func(c echo.Context) error {
		r.Clear()

		return c.NoContent(http.StatusNoContent) //nolint:wrapcheck // echo error is handled by the router
	})
}

// RegisterPprof serves the runtime profiles of net/http/pprof below /debug/pprof/.
// Only register it on an internal router, like the one of the status endpoint.
func RegisterPprof(router *echo.Echo) {
	router.GET("/debug/pprof/", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	router.GET("/debug/pprof/cmdline", echo.WrapHandler(http.HandlerFunc(pprof.Cmdline)))
	router.GET("/debug/pprof/profile", echo.WrapHandler(http.HandlerFunc(pprof.Profile)))
	router.GET("/debug/pprof/symbol", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
	router.POST("/debug/pprof/symbol", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
	router.GET("/debug/pprof/trace", echo.WrapHandler(http.HandlerFunc(pprof.Trace)))
	router.GET("/debug/pprof/:name", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
}
