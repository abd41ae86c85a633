package profiling_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arrower/api/profiling"
)

func TestRecorder_Middleware(t *testing.T) {
	t.Parallel()

	t.Run("record request", func(t *testing.T) {
		t.Parallel()

		rec := profiling.NewRecorder(profiling.Options{})
		e := newServer(rec)

		serve(e, http.MethodGet, "/users/1")

		profiles := rec.Profiles()
		require.Len(t, profiles, 1)
		assert.Equal(t, http.MethodGet, profiles[0].Method)
		assert.Equal(t, "/users/1", profiles[0].Path)
		assert.Equal(t, "/users/:id", profiles[0].Route)
		assert.Equal(t, http.StatusOK, profiles[0].Status)
		assert.False(t, profiles[0].StartedAt.IsZero())
	})

	t.Run("status of errors", func(t *testing.T) {
		t.Parallel()

		rec := profiling.NewRecorder(profiling.Options{})
		e := newServer(rec)

		serve(e, http.MethodGet, "/teapot")
		serve(e, http.MethodGet, "/fail")

		profiles := rec.Profiles()
		require.Len(t, profiles, 2)
		assert.Equal(t, http.StatusInternalServerError, profiles[0].Status, "latest first")
		assert.Equal(t, http.StatusTeapot, profiles[1].Status)
	})

	t.Run("keep the latest requests only", func(t *testing.T) {
		t.Parallel()

		rec := profiling.NewRecorder(profiling.Options{MaxRequests: 2})
		e := newServer(rec)

		serve(e, http.MethodGet, "/users/1")
		serve(e, http.MethodGet, "/users/2")
		serve(e, http.MethodGet, "/users/3")

		profiles := rec.Profiles()
		require.Len(t, profiles, 2)
		assert.Equal(t, "/users/3", profiles[0].Path)
		assert.Equal(t, "/users/2", profiles[1].Path)
	})

	t.Run("skip", func(t *testing.T) {
		t.Parallel()

		rec := profiling.NewRecorder(profiling.Options{Skipper: func(echo.Context) bool { return true }})
		e := newServer(rec)

		serve(e, http.MethodGet, "/users/1")

		assert.Empty(t, rec.Profiles())
	})
}

func TestRecorder_QueryTracer(t *testing.T) {
	t.Parallel()

	t.Run("count queries of the request", func(t *testing.T) {
		t.Parallel()

		rec := profiling.NewRecorder(profiling.Options{InterceptSQL: true})
		tracer := rec.QueryTracer()

		e := echo.New()
		e.Use(rec.Middleware())
		e.GET("/", func(c echo.Context) error {
			ctx := c.Request().Context()

			qctx := tracer.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
			tracer.TraceQueryEnd(qctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("SELECT 1")})

			qctx = tracer.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT broken"})
			tracer.TraceQueryEnd(qctx, nil, pgx.TraceQueryEndData{Err: errors.New("syntax error")})

			return c.NoContent(http.StatusOK)
		})

		serve(e, http.MethodGet, "/")

		profiles := rec.Profiles()
		require.Len(t, profiles, 1)
		assert.Equal(t, 2, profiles[0].NumQuery)
		require.Len(t, profiles[0].Queries, 2)
		assert.Equal(t, "SELECT 1", profiles[0].Queries[0].SQL)
		assert.Equal(t, int64(1), profiles[0].Queries[0].Rows)
		assert.Equal(t, "syntax error", profiles[0].Queries[1].Error)
	})

	t.Run("without intercept", func(t *testing.T) {
		t.Parallel()

		rec := profiling.NewRecorder(profiling.Options{InterceptSQL: false})
		tracer := rec.QueryTracer()

		e := echo.New()
		e.Use(rec.Middleware())
		e.GET("/", func(c echo.Context) error {
			qctx := tracer.TraceQueryStart(c.Request().Context(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
			tracer.TraceQueryEnd(qctx, nil, pgx.TraceQueryEndData{})

			return c.NoContent(http.StatusOK)
		})

		serve(e, http.MethodGet, "/")

		profiles := rec.Profiles()
		require.Len(t, profiles, 1)
		assert.Equal(t, 1, profiles[0].NumQuery)
		assert.Empty(t, profiles[0].Queries)
	})

	t.Run("outside of a request", func(t *testing.T) {
		t.Parallel()

		tracer := profiling.NewRecorder(profiling.Options{}).QueryTracer()

		ctx := context.Background()
		assert.Equal(t, ctx, tracer.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{}))
		tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})
	})
}

func TestRecorder_Register(t *testing.T) {
	t.Parallel()

	rec := profiling.NewRecorder(profiling.Options{Skipper: func(c echo.Context) bool {
		return strings.HasPrefix(c.Request().URL.Path, "/admin/")
	}})
	e := newServer(rec)
	rec.Register(e.Group("/admin"))

	serve(e, http.MethodGet, "/users/1")

	res := serve(e, http.MethodGet, "/admin/profiling/")
	require.Equal(t, http.StatusOK, res.Code)

	var list struct {
		Results []profiling.Profile `json:"results"`
		Count   int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)

	id := list.Results[0].ID.String()

	res = serve(e, http.MethodGet, "/admin/profiling/"+id+"/")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"path":"/users/1"`)

	res = serve(e, http.MethodGet, "/admin/profiling/invalid/")
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = serve(e, http.MethodDelete, "/admin/profiling/")
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.Empty(t, rec.Profiles())
}

func TestRegisterPprof(t *testing.T) {
	t.Parallel()

	e := echo.New()
	profiling.RegisterPprof(e)

	res := serve(e, http.MethodGet, "/debug/pprof/")
	assert.Equal(t, http.StatusOK, res.Code)

	res = serve(e, http.MethodGet, "/debug/pprof/goroutine?debug=1")
	assert.Equal(t, http.StatusOK, res.Code)
}

func newServer(rec *profiling.Recorder) *echo.Echo {
	e := echo.New()
	e.Use(rec.Middleware())

	e.GET("/users/:id", func(c echo.Context) error { return c.String(http.StatusOK, c.Param("id")) })
	e.GET("/teapot", func(echo.Context) error { return echo.NewHTTPError(http.StatusTeapot) })
	e.GET("/fail", func(echo.Context) error { return errors.New("internal") })

	return e
}

func serve(e *echo.Echo, method string, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	return rec
}
