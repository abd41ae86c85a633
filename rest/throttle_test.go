package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apictx "github.com/go-arrower/api/ctx"
)

func TestThrottler_Sweep(t *testing.T) {
	t.Parallel()

	th, err := newThrottler(map[string]string{ScopeAnon: "1/minute", ScopeUser: "10/hour"})
	require.NoError(t, err)

	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return now }
	th.lastSweep = now

	e := echo.New()
	e.Use(th.middleware)
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	do := func(ip string, userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderXRealIP, ip)

		if userID != "" {
			req = req.WithContext(context.WithValue(req.Context(), apictx.CtxAuthUserID, userID))
		}

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		return rec.Code
	}

	for i := range 100 {
		assert.Equal(t, http.StatusOK, do("10.0.0."+strconv.Itoa(i), ""))
	}

	assert.Equal(t, http.StatusOK, do("", "1337"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1", ""))
	assert.Len(t, th.limiters, 101)

	now = now.Add(time.Minute)

	assert.Equal(t, http.StatusOK, do("10.0.0.1", ""), "bucket refilled after the period")
	assert.Len(t, th.limiters, 2, "idle anon limiters are dropped, the user limiter is kept")

	now = now.Add(time.Hour)

	do("10.0.0.2", "")
	assert.Len(t, th.limiters, 1)
}
