package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arrower/api/alog"
	"github.com/go-arrower/api/storage"
)

func TestStatusRouter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	conf, err := Compose(WithOverrideDir(""), WithEnvPrefix(""))
	require.NoError(t, err)

	conf.Environment = TestEnv
	conf.Storage.Backend = storage.BackendMemory
	conf.Profiling.PprofEndpoint = true

	dc, err := InitialiseDependencies(ctx, conf, WithoutDatabase(), WithLogger(alog.NewNoop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dc.Shutdown(ctx) })

	router := newStatusRouter(dc)

	t.Run("status", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, statusPath, nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		var status systemStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, statusOnline, status.Status)
		assert.Equal(t, []string{"user"}, status.Apps)
		assert.Equal(t, TestEnv, status.Environment)
		assert.Nil(t, status.Database)
	})

	t.Run("metrics", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, metricPath, nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})

	t.Run("pprof", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestGetSystemStatus_NotReady(t *testing.T) {
	t.Parallel()

	dc := &Container{Config: &Config{ApplicationName: "api"}} //nolint:exhaustruct // only the config is required

	status := getSystemStatus(context.Background(), dc)

	assert.Equal(t, statusStarting, status.Status)
	assert.Equal(t, "api", status.ApplicationName)
	assert.Empty(t, status.Apps)
}
