package user_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/go-arrower/api/aassert"
	"github.com/go-arrower/api/admin"
	"github.com/go-arrower/api/alog"
	"github.com/go-arrower/api/apps"
	"github.com/go-arrower/api/auth"
	"github.com/go-arrower/api/cache"
	apictx "github.com/go-arrower/api/ctx"
	"github.com/go-arrower/api/jobs"
	"github.com/go-arrower/api/lockout"
	"github.com/go-arrower/api/rest"
	"github.com/go-arrower/api/schema"
	"github.com/go-arrower/api/storage"
	"github.com/go-arrower/api/user"
)

var defaultREST = rest.Settings{PageSize: 2, MaxPageSize: 10, ThrottleRates: nil}

func TestAppConfig(t *testing.T) {
	t.Parallel()

	var cfg apps.Config = &user.AppConfig{}

	assert.Equal(t, "api.user", cfg.Name())
	assert.Equal(t, "user", cfg.Label())
	assert.Implements(t, (*apps.Config)(nil), &user.AppConfig{})
}

func TestAppConfig_Ready(t *testing.T) {
	t.Parallel()

	t.Run("register with the deps", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)

		assert.True(t, env.deps.Admin.IsRegistered("user", "user"))
		assert.True(t, hasRoute(env.router, http.MethodGet, "/api/users/"))
		assert.True(t, hasRoute(env.router, http.MethodGet, "/api/users/:id/"))
		assert.True(t, hasRoute(env.router, http.MethodPost, "/api/users/export/"))
		assert.True(t, hasRoute(env.router, http.MethodGet, "/api/users/exports/"))
		assert.True(t, hasRoute(env.router, http.MethodGet, "/api/users/exports/:name"))
		assert.True(t, hasRoute(env.router, http.MethodPost, "/login/"))
		assert.True(t, hasRoute(env.router, http.MethodPost, "/logout/"))

		doc := env.deps.Schema.Build(env.router.Routes())
		assert.Contains(t, doc.Paths, "/api/users/{id}/")
		assert.Contains(t, doc.Components.Schemas, "User")
	})

	t.Run("without optional deps", func(t *testing.T) {
		t.Parallel()

		router := echo.New()
		cfg := &user.AppConfig{}

		err := cfg.Ready(context.Background(), &apps.Deps{Logger: alog.NewNoop(), Router: router})
		require.NoError(t, err)

		assert.IsType(t, &user.MemoryRepository{}, cfg.Repository)
		assert.Empty(t, router.Routes())
	})

	t.Run("admin registered twice", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)

		err := (&user.AppConfig{}).Ready(context.Background(), &apps.Deps{Admin: env.deps.Admin})
		assert.ErrorIs(t, err, admin.ErrAlreadyRegistered)
	})
}

func TestController_List(t *testing.T) {
	t.Parallel()

	t.Run("anonymous", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)

		rec := env.do(http.MethodGet, "/api/users/", "", false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("paginated", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "ann", "bob", "cid")

		rec := env.do(http.MethodGet, "/api/users/", env.ids[0], false)
		require.Equal(t, http.StatusOK, rec.Code)

		var page listPage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))

		assert.Equal(t, 3, page.Count)
		assert.Len(t, page.Results, 2)
		assert.Equal(t, "ann", page.Results[0].Username)
		assert.NotNil(t, page.Next)
		assert.NotContains(t, rec.Body.String(), "password", "never expose the hash")

		rec = env.do(http.MethodGet, "/api/users/?page=2", env.ids[0], false)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Len(t, page.Results, 1)
		assert.Equal(t, "cid", page.Results[0].Username)
		assert.Nil(t, page.Next)
	})

	t.Run("search", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "ann", "bob", "cid")

		rec := env.do(http.MethodGet, "/api/users/?search=BO", env.ids[0], false)
		require.Equal(t, http.StatusOK, rec.Code)

		var page listPage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Equal(t, 1, page.Count)
		assert.Equal(t, "bob", page.Results[0].Username)
	})

	t.Run("invalid page", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "ann")

		rec := env.do(http.MethodGet, "/api/users/?page=0", env.ids[0], false)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestController_Detail(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "ann")

	rec := env.do(http.MethodGet, "/api/users/"+env.ids[0]+"/", env.ids[0], false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"ann"`)

	rec = env.do(http.MethodGet, "/api/users/"+user.NewID()+"/", env.ids[0], false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestController_Export(t *testing.T) {
	t.Parallel()

	t.Run("staff only", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "ann")

		rec := env.do(http.MethodPost, "/api/users/export/", env.ids[0], false)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		env.queue.Empty()
	})

	t.Run("export to storage", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "ann", "bob")

		rec := env.do(http.MethodPost, "/api/users/export/", env.ids[0], true)
		require.Equal(t, http.StatusAccepted, rec.Code)
		env.queue.Queued(user.ExportUsers{}, 1)

		env.queue.Process(context.Background())

		files, err := env.store.List(context.Background(), "exports")
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.True(t, strings.HasPrefix(files[0], "exports/users-"))
		assert.Equal(t, "", env.store.URL(files[0]), "exports are not served")
	})

	t.Run("list and download", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "ann", "bob")
		_, err := env.store.Save(context.Background(), "exports/users-1.csv", strings.NewReader("id,username\n"))
		require.NoError(t, err)

		rec := env.do(http.MethodGet, "/api/users/exports/", env.ids[1], false)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.do(http.MethodGet, "/api/users/exports/users-1.csv", env.ids[1], false)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.do(http.MethodGet, "/api/users/exports/", env.ids[0], true)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"exports":["users-1.csv"]}`, rec.Body.String())

		rec = env.do(http.MethodGet, "/api/users/exports/users-1.csv", env.ids[0], true)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "id,username\n", rec.Body.String())
		assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "users-1.csv")

		rec = env.do(http.MethodGet, "/api/users/exports/.hidden", env.ids[0], true)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = env.do(http.MethodGet, "/api/users/exports/missing.csv", env.ids[0], true)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("staff flag follows the repository", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "ann")

		req := httptest.NewRequest(http.MethodGet, "/api/users/exports/", nil)
		req.Header.Set("X-Test-User", env.ids[0])
		req.Header.Set("X-Test-Staff", "true")

		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code, "a stale staff flag is replaced by the stored one")
	})
}

func TestExportUsersFunc(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := user.NewMemoryRepository()
	store := storage.NewFileStorage(afero.NewMemMapFs(), "/media/")

	for i, name := range []string{"ann", "bob", "cid"} {
		u := user.NewUser(name, name+"@example.com")
		u.DateJoined = u.DateJoined.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, u))
	}

	err := user.ExportUsersFunc(repo, store)(ctx, user.ExportUsers{})
	require.NoError(t, err)

	files, err := store.List(ctx, "exports")
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := store.Open(ctx, files[0])
	require.NoError(t, err)
	defer f.Close()

	var content strings.Builder
	_, err = io.Copy(&content, f)
	require.NoError(t, err)

	aassert.NumFields(t, 11, user.User{}, "update the export columns")

	lines := strings.Split(strings.TrimSpace(content.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "id,username,email"))
	assert.Contains(t, lines[1], ",ann,ann@example.com,")
	assert.Contains(t, lines[3], ",cid,cid@example.com,")
}

type listPage struct {
	Next    *string     `json:"next"`
	Results []user.User `json:"results"`
	Count   int         `json:"count"`
}

type testEnv struct {
	t      *testing.T
	deps   *apps.Deps
	router *echo.Echo
	queue  *jobs.TestQueue
	repo   *user.MemoryRepository
	store  *storage.FileStorage
	ids    []string
}

// newTestEnv readies the user app with in memory deps and creates a user for each of the usernames.
func newTestEnv(t *testing.T, usernames ...string) *testEnv {
	t.Helper()

	router := echo.New()
	router.HTTPErrorHandler = rest.HTTPErrorHandler(alog.NewNoop())
	router.Use(loginFromHeader)

	lock, err := lockout.NewCacheHandler(alog.NewNoop(), cache.NewLocMem(cache.Options{}), lockout.Settings{})
	require.NoError(t, err)

	queue := jobs.Test(t)

	store, err := storage.NewPrivate(storage.Options{Backend: storage.BackendMemory})
	require.NoError(t, err)

	deps := &apps.Deps{
		Logger:        alog.NewNoop(),
		TraceProvider: tracenoop.NewTracerProvider(),
		MeterProvider: metricnoop.NewMeterProvider(),
		Router:        router,
		API:           router.Group("/api"),
		REST:          defaultREST,
		Schema:        schema.New(schema.Options{}),
		Admin:         admin.NewSite(alog.NewNoop()),
		Auth:          auth.Settings{},
		Hasher:        auth.NewBcryptHasher(4),
		Lockout:       lock,
		Queue:         queue,
		Storage:       storage.NewFileStorage(afero.NewMemMapFs(), "/media/"),
		Private:       store,
	}

	repo := user.NewMemoryRepository()
	require.NoError(t, (&user.AppConfig{Repository: repo}).Ready(context.Background(), deps))

	env := &testEnv{t: t, deps: deps, router: router, queue: queue, repo: repo, store: store}

	for i, name := range usernames {
		u := user.NewUser(name, name+"@example.com")
		u.DateJoined = u.DateJoined.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(context.Background(), u))

		env.ids = append(env.ids, u.ID)
	}

	return env
}

func (env *testEnv) do(method string, target string, userID string, staff bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)

	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}

	if staff {
		env.t.Helper()

		u, err := env.repo.FindByID(context.Background(), userID)
		require.NoError(env.t, err)

		u.IsStaff = true
		require.NoError(env.t, env.repo.Save(context.Background(), u))
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	return rec
}

// loginFromHeader replaces the session in tests.
// The flags are reloaded from the repository by the app's middleware.
func loginFromHeader(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get("X-Test-User")
		if id == "" {
			return next(c)
		}

		ctx := context.WithValue(c.Request().Context(), apictx.CtxAuthUserID, id)
		ctx = context.WithValue(ctx, auth.CtxIsStaff, c.Request().Header.Get("X-Test-Staff") == "true")
		c.SetRequest(c.Request().WithContext(ctx))

		return next(c)
	}
}

func hasRoute(router *echo.Echo, method string, path string) bool {
	for _, r := range router.Routes() {
		if r.Method == method && r.Path == path {
			return true
		}
	}

	return false
}
