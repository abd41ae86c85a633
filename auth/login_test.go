package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/go-arrower/api/alog"
	"github.com/go-arrower/api/auth"
	"github.com/go-arrower/api/cache"
	"github.com/go-arrower/api/lockout"
)

var settings = auth.Settings{ //nolint:gochecknoglobals // read only in tests
	PasswordHashCost:  bcrypt.MinCost,
	PasswordMinLength: 8,
	LoginURL:          "/admin/login/",
	LoginRedirectURL:  "/admin/",
}

const password = "correct-horse-battery"

type accounts struct {
	mu       sync.Mutex
	accounts map[string]auth.Account
	logins   map[string]time.Time
}

func newAccounts(t *testing.T, accs ...auth.Account) *accounts {
	t.Helper()

	hash, err := auth.NewBcryptHasher(bcrypt.MinCost).Hash(password)
	require.NoError(t, err)

	a := &accounts{accounts: map[string]auth.Account{}, logins: map[string]time.Time{}}
	for _, acc := range accs {
		acc.PasswordHash = hash
		a.accounts[acc.Username] = acc
	}

	return a
}

func (a *accounts) AccountByUsername(_ context.Context, username string) (auth.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	acc, ok := a.accounts[username]
	if !ok {
		return auth.Account{}, auth.ErrAccountNotFound
	}

	return acc, nil
}

func (a *accounts) AccountByID(_ context.Context, id string) (auth.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, acc := range a.accounts {
		if acc.ID == id {
			return acc, nil
		}
	}

	return auth.Account{}, auth.ErrAccountNotFound
}

func (a *accounts) update(username string, change func(acc *auth.Account)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	acc := a.accounts[username]
	change(&acc)
	a.accounts[username] = acc
}

func (a *accounts) delete(username string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.accounts, username)
}

func (a *accounts) LoggedIn(_ context.Context, id string, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logins[id] = at

	return nil
}

func (a *accounts) loggedIn(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.logins[id]

	return ok
}

func newServer(t *testing.T, accs auth.Accounts) *echo.Echo {
	t.Helper()

	return newServerWithHasher(t, accs, auth.NewBcryptHasher(bcrypt.MinCost))
}

func newServerWithHasher(t *testing.T, accs auth.Accounts, hasher auth.PasswordHasher) *echo.Echo {
	t.Helper()

	lock, err := lockout.NewCacheHandler(alog.NewNoop(), cache.NewLocMem(cache.Options{}), lockout.Settings{
		Enabled:        true,
		FailureLimit:   2,
		CoolOffTime:    time.Minute,
		Parameters:     []string{lockout.ParamUsername},
		ResetOnSuccess: true,
	})
	require.NoError(t, err)

	e := echo.New()
	e.Use(session.Middleware(auth.NewCookieStore(settings, []byte("0123456789abcdef0123456789abcdef"))))
	e.Use(auth.EnrichCtxWithUserInfoMiddleware(settings), auth.RefreshAccountMiddleware(accs))

	ctrl := auth.NewController(alog.NewNoop(), accs, hasher, lock, settings)
	ctrl.Register(e)

	e.GET("/admin/", func(c echo.Context) error {
		return c.String(http.StatusOK, auth.CurrentUserID(c.Request().Context()))
	}, auth.EnsureStaff(settings))
	e.GET("/profile/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, auth.EnsureLoggedIn(settings))

	return e
}

func login(e *echo.Echo, username string, pw string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/admin/login/",
		strings.NewReader(`{"username":"`+username+`","password":"`+pw+`"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec
}

func get(e *echo.Echo, path string, cookies []*http.Cookie, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(echo.HeaderAccept, accept)

	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec
}

func TestController_Login(t *testing.T) {
	t.Parallel()

	t.Run("login staff", func(t *testing.T) {
		t.Parallel()

		accs := newAccounts(t, auth.Account{ID: "1", Username: "admin", IsActive: true, IsStaff: true})
		e := newServer(t, accs)

		rec := login(e, "admin", password)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"username":"admin"`)
		assert.True(t, accs.loggedIn("1"))

		rec = get(e, "/admin/", rec.Result().Cookies(), echo.MIMEApplicationJSON)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "1", rec.Body.String())
	})

	t.Run("wrong password", func(t *testing.T) {
		t.Parallel()

		accs := newAccounts(t, auth.Account{ID: "1", Username: "admin", IsActive: true})
		e := newServer(t, accs)

		rec := login(e, "admin", "wrong")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, rec.Result().Cookies())
		assert.False(t, accs.loggedIn("1"))
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()

		e := newServer(t, newAccounts(t))

		rec := login(e, "nobody", password)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown user is compared against a hash", func(t *testing.T) {
		t.Parallel()

		hasher := &countingHasher{BcryptHasher: auth.NewBcryptHasher(bcrypt.MinCost)}
		e := newServerWithHasher(t, newAccounts(t, auth.Account{ID: "1", Username: "admin", IsActive: true}), hasher)

		rec := login(e, "nobody", password)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 1, hasher.verified())

		login(e, "admin", "wrong")
		assert.Equal(t, 2, hasher.verified())
	})

	t.Run("user without password", func(t *testing.T) {
		t.Parallel()

		accs := newAccounts(t, auth.Account{ID: "1", Username: "admin", IsActive: true})
		accs.update("admin", func(acc *auth.Account) { acc.PasswordHash = "" })
		e := newServer(t, accs)

		rec := login(e, "admin", "unusable password of the login")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("inactive user", func(t *testing.T) {
		t.Parallel()

		e := newServer(t, newAccounts(t, auth.Account{ID: "1", Username: "admin", IsActive: false}))

		rec := login(e, "admin", password)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("locked out after failures", func(t *testing.T) {
		t.Parallel()

		e := newServer(t, newAccounts(t, auth.Account{ID: "1", Username: "admin", IsActive: true}))

		login(e, "admin", "wrong")
		login(e, "admin", "wrong")

		rec := login(e, "admin", password)
		assert.Equal(t, http.StatusForbidden, rec.Code, "correct password is refused while locked")
	})

	t.Run("form login redirects", func(t *testing.T) {
		t.Parallel()

		e := newServer(t, newAccounts(t, auth.Account{ID: "1", Username: "admin", IsActive: true}))

		form := url.Values{"username": {"admin"}, "password": {password}, "next": {"//evil.example.com"}}
		req := httptest.NewRequest(http.MethodPost, "/admin/login/", strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/admin/", rec.Header().Get(echo.HeaderLocation))
	})
}

func TestController_Logout(t *testing.T) {
	t.Parallel()

	e := newServer(t, newAccounts(t, auth.Account{ID: "1", Username: "admin", IsActive: true}))

	rec := login(e, "admin", password)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/admin/logout/", nil)
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)

	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestEnsure(t *testing.T) {
	t.Parallel()

	t.Run("anonymous api request", func(t *testing.T) {
		t.Parallel()

		e := newServer(t, newAccounts(t))

		rec := get(e, "/profile/", nil, echo.MIMEApplicationJSON)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("anonymous browser is redirected to login", func(t *testing.T) {
		t.Parallel()

		e := newServer(t, newAccounts(t))

		rec := get(e, "/admin/", nil, echo.MIMETextHTML)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/admin/login/?next=%2Fadmin%2F", rec.Header().Get(echo.HeaderLocation))
	})

	t.Run("logged in without staff", func(t *testing.T) {
		t.Parallel()

		e := newServer(t, newAccounts(t, auth.Account{ID: "1", Username: "user", IsActive: true}))

		cookies := login(e, "user", password).Result().Cookies()

		rec := get(e, "/profile/", cookies, echo.MIMEApplicationJSON)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = get(e, "/admin/", cookies, echo.MIMETextHTML)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestRefreshAccountMiddleware(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		change func(accs *accounts)
		code   int
	}{
		"unchanged": {func(*accounts) {}, http.StatusOK},
		"demoted": {func(accs *accounts) {
			accs.update("admin", func(acc *auth.Account) { acc.IsStaff = false })
		}, http.StatusForbidden},
		"deactivated": {func(accs *accounts) {
			accs.update("admin", func(acc *auth.Account) { acc.IsActive = false })
		}, http.StatusUnauthorized},
		"deleted": {func(accs *accounts) { accs.delete("admin") }, http.StatusUnauthorized},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			accs := newAccounts(t, auth.Account{ID: "1", Username: "admin", IsActive: true, IsStaff: true})
			e := newServer(t, accs)

			cookies := login(e, "admin", password).Result().Cookies()
			require.Equal(t, http.StatusOK, get(e, "/admin/", cookies, echo.MIMEApplicationJSON).Code)

			tt.change(accs)

			rec := get(e, "/admin/", cookies, echo.MIMEApplicationJSON)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

type countingHasher struct {
	*auth.BcryptHasher

	mu    sync.Mutex
	count int
}

func (h *countingHasher) Verify(hash string, raw string) bool {
	h.mu.Lock()
	h.count++
	h.mu.Unlock()

	return h.BcryptHasher.Verify(hash, raw)
}

func (h *countingHasher) verified() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.count
}

func TestCurrentUserID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.False(t, auth.IsLoggedIn(ctx))
	assert.False(t, auth.IsStaff(ctx))
	assert.False(t, auth.IsSuperuser(ctx))
	assert.Equal(t, "", auth.CurrentUserID(ctx))
}
