package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	apictx "github.com/go-arrower/api/ctx"
)

var ErrInvalidSessionValue = errors.New("invalid session value")

const (
	CtxIsStaff     apictx.CTXKey = "auth.is_staff"
	CtxIsSuperuser apictx.CTXKey = "auth.is_superuser"
)

const (
	SessKeyUserID      = "auth.user_id"
	SessKeyIsStaff     = "auth.is_staff"
	SessKeyIsSuperuser = "auth.is_superuser"
	SessKeyLoggedInAt  = "auth.logged_in_at"
)

// Settings are the values of the auth settings.
type Settings struct {
	PasswordHashCost    int
	PasswordMinLength   int
	SessionCookieName   string
	SessionCookieAge    time.Duration
	SessionCookieSecure bool
	LoginURL            string
	LoginRedirectURL    string
}

func (s Settings) sessionName() string {
	if s.SessionCookieName == "" {
		return "sessionid"
	}

	return s.SessionCookieName
}

// EnrichCtxWithUserInfoMiddleware puts the values of a logged-in user into the request's context,
// so they are available in other parts of the app. For convenience use the helpers like CurrentUserID.
// Requests without session pass unchanged.
func EnrichCtxWithUserInfoMiddleware(settings Settings) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, err := session.Get(settings.sessionName(), c)
			if err != nil { // invalid or outdated cookie => continue as anonymous
				return next(c)
			}

			if sess.Values[SessKeyUserID] == nil {
				return next(c)
			}

			userID, ok := sess.Values[SessKeyUserID].(string)
			if !ok {
				return fmt.Errorf("could not access user_id: %w", ErrInvalidSessionValue)
			}

			isStaff, _ := sess.Values[SessKeyIsStaff].(bool)
			isSuperuser, _ := sess.Values[SessKeyIsSuperuser].(bool)

			ctx := context.WithValue(c.Request().Context(), apictx.CtxAuthUserID, userID)
			ctx = context.WithValue(ctx, CtxIsStaff, isStaff)
			ctx = context.WithValue(ctx, CtxIsSuperuser, isSuperuser)

			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// RefreshAccountMiddleware reloads the account of the logged-in user on every request
// and takes IsStaff and IsSuperuser from it instead of the session.
// Requests of deleted or deactivated accounts continue as anonymous.
// It expects EnrichCtxWithUserInfoMiddleware to run before.
func RefreshAccountMiddleware(accounts Accounts) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			userID := CurrentUserID(ctx)
			if userID == "" {
				return next(c)
			}

			account, err := accounts.AccountByID(ctx, userID)
			if err != nil && !errors.Is(err, ErrAccountNotFound) {
				return fmt.Errorf("could not load account %s: %w", userID, err)
			}

			if err != nil || !account.IsActive {
				account = Account{} //nolint:exhaustruct // anonymous
			}

			ctx = context.WithValue(ctx, apictx.CtxAuthUserID, account.ID)
			ctx = context.WithValue(ctx, CtxIsStaff, account.IsStaff)
			ctx = context.WithValue(ctx, CtxIsSuperuser, account.IsSuperuser)

			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// EnsureLoggedIn makes sure the routes can only be accessed by a logged-in user.
// It expects EnrichCtxWithUserInfoMiddleware to run before.
func EnsureLoggedIn(settings Settings) echo.MiddlewareFunc {
	return ensure(settings, func(ctx context.Context) bool { return IsLoggedIn(ctx) })
}

// EnsureStaff makes sure the routes can only be accessed by staff users, e.g. the admin.
// It expects EnrichCtxWithUserInfoMiddleware to run before.
func EnsureStaff(settings Settings) echo.MiddlewareFunc {
	return ensure(settings, func(ctx context.Context) bool { return IsLoggedIn(ctx) && IsStaff(ctx) })
}

func ensure(settings Settings, passes func(context.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if passes(c.Request().Context()) {
				return next(c)
			}

			if !IsLoggedIn(c.Request().Context()) && wantsHTML(c.Request()) && settings.LoginURL != "" {
				return c.Redirect(http.StatusSeeOther, settings.LoginURL+"?next="+url.QueryEscape(c.Request().URL.RequestURI()))
			}

			if !IsLoggedIn(c.Request().Context()) {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication credentials were not provided.")
			}

			return echo.NewHTTPError(http.StatusForbidden, "You do not have permission to perform this action.")
		}
	}
}

func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}

func IsLoggedIn(ctx context.Context) bool {
	return CurrentUserID(ctx) != ""
}

func CurrentUserID(ctx context.Context) string {
	if v, ok := ctx.Value(apictx.CtxAuthUserID).(string); ok {
		return v
	}

	return ""
}

func IsStaff(ctx context.Context) bool {
	if v, ok := ctx.Value(CtxIsStaff).(bool); ok {
		return v
	}

	return false
}

func IsSuperuser(ctx context.Context) bool {
	if v, ok := ctx.Value(CtxIsSuperuser).(bool); ok {
		return v
	}

	return false
}
