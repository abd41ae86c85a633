package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/go-arrower/api/lockout"
)

var ErrAccountNotFound = errors.New("account not found")

// Account is the part of a user required to log in.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
}

// Accounts gives the login access to the users.
type Accounts interface {
	// AccountByUsername returns ErrAccountNotFound, if no user has the username.
	AccountByUsername(ctx context.Context, username string) (Account, error)
	// AccountByID returns ErrAccountNotFound, if no user has the id.
	AccountByID(ctx context.Context, id string) (Account, error)
	LoggedIn(ctx context.Context, id string, at time.Time) error
}

type credentials struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Next     string `json:"next"     form:"next"`
}

func NewController(
	logger *slog.Logger,
	accounts Accounts,
	hasher PasswordHasher,
	lock lockout.Handler,
	settings Settings,
) *Controller {
	return &Controller{
		logger:    logger,
		accounts:  accounts,
		hasher:    hasher,
		lockout:   lock,
		settings:  settings,
		dummyOnce: sync.Once{},
		dummyHash: "",
	}
}

// Controller handles the login and logout requests.
type Controller struct {
	logger   *slog.Logger
	accounts Accounts
	hasher   PasswordHasher
	lockout  lockout.Handler
	settings Settings

	// dummyHash is verified for unknown users and users without password.
	dummyOnce sync.Once
	dummyHash string
}

type loginResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (ctrl *Controller) Login() echo.HandlerFunc {
	return func(c echo.Context) error {
		var cred credentials
		if err := c.Bind(&cred); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid credentials.")
		}

		ctx := c.Request().Context()
		attempt := lockout.Attempt{
			Username:  cred.Username,
			IPAddress: c.RealIP(),
			UserAgent: c.Request().UserAgent(),
			Path:      c.Request().URL.Path,
		}

		locked, err := ctrl.lockout.IsLocked(ctx, attempt)
		if err != nil {
			return fmt.Errorf("could not check lockout: %w", err)
		}

		if locked {
			return echo.NewHTTPError(http.StatusForbidden, lockout.ErrLockedOut.Error())
		}

		account, err := ctrl.authenticate(ctx, cred)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrInvalidPassword) {
				if err := ctrl.lockout.UserLoginFailed(ctx, attempt); err != nil {
					return fmt.Errorf("could not record failed login: %w", err)
				}

				ctrl.logger.InfoContext(ctx, "login failed",
					slog.String("username", cred.Username),
					slog.String("ip_address", attempt.IPAddress),
				)

				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials.")
			}

			return err
		}

		if err := ctrl.lockout.UserLoggedIn(ctx, attempt); err != nil {
			return fmt.Errorf("could not reset lockout: %w", err)
		}

		if err := ctrl.startSession(c, account); err != nil {
			return err
		}

		if err := ctrl.accounts.LoggedIn(ctx, account.ID, time.Now().UTC()); err != nil {
			ctrl.logger.InfoContext(ctx, "could not record last login", slog.Any("err", err))
		}

		if !isJSON(c.Request()) {
			return c.Redirect(http.StatusSeeOther, safeRedirect(cred.Next, ctrl.settings.LoginRedirectURL))
		}

		return c.JSON(http.StatusOK, loginResponse{ID: account.ID, Username: account.Username})
	}
}

func (ctrl *Controller) authenticate(ctx context.Context, cred credentials) (Account, error) {
	account, err := ctrl.accounts.AccountByUsername(ctx, strings.TrimSpace(cred.Username))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			ctrl.hasher.Verify(ctrl.unusableHash(), cred.Password)
		}

		return Account{}, err //nolint:wrapcheck // ErrAccountNotFound is checked by the caller
	}

	hash := account.PasswordHash
	if hash == "" {
		hash = ctrl.unusableHash()
	}

	valid := ctrl.hasher.Verify(hash, cred.Password)
	if !valid || account.PasswordHash == "" || !account.IsActive {
		return Account{}, ErrInvalidPassword
	}

	return account, nil
}

func (ctrl *Controller) unusableHash() string {
	ctrl.dummyOnce.Do(func() {
		hash, err := ctrl.hasher.Hash("unusable password of the login")
		if err != nil {
			ctrl.logger.Warn("could not hash the unusable password", slog.Any("err", err))
			return
		}

		ctrl.dummyHash = hash
	})

	return ctrl.dummyHash
}

func (ctrl *Controller) startSession(c echo.Context, account Account) error {
	sess, err := session.Get(ctrl.settings.sessionName(), c)
	if err != nil && sess == nil {
		return fmt.Errorf("could not get session: %w", err)
	}

	sess.Values = map[any]any{}
	sess.Values[SessKeyUserID] = account.ID
	sess.Values[SessKeyIsStaff] = account.IsStaff
	sess.Values[SessKeyIsSuperuser] = account.IsSuperuser
	sess.Values[SessKeyLoggedInAt] = time.Now().UTC().Format(time.RFC3339)

	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return fmt.Errorf("could not save session: %w", err)
	}

	return nil
}

func (ctrl *Controller) Logout() echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := session.Get(ctrl.settings.sessionName(), c)
		if err == nil {
			sess.Options.MaxAge = -1
			sess.Values = map[any]any{}

			if err := sess.Save(c.Request(), c.Response()); err != nil {
				return fmt.Errorf("could not delete session: %w", err)
			}
		}

		if !isJSON(c.Request()) {
			return c.Redirect(http.StatusSeeOther, safeRedirect(c.QueryParam("next"), ctrl.settings.LoginURL))
		}

		return c.NoContent(http.StatusNoContent)
	}
}

// Register adds the login and logout routes below the login url, e.g. /admin/login/ and /admin/logout/.
func (ctrl *Controller) Register(router *echo.Echo) {
	login := ctrl.settings.LoginURL
	if login == "" {
		login = "/login/"
	}

	logout := strings.TrimSuffix(login, "/")
	logout = logout[:strings.LastIndex(logout, "/")+1] + "logout/"

	router.POST(login, ctrl.Login())
	router.POST(logout, ctrl.Logout())
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) ||
		strings.Contains(r.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

// safeRedirect only allows local paths, so the login can not be used as an open redirect.
func safeRedirect(next string, fallback string) string {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && !strings.Contains(next, "\\") {
		return next
	}

	if fallback == "" {
		return "/"
	}

	return fallback
}
