// Package mw contains the http middleware of the api routers:
// security headers, allowed hosts, request ids and logging, panic recovery and metrics.
package mw

import (
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SecuritySettings are the values of the security settings.
type SecuritySettings struct {
	// AllowedHosts are the host names the api serves. A leading dot matches all subdomains,
	// "*" matches any host. If empty, only localhost is allowed.
	AllowedHosts         []string
	CSRFTrustedOrigins   []string
	CORSAllowedOrigins   []string
	SSLRedirect          bool
	HSTSSeconds          int
	HSTSIncludeSubdomain bool
	ContentTypeNosniff   bool
	XFrameOptions        string
	CookieSecure         bool
}

// Security returns the middleware protecting all routes, in the order they have to be used.
func Security(settings SecuritySettings) []echo.MiddlewareFunc {
	mws := []echo.MiddlewareFunc{AllowedHosts(settings.AllowedHosts)}

	if settings.SSLRedirect {
		mws = append(mws, middleware.HTTPSRedirect())
	}

	nosniff := ""
	if settings.ContentTypeNosniff {
		nosniff = "nosniff"
	}

	mws = append(mws, middleware.SecureWithConfig(middleware.SecureConfig{
		Skipper:               middleware.DefaultSkipper,
		XSSProtection:         "",
		ContentTypeNosniff:    nosniff,
		XFrameOptions:         settings.XFrameOptions,
		HSTSMaxAge:            settings.HSTSSeconds,
		HSTSExcludeSubdomains: !settings.HSTSIncludeSubdomain,
		ContentSecurityPolicy: "",
		CSPReportOnly:         false,
		HSTSPreloadEnabled:    false,
		ReferrerPolicy:        "same-origin",
	}))

	if len(settings.CORSAllowedOrigins) > 0 {
		mws = append(mws, middleware.CORSWithConfig(middleware.CORSConfig{ //nolint:exhaustruct // defaults of echo
			AllowOrigins:     settings.CORSAllowedOrigins,
			AllowCredentials: true,
		}))
	}

	return mws
}

// CSRF protects the routes using the session cookie, e.g. the admin.
// The token is expected in the header X-CSRFToken or the form field csrfmiddlewaretoken.
// Requests with an Origin listed in CSRFTrustedOrigins pass without token.
func CSRF(settings SecuritySettings) echo.MiddlewareFunc {
	return middleware.CSRFWithConfig(middleware.CSRFConfig{ //nolint:exhaustruct // defaults of echo
		Skipper: func(c echo.Context) bool {
			origin := c.Request().Header.Get(echo.HeaderOrigin)

			return origin != "" && slices.Contains(settings.CSRFTrustedOrigins, origin)
		},
		TokenLookup:    "header:X-CSRFToken,form:csrfmiddlewaretoken",
		CookieName:     "csrftoken",
		CookiePath:     "/",
		CookieSecure:   settings.CookieSecure,
		CookieHTTPOnly: false,
		CookieSameSite: http.SameSiteLaxMode,
		ContextKey:     "csrf",
	})
}

// AllowedHosts rejects requests for a host not in hosts with 400 Bad Request.
func AllowedHosts(hosts []string) echo.MiddlewareFunc {
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1", "::1"}
	}

	allowed := make([]string, 0, len(hosts))
	for _, h := range hosts {
		allowed = append(allowed, strings.ToLower(strings.TrimSpace(h)))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !isAllowedHost(c.Request().Host, allowed) {
				return echo.NewHTTPError(http.StatusBadRequest, "Invalid HTTP_HOST header.")
			}

			return next(c)
		}
	}
}

func isAllowedHost(host string, allowed []string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "" {
		return false
	}

	for _, pattern := range allowed {
		switch {
		case pattern == "*":
			return true
		case strings.HasPrefix(pattern, "."):
			if host == pattern[1:] || strings.HasSuffix(host, pattern) {
				return true
			}
		case host == pattern:
			return true
		}
	}

	return false
}
