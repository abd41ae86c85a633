package rest

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	apictx "github.com/go-arrower/api/ctx"
)

const (
	ScopeAnon = "anon"
	ScopeUser = "user"
)

var ErrInvalidRate = errors.New("invalid throttle rate")

// Rate is a number of requests allowed per period.
type Rate struct {
	Period   time.Duration
	Requests int
}

// ParseRate parses rates like "100/day", "10/m" or "5/second".
func ParseRate(s string) (Rate, error) {
	num, period, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Rate{}, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}

	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return Rate{}, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}

	if period == "" {
		return Rate{}, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}

	var d time.Duration

	switch period[0] {
	case 's':
		d = time.Second
	case 'm':
		d = time.Minute
	case 'h':
		d = time.Hour
	case 'd':
		d = 24 * time.Hour //nolint:mnd // hours of a day
	default:
		return Rate{}, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}

	return Rate{Requests: n, Period: d}, nil
}

func (r Rate) limit() rate.Limit {
	return rate.Every(r.Period / time.Duration(r.Requests))
}

// Throttle limits the requests per client with a token bucket.
// Authenticated requests are keyed by the user id and use the user rate,
// all other requests are keyed by the client ip and use the anon rate.
// A scope without rate is not throttled.
func Throttle(rates map[string]string) (echo.MiddlewareFunc, error) {
	t, err := newThrottler(rates)
	if err != nil {
		return nil, err
	}

	return t.middleware, nil
}

func newThrottler(rates map[string]string) (*throttler, error) {
	t := &throttler{
		mu:        sync.Mutex{},
		rates:     map[string]Rate{},
		limiters:  map[string]*limiter{},
		now:       time.Now,
		lastSweep: time.Now(),
	}

	for scope, raw := range rates {
		r, err := ParseRate(raw)
		if err != nil {
			return nil, fmt.Errorf("%w for scope %s", err, scope)
		}

		t.rates[scope] = r
	}

	return t, nil
}

type throttler struct {
	mu       sync.Mutex
	rates    map[string]Rate
	limiters map[string]*limiter

	now       func() time.Time
	lastSweep time.Time
}

// limiter is idle, after its period passed without a request.
// Its bucket is full again, so it is dropped.
type limiter struct {
	*rate.Limiter

	period   time.Duration
	lastSeen time.Time
}

func (t *throttler) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		scope, ident := ScopeAnon, c.RealIP()
		if userID, ok := c.Request().Context().Value(apictx.CtxAuthUserID).(string); ok && userID != "" {
			scope, ident = ScopeUser, userID
		}

		r, ok := t.rates[scope]
		if !ok {
			return next(c)
		}

		l := t.limiter(scope+":"+ident, r)

		if !l.AllowN(t.now(), 1) {
			wait := time.Duration(float64(time.Second) / float64(l.Limit()))
			c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))

			return echo.NewHTTPError(http.StatusTooManyRequests, "Request was throttled.")
		}

		return next(c)
	}
}

func (t *throttler) limiter(key string, r Rate) *limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.sweep(now)

	l, ok := t.limiters[key]
	if !ok {
		l = &limiter{Limiter: rate.NewLimiter(r.limit(), r.Requests), period: r.Period, lastSeen: now}
		t.limiters[key] = l
	}

	l.lastSeen = now

	return l
}

// sweep removes the idle limiters, at most once per shortest period.
func (t *throttler) sweep(now time.Time) {
	interval := time.Duration(math.MaxInt64)
	for _, r := range t.rates {
		interval = min(interval, r.Period)
	}

	if now.Sub(t.lastSweep) < interval {
		return
	}

	t.lastSweep = now

	for key, l := range t.limiters {
		if now.Sub(l.lastSeen) >= l.period {
			delete(t.limiters, key)
		}
	}
}
