// Package profiling records the latest requests with their duration and SQL queries,
// so slow endpoints can be inspected in the admin.
package profiling

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"

	apictx "github.com/go-arrower/api/ctx"
)

const ctxProfile apictx.CTXKey = "api.profiling"

// maxQueries limits the queries kept per request, all queries are still counted.
const maxQueries = 100

var ErrNotFound = errors.New("profile not found")

// Options are the values of the silk settings.
type Options struct {
	// MaxRequests is the number of profiles kept, older ones are dropped. Default is 100.
	MaxRequests  int
	InterceptSQL bool
	// Skipper excludes requests from profiling, e.g. the profiling endpoints themselves.
	Skipper func(c echo.Context) bool
}

type (
	Profile struct {
		StartedAt time.Time     `json:"startedAt"`
		ID        ulid.ULID     `json:"id"`
		Method    string        `json:"method"`
		Path      string        `json:"path"`
		Route     string        `json:"route"`
		UserID    string        `json:"userID,omitempty"`
		Queries   []Query       `json:"queries,omitempty"`
		Status    int           `json:"status"`
		Duration  time.Duration `json:"duration"`
		NumQuery  int           `json:"numQueries"`
		QueryTime time.Duration `json:"queryTime"`
	}

	Query struct {
		SQL      string        `json:"sql"`
		Error    string        `json:"error,omitempty"`
		Duration time.Duration `json:"duration"`
		Rows     int64         `json:"rows"`
	}
)

func NewRecorder(opts Options) *Recorder {
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = 100
	}

	return &Recorder{
		mu:       sync.Mutex{},
		opts:     opts,
		profiles: make([]Profile, 0, opts.MaxRequests),
		next:     0,
		entropy:  &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(rand.Reader, 0)},
	}
}

// Recorder keeps the profiles of the latest MaxRequests requests in a ring buffer.
type Recorder struct {
	mu       sync.Mutex
	opts     Options
	profiles []Profile
	next     int

	entropy *ulid.LockedMonotonicReader
}

// active is the profile of a request still running.
type active struct {
	mu      sync.Mutex
	profile Profile
}

// Middleware profiles each request not skipped.
func (r *Recorder) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if r.opts.Skipper != nil && r.opts.Skipper(c) {
				return next(c)
			}

			start := time.Now()
			prof := &active{mu: sync.Mutex{}, profile: Profile{
				ID:        ulid.MustNew(ulid.Timestamp(start), r.entropy),
				StartedAt: start.UTC(),
				Method:    c.Request().Method,
				Path:      c.Request().URL.Path,
			}}

			c.SetRequest(c.Request().WithContext(context.WithValue(c.Request().Context(), ctxProfile, prof)))

			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError

				var httpErr *echo.HTTPError
				if errors.As(err, &httpErr) {
					status = httpErr.Code
				}
			}

			prof.mu.Lock()
			prof.profile.Route = c.Path()
			prof.profile.Status = status
			prof.profile.Duration = time.Since(start)
			prof.profile.UserID, _ = c.Request().Context().Value(apictx.CtxAuthUserID).(string)
			profile := prof.profile
			prof.mu.Unlock()

			r.add(profile)

			return err
		}
	}
}

func (r *Recorder) add(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.profiles) < r.opts.MaxRequests {
		r.profiles = append(r.profiles, p)

		return
	}

	r.profiles[r.next] = p
	r.next = (r.next + 1) % r.opts.MaxRequests
}

// Profiles returns all kept profiles, the latest first.
func (r *Recorder) Profiles() []Profile {
	r.mu.Lock()
	profiles := slices.Clone(r.profiles)
	r.mu.Unlock()

	slices.SortFunc(profiles, func(a, b Profile) int { return b.ID.Compare(a.ID) })

	return profiles
}

func (r *Recorder) Get(id string) (Profile, error) {
	uid, err := ulid.ParseStrict(id)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: invalid id %s", ErrNotFound, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.profiles {
		if p.ID == uid {
			return p, nil
		}
	}

	return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles = r.profiles[:0]
	r.next = 0
}

// QueryTracer adds the queries of a profiled request to its profile.
// Register it with postgres.WithQueryTracer.
func (r *Recorder) QueryTracer() pgx.QueryTracer { //nolint:ireturn // used as pgx.QueryTracer only
	return &queryTracer{intercept: r.opts.InterceptSQL}
}

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

type queryTracer struct {
	intercept bool
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if _, ok := ctx.Value(ctxProfile).(*active); !ok {
		return ctx
	}

	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), sql: data.SQL})
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	prof, ok := ctx.Value(ctxProfile).(*active)
	if !ok {
		return
	}

	start, _ := ctx.Value(queryStartKey{}).(queryStart)
	took := time.Since(start.at)

	prof.mu.Lock()
	defer prof.mu.Unlock()

	prof.profile.NumQuery++
	prof.profile.QueryTime += took

	if !t.intercept || len(prof.profile.Queries) >= maxQueries {
		return
	}

	q := Query{SQL: start.sql, Duration: took, Rows: data.CommandTag.RowsAffected(), Error: ""}
	if data.Err != nil {
		q.Error = data.Err.Error()
	}

	prof.profile.Queries = append(prof.profile.Queries, q)
}
