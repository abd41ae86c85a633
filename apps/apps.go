// Package apps is the registry of the installed apps.
// An app contributes its models, routes and jobs in its Ready hook,
// which is called once at startup in the order of the installed_apps setting.
package apps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-arrower/api/admin"
	"github.com/go-arrower/api/auth"
	"github.com/go-arrower/api/jobs"
	"github.com/go-arrower/api/lockout"
	"github.com/go-arrower/api/rest"
	"github.com/go-arrower/api/schema"
	"github.com/go-arrower/api/storage"
)

var (
	ErrAppNotFound       = errors.New("app not found")
	ErrAlreadyRegistered = errors.New("app already registered")
	ErrInvalidApp        = errors.New("invalid app")
	ErrReadyFailed       = errors.New("app not ready")
)

// Config gives an app its identity.
// Name is the full name used in the installed_apps setting, e.g. api.user,
// Label is the short and unique name, e.g. user.
type Config interface {
	Name() string
	Label() string
	Ready(ctx context.Context, deps *Deps) error
}

// Deps are the dependencies an app can use in Ready.
// PGx is nil, if the api runs without a database.
type Deps struct {
	Logger        *slog.Logger
	TraceProvider trace.TracerProvider
	MeterProvider metric.MeterProvider

	Router *echo.Echo
	// API is the group of the rest api, /api.
	API      *echo.Group
	Throttle echo.MiddlewareFunc
	REST     rest.Settings
	Schema   *schema.Document

	Admin   *admin.Site
	Auth    auth.Settings
	Hasher  auth.PasswordHasher
	Lockout lockout.Handler

	PGx     *pgxpool.Pool
	Queue   jobs.Queue
	Storage storage.Storage
	// Private is never served, e.g. for exports.
	Private storage.Storage
}

func NewRegistry() *Registry {
	return &Registry{
		mu:    sync.Mutex{},
		apps:  map[string]Config{},
		names: map[string]string{},
		ready: []string{},
	}
}

// Registry knows all apps that can be installed.
type Registry struct {
	mu sync.Mutex

	apps  map[string]Config // by label
	names map[string]string // name to label
	ready []string
}

// Register makes the app available for installation.
func (r *Registry) Register(app Config) error {
	if app == nil || app.Name() == "" || app.Label() == "" {
		return fmt.Errorf("%w: name and label are required", ErrInvalidApp)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.apps[app.Label()]; ok {
		return fmt.Errorf("%w: label %s", ErrAlreadyRegistered, app.Label())
	}

	if _, ok := r.names[app.Name()]; ok {
		return fmt.Errorf("%w: name %s", ErrAlreadyRegistered, app.Name())
	}

	r.apps[app.Label()] = app
	r.names[app.Name()] = app.Label()

	return nil
}

// Get returns the app by its label.
func (r *Registry) Get(label string) (Config, error) { //nolint:ireturn // each app has its own type
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.apps[label]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAppNotFound, label)
	}

	return app, nil
}

// Populate calls Ready for each of the installed app names in order.
// All installed apps need to be registered, otherwise nothing is called.
// Apps that are ready already are skipped, so Ready is called at most once per app.
func (r *Registry) Populate(ctx context.Context, deps *Deps, installed []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	apps := make([]Config, 0, len(installed))

	for _, name := range installed {
		label, ok := r.names[name]
		if !ok {
			return fmt.Errorf("%w: %s is installed but not registered", ErrAppNotFound, name)
		}

		apps = append(apps, r.apps[label])
	}

	for _, app := range apps {
		if r.isReady(app.Label()) {
			continue
		}

		if err := app.Ready(ctx, deps); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrReadyFailed, app.Name(), err)
		}

		r.ready = append(r.ready, app.Label())

		if deps != nil && deps.Logger != nil {
			deps.Logger.DebugContext(ctx, "app ready", slog.String("app", app.Name()))
		}
	}

	return nil
}

// Ready returns the labels of all apps that are ready, in the order they got ready.
func (r *Registry) Ready() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string{}, r.ready...)
}

func (r *Registry) isReady(label string) bool {
	for _, l := range r.ready {
		if l == label {
			return true
		}
	}

	return false
}
