package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/sessions"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	prometheusSDK "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/go-arrower/api/admin"
	"github.com/go-arrower/api/alog"
	"github.com/go-arrower/api/apps"
	"github.com/go-arrower/api/auth"
	"github.com/go-arrower/api/cache"
	"github.com/go-arrower/api/jobs"
	"github.com/go-arrower/api/lockout"
	"github.com/go-arrower/api/mw"
	"github.com/go-arrower/api/postgres"
	"github.com/go-arrower/api/profiling"
	"github.com/go-arrower/api/repository"
	"github.com/go-arrower/api/rest"
	"github.com/go-arrower/api/schema"
	"github.com/go-arrower/api/storage"
	"github.com/go-arrower/api/user"
)

var (
	ErrMissingDependency = errors.New("missing dependency")
	ErrUnknownTask       = errors.New("unknown periodic task")
)

// Container holds the process wide dependencies, so the installed apps can use the shared resources.
// It is build once by InitialiseDependencies from the composed Config.
type Container struct {
	Config *Config

	Logger        *slog.Logger
	MeterProvider *metric.MeterProvider
	TraceProvider *trace.TracerProvider
	Registry      *prometheusSDK.Registry

	// DB and PGx are nil, if the api runs without a database.
	DB  *postgres.Handler
	PGx *pgxpool.Pool

	Caches   map[string]cache.Cache
	Storage  storage.Storage
	// Private keeps the files that are not served, e.g. exports.
	Private  storage.Storage
	Sessions sessions.Store
	Hasher   auth.PasswordHasher
	Lockout  lockout.Handler
	Attempts lockout.AttemptLog
	Profiler *profiling.Recorder

	Router      *echo.Echo
	APIRouter   *echo.Group
	AdminRouter *echo.Group
	Admin       *admin.Site
	Schema      *schema.Document

	Queue jobs.Queue
	Apps  *apps.Registry

	status    *echo.Echo
	startedAt time.Time
	ready     atomic.Bool
}

type containerOpts struct {
	withoutDB bool
	logger    *slog.Logger
	apps      []apps.Config
}

// ContainerOpt changes how InitialiseDependencies builds the Container.
type ContainerOpt func(*containerOpts)

// WithoutDatabase runs the api without postgres.
// All backends configured to use the database fall back to their in memory version.
func WithoutDatabase() ContainerOpt {
	return func(o *containerOpts) {
		o.withoutDB = true
	}
}

// WithLogger replaces the logger build from the logging settings.
func WithLogger(logger *slog.Logger) ContainerOpt {
	return func(o *containerOpts) {
		o.logger = logger
	}
}

// WithApps registers additional apps, so they can be listed in installed_apps.
func WithApps(configs ...apps.Config) ContainerOpt {
	return func(o *containerOpts) {
		o.apps = append(o.apps, configs...)
	}
}

// InitialiseDependencies builds all dependencies in the order of the settings fragments
// and calls Ready of all installed apps. On error, the dependencies started already are shut down.
func InitialiseDependencies(ctx context.Context, conf *Config, opts ...ContainerOpt) (*Container, error) {
	if conf == nil {
		return nil, fmt.Errorf("%w: config", ErrMissingDependency)
	}

	o := &containerOpts{}
	for _, opt := range opts {
		opt(o)
	}

	dc := &Container{
		Config:    conf,
		Caches:    map[string]cache.Cache{},
		startedAt: time.Now(),
	}

	if err := dc.initialise(ctx, o); err != nil {
		_ = dc.Shutdown(ctx)

		return nil, err
	}

	dc.ready.Store(true)
	dc.Logger.LogAttrs(ctx, alog.LevelInfo, "api ready", slog.Any("apps", dc.Apps.Ready()))

	return dc, nil
}

func (dc *Container) initialise(ctx context.Context, o *containerOpts) error { //nolint:funlen,cyclop // one block per fragment
	conf := dc.Config

	{ // logging
		logger := o.logger
		if logger == nil {
			l, err := alog.NewFromOptions(alog.Options{
				Output:    os.Stderr,
				Level:     conf.Logging.Level,
				Format:    conf.Logging.Format,
				AddSource: conf.Logging.AddSource,
				Loki: alog.LokiHandlerOptions{
					Labels:  conf.Logging.Loki.Labels,
					PushURL: conf.Logging.Loki.PushURL,
				},
			})
			if err != nil {
				return fmt.Errorf("could not create logger: %w", err)
			}

			logger = l
		}

		dc.Logger = logger.With(
			slog.String("organisation_name", conf.OrganisationName),
			slog.String("application_name", conf.ApplicationName),
			slog.String("instance_name", conf.InstanceName),
			slog.String("git_hash", gitHash()),
			slog.String("environment", string(conf.Environment)),
		)
	}

	if err := dc.initialiseObservability(ctx); err != nil {
		return err
	}

	if conf.Profiling.Enabled {
		dc.Profiler = profiling.NewRecorder(profiling.Options{
			MaxRequests:  conf.Profiling.MaxRequests,
			InterceptSQL: conf.Profiling.InterceptSQL,
			Skipper: func(c echo.Context) bool {
				return strings.HasPrefix(c.Path(), "/admin/profiling/")
			},
		})
	}

	if !o.withoutDB {
		if err := dc.connectDatabase(ctx); err != nil {
			return err
		}
	}

	for alias, c := range conf.Caches {
		cacheOpts := cache.Options{
			Backend:    c.Backend,
			Location:   c.Location,
			Timeout:    c.Timeout,
			KeyPrefix:  c.KeyPrefix,
			MaxEntries: c.MaxItems,
		}

		if cacheOpts.Backend == cache.BackendDatabase && dc.PGx == nil {
			dc.Logger.LogAttrs(ctx, slog.LevelWarn, "no database: cache falls back to locmem", slog.String("cache", alias))
			cacheOpts.Backend = cache.BackendLocMem
		}

		ca, err := cache.New(cacheOpts, dc.PGx)
		if err != nil {
			return fmt.Errorf("could not create cache %s: %w", alias, err)
		}

		dc.Caches[alias] = ca
	}

	storageOpts := storage.Options{
		Backend:    conf.Storage.Backend,
		MediaRoot:  conf.Storage.MediaRoot,
		MediaURL:   conf.Storage.MediaURL,
		StaticRoot: conf.Storage.StaticRoot,
		StaticURL:  conf.Storage.StaticURL,
		DataRoot:   conf.Storage.DataRoot,
	}

	fs, err := storage.New(storageOpts)
	if err != nil {
		return fmt.Errorf("could not create storage: %w", err)
	}

	dc.Storage = fs

	private, err := storage.NewPrivate(storageOpts)
	if err != nil {
		return fmt.Errorf("could not create private storage: %w", err)
	}

	dc.Private = private

	authSettings := dc.authSettings()
	dc.Hasher = auth.NewBcryptHasher(conf.Auth.PasswordHashCost)

	if dc.PGx != nil {
		ss, err := auth.NewPGSessionStore(ctx, dc.PGx, authSettings, []byte(conf.SecretKey.Secret()))
		if err != nil {
			return fmt.Errorf("could not create session store: %w", err)
		}

		dc.Sessions = ss
	} else {
		dc.Sessions = auth.NewCookieStore(authSettings, []byte(conf.SecretKey.Secret()))
	}

	if err := dc.initialiseRouter(); err != nil {
		return err
	}

	fs.Register(dc.Router)
	storage.RegisterStatic(dc.Router, conf.Storage.StaticRoot, conf.Storage.StaticURL)

	if err := dc.initialiseQueue(); err != nil {
		return err
	}

	if err := dc.initialiseLockout(); err != nil {
		return err
	}

	dc.Schema = schema.New(schema.Options{
		Title:       conf.Schema.Title,
		Description: conf.Schema.Description,
		Version:     conf.Schema.Version,
		Path:        conf.Schema.Path,
		Prefixes:    nil,
	})

	dc.Admin = admin.NewSite(dc.Logger)

	if err := dc.populateApps(ctx, o.apps); err != nil {
		return err
	}

	dc.AdminRouter = dc.Admin.Mount(dc.Router, auth.EnsureStaff(authSettings), mw.CSRF(dc.securitySettings()))
	lockout.RegisterAdmin(dc.AdminRouter, dc.Attempts)

	if _, ok := dc.Queue.(*jobs.PostgresQueue); ok {
		jobs.RegisterAdmin(dc.AdminRouter, jobs.NewPostgresRepository(dc.PGx))
	}

	if dc.Profiler != nil {
		group := dc.AdminRouter
		if !conf.Profiling.AuthRequired {
			group = dc.Router.Group("/admin")
		}

		dc.Profiler.Register(group)
	}

	dc.Schema.Register(dc.Router)

	return dc.schedulePeriodicTasks()
}

func (dc *Container) initialiseObservability(ctx context.Context) error {
	conf := dc.Config

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(fmt.Sprintf("%s.%s", conf.OrganisationName, conf.ApplicationName)),
		// needs to match the label of the logs
		attribute.String(conf.OrganisationName, conf.ApplicationName),
	)

	{ // traces
		traceOpts := []trace.TracerProviderOption{trace.WithResource(res)}

		if conf.ErrorTracking.Enabled {
			exporterOpts := []otlptracegrpc.Option{
				otlptracegrpc.WithEndpoint(fmt.Sprintf("%s:%d", conf.ErrorTracking.Host, conf.ErrorTracking.Port)),
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithUserAgent(conf.ApplicationName)),
			}

			if conf.Environment == TestEnv {
				// no collector is running in tests, shutdown would block until the ctx expires.
				exporterOpts = append(exporterOpts, otlptracegrpc.WithTimeout(10*time.Millisecond)) //nolint:mnd
			}

			exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
			if err != nil {
				return fmt.Errorf("could not connect to trace exporter: %w", err)
			}

			sampler := trace.ParentBased(trace.TraceIDRatioBased(conf.ErrorTracking.TracesSampleRate))
			if conf.Environment == LocalEnv {
				sampler = trace.AlwaysSample()
			}

			traceOpts = append(traceOpts, trace.WithBatcher(exporter), trace.WithSampler(sampler))
		}

		dc.TraceProvider = trace.NewTracerProvider(traceOpts...)
		otel.SetTracerProvider(dc.TraceProvider)
	}

	{ // metrics
		dc.Registry = prometheusSDK.NewRegistry()
		dc.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), //nolint:exhaustruct // defaults
		)

		exporter, err := prometheus.New(prometheus.WithRegisterer(dc.Registry))
		if err != nil {
			return fmt.Errorf("could not create prometheus exporter: %w", err)
		}

		dc.MeterProvider = metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(exporter),
		)
		otel.SetMeterProvider(dc.MeterProvider)
	}

	return nil
}

func (dc *Container) connectDatabase(ctx context.Context) error {
	db, err := dc.Config.Database(DefaultDatabaseAlias)
	if err != nil {
		return err
	}

	if dc.Config.Environment == TestEnv {
		db = db.ForTesting()
	}

	pgConf, err := db.PostgresConfig(dc.Config.ApplicationName)
	if err != nil {
		return err
	}

	opts := []postgres.ConnectOpt{
		postgres.WithTracerProvider(dc.TraceProvider),
		postgres.WithRetryNotify(func(err error, next time.Duration) {
			dc.Logger.LogAttrs(ctx, slog.LevelWarn, "could not connect to postgres, retrying",
				slog.String("err", err.Error()),
				slog.Duration("next", next),
			)
		}),
	}

	if dc.Profiler != nil {
		opts = append(opts, postgres.WithQueryTracer(dc.Profiler.QueryTracer()))
	}

	handler, err := postgres.ConnectAndMigrate(ctx, pgConf, opts...)
	if err != nil {
		return fmt.Errorf("could not connect to postgres: %w", err)
	}

	dc.DB = handler
	dc.PGx = handler.PGx

	return nil
}

func (dc *Container) initialiseRouter() error {
	conf := dc.Config

	router := echo.New()
	router.HideBanner = true
	router.HidePort = true
	router.Debug = conf.Debug
	router.Logger.SetOutput(io.Discard)
	router.Validator = mw.NewValidator(nil)
	router.HTTPErrorHandler = rest.HTTPErrorHandler(dc.Logger)
	router.IPExtractor = echo.ExtractIPFromXFFHeader() // see: https://echo.labstack.com/docs/ip-address

	prom, err := echoprometheus.MiddlewareConfig{ //nolint:exhaustruct // defaults of echo-contrib
		Subsystem:  strings.ReplaceAll(conf.ApplicationName, "-", "_"),
		Registerer: dc.Registry,
	}.ToMiddleware()
	if err != nil {
		return fmt.Errorf("could not create prometheus middleware: %w", err)
	}

	hostname := conf.ErrorTracking.Hostname
	if hostname == "" {
		hostname = conf.ApplicationName
	}

	router.Use(
		mw.RequestID(),
		otelecho.Middleware(hostname, otelecho.WithTracerProvider(dc.TraceProvider)),
		mw.Recover(dc.Logger),
		mw.RequestLogger(dc.Logger),
		prom,
		mw.Metered(dc.MeterProvider),
	)
	router.Use(mw.Security(dc.securitySettings())...)

	if dc.Profiler != nil {
		router.Use(dc.Profiler.Middleware())
	}

	settings := dc.authSettings()
	router.Use(session.Middleware(dc.Sessions), auth.EnrichCtxWithUserInfoMiddleware(settings))

	dc.Router = router
	dc.APIRouter = router.Group("/api")

	return nil
}

func (dc *Container) initialiseQueue() error {
	conf := dc.Config.TaskQueue

	if !conf.Enabled || dc.PGx == nil {
		dc.Queue = jobs.NewMemoryQueue(jobs.WithMemoryLogger(dc.Logger.With(slog.String("component", "jobs"))))

		return nil
	}

	opts := []jobs.QueueOpt{jobs.WithPoolName(dc.Config.InstanceName)}
	if conf.Queue != "" {
		opts = append(opts, jobs.WithQueue(conf.Queue))
	}

	if conf.PoolSize > 0 {
		opts = append(opts, jobs.WithPoolSize(conf.PoolSize))
	}

	if conf.PollInterval > 0 {
		opts = append(opts, jobs.WithPollInterval(conf.PollInterval))
	}

	queue, err := jobs.NewPostgresQueue(dc.Logger, dc.MeterProvider, dc.TraceProvider, dc.PGx, opts...)
	if err != nil {
		return fmt.Errorf("could not create job queue: %w", err)
	}

	dc.Queue = queue

	return nil
}

func (dc *Container) initialiseLockout() error {
	conf := dc.Config.Lockout

	alias := conf.Cache
	if alias == "" {
		alias = cacheAliasDefault
	}

	c, ok := dc.Caches[alias]
	if !ok {
		if conf.Enabled {
			return fmt.Errorf("%w: cache %s used by the lockout", ErrMissingDependency, alias)
		}

		c = cache.NewLocMem(cache.Options{}) //nolint:exhaustruct // the disabled handler does not need a cache
	}

	dc.Attempts = lockout.NewMemoryLog()
	if dc.PGx != nil {
		dc.Attempts = lockout.NewPostgresLog(dc.PGx)
	}

	handler, err := lockout.NewCacheHandler(dc.Logger, c, lockout.Settings{
		Enabled:        conf.Enabled,
		FailureLimit:   conf.FailureLimit,
		CoolOffTime:    conf.CoolOffTime,
		Parameters:     conf.LockoutParameter,
		ResetOnSuccess: conf.ResetOnSuccess,
	}, lockout.WithAttemptLog(dc.Attempts))
	if err != nil {
		return fmt.Errorf("could not create lockout: %w", err)
	}

	dc.Lockout = handler

	return nil
}

const cacheAliasDefault = "default"

// NewLocalStore returns the store of the data used without a database, below the data root.
func NewLocalStore(conf *Config) (*repository.JSONStore, error) {
	store, err := repository.NewJSONStore(afero.NewOsFs(), filepath.Join(conf.Storage.DataRoot, "store"))
	if err != nil {
		return nil, fmt.Errorf("could not open local store: %w", err)
	}

	return store, nil
}

func (dc *Container) populateApps(ctx context.Context, additional []apps.Config) error {
	throttle, err := rest.Throttle(dc.Config.REST.ThrottleRates)
	if err != nil {
		return fmt.Errorf("could not create throttle: %w", err)
	}

	dc.Apps = apps.NewRegistry()

	userApp := &user.AppConfig{Repository: nil, Store: nil}

	// without a database, local users survive a restart in the data root
	if dc.PGx == nil && dc.Config.Environment == LocalEnv && dc.Config.Storage.Backend == storage.BackendFilesystem {
		store, err := NewLocalStore(dc.Config)
		if err != nil {
			return fmt.Errorf("could not create local user store: %w", err)
		}

		userApp.Store = store
	}

	installable := append([]apps.Config{userApp}, additional...)

	for _, app := range installable {
		if err := dc.Apps.Register(app); err != nil {
			return fmt.Errorf("could not register app: %w", err)
		}
	}

	deps := &apps.Deps{
		Logger:        dc.Logger,
		TraceProvider: dc.TraceProvider,
		MeterProvider: dc.MeterProvider,
		Router:        dc.Router,
		API:           dc.APIRouter,
		Throttle:      throttle,
		REST: rest.Settings{
			PageSize:      dc.Config.REST.PageSize,
			MaxPageSize:   dc.Config.REST.MaxPageSize,
			ThrottleRates: dc.Config.REST.ThrottleRates,
		},
		Schema:  dc.Schema,
		Admin:   dc.Admin,
		Auth:    dc.authSettings(),
		Hasher:  dc.Hasher,
		Lockout: dc.Lockout,
		PGx:     dc.PGx,
		Queue:   dc.Queue,
		Storage: dc.Storage,
		Private: dc.Private,
	}

	if err := dc.Apps.Populate(ctx, deps, dc.Config.InstalledApps); err != nil {
		return fmt.Errorf("could not populate apps: %w", err)
	}

	return nil
}

// schedulePeriodicTasks registers the JobFuncs of the built-in tasks and schedules the beat entries.
// A known task without its backend, e.g. clearing sessions without database, is skipped.
func (dc *Container) schedulePeriodicTasks() error {
	tasks := map[string]jobs.Job{}

	if err := dc.Queue.RegisterJobFunc(cache.CullFunc(dc.Logger, dc.Caches)); err != nil {
		return fmt.Errorf("could not register cache culling: %w", err)
	}

	tasks[cache.Cull{}.JobType()] = cache.Cull{}

	available := map[string]bool{cache.Cull{}.JobType(): true}

	if cleaner, ok := dc.Sessions.(auth.SessionCleaner); ok {
		if err := dc.Queue.RegisterJobFunc(auth.ClearSessionsFunc(dc.Logger, cleaner)); err != nil {
			return fmt.Errorf("could not register session clearing: %w", err)
		}

		available[auth.ClearSessions{}.JobType()] = true
	}

	tasks[auth.ClearSessions{}.JobType()] = auth.ClearSessions{}

	for _, entry := range dc.Config.TaskQueue.Beat {
		job, ok := tasks[entry.Task]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTask, entry.Task)
		}

		if !available[entry.Task] {
			dc.Logger.Debug("skip periodic task", slog.String("task", entry.Task))

			continue
		}

		if err := dc.Queue.Schedule(entry.Schedule, job); err != nil {
			return fmt.Errorf("could not schedule %s: %w", entry.Task, err)
		}
	}

	return nil
}

func (dc *Container) authSettings() auth.Settings {
	return auth.Settings{
		PasswordHashCost:    dc.Config.Auth.PasswordHashCost,
		PasswordMinLength:   dc.Config.Auth.PasswordMinLength,
		SessionCookieName:   dc.Config.Auth.SessionCookieName,
		SessionCookieAge:    dc.Config.Auth.SessionCookieAge,
		SessionCookieSecure: dc.Config.Security.SessionCookieSecure,
		LoginURL:            dc.Config.Auth.LoginURL,
		LoginRedirectURL:    dc.Config.Auth.LoginRedirectURL,
	}
}

func (dc *Container) securitySettings() mw.SecuritySettings {
	s := dc.Config.Security

	return mw.SecuritySettings{
		AllowedHosts:         s.AllowedHosts,
		CSRFTrustedOrigins:   s.CSRFTrustedOrigins,
		CORSAllowedOrigins:   s.CORSAllowedOrigins,
		SSLRedirect:          s.SSLRedirect,
		HSTSSeconds:          s.HSTSSeconds,
		HSTSIncludeSubdomain: s.HSTSIncludeSubdomain,
		ContentTypeNosniff:   s.ContentTypeNosniff,
		XFrameOptions:        s.XFrameOptions,
		CookieSecure:         s.SessionCookieSecure,
	}
}

// Ready reports whether all dependencies are build and all installed apps are ready.
func (dc *Container) Ready() bool {
	return dc.ready.Load()
}

// Start starts the job queue, the status endpoint and the web server in the background.
func (dc *Container) Start(ctx context.Context) error {
	dc.Logger.LogAttrs(ctx, alog.LevelInfo, "starting all servers")

	if err := dc.Queue.Start(ctx); err != nil {
		return fmt.Errorf("could not start job queue: %w", err)
	}

	if dc.Config.HTTP.StatusEndpointEnabled {
		dc.status = newStatusRouter(dc)
		serve(ctx, dc.Logger, dc.status, dc.Config.HTTP.StatusEndpointPort)
	}

	serve(ctx, dc.Logger, dc.Router, dc.Config.HTTP.Port)

	return nil
}

func serve(ctx context.Context, logger *slog.Logger, router *echo.Echo, port int) {
	addr := fmt.Sprintf(":%d", port)

	logger.LogAttrs(ctx, alog.LevelInfo, "serving http", slog.String("addr", addr))

	go func() {
		err := router.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogAttrs(ctx, slog.LevelError, "could not serve http",
				slog.String("addr", addr),
				slog.String("err", err.Error()),
			)
		}
	}()
}

// Shutdown stops all servers and waits until the running jobs are finished.
// It is safe to call on a partially initialised Container.
func (dc *Container) Shutdown(ctx context.Context) error {
	if dc.Logger != nil {
		dc.Logger.LogAttrs(ctx, alog.LevelInfo, "shutting down all servers")
	}

	dc.ready.Store(false)

	var errs []error

	var g errgroup.Group

	for _, router := range []*echo.Echo{dc.Router, dc.status} {
		if router == nil {
			continue
		}

		g.Go(func() error { return router.Shutdown(ctx) })
	}

	errs = append(errs, g.Wait())

	if dc.Queue != nil {
		errs = append(errs, dc.Queue.Shutdown(ctx))
	}

	if dc.DB != nil {
		errs = append(errs, dc.DB.Shutdown(ctx))
	}

	if dc.TraceProvider != nil {
		errs = append(errs, dc.TraceProvider.Shutdown(ctx))
	}

	if dc.MeterProvider != nil {
		errs = append(errs, dc.MeterProvider.Shutdown(ctx))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("could not shutdown: %w", err)
	}

	return nil
}

func gitHash() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value
			}
		}
	}

	return "unknown"
}
