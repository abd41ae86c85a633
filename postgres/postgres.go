// Package postgres connects the api to PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/go-arrower/api/ctx"
)

// CtxTX contains a database transaction, only if set by e.g. a decorator.
const CtxTX ctx.CTXKey = "api.tx"

// Migrations are the schema of all tables the api uses.
//
//go:embed migrations/*.sql
var Migrations embed.FS

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrMigrationFailed  = errors.New("migration failed")
)

const (
	// PoolerSession is used when connecting directly or via a pooler in session mode.
	PoolerSession = "session"

	// PoolerTransaction is used behind pgbouncer in transaction pooling mode.
	// Prepared statements are not available, so the simple protocol is used.
	PoolerTransaction = "transaction"
)

// Config holds all values used to configure and connect to a postgres database.
type Config struct {
	Migrations fs.FS

	User     string
	Password string
	Database string
	SSLMode  string
	Host     string
	Port     int

	MaxConns        int
	ConnMaxAge      time.Duration
	PoolerMode      string
	ApplicationName string

	// ConnectRetries is the number of additional attempts, if the first connect fails.
	ConnectRetries int
	ConnectTimeout time.Duration
}

func (c Config) toURL() string {
	if c.MaxConns == 0 { // prevent error: pool_max_conns too small
		c.MaxConns = 10
	}

	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}

	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	q.Set("pool_max_conns", strconv.Itoa(c.MaxConns))

	if c.ConnMaxAge > 0 {
		q.Set("pool_max_conn_lifetime", c.ConnMaxAge.String())
	}

	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}

	return u.String()
}

// PoolConfig returns the pgxpool configuration used by Connect.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(c.toURL())
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse config: %v", ErrConnectionFailed, err) //nolint:errorlint // prevent err in api
	}

	appName := c.ApplicationName
	if appName == "" {
		appName = "api"
	}

	// to list all runtime settings: SHOW ALL;
	config.ConnConfig.RuntimeParams["application_name"] = appName

	if c.PoolerMode == PoolerTransaction {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	return config, nil
}

// ConnectOpt allows to add optional behaviour to a connection.
type ConnectOpt func(*connectOpts)

type connectOpts struct {
	tracers  []pgx.QueryTracer
	tp       trace.TracerProvider
	notifyFn func(err error, next time.Duration)
}

// WithTracerProvider traces all queries.
func WithTracerProvider(tp trace.TracerProvider) ConnectOpt {
	return func(o *connectOpts) {
		o.tp = tp
	}
}

// WithQueryTracer adds an additional tracer called for all queries, e.g. to count them.
func WithQueryTracer(t pgx.QueryTracer) ConnectOpt {
	return func(o *connectOpts) {
		o.tracers = append(o.tracers, t)
	}
}

// WithRetryNotify is called on each failed connection attempt, before waiting for next.
func WithRetryNotify(fn func(err error, next time.Duration)) ConnectOpt {
	return func(o *connectOpts) {
		o.notifyFn = fn
	}
}

// Connect connects to a PostgreSQL database.
// If the database is not reachable, it retries up to ConnectRetries times with an exponential backoff.
func Connect(ctx context.Context, pgConf Config, opts ...ConnectOpt) (*Handler, error) {
	o := &connectOpts{tp: noop.NewTracerProvider()}
	for _, opt := range opts {
		opt(o)
	}

	config, err := pgConf.PoolConfig()
	if err != nil {
		return nil, err
	}

	config.ConnConfig.Tracer = multiTracer(append(
		[]pgx.QueryTracer{&queryTracer{tracer: o.tp.Tracer("github.com/go-arrower/api/postgres")}},
		o.tracers...,
	))

	var dbpool *pgxpool.Pool

	connect := func() error {
		pool, err := pgxpool.NewWithConfig(ctx, config)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: could not connect: %v", ErrConnectionFailed, err)) //nolint:errorlint,lll // prevent err in api
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()

			return fmt.Errorf("%w: could not ping db: %v", ErrConnectionFailed, err) //nolint:errorlint // prevent err in api
		}

		dbpool = pool

		return nil
	}

	retries := pgConf.ConnectRetries
	if retries < 0 {
		retries = 0
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)),
		ctx,
	)

	if err := backoff.RetryNotify(connect, policy, o.notifyFn); err != nil {
		return nil, err //nolint:wrapcheck // errors are wrapped in connect
	}

	connStr := stdlib.RegisterConnConfig(config.ConnConfig) // offer std SQL for migrations and fixtures.

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		dbpool.Close()

		return nil, fmt.Errorf("%w: could not connect via the std lib registration: %v", ErrConnectionFailed, err) //nolint:errorlint,lll // prevent err in api
	}

	return &Handler{
		PGx:    dbpool,
		DB:     db,
		Config: pgConf,
	}, nil
}

// ConnectAndMigrate connects to a PostgreSQL database and
// runs all migrations to ensure that the schema is on the latest version.
func ConnectAndMigrate(ctx context.Context, conf Config, opts ...ConnectOpt) (*Handler, error) {
	if conf.Migrations == nil {
		return nil, fmt.Errorf("%w: no migration files given", ErrMigrationFailed)
	}

	handler, err := Connect(ctx, conf, opts...)
	if err != nil {
		return nil, err
	}

	if err := handler.MigrateUp(); err != nil {
		_ = handler.Shutdown(ctx)

		return nil, err
	}

	return handler, nil
}

type Handler struct {
	PGx    *pgxpool.Pool
	DB     *sql.DB // keep a sql.DB connection around for migrations & integration tests, e.g. setting up test fixtures.
	Config Config
}

// MigrateUp applies all migrations of Config.Migrations not applied yet.
func (h *Handler) MigrateUp() error {
	m, err := h.migrate()
	if err != nil {
		return err
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: could not migrate up: %v", ErrMigrationFailed, err) //nolint:errorlint // prevent err in api
	}

	return nil
}

// MigrationVersion returns the currently applied schema version.
func (h *Handler) MigrationVersion() (uint, bool, error) {
	m, err := h.migrate()
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("%w: could not read version: %v", ErrMigrationFailed, err) //nolint:errorlint,lll // prevent err in api
	}

	return version, dirty, nil
}

func (h *Handler) migrate() (*migrate.Migrate, error) {
	migrations := h.Config.Migrations
	if migrations == nil {
		migrations = Migrations
	}

	fsDriver, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("%w: could not create migration file driver: %v", ErrMigrationFailed, err) //nolint:errorlint,lll // prevent err in api
	}

	driver, err := migratepg.WithInstance(h.DB, &migratepg.Config{}) //nolint:exhaustruct // use default config
	if err != nil {
		return nil, fmt.Errorf("%w: could not get database driver: %v", ErrMigrationFailed, err) //nolint:errorlint,lll // prevent err in api
	}

	m, err := migrate.NewWithInstance("iofs", fsDriver, h.Config.Database, driver)
	if err != nil {
		return nil, fmt.Errorf("%w: could not create new migration instance: %v", ErrMigrationFailed, err) //nolint:errorlint,lll // prevent err in api
	}

	return m, nil
}

// Shutdown waits & closes all connections to PostgreSQL.
func (h *Handler) Shutdown(_ context.Context) error {
	h.PGx.Close()

	return h.DB.Close() //nolint:wrapcheck // closing the pool is best effort
}

// ConnOrTX returns the transaction in ctx.
// If no transaction is in the context, it falls back to the pool.
func ConnOrTX(c context.Context, pool *pgxpool.Pool) Querier { //nolint:ireturn // either a pgx.Tx or the pool
	if tx, ok := c.Value(CtxTX).(pgx.Tx); ok {
		return tx
	}

	return pool
}

// Querier is implemented by *pgxpool.Pool and pgx.Tx.
// It is compatible with pgxscan.Querier.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
