//go:build integration

package tests

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/go-testfixtures/testfixtures/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"

	"github.com/go-arrower/api/postgres"
)

// CommonFixture is loaded into every test database before the requested fixtures, if it exists.
const CommonFixture = "testdata/fixtures/_common.yaml"

//nolint:gochecknoglobals // all tests of a package binary share one container
var (
	postgresOnce     sync.Once
	postgresInstance *PostgresDocker
)

// PostgresDocker is a migrated postgres running in docker.
type PostgresDocker struct {
	pg    *postgres.Handler
	purge func() error
}

// GetPostgresDockerForIntegrationTestingInstance starts postgres on the first call
// and returns the same instance on all further calls of the test binary.
// It panics, if the container cannot be started.
func GetPostgresDockerForIntegrationTestingInstance() *PostgresDocker {
	postgresOnce.Do(func() {
		conf := postgres.Config{ //nolint:exhaustruct // the defaults are enough for tests
			User:       "postgres",
			Password:   "postgres-integration-testing",
			Database:   "test_postgres",
			Host:       "localhost",
			MaxConns:   10, //nolint:mnd
			Migrations: postgres.Migrations,
		}

		opts := &dockertest.RunOptions{ //nolint:exhaustruct
			Repository: "postgres",
			Tag:        "16-alpine",
			Name:       "api-integration-postgres-" + uuid.NewString()[:8],
			Env: []string{
				"POSTGRES_USER=" + conf.User,
				"POSTGRES_PASSWORD=" + conf.Password,
				"POSTGRES_DB=" + conf.Database,
			},
			Cmd: []string{"-c", "max_connections=1000"},
		}

		var handler *postgres.Handler

		purge, err := StartDockerContainer(opts, func(resource *dockertest.Resource) error {
			conf.Port, _ = strconv.Atoi(resource.GetPort("5432/tcp"))

			h, err := postgres.ConnectAndMigrate(context.Background(), conf)
			if err != nil {
				return err //nolint:wrapcheck // retried
			}

			handler = h

			return nil
		})
		if err != nil {
			panic(err)
		}

		postgresInstance = &PostgresDocker{pg: handler, purge: purge}
	})

	return postgresInstance
}

// NewTestDatabase creates a fresh, migrated database and loads the CommonFixture and the fixture files.
// Every parallel test can use its own database.
// It panics on any failure.
func (pd *PostgresDocker) NewTestDatabase(fixtures ...string) *pgxpool.Pool {
	ctx := context.Background()
	name := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	if _, err := pd.pg.PGx.Exec(ctx, "CREATE DATABASE "+name); err != nil {
		panic(err)
	}

	conf := pd.pg.Config
	conf.Database = name

	if _, err := os.Stat("testdata/migrations"); !errors.Is(err, os.ErrNotExist) {
		conf.Migrations = os.DirFS("testdata")
	}

	handler, err := postgres.ConnectAndMigrate(ctx, conf)
	if err != nil {
		panic(err)
	}

	loadFixtures(handler, fixtures...)

	return handler.PGx
}

// PrepareDatabase empties all tables of the shared database and loads the fixtures.
func (pd *PostgresDocker) PrepareDatabase(fixtures ...string) {
	ctx := context.Background()

	var tables []string
	if err := pgxscan.Select(ctx, pd.PGx(), &tables, `SELECT quote_ident(schemaname) || '.' || quote_ident(tablename)
		FROM pg_catalog.pg_tables
		WHERE schemaname NOT IN ('pg_catalog', 'information_schema') AND tablename <> 'schema_migrations'`,
	); err != nil {
		panic(err)
	}

	if len(tables) > 0 {
		if _, err := pd.PGx().Exec(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" CASCADE"); err != nil {
			panic(err)
		}
	}

	loadFixtures(pd.pg, fixtures...)
}

// PGx is the pool of the shared database.
func (pd *PostgresDocker) PGx() *pgxpool.Pool {
	return pd.pg.PGx
}

// Cleanup closes the connections and removes the container.
func (pd *PostgresDocker) Cleanup() {
	if err := pd.pg.Shutdown(context.Background()); err != nil {
		panic(err)
	}

	if err := pd.purge(); err != nil {
		panic(err)
	}
}

func loadFixtures(handler *postgres.Handler, files ...string) {
	if _, err := os.Stat(CommonFixture); err == nil {
		files = append([]string{CommonFixture}, files...)
	}

	if len(files) == 0 {
		return
	}

	loader, err := testfixtures.New(
		testfixtures.Database(handler.DB),
		testfixtures.Dialect("postgres"),
		testfixtures.FilesMultiTables(files...),
		testfixtures.DangerousSkipTestDatabaseCheck(),
	)
	if err != nil {
		panic(fmt.Errorf("could not read fixtures: %w", err))
	}

	if err = loader.Load(); err != nil {
		panic(fmt.Errorf("could not load fixtures: %w", err))
	}
}
