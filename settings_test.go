package api_test

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arrower/api"
)

func TestFragments(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"base", "logging", "application", "auth", "database", "security", "storage",
		"rest", "sentry", "silk", "spectacular", "celery", "cache", "axes",
	}, api.Fragments(), "order of the fragments is significant")

	for _, name := range api.Fragments() {
		_, err := api.DefaultFragments.Open("settings/" + name + ".yaml")
		assert.NoError(t, err, "fragment %s is not shipped", name)
	}
}

func TestCompose(t *testing.T) {
	t.Parallel()

	t.Run("default fragments", func(t *testing.T) {
		t.Parallel()

		conf, err := api.Compose(api.WithOverrideDir(""), api.WithEnvPrefix(""))
		require.NoError(t, err)

		db, err := conf.Database(api.DefaultDatabaseAlias)
		require.NoError(t, err)
		assert.Equal(t, "postgresql", db.Engine)
		assert.Equal(t, "test_postgres", db.Name)
		assert.Equal(t, "postgres", db.User)
		assert.Equal(t, "your-super-secret-and-long-postgres-password", db.Password.Secret())
		assert.Equal(t, "pgbouncer", db.Host)
		assert.Equal(t, "5432", db.Port)
		assert.Equal(t, "test_postgres_temp", db.Test.Name)

		// keys of the database fragment are merged into the base descriptor
		assert.Equal(t, "transaction", db.PoolerMode)
		assert.Equal(t, time.Hour, db.ConnMaxAge)

		assert.Equal(t, api.LocalEnv, conf.Environment)
		assert.Equal(t, []string{"api.user"}, conf.InstalledApps)
		assert.Equal(t, "100/day", conf.REST.ThrottleRates["anon"])
		assert.Equal(t, 5, conf.Lockout.FailureLimit)
		assert.Equal(t, 30*time.Minute, conf.Lockout.CoolOffTime)
		assert.Equal(t, "locmem", conf.Caches["default"].Backend)
	})

	t.Run("strict decoding of shipped fragments", func(t *testing.T) {
		t.Parallel()

		_, err := api.Compose(api.WithOverrideDir(""), api.WithEnvPrefix(""), api.WithStrict())
		assert.NoError(t, err, "every shipped key is known")
	})

	t.Run("last fragment wins", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{
			"s/first.yaml":  {Data: []byte("debug: true\ntime_zone: UTC\n")},
			"s/second.yaml": {Data: []byte("debug: false\n")},
		}

		conf, err := api.Compose(
			api.WithFS(fsys, "s"),
			api.WithFragments("first", "second"),
			api.WithOverrideDir(""),
			api.WithEnvPrefix(""),
		)
		require.NoError(t, err)
		assert.False(t, conf.Debug)
		assert.Equal(t, "UTC", conf.TimeZone)
		assert.Equal(t, "pgbouncer", conf.Databases["default"].Host, "base descriptor is kept")
	})

	t.Run("override dir", func(t *testing.T) {
		t.Parallel()

		conf, err := api.Compose(api.WithOverrideDir("./testdata/override"), api.WithEnvPrefix(""))
		require.NoError(t, err)

		assert.Equal(t, "debug", conf.Logging.Level)
		assert.Equal(t, "json", conf.Logging.Format, "not overwritten keys are kept")
		assert.Equal(t, "localhost", conf.Databases["default"].Host)
		assert.Equal(t, "5432", conf.Databases["default"].Port)
		assert.Equal(t, "replica.local", conf.Databases["replica"].Host)
	})

	t.Run("missing fragment", func(t *testing.T) {
		t.Parallel()

		conf, err := api.Compose(api.WithFragments("base", "non-existing"), api.WithOverrideDir(""))
		assert.ErrorIs(t, err, api.ErrFragmentMissing)
		assert.Contains(t, err.Error(), "non-existing")
		assert.Nil(t, conf)
	})

	t.Run("malformed fragment", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{
			"s/base.yaml":   {Data: []byte("debug: true\n")},
			"s/broken.yaml": {Data: []byte("debug: [true\n  : :")},
		}

		conf, err := api.Compose(api.WithFS(fsys, "s"), api.WithFragments("base", "broken"), api.WithOverrideDir(""))
		assert.ErrorIs(t, err, api.ErrFragmentMalformed)
		assert.Nil(t, conf)
	})
}

func TestCompose_Environment(t *testing.T) {
	t.Setenv("APITEST_DATABASES_DEFAULT_HOST", "db.internal")

	conf, err := api.Compose(api.WithOverrideDir(""), api.WithEnvPrefix("APITEST"))
	require.NoError(t, err)
	assert.Equal(t, "db.internal", conf.Databases["default"].Host)
	assert.Equal(t, "5432", conf.Databases["default"].Port)
}
