package cmd_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arrower/api"
	"github.com/go-arrower/api/cmd"
	"github.com/go-arrower/api/user"
)

func TestRootCmd(t *testing.T) {
	t.Parallel()

	output, err := cmd.TestExecute(t, cmd.NewRootCmd(), "--help")
	assert.NoError(t, err)

	for _, sub := range []string{"serve", "check", "migrate", "createsuperuser", "version"} {
		assert.Contains(t, output, sub)
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()

	t.Run("print merged settings", func(t *testing.T) {
		t.Parallel()

		output, err := cmd.TestExecute(t, cmd.NewRootCmd(), "check", "--settings-dir", "testdata/override")
		assert.NoError(t, err)
		assert.Contains(t, output, `"host": "pgbouncer"`)
		assert.Contains(t, output, `"port": "5432"`)
		assert.Contains(t, output, `"applicationName": "api-cmd-test"`, "override is merged")
		assert.Contains(t, output, "settings ok: 14 fragments merged, environment test")
	})

	t.Run("mask secrets", func(t *testing.T) {
		t.Parallel()

		output, err := cmd.TestExecute(t, cmd.NewRootCmd(), "check", "--settings-dir", "testdata/override")
		assert.NoError(t, err)
		assert.NotContains(t, output, "your-super-secret-and-long-postgres-password")
		assert.NotContains(t, output, "insecure-change-me")
		assert.Contains(t, output, `"password": "******"`)
	})

	t.Run("quiet", func(t *testing.T) {
		t.Parallel()

		output, err := cmd.TestExecute(t, cmd.NewRootCmd(), "check", "-q", "--settings-dir", "testdata/override")
		assert.NoError(t, err)
		assert.NotContains(t, output, "pgbouncer")
		assert.Contains(t, output, "settings ok")
	})

	t.Run("malformed fragment", func(t *testing.T) {
		t.Parallel()

		_, err := cmd.TestExecute(t, cmd.NewRootCmd(), "check", "--settings-dir", "testdata/malformed")
		assert.ErrorIs(t, err, api.ErrFragmentMalformed)
	})
}

func TestCreateSuperuser(t *testing.T) { //nolint:paralleltest // uses t.Setenv
	t.Run("required flags", func(t *testing.T) {
		_, err := cmd.TestExecute(t, cmd.NewRootCmd(), "createsuperuser", "--password", "secret")
		assert.ErrorContains(t, err, "required flag")
	})

	t.Run("password required", func(t *testing.T) {
		t.Setenv("API_SUPERUSER_PASSWORD", "")

		_, err := cmd.TestExecute(t, cmd.NewRootCmd(), "createsuperuser", "--username", "admin", "--email", "admin@example.com")
		assert.ErrorIs(t, err, user.ErrInvalidUser)
	})

	t.Run("without database", func(t *testing.T) {
		dataRoot := t.TempDir()
		t.Setenv("API_STORAGE_DATA_ROOT", dataRoot)
		t.Setenv("API_AUTH_PASSWORD_HASH_COST", "4")
		t.Setenv("API_SUPERUSER_PASSWORD", "s3cure-enough-pw")

		output, err := cmd.TestExecute(t, cmd.NewRootCmd(),
			"createsuperuser", "--username", "admin", "--email", "admin@example.com", "--without-database")
		require.NoError(t, err)
		assert.Contains(t, output, "superuser admin created")

		conf, err := api.Compose()
		require.NoError(t, err)
		require.Equal(t, dataRoot, conf.Storage.DataRoot)

		store, err := api.NewLocalStore(conf)
		require.NoError(t, err)

		repo, err := user.OpenMemoryRepository(store)
		require.NoError(t, err)

		admin, err := repo.FindByUsername(context.Background(), "admin")
		require.NoError(t, err)
		assert.True(t, admin.IsSuperuser)
		assert.True(t, admin.CheckPassword("s3cure-enough-pw"), "the hash survives the store")
	})
}

func TestTestExecute(t *testing.T) {
	t.Parallel()

	errFailed := errors.New("failed")

	command := &cobra.Command{
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "stdout")
			fmt.Fprintln(cmd.ErrOrStderr(), "stderr")

			if len(args) > 0 {
				return errFailed
			}

			return nil
		},
	}

	output, err := cmd.TestExecute(t, command)
	assert.NoError(t, err)
	assert.Contains(t, output, "stdout")
	assert.Contains(t, output, "stderr")

	_, err = cmd.TestExecute(t, command, "fail")
	assert.ErrorIs(t, err, errFailed)
}
