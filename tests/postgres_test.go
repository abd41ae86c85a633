//go:build integration

package tests_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arrower/api/tests"
)

func TestPostgresDocker(t *testing.T) {
	pg := tests.GetPostgresDockerForIntegrationTestingInstance()
	t.Cleanup(pg.Cleanup)

	assert.Same(t, pg, tests.GetPostgresDockerForIntegrationTestingInstance())

	t.Run("separate migrated databases", func(t *testing.T) {
		db0 := pg.NewTestDatabase()
		db1 := pg.NewTestDatabase()

		assert.NotEqual(t, db0.Config().ConnConfig.Database, db1.Config().ConnConfig.Database)

		var count int
		require.NoError(t, db0.QueryRow(context.Background(), `SELECT COUNT(*) FROM public.users`).Scan(&count))
		assert.Equal(t, 0, count)
	})

	t.Run("prepare shared database", func(t *testing.T) {
		_, err := pg.PGx().Exec(context.Background(), `INSERT INTO public.users (id, username) VALUES (gen_random_uuid(), 'ann')`)
		require.NoError(t, err)

		pg.PrepareDatabase()

		var count int
		require.NoError(t, pg.PGx().QueryRow(context.Background(), `SELECT COUNT(*) FROM public.users`).Scan(&count))
		assert.Equal(t, 0, count)
	})
}
