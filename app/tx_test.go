//go:build integration

package app_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arrower/api/app"
	"github.com/go-arrower/api/postgres"
	"github.com/go-arrower/api/tests"
)

var pgHandler *tests.PostgresDocker

func TestMain(m *testing.M) {
	pgHandler = tests.GetPostgresDockerForIntegrationTestingInstance()

	code := m.Run()

	pgHandler.Cleanup()
	os.Exit(code)
}

func TestInTx(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	createTable := func(ctx context.Context) error {
		tx, ok := ctx.Value(postgres.CtxTX).(pgx.Tx)
		require.True(t, ok)

		_, err := tx.Exec(ctx, `CREATE TABLE exports(id SERIAL PRIMARY KEY);`)

		return err
	}

	t.Run("commit", func(t *testing.T) {
		t.Parallel()

		pg := pgHandler.NewTestDatabase()
		h := app.InTx(pg, app.HandlerFunc[exportJob](func(ctx context.Context, _ exportJob) error {
			return createTable(ctx)
		}))

		require.NoError(t, h.H(ctx, exportJob{}))

		_, err := pg.Exec(ctx, `SELECT * FROM exports;`)
		assert.NoError(t, err)
	})

	t.Run("rollback", func(t *testing.T) {
		t.Parallel()

		pg := pgHandler.NewTestDatabase()
		h := app.InTx(pg, app.HandlerFunc[exportJob](func(ctx context.Context, _ exportJob) error {
			require.NoError(t, createTable(ctx))

			return app.ErrHandlerFailed
		}))

		assert.ErrorIs(t, h.H(ctx, exportJob{}), app.ErrHandlerFailed)

		_, err := pg.Exec(ctx, `SELECT * FROM exports;`)
		assert.Error(t, err, "table is rolled back")
	})

	t.Run("join outer transaction", func(t *testing.T) {
		t.Parallel()

		pg := pgHandler.NewTestDatabase()

		tx, err := pg.Begin(ctx)
		require.NoError(t, err)

		h := app.InTx(pg, app.HandlerFunc[exportJob](func(inner context.Context, _ exportJob) error {
			assert.Equal(t, tx, inner.Value(postgres.CtxTX))

			return createTable(inner)
		}))

		require.NoError(t, h.H(context.WithValue(ctx, postgres.CtxTX, tx), exportJob{}))
		require.NoError(t, tx.Rollback(ctx))

		_, err = pg.Exec(ctx, `SELECT * FROM exports;`)
		assert.Error(t, err, "outer transaction decides")
	})
}
