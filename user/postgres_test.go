//go:build integration

package user_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arrower/api/postgres"
	"github.com/go-arrower/api/repository"
	"github.com/go-arrower/api/rest"
	"github.com/go-arrower/api/tests"
	"github.com/go-arrower/api/user"
)

var pgHandler *tests.PostgresDocker

func TestMain(m *testing.M) {
	pgHandler = tests.GetPostgresDockerForIntegrationTestingInstance()

	code := m.Run()

	pgHandler.Cleanup()
	os.Exit(code)
}

func TestPostgresRepository_Create(t *testing.T) {
	t.Parallel()

	t.Run("create and read back", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		repo := user.NewPostgresRepository(pgHandler.NewTestDatabase())

		u := user.NewUser("testuser", "test@example.com")
		require.NoError(t, repo.Create(ctx, u))

		got, err := repo.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "testuser", got.Username)
		assert.Equal(t, "test@example.com", got.Email)
		assert.True(t, got.IsActive)
		assert.True(t, u.DateJoined.Equal(got.DateJoined))
		assert.Nil(t, got.LastLogin)

		got, err = repo.FindByUsername(ctx, "testuser")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("duplicate username", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		repo := user.NewPostgresRepository(pgHandler.NewTestDatabase())

		require.NoError(t, repo.Create(ctx, user.NewUser("testuser", "")))

		err := repo.Create(ctx, user.NewUser("testuser", ""))
		assert.ErrorIs(t, err, repository.ErrAlreadyExists)
	})

	t.Run("invalid id", func(t *testing.T) {
		t.Parallel()

		repo := user.NewPostgresRepository(pgHandler.NewTestDatabase())

		u := user.NewUser("testuser", "")
		u.ID = "not-a-uuid"

		err := repo.Create(context.Background(), u)
		assert.ErrorIs(t, err, repository.ErrSaveFailed)
	})
}

func TestPostgresRepository_Save(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := user.NewPostgresRepository(pgHandler.NewTestDatabase())

	u := user.NewUser("testuser", "test@example.com")
	require.NoError(t, repo.Save(ctx, u), "save creates the user")

	login := time.Now().UTC().Truncate(time.Microsecond)
	u.Email = "changed@example.com"
	u.LastLogin = &login
	require.NoError(t, repo.Save(ctx, u), "save updates the user")

	got, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "changed@example.com", got.Email)
	require.NotNil(t, got.LastLogin)
	assert.True(t, login.Equal(*got.LastLogin))

	count, err := repo.Count(ctx, user.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPostgresRepository_All(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := user.NewPostgresRepository(pgHandler.NewTestDatabase())

	for i, name := range []string{"ann", "bob", "cid_100%"} {
		u := user.NewUser(name, name+"@example.com")
		u.DateJoined = u.DateJoined.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, u))
	}

	all, err := repo.All(ctx, user.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ann", all[0].Username)

	page, err := repo.All(ctx, user.Filter{Page: rest.Page{Number: 2, Size: 2}})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "cid_100%", page[0].Username)

	found, err := repo.All(ctx, user.Filter{Search: "BOB"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "bob", found[0].Username)

	count, err := repo.Count(ctx, user.Filter{Search: "%"})
	require.NoError(t, err)
	assert.Equal(t, 1, count, "wildcards are matched literally")
}

func TestPostgresRepository_Fixtures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := user.NewPostgresRepository(pgHandler.NewTestDatabase("testdata/fixtures/users.yaml"))

	all, err := repo.All(ctx, user.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"admin", "ann", "bob"}, []string{all[0].Username, all[1].Username, all[2].Username})

	ann, err := repo.FindByUsername(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, "Ann", ann.FirstName)
	assert.True(t, ann.IsActive, "column default")
	require.NotNil(t, ann.LastLogin)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), ann.LastLogin.UTC())

	admin, err := repo.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, admin.IsSuperuser)
	assert.False(t, admin.HasUsablePassword())
}

func TestPostgresRepository_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := user.NewPostgresRepository(pgHandler.NewTestDatabase())

	u := user.NewUser("testuser", "")
	require.NoError(t, repo.Create(ctx, u))

	require.NoError(t, repo.Delete(ctx, u.ID))

	_, err := repo.FindByID(ctx, u.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = repo.Delete(ctx, u.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPostgresRepository_Transaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pgx := pgHandler.NewTestDatabase()
	repo := user.NewPostgresRepository(pgx)

	tx, err := pgx.Begin(ctx)
	require.NoError(t, err)

	u := user.NewUser("testuser", "")
	require.NoError(t, repo.Create(context.WithValue(ctx, postgres.CtxTX, tx), u))
	require.NoError(t, tx.Rollback(ctx))

	_, err = repo.FindByID(ctx, u.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
