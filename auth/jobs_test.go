package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-arrower/api/alog"
	"github.com/go-arrower/api/auth"
	"github.com/go-arrower/api/jobs"
)

type cleaner struct {
	removed int64
	err     error
}

func (c cleaner) DeleteExpired(context.Context) (int64, error) { return c.removed, c.err }

func TestClearSessionsFunc(t *testing.T) {
	t.Parallel()

	t.Run("job type", func(t *testing.T) {
		t.Parallel()

		jobType, err := jobs.TypeOf(auth.ClearSessions{})
		assert.NoError(t, err)
		assert.Equal(t, "auth.ClearSessions", jobType)
	})

	t.Run("clear", func(t *testing.T) {
		t.Parallel()

		logger := alog.Test(t)

		err := auth.ClearSessionsFunc(logger.Logger, cleaner{removed: 3})(context.Background(), auth.ClearSessions{})
		assert.NoError(t, err)
		logger.Contains("removed=3")
	})

	t.Run("fail", func(t *testing.T) {
		t.Parallel()

		errDB := errors.New("db down")

		err := auth.ClearSessionsFunc(alog.NewNoop(), cleaner{err: errDB})(context.Background(), auth.ClearSessions{})
		assert.ErrorIs(t, err, errDB)
	})
}
