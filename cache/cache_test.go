package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arrower/api/alog"
	"github.com/go-arrower/api/cache"
	"github.com/go-arrower/api/jobs"
)

func TestLocMem(t *testing.T) {
	t.Parallel()

	cache.TestSuite(t, func() cache.Cache {
		return cache.NewLocMem(cache.Options{Timeout: time.Minute, KeyPrefix: "test"})
	})
}

func TestLocMem_MaxEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := cache.NewLocMem(cache.Options{Timeout: time.Minute, MaxEntries: 3})

	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, c.Set(ctx, k, []byte(k), 0))
	}

	assert.LessOrEqual(t, c.Len(), 3)

	val, err := c.Get(ctx, "d")
	assert.NoError(t, err, "the newest entry is kept")
	assert.Equal(t, []byte("d"), val)
}

func TestLocMem_Cull(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := cache.NewLocMem(cache.Options{})

	require.NoError(t, c.Set(ctx, "expired", []byte("v"), time.Millisecond))
	require.NoError(t, c.Set(ctx, "valid", []byte("v"), 0))
	time.Sleep(5 * time.Millisecond)

	n, err := c.Cull(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, c.Len())
}

func TestNew(t *testing.T) {
	t.Parallel()

	c, err := cache.New(cache.Options{Backend: cache.BackendLocMem}, nil)
	assert.NoError(t, err)
	assert.IsType(t, &cache.LocMem{}, c)

	_, err = cache.New(cache.Options{Backend: cache.BackendDatabase}, nil)
	assert.ErrorIs(t, err, cache.ErrInvalidOptions)

	_, err = cache.New(cache.Options{Backend: "redis"}, nil)
	assert.ErrorIs(t, err, cache.ErrUnknownBackend)
}

func TestCullFunc(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := alog.Test(t)

	c := cache.NewLocMem(cache.Options{})
	require.NoError(t, c.Set(ctx, "expired", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	queue := jobs.Test(t)
	require.NoError(t, queue.RegisterJobFunc(cache.CullFunc(logger.Logger, map[string]cache.Cache{"default": c})))
	require.NoError(t, queue.Enqueue(ctx, cache.Cull{}))

	queue.Process(ctx)
	queue.Empty()

	assert.Equal(t, 0, c.Len())
	logger.Contains("culled cache")
}
