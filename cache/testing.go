package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSuite runs the behaviour every Cache has to fulfil.
// newCache has to return an empty cache with a default timeout of at least one minute.
func TestSuite(t *testing.T, newCache func() Cache) { //nolint:tparallel // t.Parallel can only be called ones! The caller decides
	t.Helper()

	if newCache == nil {
		t.Fatal("Cache constructor is nil")
	}

	ctx := context.Background()

	t.Run("Get", func(t *testing.T) {
		t.Parallel()

		c := newCache()

		_, err := c.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrMiss)

		require.NoError(t, c.Set(ctx, "key", []byte("value"), 0))

		val, err := c.Get(ctx, "key")
		assert.NoError(t, err)
		assert.Equal(t, []byte("value"), val)
	})

	t.Run("Set", func(t *testing.T) {
		t.Parallel()

		c := newCache()

		require.NoError(t, c.Set(ctx, "key", []byte("v0"), time.Minute))
		require.NoError(t, c.Set(ctx, "key", []byte("v1"), NoExpiry))

		val, err := c.Get(ctx, "key")
		assert.NoError(t, err)
		assert.Equal(t, []byte("v1"), val)

		require.NoError(t, c.Set(ctx, "expired", []byte("v"), time.Millisecond))
		time.Sleep(10 * time.Millisecond)

		_, err = c.Get(ctx, "expired")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("Delete", func(t *testing.T) {
		t.Parallel()

		c := newCache()

		require.NoError(t, c.Set(ctx, "key", []byte("value"), 0))
		require.NoError(t, c.Delete(ctx, "key"))
		require.NoError(t, c.Delete(ctx, "key"), "delete missing key")

		_, err := c.Get(ctx, "key")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("Incr", func(t *testing.T) {
		t.Parallel()

		c := newCache()

		n, err := c.Incr(ctx, "counter", 1)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = c.Incr(ctx, "counter", 5)
		assert.NoError(t, err)
		assert.Equal(t, int64(6), n)

		n, err = c.Incr(ctx, "counter", -2)
		assert.NoError(t, err)
		assert.Equal(t, int64(4), n)

		require.NoError(t, c.Set(ctx, "text", []byte("not-a-number"), 0))

		_, err = c.Incr(ctx, "text", 1)
		assert.ErrorIs(t, err, ErrNotInteger)
	})

	t.Run("concurrent Incr", func(t *testing.T) {
		t.Parallel()

		c := newCache()

		const n = 20

		wg := sync.WaitGroup{}
		wg.Add(n)

		for range n {
			go func() {
				defer wg.Done()

				_, _ = c.Incr(ctx, "counter", 1)
			}()
		}

		wg.Wait()

		val, err := c.Get(ctx, "counter")
		assert.NoError(t, err)
		assert.Equal(t, "20", string(val))
	})

	t.Run("Clear", func(t *testing.T) {
		t.Parallel()

		c := newCache()

		require.NoError(t, c.Set(ctx, "k0", []byte("v"), 0))
		require.NoError(t, c.Set(ctx, "k1", []byte("v"), 0))
		require.NoError(t, c.Clear(ctx))

		_, err := c.Get(ctx, "k0")
		assert.ErrorIs(t, err, ErrMiss)
		_, err = c.Get(ctx, "k1")
		assert.ErrorIs(t, err, ErrMiss)
	})
}
