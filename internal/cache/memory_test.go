package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Millisecond))
	require.NoError(t, c.Set(ctx, "forever", []byte("v"), 0))

	time.Sleep(5 * time.Millisecond)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)

	got, err := c.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestMemoryCacheDeleteMany(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, []byte(k), time.Minute))
	}
	require.NoError(t, c.Delete(ctx, "a", "b", "missing"))

	ok, err := c.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Exists(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheGetOrSet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	calls := 0
	fill := func() ([]byte, error) {
		calls++
		return []byte("snapshot"), nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetOrSet(ctx, "k", time.Minute, fill)
		require.NoError(t, err)
		assert.Equal(t, "snapshot", string(got))
	}
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, err := c.GetOrSet(ctx, "other", time.Minute, func() ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestMemoryCacheCopiesValues(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	v := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", v, 0))
	v[0] = 'x'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestMemoryCacheGetOrSetSharesFill(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fill := func() ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("snapshot"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.GetOrSet(ctx, "k", time.Minute, fill)
			assert.NoError(t, err)
			assert.Equal(t, "snapshot", string(got))
		}()
	}
	// Let the goroutines pile up on the first fill.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheDropsFillInvalidatedMidway(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	got, err := c.GetOrSet(ctx, "totals", time.Minute, func() ([]byte, error) {
		require.NoError(t, c.Delete(ctx, "totals"))
		return []byte("stale"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", string(got))

	_, err = c.Get(ctx, "totals")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
