package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookrent/pkg/cache"
)

func TestCacheReadThrough(t *testing.T) {
	t.Parallel()

	var loads atomic.Int32
	c := cache.New(10, time.Minute, func(_ context.Context, key string) (int, error) {
		loads.Add(1)
		return len(key), nil
	})

	v, err := c.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = c.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCacheLoaderErrorIsNotCached(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	fail := true
	c := cache.New(10, time.Minute, func(_ context.Context, key string) (string, error) {
		if fail {
			return "", boom
		}
		return "ok", nil
	})

	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, boom)
	_, ok := c.Peek("k")
	assert.False(t, ok)

	fail = false
	v, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCacheExpires(t *testing.T) {
	t.Parallel()

	var loads atomic.Int32
	c := cache.New(10, 20*time.Millisecond, func(_ context.Context, key string) (int32, error) {
		return loads.Add(1), nil
	})

	first, err := c.Get(context.Background(), "k")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := c.Peek("k")
		return !ok
	}, time.Second, 10*time.Millisecond)

	second, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestCacheInvalidationHooks(t *testing.T) {
	t.Parallel()

	c := cache.New[string, int](10, time.Minute, nil)
	var (
		mu      sync.Mutex
		dropped []string
	)
	c.OnInvalidate(func(key string) {
		mu.Lock()
		dropped = append(dropped, key)
		mu.Unlock()
	})
	c.OnInvalidate(nil)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Invalidate("a")
	_, ok := c.Peek("a")
	assert.False(t, ok)

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
	assert.ElementsMatch(t, []string{"a", "b"}, dropped)
}

func TestCacheRefreshKeepsValueOnError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var (
		next atomic.Int32
		fail atomic.Bool
		hits atomic.Int32
	)
	c := cache.New(10, time.Minute, func(_ context.Context, _ string) (int32, error) {
		if fail.Load() {
			return 0, boom
		}
		return next.Add(1), nil
	})
	c.OnInvalidate(func(string) { hits.Add(1) })

	v, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	v, err = c.Refresh(context.Background(), "k")
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
	assert.EqualValues(t, 1, hits.Load())

	fail.Store(true)
	_, err = c.Refresh(context.Background(), "k")
	assert.ErrorIs(t, err, boom)
	cached, ok := c.Peek("k")
	require.True(t, ok)
	assert.EqualValues(t, 2, cached)
	assert.EqualValues(t, 1, hits.Load())
}

func TestCacheWithoutLoader(t *testing.T) {
	t.Parallel()

	c := cache.New[string, int](10, time.Minute, nil)
	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, cache.ErrNoLoader)

	c.Set("k", 7)
	v, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCacheCollapsesConcurrentMisses(t *testing.T) {
	t.Parallel()

	var loads atomic.Int32
	release := make(chan struct{})
	c := cache.New(10, time.Minute, func(_ context.Context, key string) (string, error) {
		loads.Add(1)
		<-release
		return "v", nil
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background(), "k")
			assert.NoError(t, err)
			assert.Equal(t, "v", v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())
}
