package ratelimiter_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookrent/pkg/logger"
	"github.com/dmitrymomot/bookrent/pkg/ratelimiter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var cfg = ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Second, MaxKeys: 100}

func newBucket(t *testing.T) (*ratelimiter.Bucket, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	b, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(cfg, c.Now), cfg)
	require.NoError(t, err)
	return b, c
}

func TestBucket(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("burst then refill", func(t *testing.T) {
		t.Parallel()
		b, c := newBucket(t)

		for i := range 3 {
			res, err := b.Allow(ctx, "a")
			require.NoError(t, err)
			assert.True(t, res.Allowed())
			assert.Equal(t, 2-i, res.Remaining)
		}
		res, err := b.Allow(ctx, "a")
		require.NoError(t, err)
		assert.False(t, res.Allowed())
		assert.Equal(t, time.Second, res.RetryAfter(c.Now()))

		// rejections do not push the refill further away
		res, _ = b.Allow(ctx, "a")
		assert.Equal(t, -1, res.Remaining)

		c.Advance(time.Second)
		res, err = b.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
		assert.Equal(t, 0, res.Remaining)
	})

	t.Run("keys are independent", func(t *testing.T) {
		t.Parallel()
		b, _ := newBucket(t)
		for range 3 {
			_, _ = b.Allow(ctx, "a")
		}
		res, err := b.Allow(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, 2, res.Remaining)
	})

	t.Run("long idle refills to capacity", func(t *testing.T) {
		t.Parallel()
		b, c := newBucket(t)
		for range 3 {
			_, _ = b.Allow(ctx, "a")
		}
		c.Advance(time.Hour)
		res, err := b.Allow(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 2, res.Remaining)
	})
}

func TestNewBucketValidates(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(cfg, nil)
	for name, c := range map[string]ratelimiter.Config{
		"capacity": {RefillRate: 1, RefillInterval: time.Second},
		"rate":     {Capacity: 1, RefillInterval: time.Second},
		"interval": {Capacity: 1, RefillRate: 1},
	} {
		_, err := ratelimiter.NewBucket(store, c)
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig, name)
	}
	_, err := ratelimiter.NewBucket(nil, cfg)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
}

type failingStore struct{}

func (failingStore) ConsumeTokens(context.Context, string, int, ratelimiter.Config) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("redis down")
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	byHeader := func(r *http.Request) string { return r.Header.Get("X-Client") }

	t.Run("limits per key", func(t *testing.T) {
		t.Parallel()
		b, _ := newBucket(t)
		h := ratelimiter.Middleware(b, byHeader, logger.Discard())(ok)

		send := func(client string) *httptest.ResponseRecorder {
			r := httptest.NewRequest(http.MethodPost, "/subscriptions", nil)
			r.Header.Set("X-Client", client)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			return rec
		}

		for range 3 {
			assert.Equal(t, http.StatusNoContent, send("a").Code)
		}
		rec := send("a")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "too_many_requests")

		assert.Equal(t, http.StatusNoContent, send("b").Code)
		assert.Equal(t, http.StatusNoContent, send("").Code)
	})

	t.Run("store failure lets requests through", func(t *testing.T) {
		t.Parallel()
		b, err := ratelimiter.NewBucket(failingStore{}, cfg)
		require.NoError(t, err)
		h := ratelimiter.Middleware(b, byHeader, nil)(ok)

		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("X-Client", "a")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
