// Package cache provides a read-through cache with a fixed TTL, bounded size
// and explicit invalidation hooks.
//
// Concurrent misses for the same key share one loader call.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

var ErrNoLoader = errors.New("cache: no loader configured")

// Loader fetches the authoritative value for key on a cache miss.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Cache is safe for concurrent use.
type Cache[K comparable, V any] struct {
	entries *expirable.LRU[K, V]
	load    Loader[K, V]
	flight  singleflight.Group

	mu    sync.RWMutex
	hooks []func(key K)
}

// New creates a cache holding at most size entries for ttl each.
// load may be nil, in which case Get only serves values stored with Set.
func New[K comparable, V any](size int, ttl time.Duration, load Loader[K, V]) *Cache[K, V] {
	if size <= 0 {
		size = 128
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache[K, V]{
		entries: expirable.NewLRU[K, V](size, nil, ttl),
		load:    load,
	}
}

// Get returns the cached value or loads, stores and returns it.
// Loader errors are returned as is and nothing is cached.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if v, ok := c.entries.Get(key); ok {
		return v, nil
	}
	if c.load == nil {
		var zero V
		return zero, ErrNoLoader
	}

	res, err, _ := c.flight.Do(fmt.Sprint(key), func() (any, error) {
		v, err := c.load(ctx, key)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Peek returns a cached value without loading.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	return c.entries.Peek(key)
}

func (c *Cache[K, V]) Set(key K, v V) {
	c.entries.Add(key, v)
}

// Refresh loads key from the loader and replaces the cached value. On a
// loader error the previous value stays cached and no hooks run.
func (c *Cache[K, V]) Refresh(ctx context.Context, key K) (V, error) {
	var zero V
	if c.load == nil {
		return zero, ErrNoLoader
	}
	v, err := c.load(ctx, key)
	if err != nil {
		return zero, err
	}
	c.entries.Add(key, v)
	c.notify(key)
	return v, nil
}

// Invalidate drops key and runs the invalidation hooks for it.
func (c *Cache[K, V]) Invalidate(key K) {
	c.entries.Remove(key)
	c.notify(key)
}

// InvalidateAll drops every entry, running hooks once per dropped key.
func (c *Cache[K, V]) InvalidateAll() {
	keys := c.entries.Keys()
	c.entries.Purge()
	for _, k := range keys {
		c.notify(k)
	}
}

// OnInvalidate registers fn to run after explicit invalidation or a
// successful Refresh. TTL expiry does not trigger hooks.
func (c *Cache[K, V]) OnInvalidate(fn func(key K)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

func (c *Cache[K, V]) Len() int {
	return c.entries.Len()
}

func (c *Cache[K, V]) notify(key K) {
	c.mu.RLock()
	hooks := c.hooks
	c.mu.RUnlock()
	for _, h := range hooks {
		h(key)
	}
}
