package ratelimiter

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// MemoryStore keeps buckets in a size-bounded LRU. A bucket idle long
// enough to be full again expires, which is equivalent to keeping it.
type MemoryStore struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *bucket]
	now     func() time.Time
}

// NewMemoryStore sizes the LRU from cfg.
func NewMemoryStore(cfg Config, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	size := cfg.MaxKeys
	if size <= 0 {
		size = 10000
	}
	return &MemoryStore{
		buckets: expirable.NewLRU[string, *bucket](size, nil, max(cfg.fullAfter(), time.Second)),
		now:     now,
	}
}

func (s *MemoryStore) ConsumeTokens(_ context.Context, key string, n int, cfg Config) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets.Get(key)
	if !ok {
		b = &bucket{tokens: cfg.Capacity, lastRefill: now}
	}

	// whole intervals only, capped so the product cannot overflow
	intervals := min(int(now.Sub(b.lastRefill)/cfg.RefillInterval), cfg.Capacity/cfg.RefillRate+1)
	if intervals > 0 {
		b.tokens = min(b.tokens+intervals*cfg.RefillRate, cfg.Capacity)
		b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * cfg.RefillInterval)
		if b.tokens == cfg.Capacity {
			b.lastRefill = now
		}
	}

	// rejected requests do not drain the bucket further
	remaining := b.tokens - n
	if remaining >= 0 {
		b.tokens = remaining
	}
	s.buckets.Add(key, b)
	return remaining, b.lastRefill.Add(cfg.RefillInterval), nil
}
