package locker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Locker. Locks expire after TTL like their Redis
// counterparts.
type Memory struct {
	cfg Config

	mu    sync.Mutex
	held  map[string]memEntry
	clock func() time.Time
}

type memEntry struct {
	token   string
	expires time.Time
}

func NewMemory(cfg Config) *Memory {
	return &Memory{cfg: cfg.withDefaults(), held: make(map[string]memEntry), clock: time.Now}
}

func (m *Memory) Lock(ctx context.Context, key string) (Lock, error) {
	key = m.cfg.Prefix + key
	token := uuid.NewString()
	err := acquire(ctx, m.cfg, func(context.Context) (bool, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		now := m.clock()
		if e, ok := m.held[key]; ok && now.Before(e.expires) {
			return false, nil
		}
		m.held[key] = memEntry{token: token, expires: now.Add(m.cfg.TTL)}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &memLock{m: m, key: key, token: token}, nil
}

type memLock struct {
	m     *Memory
	key   string
	token string
}

func (l *memLock) Release(context.Context) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	e, ok := l.m.held[l.key]
	if !ok || e.token != l.token {
		return ErrNotHeld
	}
	delete(l.m.held, l.key)
	return nil
}
