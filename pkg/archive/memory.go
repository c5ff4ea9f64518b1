package archive

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"sync"
)

// Memory keeps entries in process.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, e Entry) (string, error) {
	key := Key("", e)
	m.mu.Lock()
	m.objects[key] = bytes.Clone(e.Payload)
	m.mu.Unlock()
	return key, nil
}

func (m *Memory) List(_ context.Context, reference string) ([]string, error) {
	prefix := referencePrefix("", reference)
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Get returns the stored payload for key.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}
