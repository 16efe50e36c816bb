package store

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory keeps results in process memory.
type Memory struct {
	cache *gocache.Cache
	ttl   time.Duration
}

// NewMemory returns a Memory store. ttl <= 0 keeps entries until deleted.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		return &Memory{cache: gocache.New(gocache.NoExpiration, 0), ttl: gocache.NoExpiration}
	}
	return &Memory{cache: gocache.New(ttl, 2*ttl), ttl: ttl}
}

func (m *Memory) Put(_ context.Context, key, text string) error {
	m.cache.Set(key, text, m.ttl)
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	text, ok := v.(string)
	if !ok {
		return "", ErrNotFound
	}
	return text, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
