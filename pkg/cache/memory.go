package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is the in-process backend built on go-cache
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache creates a cache with the given default TTL. Expired
// items are purged every ten minutes.
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		cache: gocache.New(defaultTTL, 10*time.Minute),
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	if x, found := m.cache.Get(key); found {
		return x.([]byte), true
	}
	return nil, false
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.cache.Set(key, value, ttl)
}

func (m *MemoryCache) Delete(_ context.Context, key string) {
	m.cache.Delete(key)
}

func (m *MemoryCache) Clear(_ context.Context) {
	m.cache.Flush()
}
