package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemorySize is the marker capacity of a MemoryCache.
const DefaultMemorySize = 100_000

// MemoryCache is a bounded in-process Cache backed by an LRU of key -> expiry.
// Eviction only causes a harmless "not seen".
type MemoryCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, int64]
	now   func() time.Time
}

// NewMemoryCache creates a MemoryCache holding at most size markers.
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}
	cache, err := lru.New[string, int64](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &MemoryCache{cache: cache, now: time.Now}, nil
}

// Compile-time interface check.
var _ Cache = (*MemoryCache)(nil)

// Seen reports whether key has an unexpired marker.
func (c *MemoryCache) Seen(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, ok := c.cache.Get(key)
	if !ok {
		return false, nil
	}
	if c.now().UnixNano() >= expiry {
		c.cache.Remove(key)
		return false, nil
	}
	return true, nil
}

// MarkSeen records key until now+ttl.
func (c *MemoryCache) MarkSeen(_ context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(key, c.now().Add(ttl).UnixNano())
	return nil
}

// Len returns the number of markers currently held, expired or not.
func (c *MemoryCache) Len() int {
	return c.cache.Len()
}
