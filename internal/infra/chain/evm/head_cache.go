package evm

import (
	"context"
	"sync"
	"time"
)

// HeadCache caches the chain head height to reduce redundant eth_blockNumber calls.
// Repeated verification polls within the TTL reuse the cached height.
type HeadCache struct {
	fetch func(ctx context.Context) (uint64, error)
	ttl   time.Duration

	mu       sync.RWMutex
	cached   uint64
	cachedAt time.Time
}

// NewHeadCache creates a new head cache with the given TTL.
func NewHeadCache(fetch func(ctx context.Context) (uint64, error), ttl time.Duration) *HeadCache {
	return &HeadCache{
		fetch: fetch,
		ttl:   ttl,
	}
}

// Get returns the cached chain head if within TTL, otherwise fetches fresh.
func (c *HeadCache) Get(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	if time.Since(c.cachedAt) < c.ttl && c.cached > 0 {
		cached := c.cached
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	head, err := c.fetch(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.cached = head
	c.cachedAt = time.Now()
	c.mu.Unlock()

	return head, nil
}

// Invalidate clears the cache, forcing the next call to fetch fresh data.
func (c *HeadCache) Invalidate() {
	c.mu.Lock()
	c.cachedAt = time.Time{}
	c.mu.Unlock()
}
