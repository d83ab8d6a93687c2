package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rowanhenning/weather-data-service/internal/models"
)

// Cache defines the interface for weather report caching implementations.
// Get returns cached data if present and not expired, Set stores data with TTL.
// A hit returns the stored report unchanged, original Timestamp included.
type Cache interface {
	Get(ctx context.Context, key string) (models.WeatherReport, bool, error)
	Set(ctx context.Context, key string, value models.WeatherReport, ttl time.Duration) error
}

// InMemoryCache implements Cache using a map with TTL-based expiration, keyed
// per location. Expired entries are removed on access. Safe for concurrent
// use; the check-then-update sequence is one critical section.
type InMemoryCache struct {
	mu    sync.Mutex
	data  map[string]cacheEntry
	clock clockwork.Clock
}

// cacheEntry pairs a cached report with its expiration instant.
type cacheEntry struct {
	value     models.WeatherReport
	expiresAt time.Time
}

// NewInMemoryCache creates an in-memory cache using the real clock.
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheWithClock(clockwork.NewRealClock())
}

// NewInMemoryCacheWithClock creates an in-memory cache with an injected time
// source so tests can expire entries deterministically.
func NewInMemoryCacheWithClock(clk clockwork.Clock) *InMemoryCache {
	return &InMemoryCache{
		data:  make(map[string]cacheEntry),
		clock: clk,
	}
}

// Get retrieves the cached report for key if present and not expired.
// Returns (data, true, nil) on hit, (zero, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.WeatherReport, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.WeatherReport{}, false, nil
	}

	if c.clock.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.WeatherReport{}, false, nil
	}

	return entry.value, true, nil
}

// Set stores a report under key with the specified TTL. The entry expires
// exactly once the TTL elapses; there is no partial refresh.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WeatherReport, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.clock.Now().Add(ttl),
	}
	return nil
}
