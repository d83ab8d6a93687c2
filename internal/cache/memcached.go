package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/rowanhenning/weather-data-service/internal/models"
)

const keyPrefix = "weather:"

// MemcachedCache implements Cache using memcached. Values are stored as JSON;
// expiry is delegated to memcached's own TTL handling.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.WeatherReport, bool, error) {
	if ctx.Err() != nil {
		return models.WeatherReport{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return models.WeatherReport{}, false, nil
		}
		return models.WeatherReport{}, false, err
	}
	var report models.WeatherReport
	if err := json.Unmarshal(item.Value, &report); err != nil {
		return models.WeatherReport{}, false, err
	}
	return report, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.WeatherReport, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: int32(ttl.Seconds()),
	})
}

// Ping checks memcached reachability. Used by the health endpoint.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close releases idle connections.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
