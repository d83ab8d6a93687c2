package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rowanhenning/weather-data-service/internal/models"
)

// RedisCache implements Cache using Redis. Values are stored as JSON; expiry
// is delegated to the key TTL set on write.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a RedisCache from a Redis URL
// (e.g. "redis://localhost:6379/0").
func NewRedisCache(rawURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opt)}, nil
}

func (c *RedisCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *RedisCache) Get(ctx context.Context, key string) (models.WeatherReport, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.WeatherReport{}, false, nil
		}
		return models.WeatherReport{}, false, err
	}
	var report models.WeatherReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return models.WeatherReport{}, false, err
	}
	return report, true, nil
}

// Set implements Cache.Set.
func (c *RedisCache) Set(ctx context.Context, key string, value models.WeatherReport, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), raw, ttl).Err()
}

// Ping checks Redis reachability. Used by the health endpoint.
func (c *RedisCache) Ping() error {
	return c.client.Ping(context.Background()).Err()
}

// Close closes the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
