package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/stockledger/internal/infrastructure/metrics"
	"github.com/iho/stockledger/internal/usecase"
)

// Cache implements usecase.Cache using Redis.
type Cache struct {
	client  redis.Cmdable
	prefix  string
	metrics *metrics.Metrics
}

// NewCache creates a new Cache. m may be nil.
func NewCache(client redis.Cmdable, m *metrics.Metrics) *Cache {
	return &Cache{
		client:  client,
		prefix:  "stockledger:cache:",
		metrics: m,
	}
}

// Get returns the value stored under key, or usecase.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.observe("get", nil)
		return nil, usecase.ErrCacheMiss
	}
	c.observe("get", err)
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores value under key for ttl.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, c.prefix+key, value, ttl).Err()
	c.observe("set", err)
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.client.Del(ctx, c.prefix+key).Err()
	c.observe("delete", err)
	return err
}

func (c *Cache) observe(op string, err error) {
	observe(c.metrics, "cache_"+op, err)
}

func observe(m *metrics.Metrics, op string, err error) {
	if m == nil {
		return
	}
	m.RedisOperations.WithLabelValues(op).Inc()
	if err != nil {
		m.RedisErrors.WithLabelValues(op).Inc()
	}
}
