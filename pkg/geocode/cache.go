package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// ResultCache stores provider results keyed by the hash of normalized text.
type ResultCache interface {
	Get(ctx context.Context, key string) (*Result, error)
	Set(ctx context.Context, key string, r Result) error
}

// RedisCache is a ResultCache shared across API instances.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(ctx context.Context, redisURL, prefix string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse redis url")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "geocode: connect to redis")
	}
	return NewRedisCacheWithClient(client, prefix, ttl), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached result, or nil when absent.
func (c *RedisCache) Get(ctx context.Context, key string) (*Result, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "geocode: redis get")
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "geocode: decode cached result")
	}
	return &r, nil
}

// Set stores r with the configured TTL. Zero TTL keeps it indefinitely.
func (c *RedisCache) Set(ctx context.Context, key string, r Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "geocode: encode result")
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return eris.Wrap(err, "geocode: redis set")
	}
	return nil
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
