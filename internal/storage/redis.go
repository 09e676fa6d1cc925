package storage

import (
	"context"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wallet-statement/internal/config"
)

// RedisCache holds the connection shared by the price cache and the
// compute budget counters
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects and pings Redis. Reads and writes are small
// single-key operations, so timeouts are kept short.
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MaxRetries:   2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := verify("redis", addr, ping, func() { _ = client.Close() }); err != nil {
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get returns the value at key; a missing key returns redis.Nil
func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// SetNX stores value only when key is absent. ttl 0 keeps it forever.
func (r *RedisCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

// Del deletes keys
func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}
