package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const priceKeyPrefix = "price:"

// PriceCache shares resolved USD prices across statement runs through Redis.
// Keys are the pricing cache keys under the "price:" prefix. The first value
// written for a key is kept until it expires.
type PriceCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewPriceCache creates a price cache; ttl <= 0 keeps entries forever
func NewPriceCache(r *RedisCache, ttl time.Duration) *PriceCache {
	if ttl < 0 {
		ttl = 0
	}
	return &PriceCache{redis: r, ttl: ttl}
}

// Get returns the cached price for key
func (c *PriceCache) Get(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	raw, err := c.redis.Get(ctx, priceKeyPrefix+key)
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to read price %s: %w", key, err)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		// a corrupt entry is treated as a miss and overwritten on the next fetch
		_ = c.redis.Del(ctx, priceKeyPrefix+key)
		return decimal.Zero, false, nil
	}
	return price, true, nil
}

// Set stores a price unless one is already cached
func (c *PriceCache) Set(ctx context.Context, key string, price decimal.Decimal) error {
	if _, err := c.redis.SetNX(ctx, priceKeyPrefix+key, price.String(), c.ttl); err != nil {
		return fmt.Errorf("failed to cache price %s: %w", key, err)
	}
	return nil
}
