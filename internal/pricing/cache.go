package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Cache stores resolved prices by CacheKey
type Cache interface {
	Get(ctx context.Context, key string) (decimal.Decimal, bool, error)
	Set(ctx context.Context, key string, price decimal.Decimal) error
}

// CacheKey is the composite (price id, UTC calendar day) key
func CacheKey(priceID string, at time.Time) string {
	return priceID + "_" + at.UTC().Format("2006-01-02")
}

// MemoryCache is an append-only in-process price cache.
// The first value stored for a key wins.
type MemoryCache struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewMemoryCache creates an empty cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{prices: make(map[string]decimal.Decimal)}
}

// Get returns the cached price for key
func (c *MemoryCache) Get(_ context.Context, key string) (decimal.Decimal, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[key]
	return p, ok, nil
}

// Set stores price under key unless a value is already present
func (c *MemoryCache) Set(_ context.Context, key string, price decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.prices[key]; !ok {
		c.prices[key] = price
	}
	return nil
}

// Len returns the number of cached keys
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}
