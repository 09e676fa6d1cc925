package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	DefaultTotalBudget    = 330         // Total CU/s, the Alchemy free tier
	DefaultReservedBudget = 200         // Reserved for interactive requests
	DefaultWindowSize     = time.Second // Fixed one second window
)

// Redis key prefixes for CU tracking.
const (
	KeyPrefixTotal    = "cu:total:"
	KeyPrefixReserved = "cu:reserved:"
	KeyPrefixShared   = "cu:shared:"
)

// Priority selects the budget pool a caller draws from.
type Priority int

const (
	// PriorityInteractive is for API requests (uses the reserved pool).
	PriorityInteractive Priority = iota
	// PriorityBatch is for command line runs (uses the shared pool).
	PriorityBatch
)

// String returns a string representation of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityInteractive:
		return "interactive"
	case PriorityBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// ParsePriority maps "interactive" and "batch" to a Priority
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "interactive", "":
		return PriorityInteractive, nil
	case "batch":
		return PriorityBatch, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// consumeScript checks both the total and the pool counters and increments
// them together, so concurrent processes never overshoot the budget.
var consumeScript = redis.NewScript(`
	local totalKey = KEYS[1]
	local poolKey = KEYS[2]
	local cu = tonumber(ARGV[1])
	local totalBudget = tonumber(ARGV[2])
	local poolBudget = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local totalUsed = tonumber(redis.call('GET', totalKey) or '0')
	local poolUsed = tonumber(redis.call('GET', poolKey) or '0')

	if totalUsed + cu > totalBudget then
		return {0, totalUsed, poolUsed}
	end
	if poolUsed + cu > poolBudget then
		return {0, totalUsed, poolUsed}
	end

	redis.call('INCRBY', totalKey, cu)
	redis.call('EXPIRE', totalKey, ttl)
	redis.call('INCRBY', poolKey, cu)
	redis.call('EXPIRE', poolKey, ttl)

	return {1, totalUsed + cu, poolUsed + cu}
`)

// CUBudgetTracker coordinates CU consumption across processes sharing one
// Alchemy key. The budget is split into a reserved pool for interactive
// requests and a shared pool for batch runs.
type CUBudgetTracker struct {
	redis          redis.Cmdable
	totalBudget    int
	reservedBudget int
	sharedBudget   int
	windowSize     time.Duration
	keyTTL         time.Duration
	now            func() time.Time
}

// CUBudgetTrackerConfig holds configuration for the budget tracker.
type CUBudgetTrackerConfig struct {
	// Redis is required
	Redis redis.Cmdable

	// TotalBudget is the CU per window. Default: 330.
	TotalBudget int

	// ReservedBudget is the CU per window kept for interactive requests. Default: 200.
	ReservedBudget int

	// WindowSize defaults to one second.
	WindowSize time.Duration

	// Clock defaults to time.Now
	Clock func() time.Time
}

// CUUsageStats contains current consumption metrics.
type CUUsageStats struct {
	TotalUsed      int       `json:"totalUsed"`
	ReservedUsed   int       `json:"reservedUsed"`
	SharedUsed     int       `json:"sharedUsed"`
	TotalBudget    int       `json:"totalBudget"`
	ReservedBudget int       `json:"reservedBudget"`
	SharedBudget   int       `json:"sharedBudget"`
	WindowStart    time.Time `json:"windowStart"`
}

// Validate checks if the configuration is valid.
func (c *CUBudgetTrackerConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.TotalBudget < 0 {
		return errors.New("total budget cannot be negative")
	}
	if c.ReservedBudget < 0 {
		return errors.New("reserved budget cannot be negative")
	}

	totalBudget, reservedBudget := c.budgets()
	if reservedBudget > totalBudget {
		return fmt.Errorf("reserved budget (%d) cannot exceed total budget (%d)", reservedBudget, totalBudget)
	}
	return nil
}

func (c *CUBudgetTrackerConfig) budgets() (total, reserved int) {
	total, reserved = c.TotalBudget, c.ReservedBudget
	if total == 0 {
		total = DefaultTotalBudget
	}
	if reserved == 0 {
		reserved = DefaultReservedBudget
		if reserved > total {
			reserved = total / 2
		}
	}
	return total, reserved
}

// NewCUBudgetTracker creates a new tracker with the given configuration.
func NewCUBudgetTracker(cfg *CUBudgetTrackerConfig) (*CUBudgetTracker, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	totalBudget, reservedBudget := cfg.budgets()

	windowSize := cfg.WindowSize
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &CUBudgetTracker{
		redis:          cfg.Redis,
		totalBudget:    totalBudget,
		reservedBudget: reservedBudget,
		sharedBudget:   totalBudget - reservedBudget,
		windowSize:     windowSize,
		keyTTL:         2 * windowSize,
		now:            now,
	}, nil
}

// getWindowTimestamp returns the start of the current window in unix millis.
func (t *CUBudgetTracker) getWindowTimestamp() int64 {
	return t.now().Truncate(t.windowSize).UnixMilli()
}

// getKeys returns the Redis keys for a window.
func (t *CUBudgetTracker) getKeys(windowTS int64) (totalKey, reservedKey, sharedKey string) {
	tsStr := strconv.FormatInt(windowTS, 10)
	return KeyPrefixTotal + tsStr, KeyPrefixReserved + tsStr, KeyPrefixShared + tsStr
}

// TryConsume attempts to take cu from the pool of priority. When the pool or
// the total is exhausted it returns false and the time until the next window.
// A Redis failure is returned as err.
func (t *CUBudgetTracker) TryConsume(ctx context.Context, cu int, priority Priority) (allowed bool, wait time.Duration, err error) {
	if cu <= 0 {
		return true, 0, nil
	}

	windowTS := t.getWindowTimestamp()
	totalKey, reservedKey, sharedKey := t.getKeys(windowTS)

	poolKey, poolBudget := sharedKey, t.sharedBudget
	if priority == PriorityInteractive {
		poolKey, poolBudget = reservedKey, t.reservedBudget
	}

	ttlSeconds := int(t.keyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := consumeScript.Run(ctx, t.redis, []string{totalKey, poolKey},
		cu, t.totalBudget, poolBudget, ttlSeconds).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("consume %d CU: %w", cu, err)
	}

	if result[0] != 1 {
		return false, t.calculateWaitTime(windowTS), nil
	}
	return true, 0, nil
}

// calculateWaitTime returns the time until the next window starts.
func (t *CUBudgetTracker) calculateWaitTime(windowTS int64) time.Duration {
	windowEnd := time.UnixMilli(windowTS).Add(t.windowSize)
	waitTime := windowEnd.Sub(t.now())
	if waitTime < 0 {
		waitTime = 0
	}
	return waitTime + time.Millisecond
}

// GetUsage returns CU usage for the current window.
func (t *CUBudgetTracker) GetUsage(ctx context.Context) (*CUUsageStats, error) {
	windowTS := t.getWindowTimestamp()
	totalKey, reservedKey, sharedKey := t.getKeys(windowTS)

	pipe := t.redis.Pipeline()
	totalCmd := pipe.Get(ctx, totalKey)
	reservedCmd := pipe.Get(ctx, reservedKey)
	sharedCmd := pipe.Get(ctx, sharedKey)

	// redis.Nil only means the window has no usage yet
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read CU usage: %w", err)
	}

	return &CUUsageStats{
		TotalUsed:      parseIntOrZero(totalCmd),
		ReservedUsed:   parseIntOrZero(reservedCmd),
		SharedUsed:     parseIntOrZero(sharedCmd),
		TotalBudget:    t.totalBudget,
		ReservedBudget: t.reservedBudget,
		SharedBudget:   t.sharedBudget,
		WindowStart:    time.UnixMilli(windowTS).UTC(),
	}, nil
}

// parseIntOrZero parses a Redis string command result as int, returning 0 on error.
func parseIntOrZero(cmd *redis.StringCmd) int {
	val, err := cmd.Int()
	if err != nil {
		return 0
	}
	return val
}
