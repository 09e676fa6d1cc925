package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/wallet-statement/internal/logging"
)

// ErrMaxWaitExceeded is returned when budget does not free up within MaxWait
var ErrMaxWaitExceeded = errors.New("CU budget wait exceeded")

// DefaultMaxWait bounds how long a single call waits for budget
const DefaultMaxWait = 30 * time.Second

// Limiter blocks RPC calls until the shared budget admits them
type Limiter struct {
	tracker  *CUBudgetTracker
	costs    *CUCostRegistry
	priority Priority
	maxWait  time.Duration
	logger   *logging.Logger
}

// LimiterConfig configures a Limiter
type LimiterConfig struct {
	Tracker  *CUBudgetTracker
	Costs    *CUCostRegistry
	Priority Priority
	MaxWait  time.Duration
	Logger   *logging.Logger
}

// NewLimiter creates a limiter; Tracker is required
func NewLimiter(cfg LimiterConfig) (*Limiter, error) {
	if cfg.Tracker == nil {
		return nil, errors.New("budget tracker is required")
	}
	if cfg.Costs == nil {
		cfg.Costs = NewCUCostRegistry(nil)
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetGlobalLogger()
	}
	return &Limiter{
		tracker:  cfg.Tracker,
		costs:    cfg.Costs,
		priority: cfg.Priority,
		maxWait:  cfg.MaxWait,
		logger:   cfg.Logger.WithField("priority", cfg.Priority.String()),
	}, nil
}

// Wait reserves the cost of method, sleeping across windows while the pool is
// exhausted. A Redis failure admits the call.
func (l *Limiter) Wait(ctx context.Context, method string) error {
	cu := l.costs.GetCost(method)
	deadline := time.Now().Add(l.maxWait)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		allowed, waitTime, err := l.tracker.TryConsume(ctx, cu, l.priority)
		if err != nil {
			l.logger.WithError(err).WithField("method", method).Warn("CU budget unavailable, proceeding without it")
			return nil
		}
		if allowed {
			return nil
		}

		if time.Now().Add(waitTime).After(deadline) {
			return ErrMaxWaitExceeded
		}

		l.logger.WithFields(map[string]interface{}{
			"method": method,
			"cu":     cu,
			"wait":   waitTime.String(),
		}).Debug("waiting for CU budget")

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Usage reports consumption in the current window
func (l *Limiter) Usage(ctx context.Context) (*CUUsageStats, error) {
	return l.tracker.GetUsage(ctx)
}
