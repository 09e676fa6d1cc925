// Package pricing resolves historical USD prices for statement assets.
//
// A Resolver is long-lived and owns the rate limit towards the price source.
// Each statement run opens its own Session, whose memo is append-only, so an
// asset is valued at one price per calendar day for the whole run.
package pricing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	apperrors "github.com/wallet-statement/internal/errors"
	"github.com/wallet-statement/internal/logging"
)

// Source looks up a historical USD price. Zero means the price is unknown.
type Source interface {
	GetHistoricalPrice(ctx context.Context, priceID string, at time.Time) (decimal.Decimal, error)
}

// Resolver rate-limits and deduplicates price lookups
type Resolver struct {
	source  Source
	limiter *rate.Limiter
	shared  Cache
	group   singleflight.Group
	logger  *logging.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithRateLimit allows at most maxCalls source calls per interval.
// A non-positive value disables limiting.
func WithRateLimit(maxCalls int, interval time.Duration) Option {
	return func(r *Resolver) {
		if maxCalls <= 0 || interval <= 0 {
			r.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		r.limiter = rate.NewLimiter(rate.Every(interval/time.Duration(maxCalls)), 1)
	}
}

// WithSharedCache adds a cross-run cache consulted before the source.
// Only known (non-zero) prices are written to it.
func WithSharedCache(cache Cache) Option {
	return func(r *Resolver) { r.shared = cache }
}

// WithLogger sets the resolver logger
func WithLogger(logger *logging.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a resolver over source. The default limit is one call
// every 1.5 seconds.
func NewResolver(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source:  source,
		limiter: rate.NewLimiter(rate.Every(1500*time.Millisecond), 1),
		logger:  logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewSession opens a price memo scoped to one statement run
func (r *Resolver) NewSession() *Session {
	return &Session{resolver: r, memo: NewMemoryCache(), unknown: make(map[string]struct{})}
}

// Session resolves prices for one statement run
type Session struct {
	resolver *Resolver
	memo     *MemoryCache

	mu      sync.Mutex
	unknown map[string]struct{}
}

// Price returns the USD price of priceID on the calendar day of at.
// Failures and unknown ids resolve to zero and are recorded in Unavailable.
func (s *Session) Price(ctx context.Context, priceID string, at time.Time) decimal.Decimal {
	key := CacheKey(priceID, at)
	if price, ok, _ := s.memo.Get(ctx, key); ok {
		return price
	}

	if priceID == "" {
		s.markUnknown(ctx, key, priceID, at, nil)
		_ = s.memo.Set(ctx, key, decimal.Zero)
		return decimal.Zero
	}

	// Shared lookups run detached from the caller that started them; each
	// caller stops waiting when its own ctx is done.
	shared := context.WithoutCancel(ctx)
	ch := s.resolver.group.DoChan(key, func() (interface{}, error) {
		return s.resolver.fetch(shared, key, priceID, at)
	})

	var (
		v   interface{}
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}

	price := decimal.Zero
	if err == nil {
		price = v.(decimal.Decimal)
	}
	if err != nil || price.IsZero() {
		s.markUnknown(ctx, key, priceID, at, err)
		price = decimal.Zero
	}
	_ = s.memo.Set(ctx, key, price)

	cached, _, _ := s.memo.Get(ctx, key)
	return cached
}

func (r *Resolver) fetch(ctx context.Context, key, priceID string, at time.Time) (decimal.Decimal, error) {
	if r.shared != nil {
		if price, ok, err := r.shared.Get(ctx, key); err == nil && ok {
			return price, nil
		} else if err != nil {
			r.logger.WithError(err).WithField("key", key).Debug("shared price cache read failed")
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	price, err := r.source.GetHistoricalPrice(ctx, priceID, at)
	if err != nil {
		return decimal.Zero, err
	}

	if r.shared != nil && price.IsPositive() {
		if err := r.shared.Set(ctx, key, price); err != nil {
			r.logger.WithError(err).WithField("key", key).Debug("shared price cache write failed")
		}
	}
	return price, nil
}

func (s *Session) markUnknown(ctx context.Context, key, priceID string, at time.Time, cause error) {
	s.mu.Lock()
	_, seen := s.unknown[key]
	s.unknown[key] = struct{}{}
	s.mu.Unlock()

	if seen {
		return
	}
	logger := logging.FromContext(ctx)
	if cause != nil {
		logger = logger.WithError(cause)
	}
	perr := apperrors.NewPriceUnavailableError(priceID, at, cause)
	logger.WithFields(map[string]interface{}{
		"code":    perr.Code,
		"priceId": priceID,
		"date":    at.UTC().Format("2006-01-02"),
	}).Warn("price unavailable, valuing at zero")
}

// Unavailable lists the cache keys that resolved to the zero sentinel
func (s *Session) Unavailable() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.unknown))
	for k := range s.unknown {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
