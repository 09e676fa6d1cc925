package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallet-statement/internal/circuitbreaker"
	"github.com/wallet-statement/internal/logging"
	"github.com/wallet-statement/internal/retry"
)

// DefaultCoinGeckoURL is the public API root
const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// range queried around the requested instant
const priceWindow = 24 * time.Hour

// CoinGeckoConfig configures the CoinGecko price source
type CoinGeckoConfig struct {
	BaseURL string
	APIKey  string // sent as x-cg-demo-api-key when set
	Timeout time.Duration
	Retry   *retry.RetryConfig
	Breaker *circuitbreaker.Config
}

// CoinGeckoClient looks up historical USD prices by CoinGecko coin id
type CoinGeckoClient struct {
	cfg     CoinGeckoConfig
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	now     func() time.Time
	logger  *logging.Logger
}

// NewCoinGeckoClient creates a price source
func NewCoinGeckoClient(cfg CoinGeckoConfig) *CoinGeckoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCoinGeckoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultRetryConfig()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = circuitbreaker.DefaultConfig("coingecko")
	}
	return &CoinGeckoClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.NewCircuitBreaker(cfg.Breaker),
		now:     time.Now,
		logger:  logging.GetGlobalLogger().WithField("provider", "coingecko"),
	}
}

type marketChartResponse struct {
	Prices [][]json.Number `json:"prices"`
}

// GetHistoricalPrice returns the price point closest to at. Unknown coins and
// instants without data resolve to zero without an error.
func (c *CoinGeckoClient) GetHistoricalPrice(ctx context.Context, priceID string, at time.Time) (decimal.Decimal, error) {
	if priceID == "" {
		return decimal.Zero, nil
	}

	var chart marketChartResponse
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("from", strconv.FormatInt(at.Add(-priceWindow).Unix(), 10))
	q.Set("to", strconv.FormatInt(at.Add(priceWindow).Unix(), 10))
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart/range?%s", c.cfg.BaseURL, url.PathEscape(priceID), q.Encode())

	err := c.get(ctx, endpoint, &chart)
	if isNotFound(err) {
		c.logger.WithField("priceId", priceID).Debug("unknown coin id")
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("market chart %s: %w", priceID, err)
	}

	if price, ok := closestPrice(chart.Prices, at); ok {
		return price, nil
	}

	// the range endpoint lags for the most recent day
	if c.now().Sub(at) > priceWindow || at.Sub(c.now()) > priceWindow {
		return decimal.Zero, nil
	}
	return c.currentPrice(ctx, priceID)
}

func (c *CoinGeckoClient) currentPrice(ctx context.Context, priceID string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", priceID)
	q.Set("vs_currencies", "usd")
	endpoint := fmt.Sprintf("%s/simple/price?%s", c.cfg.BaseURL, q.Encode())

	var prices map[string]map[string]decimal.Decimal
	err := c.get(ctx, endpoint, &prices)
	if isNotFound(err) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("simple price %s: %w", priceID, err)
	}
	return prices[priceID]["usd"], nil
}

func (c *CoinGeckoClient) get(ctx context.Context, endpoint string, out interface{}) error {
	var header http.Header
	if c.cfg.APIKey != "" {
		header = http.Header{"x-cg-demo-api-key": []string{c.cfg.APIKey}}
	}
	err := c.breaker.Execute(ctx, func() error {
		return getJSON(ctx, c.client, c.cfg.Retry, endpoint, header, out)
	}, func(err error) bool {
		return !isNotFound(err) && !errors.Is(err, context.Canceled)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return err
}

func isNotFound(err error) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// closestPrice picks the [timestampMillis, price] point nearest to at
func closestPrice(points [][]json.Number, at time.Time) (decimal.Decimal, bool) {
	target := at.UnixMilli()
	var best decimal.Decimal
	var bestDist int64 = -1

	for _, p := range points {
		if len(p) < 2 {
			continue
		}
		ms, err := p[0].Float64()
		if err != nil {
			continue
		}
		price, err := decimal.NewFromString(p[1].String())
		if err != nil {
			continue
		}
		dist := int64(ms) - target
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = price, dist
		}
	}
	return best, bestDist >= 0
}
