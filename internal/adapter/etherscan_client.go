package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/wallet-statement/internal/logging"
	"github.com/wallet-statement/internal/models"
	"github.com/wallet-statement/internal/retry"
	"github.com/wallet-statement/internal/types"
)

// DefaultEtherscanURL is the multichain v2 endpoint
const DefaultEtherscanURL = "https://api.etherscan.io/v2/api"

// EtherscanConfig configures the Etherscan block lookup client
type EtherscanConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64 // free tier allows 3 req/sec
	CacheTTL          time.Duration
	Timeout           time.Duration
	Retry             *retry.RetryConfig
}

// EtherscanClient maps timestamps to block numbers with getblocknobytime.
// Without an API key, or when the lookup fails, it estimates blocks from the
// chain head and average block time.
type EtherscanClient struct {
	cfg     EtherscanConfig
	client  *http.Client
	limiter *rate.Limiter
	blocks  *cache.Cache
	heads   HeadSource
	logger  *logging.Logger
}

// NewEtherscanClient creates a client; heads may be nil when estimation is not wanted
func NewEtherscanClient(cfg EtherscanConfig, heads HeadSource) *EtherscanClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultEtherscanURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 3
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultRetryConfig()
	}
	return &EtherscanClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		blocks:  cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		heads:   heads,
		logger:  logging.GetGlobalLogger().WithField("provider", "etherscan"),
	}
}

type etherscanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

var errNoClosestBlock = errors.New("no closest block found")

// BlockByTimestamp returns the block closest to at; closest is "before" or "after"
func (c *EtherscanClient) BlockByTimestamp(ctx context.Context, chain types.Chain, at time.Time, closest string) (uint64, error) {
	if c.cfg.APIKey == "" {
		return 0, fmt.Errorf("%w: etherscan API key not configured", ErrProviderUnavailable)
	}

	key := fmt.Sprintf("%d-%d-%s", chain.NumericID, at.Unix(), closest)
	if v, ok := c.blocks.Get(key); ok {
		return v.(uint64), nil
	}

	q := url.Values{}
	q.Set("chainid", strconv.FormatInt(chain.NumericID, 10))
	q.Set("module", "block")
	q.Set("action", "getblocknobytime")
	q.Set("timestamp", strconv.FormatInt(at.Unix(), 10))
	q.Set("closest", closest)
	q.Set("apikey", c.cfg.APIKey)
	endpoint := c.cfg.BaseURL + "?" + q.Encode()

	var block uint64
	err := retry.Do(ctx, c.cfg.Retry, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		var resp etherscanResponse
		if err := getJSON(ctx, c.client, &retry.RetryConfig{MaxAttempts: 1, Multiplier: 1}, endpoint, nil, &resp); err != nil {
			var statusErr *HTTPStatusError
			if errors.As(err, &statusErr) && !statusErr.Retryable() {
				return retry.Permanent(err)
			}
			return err
		}

		if resp.Status != "1" {
			// rate limiting is reported in-band as NOTOK
			if strings.Contains(strings.ToLower(resp.Result), "rate limit") {
				return &retry.RetryAfterError{Delay: time.Second, Err: ErrProviderRateLimit}
			}
			if strings.Contains(strings.ToLower(resp.Result), "no closest block") {
				return retry.Permanent(errNoClosestBlock)
			}
			return retry.Permanent(fmt.Errorf("etherscan %s: %s", resp.Message, resp.Result))
		}

		n, err := strconv.ParseUint(resp.Result, 10, 64)
		if err != nil {
			return retry.Permanent(fmt.Errorf("invalid block number %q: %w", resp.Result, err))
		}
		block = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.blocks.Set(key, block, cache.DefaultExpiration)
	return block, nil
}

// GetBlockRangeForPeriod resolves the first block at or after the period start
// and the last block at or before the period end
func (c *EtherscanClient) GetBlockRangeForPeriod(ctx context.Context, period models.StatementPeriod, chain types.Chain) (models.BlockRange, error) {
	if err := period.Validate(); err != nil {
		return models.BlockRange{}, NewAdapterError(chain.ID, "GetBlockRangeForPeriod", fmt.Errorf("%w: %v", ErrInvalidBlockRange, err), nil)
	}

	if c.cfg.APIKey != "" {
		from, errFrom := c.BlockByTimestamp(ctx, chain, period.Start, "after")
		to, errTo := c.BlockByTimestamp(ctx, chain, period.End, "before")
		if errFrom == nil && errTo == nil {
			return clampRange(from, to, false), nil
		}
		if ctx.Err() != nil {
			return models.BlockRange{}, NewAdapterError(chain.ID, "GetBlockRangeForPeriod", ctx.Err(), nil)
		}
		c.logger.WithFields(map[string]interface{}{
			"chain":     chain.ID,
			"fromError": errString(errFrom),
			"toError":   errString(errTo),
		}).Warn("block lookup failed, estimating from head")
	}

	return c.estimate(ctx, period, chain)
}

func (c *EtherscanClient) estimate(ctx context.Context, period models.StatementPeriod, chain types.Chain) (models.BlockRange, error) {
	if c.heads == nil {
		return models.BlockRange{}, NewAdapterError(chain.ID, "GetBlockRangeForPeriod", ErrProviderUnavailable, nil)
	}
	head, headTime, err := c.heads.Head(ctx, chain)
	if err != nil {
		return models.BlockRange{}, NewAdapterError(chain.ID, "GetBlockRangeForPeriod", err, nil)
	}

	from := ApproximateBlock(head, headTime, period.Start, chain.AvgBlockTime)
	to := ApproximateBlock(head, headTime, period.End, chain.AvgBlockTime)
	return clampRange(from, to, true), nil
}

// clampRange keeps the range non-inverted for periods shorter than a block
func clampRange(from, to uint64, approximate bool) models.BlockRange {
	if to < from {
		to = from
	}
	return models.BlockRange{FromBlock: from, ToBlock: to, Approximate: approximate}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
