// Package app wires configuration into the statement service and its
// optional storage backends.
package app

import (
	"fmt"
	"strings"

	"github.com/wallet-statement/internal/adapter"
	"github.com/wallet-statement/internal/config"
	"github.com/wallet-statement/internal/logging"
	"github.com/wallet-statement/internal/pricing"
	"github.com/wallet-statement/internal/ratelimit"
	"github.com/wallet-statement/internal/service"
	"github.com/wallet-statement/internal/storage"
	"github.com/wallet-statement/internal/types"
)

// App holds the constructed service graph
type App struct {
	Statements *service.StatementService
	Chains     []types.Chain
	Registry   types.AssetRegistry
	// Budget is nil unless the Alchemy compute budget is enabled
	Budget *ratelimit.Limiter

	closers []func() error
	logger  *logging.Logger
}

// New builds the statement service from cfg. Storage backends are connected
// only when enabled; a backend that is enabled but unreachable is an error.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	chains, err := cfg.EnabledChains()
	if err != nil {
		return nil, err
	}
	registry, err := cfg.AssetRegistry()
	if err != nil {
		return nil, err
	}

	a := &App{Chains: chains, Registry: registry, logger: logger}

	resolverOpts := []pricing.Option{
		pricing.WithRateLimit(cfg.Pricing.RateLimitCalls, cfg.Pricing.RateLimitInterval),
		pricing.WithLogger(logger),
	}
	serviceOpts := []service.StatementOption{
		service.WithAssetRegistry(registry),
		service.WithMaxParallelChains(cfg.Statement.MaxParallelChains),
		service.WithServiceLogger(logger),
	}

	if cfg.Database.Redis.Enabled {
		redis, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, redis.Close)
		resolverOpts = append(resolverOpts, pricing.WithSharedCache(storage.NewPriceCache(redis, cfg.Pricing.CacheTTL)))
		logger.Info("Redis price cache enabled")

		if cfg.Providers.AlchemyCUPerSecond > 0 {
			a.Budget, err = newComputeBudget(cfg, redis, logger)
			if err != nil {
				a.Close()
				return nil, err
			}
		}
	} else if cfg.Providers.AlchemyCUPerSecond > 0 {
		logger.Warn("ALCHEMY_CU_PER_SECOND requires Redis, compute budget disabled")
	}

	endpoints := make(map[types.ChainID]string, len(cfg.Chains.RPCURLs))
	for chain, url := range cfg.Chains.RPCURLs {
		endpoints[types.ChainID(strings.ToLower(chain))] = url
	}
	alchemyCfg := adapter.AlchemyConfig{
		APIKey:      cfg.Providers.AlchemyAPIKey,
		URLTemplate: cfg.Providers.AlchemyURLTemplate,
		Endpoints:   endpoints,
	}
	if a.Budget != nil {
		alchemyCfg.Budget = a.Budget
	}
	alchemy := adapter.NewAlchemyClient(alchemyCfg)
	a.closers = append(a.closers, func() error { alchemy.Close(); return nil })

	etherscan := adapter.NewEtherscanClient(adapter.EtherscanConfig{
		APIKey:            cfg.Providers.EtherscanAPIKey,
		BaseURL:           cfg.Providers.EtherscanBaseURL,
		RequestsPerSecond: cfg.Providers.EtherscanRPS,
		Timeout:           cfg.Providers.Timeout,
	}, alchemy)
	if cfg.Providers.EtherscanAPIKey == "" {
		logger.Warn("ETHERSCAN_API_KEY not set, block ranges will be estimated from the chain head")
	}

	coingecko := adapter.NewCoinGeckoClient(adapter.CoinGeckoConfig{
		BaseURL: cfg.Providers.CoinGeckoBaseURL,
		APIKey:  cfg.Providers.CoinGeckoAPIKey,
		Timeout: cfg.Providers.Timeout,
	})

	if cfg.Database.Postgres.Enabled {
		postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() error { postgres.Close(); return nil })
		serviceOpts = append(serviceOpts, service.WithStatementStore(storage.NewStatementRepository(postgres)))
		logger.Info("Postgres statement store enabled")
	}

	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, clickhouse.Close)
		serviceOpts = append(serviceOpts, service.WithEntryArchive(storage.NewLedgerEntryRepository(clickhouse)))
		logger.Info("ClickHouse entry archive enabled")
	}

	resolver := pricing.NewResolver(coingecko, resolverOpts...)
	a.Statements = service.NewStatementService(alchemy, alchemy, etherscan, resolver, serviceOpts...)

	chainIDs := make([]string, len(chains))
	for i, c := range chains {
		chainIDs[i] = string(c.ID)
	}
	logger.WithFields(map[string]interface{}{
		"chains":  chainIDs,
		"storage": a.Statements.StorageEnabled(),
	}).Info("Statement service initialized")

	return a, nil
}

func newComputeBudget(cfg *config.Config, redis *storage.RedisCache, logger *logging.Logger) (*ratelimit.Limiter, error) {
	priority, err := ratelimit.ParsePriority(cfg.Providers.AlchemyCUPriority)
	if err != nil {
		return nil, fmt.Errorf("ALCHEMY_CU_PRIORITY: %w", err)
	}
	tracker, err := ratelimit.NewCUBudgetTracker(&ratelimit.CUBudgetTrackerConfig{
		Redis:          redis.Client(),
		TotalBudget:    cfg.Providers.AlchemyCUPerSecond,
		ReservedBudget: cfg.Providers.AlchemyCUReserved,
	})
	if err != nil {
		return nil, fmt.Errorf("compute budget: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"cu_per_second": cfg.Providers.AlchemyCUPerSecond,
		"priority":      priority.String(),
	}).Info("Alchemy compute budget enabled")

	return ratelimit.NewLimiter(ratelimit.LimiterConfig{
		Tracker:  tracker,
		Costs:    ratelimit.NewCUCostRegistry(nil),
		Priority: priority,
		Logger:   logger,
	})
}

// Close releases every connection opened by New, newest first
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("error during shutdown")
		}
	}
	a.closers = nil
}
