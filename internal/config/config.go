// Package config provides configuration management for the wallet statement service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wallet-statement/internal/types"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Providers ProvidersConfig
	Pricing   PricingConfig
	Chains    ChainsConfig
	Statement StatementConfig
	Logging   LoggingConfig

	// AssetRegistryFile optionally replaces the built-in tracked assets
	AssetRegistryFile string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port               string
	Host               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	RateLimitPerMinute int // per client IP, 0 disables
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the connection URL used by migrations
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ProvidersConfig holds the external data provider settings
type ProvidersConfig struct {
	AlchemyAPIKey      string
	AlchemyURLTemplate string
	EtherscanAPIKey    string
	EtherscanBaseURL   string
	EtherscanRPS       float64
	CoinGeckoBaseURL   string
	CoinGeckoAPIKey    string
	Timeout            time.Duration
	// AlchemyCUPerSecond enables the shared compute unit budget (needs Redis)
	AlchemyCUPerSecond int
	AlchemyCUReserved  int
	// AlchemyCUPriority is "interactive" or "batch"
	AlchemyCUPriority  string
}

// PricingConfig holds price lookup settings
type PricingConfig struct {
	RateLimitCalls    int // calls per RateLimitInterval, 0 disables limiting
	RateLimitInterval time.Duration
	CacheTTL          time.Duration // shared Redis price cache
}

// ChainsConfig holds chain configuration
type ChainsConfig struct {
	Enabled []string
	// RPCURLs overrides the derived Alchemy endpoint per chain
	RPCURLs map[string]string
}

// StatementConfig holds statement generation settings
type StatementConfig struct {
	MaxParallelChains int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:               getEnv("SERVER_PORT", "8080"),
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:        getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:       getEnvAsDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			RateLimitPerMinute: getEnvAsInt("SERVER_RATE_LIMIT_PER_MINUTE", 30),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Enabled:        getEnvAsBool("POSTGRES_ENABLED", false),
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "wallet_statement"),
				User:           getEnv("POSTGRES_USER", "statement"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "wallet_statement"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", false),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Providers: ProvidersConfig{
			AlchemyAPIKey:      getEnv("ALCHEMY_API_KEY", ""),
			AlchemyURLTemplate: getEnv("ALCHEMY_URL_TEMPLATE", "https://%s.g.alchemy.com/v2/%s"),
			EtherscanAPIKey:    getEnv("ETHERSCAN_API_KEY", ""),
			EtherscanBaseURL:   getEnv("ETHERSCAN_BASE_URL", "https://api.etherscan.io/v2/api"),
			EtherscanRPS:       getEnvAsFloat("ETHERSCAN_REQUESTS_PER_SECOND", 3),
			CoinGeckoBaseURL:   getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
			CoinGeckoAPIKey:    getEnv("COINGECKO_API_KEY", ""),
			Timeout:            getEnvAsDuration("PROVIDER_TIMEOUT", 30*time.Second),
			AlchemyCUPerSecond: getEnvAsInt("ALCHEMY_CU_PER_SECOND", 0),
			AlchemyCUReserved:  getEnvAsInt("ALCHEMY_CU_RESERVED", 0),
			AlchemyCUPriority:  getEnv("ALCHEMY_CU_PRIORITY", "interactive"),
		},
		Pricing: PricingConfig{
			RateLimitCalls:    getEnvAsInt("PRICE_RATE_LIMIT_CALLS", 1),
			RateLimitInterval: getEnvAsDuration("PRICE_RATE_LIMIT_INTERVAL", 1500*time.Millisecond),
			CacheTTL:          getEnvAsDuration("PRICE_CACHE_TTL", 7*24*time.Hour),
		},
		Statement: StatementConfig{
			MaxParallelChains: getEnvAsInt("STATEMENT_MAX_PARALLEL_CHAINS", 5),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		AssetRegistryFile: getEnv("ASSET_REGISTRY_FILE", ""),
	}

	config.Chains = loadChainConfigs()

	return config, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid SERVER_PORT %q", c.Server.Port)
	}
	if c.Statement.MaxParallelChains < 1 {
		return fmt.Errorf("STATEMENT_MAX_PARALLEL_CHAINS must be at least 1")
	}
	if c.Pricing.RateLimitCalls < 0 {
		return fmt.Errorf("PRICE_RATE_LIMIT_CALLS must not be negative")
	}
	if c.Pricing.RateLimitCalls > 0 && c.Pricing.RateLimitInterval <= 0 {
		return fmt.Errorf("PRICE_RATE_LIMIT_INTERVAL must be positive")
	}
	if c.Providers.AlchemyCUPerSecond < 0 || c.Providers.AlchemyCUReserved < 0 {
		return fmt.Errorf("ALCHEMY_CU_PER_SECOND and ALCHEMY_CU_RESERVED must not be negative")
	}
	if c.Database.Postgres.Enabled && c.Database.Postgres.MaxConnections < 1 {
		return fmt.Errorf("POSTGRES_MAX_CONNECTIONS must be at least 1")
	}
	if _, err := types.ParseChainIDs(c.Chains.Enabled); err != nil {
		return fmt.Errorf("ENABLED_CHAINS: %w", err)
	}
	if !strings.Contains(c.Providers.AlchemyURLTemplate, "%s") {
		return fmt.Errorf("ALCHEMY_URL_TEMPLATE must contain the network and key placeholders")
	}
	return nil
}

// EnabledChains resolves the configured chain ids
func (c *Config) EnabledChains() ([]types.Chain, error) {
	return types.ParseChainIDs(c.Chains.Enabled)
}

// AssetRegistry returns the tracked assets, from ASSET_REGISTRY_FILE when set
func (c *Config) AssetRegistry() (types.AssetRegistry, error) {
	if c.AssetRegistryFile == "" {
		return types.DefaultAssetRegistry(), nil
	}
	return LoadAssetRegistry(c.AssetRegistryFile)
}

// loadChainConfigs loads chain-specific configurations
func loadChainConfigs() ChainsConfig {
	var enabled []string
	for _, chain := range strings.Split(getEnv("ENABLED_CHAINS", "ethereum,polygon,arbitrum,optimism,base"), ",") {
		if chain = strings.TrimSpace(chain); chain != "" {
			enabled = append(enabled, chain)
		}
	}

	urls := make(map[string]string)
	for _, chain := range types.SupportedChains() {
		if url := getEnv(strings.ToUpper(string(chain.ID))+"_RPC_URL", ""); url != "" {
			urls[string(chain.ID)] = url
		}
	}

	return ChainsConfig{
		Enabled: enabled,
		RPCURLs: urls,
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
