package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/wallet-statement/internal/logging"
	"github.com/wallet-statement/internal/models"
	"github.com/wallet-statement/internal/retry"
	"github.com/wallet-statement/internal/types"
)

// DefaultAlchemyURLTemplate is formatted with the chain's Alchemy network and the API key
const DefaultAlchemyURLTemplate = "https://%s.g.alchemy.com/v2/%s"

const (
	alchemyMaxCount = "0x3e8" // 1000, the per-page maximum
	defaultMaxPages = 100
)

// balanceOf(address)
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// AlchemyConfig configures the Alchemy client
type AlchemyConfig struct {
	APIKey      string
	URLTemplate string
	// Endpoints overrides the derived URL per chain
	Endpoints map[types.ChainID]string
	Retry     *retry.RetryConfig
	MaxPages  int
	// Budget, when set, is consulted before every RPC attempt
	Budget ComputeBudget
}

// ComputeBudget admits provider calls by method name
type ComputeBudget interface {
	Wait(ctx context.Context, method string) error
}

// AlchemyClient reads balances over standard JSON-RPC and transfers through
// alchemy_getAssetTransfers. One RPC client is kept per chain.
type AlchemyClient struct {
	cfg    AlchemyConfig
	logger *logging.Logger

	mu      sync.Mutex
	clients map[types.ChainID]*rpc.Client
}

// NewAlchemyClient creates a client; connections are dialed on first use
func NewAlchemyClient(cfg AlchemyConfig) *AlchemyClient {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultAlchemyURLTemplate
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultRetryConfig()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	return &AlchemyClient{
		cfg:     cfg,
		logger:  logging.GetGlobalLogger().WithField("provider", "alchemy"),
		clients: make(map[types.ChainID]*rpc.Client),
	}
}

// Endpoint returns the RPC URL used for chain
func (c *AlchemyClient) Endpoint(chain types.Chain) (string, error) {
	if url, ok := c.cfg.Endpoints[chain.ID]; ok && url != "" {
		return url, nil
	}
	if c.cfg.APIKey == "" || chain.AlchemyNetwork == "" {
		return "", fmt.Errorf("%w: %s", ErrChainNotConfigured, chain.ID)
	}
	return fmt.Sprintf(c.cfg.URLTemplate, chain.AlchemyNetwork, c.cfg.APIKey), nil
}

func (c *AlchemyClient) client(ctx context.Context, chain types.Chain) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rc, ok := c.clients[chain.ID]; ok {
		return rc, nil
	}
	url, err := c.Endpoint(chain)
	if err != nil {
		return nil, err
	}
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", chain.ID, err)
	}
	c.clients[chain.ID] = rc
	return rc, nil
}

// Close closes every open RPC connection
func (c *AlchemyClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, rc := range c.clients {
		rc.Close()
		delete(c.clients, id)
	}
}

func (c *AlchemyClient) do(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, c.cfg.Retry, func(ctx context.Context, attempt int) error {
		if c.cfg.Budget != nil {
			if err := c.cfg.Budget.Wait(ctx, method); err != nil {
				return retry.Permanent(err)
			}
		}
		err := fn(ctx)
		if err != nil && !isRetryableRPCError(err) {
			return retry.Permanent(err)
		}
		return err
	})
}

func isRetryableRPCError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode() == 429
	}
	return true
}

// GetBalances reads native balances with eth_getBalance and token balances
// with balanceOf via eth_call, both pinned to atBlock
func (c *AlchemyClient) GetBalances(ctx context.Context, wallet string, assets []types.Asset, chain types.Chain, atBlock *uint64) ([]models.RawBalance, error) {
	if !types.IsValidAddress(wallet) {
		return nil, NewAdapterError(chain.ID, "GetBalances", ErrInvalidAddress, map[string]interface{}{"wallet": wallet})
	}

	rc, err := c.client(ctx, chain)
	if err != nil {
		return nil, NewAdapterError(chain.ID, "GetBalances", err, nil)
	}
	eth := ethclient.NewClient(rc)

	var block *big.Int
	if atBlock != nil {
		block = new(big.Int).SetUint64(*atBlock)
	}
	account := common.HexToAddress(wallet)

	balances := make([]models.RawBalance, 0, len(assets))
	for _, asset := range assets {
		if asset.ChainID != chain.ID {
			continue
		}

		method := "eth_call"
		if asset.IsNative() {
			method = "eth_getBalance"
		}

		var balance *big.Int
		err := c.do(ctx, method, func(ctx context.Context) error {
			var err error
			if asset.IsNative() {
				balance, err = eth.BalanceAt(ctx, account, block)
				return err
			}
			contract := common.HexToAddress(asset.ContractAddress)
			out, err := eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: balanceOfCallData(account)}, block)
			if err != nil {
				return err
			}
			balance = new(big.Int).SetBytes(out)
			return nil
		})
		if err != nil {
			return nil, NewAdapterError(chain.ID, "GetBalances", err, map[string]interface{}{"asset": asset.Symbol})
		}

		balances = append(balances, models.RawBalance{Asset: asset, RawQuantity: balance.String()})
	}

	return balances, nil
}

func balanceOfCallData(account common.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, balanceOfSelector...)
	return append(data, common.LeftPadBytes(account.Bytes(), 32)...)
}

// Head returns the latest block number and its timestamp
func (c *AlchemyClient) Head(ctx context.Context, chain types.Chain) (uint64, time.Time, error) {
	rc, err := c.client(ctx, chain)
	if err != nil {
		return 0, time.Time{}, NewAdapterError(chain.ID, "Head", err, nil)
	}

	var head struct {
		Number    hexutil.Uint64 `json:"number"`
		Timestamp hexutil.Uint64 `json:"timestamp"`
	}
	err = c.do(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		return rc.CallContext(ctx, &head, "eth_getBlockByNumber", "latest", false)
	})
	if err != nil {
		return 0, time.Time{}, NewAdapterError(chain.ID, "Head", err, nil)
	}
	return uint64(head.Number), time.Unix(int64(head.Timestamp), 0).UTC(), nil
}

type alchemyAssetTransfer struct {
	BlockNum    string  `json:"blockNum"`
	UniqueID    string  `json:"uniqueId"`
	Hash        string  `json:"hash"`
	From        string  `json:"from"`
	To          *string `json:"to"`
	Category    string  `json:"category"`
	RawContract struct {
		Value   *string `json:"value"`
		Address *string `json:"address"`
		Decimal *string `json:"decimal"`
	} `json:"rawContract"`
	Metadata *struct {
		BlockTimestamp string `json:"blockTimestamp"`
	} `json:"metadata"`
}

type alchemyTransfersPage struct {
	Transfers []alchemyAssetTransfer `json:"transfers"`
	PageKey   string                 `json:"pageKey,omitempty"`
}

// GetTransfers fetches native and ERC-20 transfers in both directions and
// deduplicates them by transfer id
func (c *AlchemyClient) GetTransfers(ctx context.Context, wallet string, fromBlock, toBlock uint64, assets []types.Asset, chain types.Chain) ([]models.RawTransfer, error) {
	if !types.IsValidAddress(wallet) {
		return nil, NewAdapterError(chain.ID, "GetTransfers", ErrInvalidAddress, map[string]interface{}{"wallet": wallet})
	}
	if fromBlock > toBlock {
		return nil, NewAdapterError(chain.ID, "GetTransfers", ErrInvalidBlockRange,
			map[string]interface{}{"fromBlock": fromBlock, "toBlock": toBlock})
	}

	categories, contracts := transferFilter(assets, chain)
	if len(categories) == 0 {
		return nil, nil
	}

	rc, err := c.client(ctx, chain)
	if err != nil {
		return nil, NewAdapterError(chain.ID, "GetTransfers", err, nil)
	}

	seen := make(map[string]struct{})
	var transfers []models.RawTransfer
	for _, direction := range []string{"fromAddress", "toAddress"} {
		page, err := c.fetchDirection(ctx, rc, chain, direction, wallet, fromBlock, toBlock, categories, contracts)
		if err != nil {
			return nil, NewAdapterError(chain.ID, "GetTransfers", err, map[string]interface{}{"direction": direction})
		}
		for _, t := range page {
			key := t.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			transfers = append(transfers, t)
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"chain":     chain.ID,
		"fromBlock": fromBlock,
		"toBlock":   toBlock,
		"transfers": len(transfers),
	}).Debug("fetched transfers")

	return transfers, nil
}

func (c *AlchemyClient) fetchDirection(ctx context.Context, rc *rpc.Client, chain types.Chain, direction, wallet string, fromBlock, toBlock uint64, categories, contracts []string) ([]models.RawTransfer, error) {
	var out []models.RawTransfer
	pageKey := ""

	for page := 1; page <= c.cfg.MaxPages; page++ {
		params := map[string]interface{}{
			direction:          wallet,
			"fromBlock":        hexutil.EncodeUint64(fromBlock),
			"toBlock":          hexutil.EncodeUint64(toBlock),
			"category":         categories,
			"excludeZeroValue": true,
			"withMetadata":     true,
			"maxCount":         alchemyMaxCount,
			"order":            "asc",
		}
		if len(contracts) > 0 {
			params["contractAddresses"] = contracts
		}
		if pageKey != "" {
			params["pageKey"] = pageKey
		}

		var result alchemyTransfersPage
		err := c.do(ctx, "alchemy_getAssetTransfers", func(ctx context.Context) error {
			return rc.CallContext(ctx, &result, "alchemy_getAssetTransfers", params)
		})
		if err != nil {
			return nil, err
		}

		for _, t := range result.Transfers {
			if raw, ok := convertAlchemyTransfer(t, chain.ID); ok {
				out = append(out, raw)
			}
		}

		if result.PageKey == "" {
			return out, nil
		}
		pageKey = result.PageKey
	}

	return nil, fmt.Errorf("%s transfers exceeded %d pages", direction, c.cfg.MaxPages)
}

// transferFilter derives the Alchemy categories and contract filter from the tracked assets
func transferFilter(assets []types.Asset, chain types.Chain) (categories, contracts []string) {
	native := false
	for _, a := range assets {
		if a.ChainID != chain.ID {
			continue
		}
		if a.IsNative() {
			native = true
			continue
		}
		contracts = append(contracts, strings.ToLower(a.ContractAddress))
	}
	if native {
		categories = append(categories, "external")
	}
	if len(contracts) > 0 {
		categories = append(categories, "erc20")
	}
	return categories, contracts
}

func convertAlchemyTransfer(t alchemyAssetTransfer, chain types.ChainID) (models.RawTransfer, bool) {
	var category types.TransferCategory
	switch t.Category {
	case "external":
		category = types.CategoryNative
	case "erc20":
		category = types.CategoryToken
	default:
		return models.RawTransfer{}, false
	}

	raw := models.RawTransfer{
		Hash:            t.Hash,
		UniqueID:        t.UniqueID,
		ChainID:         chain,
		FromAddress:     t.From,
		Category:        category,
		ContractAddress: t.RawContract.Address,
	}
	if t.To != nil {
		raw.ToAddress = *t.To
	}
	if n, err := hexutil.DecodeUint64(t.BlockNum); err == nil {
		raw.BlockNumber = n
	}
	if t.Metadata != nil {
		raw.BlockTimestamp = t.Metadata.BlockTimestamp
	}
	if t.RawContract.Value != nil {
		value := hexToDecimalString(*t.RawContract.Value)
		raw.RawValue = &value
	}
	return raw, true
}

// hexToDecimalString converts a (possibly zero-padded) hex quantity to base 10.
// Input that is not hex is returned unchanged so that normalization rejects it.
func hexToDecimalString(s string) string {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == "" {
		return "0"
	}
	n, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return s
	}
	return n.String()
}
