package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/wallet-statement/internal/models"
	"github.com/wallet-statement/internal/types"
)

// BalanceSource reports asset balances of a wallet
type BalanceSource interface {
	// GetBalances returns the base-unit balance of each asset at atBlock,
	// or at the latest block when atBlock is nil
	GetBalances(ctx context.Context, wallet string, assets []types.Asset, chain types.Chain, atBlock *uint64) ([]models.RawBalance, error)
}

// TransferSource reports the transfers of a wallet
type TransferSource interface {
	// GetTransfers returns every transfer in [fromBlock, toBlock] sent or received
	// by wallet, deduplicated across both directions, following pagination internally
	GetTransfers(ctx context.Context, wallet string, fromBlock, toBlock uint64, assets []types.Asset, chain types.Chain) ([]models.RawTransfer, error)
}

// BlockRangeSource maps a statement period onto block numbers
type BlockRangeSource interface {
	// GetBlockRangeForPeriod returns the first block at or after the period start
	// and the last block at or before the period end
	GetBlockRangeForPeriod(ctx context.Context, period models.StatementPeriod, chain types.Chain) (models.BlockRange, error)
}

// HeadSource reports the latest block of a chain
type HeadSource interface {
	Head(ctx context.Context, chain types.Chain) (number uint64, at time.Time, err error)
}

var (
	// ErrInvalidAddress indicates the address format is invalid
	ErrInvalidAddress = fmt.Errorf("invalid address format")

	// ErrProviderUnavailable indicates the data provider is unavailable
	ErrProviderUnavailable = fmt.Errorf("data provider unavailable")

	// ErrProviderRateLimit indicates the provider rate limit was exceeded
	ErrProviderRateLimit = fmt.Errorf("provider rate limit exceeded")

	// ErrChainNotConfigured indicates no endpoint is configured for a chain
	ErrChainNotConfigured = fmt.Errorf("chain not configured")

	// ErrInvalidBlockRange indicates an invalid block range was specified
	ErrInvalidBlockRange = fmt.Errorf("invalid block range")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Chain   types.ChainID
	Op      string // Operation that failed (e.g., "GetTransfers", "GetBalances")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("adapter error [%s:%s]: %v (details: %+v)", e.Chain, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("adapter error [%s:%s]: %v", e.Chain, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(chain types.ChainID, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Chain:   chain,
		Op:      op,
		Err:     err,
		Details: details,
	}
}
