package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallet-statement/internal/types"
)

// MarketMovementCounterparty labels both sides of a synthetic valuation entry
const MarketMovementCounterparty = "Market Movement"

// ErrRunningBalanceAssigned is returned when a running balance is written twice
var ErrRunningBalanceAssigned = errors.New("running balance already assigned")

// LedgerEntry is one priced, directional movement (or synthetic valuation event)
// in a statement. Only the running balance is written after creation, exactly once.
type LedgerEntry struct {
	Hash               string          `json:"hash"`
	Chain              types.ChainID   `json:"chain"`
	BlockNumber        uint64          `json:"blockNumber,omitempty"`
	Timestamp          time.Time       `json:"timestamp"`
	TimestampEstimated bool            `json:"timestampEstimated,omitempty"`
	Asset              types.Asset     `json:"asset"`
	Direction          types.Direction `json:"direction"`
	From               string          `json:"from"`
	To                 string          `json:"to"`
	RawValue           string          `json:"rawValue,omitempty"`
	Quantity           decimal.Decimal `json:"quantity"`
	PricePerUnit       decimal.Decimal `json:"pricePerUnit"`
	USDValue           decimal.Decimal `json:"usdValue"`
	RunningBalance     decimal.Decimal `json:"runningBalance"`
	Synthetic          bool            `json:"synthetic"`

	balanceAssigned bool
}

// IsCreditLike reports whether the entry adds value (credits and unrealized gains)
func (e *LedgerEntry) IsCreditLike() bool {
	return e.Direction == types.DirectionCredit
}

// Type returns the display type: credit, debit, unrealized_gain or unrealized_loss
func (e *LedgerEntry) Type() string {
	switch {
	case e.Synthetic && e.IsCreditLike():
		return "unrealized_gain"
	case e.Synthetic:
		return "unrealized_loss"
	case e.IsCreditLike():
		return "credit"
	default:
		return "debit"
	}
}

// ApplyPrice sets the unit price and derives the USD value from the quantity
func (e *LedgerEntry) ApplyPrice(price decimal.Decimal) {
	e.PricePerUnit = price
	e.USDValue = e.Quantity.Mul(price)
}

// SignedUSD returns the USD value with the sign of the entry's direction
func (e *LedgerEntry) SignedUSD() decimal.Decimal {
	if e.IsCreditLike() {
		return e.USDValue
	}
	return e.USDValue.Neg()
}

// SignedQuantity returns the quantity with the sign of the entry's direction
func (e *LedgerEntry) SignedQuantity() decimal.Decimal {
	if e.IsCreditLike() {
		return e.Quantity
	}
	return e.Quantity.Neg()
}

// SetRunningBalance records the running balance after this entry
func (e *LedgerEntry) SetRunningBalance(balance decimal.Decimal) error {
	if e.balanceAssigned {
		return ErrRunningBalanceAssigned
	}
	e.RunningBalance = balance
	e.balanceAssigned = true
	return nil
}

// HasRunningBalance reports whether SetRunningBalance has been called
func (e *LedgerEntry) HasRunningBalance() bool {
	return e.balanceAssigned
}
