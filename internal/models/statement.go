package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallet-statement/internal/types"
)

// AccountHolder identifies the person a statement is issued to
type AccountHolder struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// StatementPeriod is the half-open reporting window of a statement
type StatementPeriod struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

// Validate checks that the period is not empty
func (p StatementPeriod) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("statement period requires start and end")
	}
	if !p.Start.Before(p.End) {
		return fmt.Errorf("statement period start %s must be before end %s",
			p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
	}
	return nil
}

// MonthPeriod returns the calendar month as 00:00:00 on the first day through
// 23:59:59 on the last day, UTC
func MonthPeriod(year int, month time.Month) StatementPeriod {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return StatementPeriod{Start: start, End: end}
}

// Position is a quantity-and-price snapshot of one asset on one chain
type Position struct {
	Chain        types.ChainID   `json:"chain"`
	Asset        types.Asset     `json:"asset"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
	USDValue     decimal.Decimal `json:"usdValue"`
}

// NewPosition builds a position valued at price
func NewPosition(asset types.Asset, quantity, price decimal.Decimal) Position {
	return Position{
		Chain:        asset.ChainID,
		Asset:        asset,
		Quantity:     quantity,
		PricePerUnit: price,
		USDValue:     quantity.Mul(price),
	}
}

// TotalUSD sums the USD value of positions
func TotalUSD(positions []Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.USDValue)
	}
	return total
}

// Summary aggregates a statement's entries
type Summary struct {
	TotalDeposits    decimal.Decimal `json:"totalDeposits"`
	TotalWithdrawals decimal.Decimal `json:"totalWithdrawals"`
	EntryCount       int             `json:"entryCount"`
	NetChange        decimal.Decimal `json:"netChange"`
}

// ChainStatus is the outcome of processing one chain
type ChainStatus string

const (
	// ChainProcessed means the chain contributed to the statement
	ChainProcessed ChainStatus = "processed"
	// ChainFailed means the chain was skipped after a failure
	ChainFailed ChainStatus = "failed"
)

// ChainReport describes how much of one chain made it into a statement
type ChainReport struct {
	Chain              types.ChainID  `json:"chain"`
	Status             ChainStatus    `json:"status"`
	FailedStage        string         `json:"failedStage,omitempty"`
	Error              string         `json:"error,omitempty"`
	FromBlock          uint64         `json:"fromBlock"`
	ToBlock            uint64         `json:"toBlock"`
	ApproximateBlocks  bool           `json:"approximateBlocks,omitempty"`
	TransferCount      int            `json:"transferCount"`
	EntryCount         int            `json:"entryCount"`
	Skipped            map[string]int `json:"skipped,omitempty"`
	TimestampFallbacks int            `json:"timestampFallbacks,omitempty"`
	ZeroPrices         int            `json:"zeroPrices,omitempty"`
}

// Statement is the reconciled ledger of a wallet over a period
type Statement struct {
	ID               string          `json:"id"`
	AccountHolder    *AccountHolder  `json:"accountHolder,omitempty"`
	WalletAddress    string          `json:"walletAddress"`
	Chains           []types.ChainID `json:"chains"`
	Assets           []types.Asset   `json:"assets"`
	Period           StatementPeriod `json:"period"`
	OpeningPositions []Position      `json:"openingPositions"`
	ClosingPositions []Position      `json:"closingPositions"`
	OpeningTotalUSD  decimal.Decimal `json:"openingTotalUsd"`
	ClosingTotalUSD  decimal.Decimal `json:"closingTotalUsd"`
	Entries          []*LedgerEntry  `json:"entries"`
	Summary          Summary         `json:"summary"`
	Coverage         []ChainReport   `json:"coverage"`
	GeneratedAt      time.Time       `json:"generatedAt"`
}

// FailedChains lists the chains that were dropped from the statement
func (s *Statement) FailedChains() []types.ChainID {
	var out []types.ChainID
	for _, r := range s.Coverage {
		if r.Status == ChainFailed {
			out = append(out, r.Chain)
		}
	}
	return out
}
