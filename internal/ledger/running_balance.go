package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wallet-statement/internal/models"
)

// ErrRunningBalanceAssigned is returned when an entry already carries a running balance
var ErrRunningBalanceAssigned = models.ErrRunningBalanceAssigned

// SortEntries orders entries by timestamp, keeping the input order of ties
func SortEntries(entries []*models.LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}

// ApplyRunningBalance walks time-ordered entries once starting from openingTotal,
// writing each entry's running balance, and summarizes them. NetChange is taken
// from the two totals rather than from the walk.
func ApplyRunningBalance(entries []*models.LedgerEntry, openingTotal, closingTotal decimal.Decimal) (models.Summary, error) {
	summary := models.Summary{
		TotalDeposits:    decimal.Zero,
		TotalWithdrawals: decimal.Zero,
		NetChange:        closingTotal.Sub(openingTotal),
	}

	balance := openingTotal
	for i, e := range entries {
		if e.IsCreditLike() {
			balance = balance.Add(e.USDValue)
			summary.TotalDeposits = summary.TotalDeposits.Add(e.USDValue)
		} else {
			balance = balance.Sub(e.USDValue)
			summary.TotalWithdrawals = summary.TotalWithdrawals.Add(e.USDValue)
		}
		if err := e.SetRunningBalance(balance); err != nil {
			return summary, fmt.Errorf("entry %d (%s): %w", i, e.Hash, err)
		}
		if !e.Synthetic {
			summary.EntryCount++
		}
	}

	return summary, nil
}
