package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-statement/internal/types"
)

func TestMonthPeriod(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		end   string
	}{
		{2024, time.January, "2024-01-31T23:59:59Z"},
		{2024, time.February, "2024-02-29T23:59:59Z"},
		{2023, time.February, "2023-02-28T23:59:59Z"},
		{2023, time.December, "2023-12-31T23:59:59Z"},
	}

	for _, tt := range tests {
		p := MonthPeriod(tt.year, tt.month)
		assert.Equal(t, time.Date(tt.year, tt.month, 1, 0, 0, 0, 0, time.UTC), p.Start)
		assert.Equal(t, tt.end, p.End.Format(time.RFC3339))
		assert.NoError(t, p.Validate())
	}
}

func TestStatementPeriodValidate(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.Error(t, StatementPeriod{Start: now, End: now}.Validate())
	assert.Error(t, StatementPeriod{Start: now, End: now.Add(-time.Hour)}.Validate())
	assert.Error(t, StatementPeriod{End: now}.Validate())
	assert.NoError(t, StatementPeriod{Start: now, End: now.Add(time.Second)}.Validate())
}

func TestLedgerEntryRunningBalanceIsWrittenOnce(t *testing.T) {
	entry := &LedgerEntry{Direction: types.DirectionCredit}
	assert.False(t, entry.HasRunningBalance())

	require.NoError(t, entry.SetRunningBalance(decimal.NewFromInt(10)))
	assert.ErrorIs(t, entry.SetRunningBalance(decimal.NewFromInt(20)), ErrRunningBalanceAssigned)
	assert.True(t, entry.RunningBalance.Equal(decimal.NewFromInt(10)))
}

func TestLedgerEntryType(t *testing.T) {
	assert.Equal(t, "credit", (&LedgerEntry{Direction: types.DirectionCredit}).Type())
	assert.Equal(t, "debit", (&LedgerEntry{Direction: types.DirectionDebit}).Type())
	assert.Equal(t, "unrealized_gain", (&LedgerEntry{Direction: types.DirectionCredit, Synthetic: true}).Type())
	assert.Equal(t, "unrealized_loss", (&LedgerEntry{Direction: types.DirectionDebit, Synthetic: true}).Type())
}

func TestPositionValue(t *testing.T) {
	asset := types.Asset{ChainID: types.ChainEthereum, ContractAddress: types.NativeAddress, Symbol: "ETH", Decimals: 18}
	p := NewPosition(asset, decimal.RequireFromString("1.5"), decimal.RequireFromString("2000.10"))

	assert.Equal(t, types.ChainEthereum, p.Chain)
	assert.True(t, p.USDValue.Equal(decimal.RequireFromString("3000.15")))

	total := TotalUSD([]Position{p, NewPosition(asset, decimal.NewFromInt(1), decimal.NewFromInt(1))})
	assert.True(t, total.Equal(decimal.RequireFromString("3001.15")))
}

func TestLedgerEntryApplyPrice(t *testing.T) {
	e := &LedgerEntry{Direction: types.DirectionDebit, Quantity: decimal.NewFromInt(3)}
	e.ApplyPrice(decimal.RequireFromString("1.25"))

	assert.True(t, e.USDValue.Equal(decimal.RequireFromString("3.75")))
	assert.True(t, e.SignedUSD().Equal(decimal.RequireFromString("-3.75")))
	assert.True(t, e.SignedQuantity().Equal(decimal.NewFromInt(-3)))
}
