package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-statement/internal/models"
	"github.com/wallet-statement/internal/types"
)

func TestSortEntriesIsStable(t *testing.T) {
	token := testToken()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	a := movement(token, types.DirectionCredit, "1", t0.Add(time.Hour))
	a.Hash = "a"
	b := movement(token, types.DirectionCredit, "1", t0)
	b.Hash = "b"
	c := movement(token, types.DirectionDebit, "1", t0.Add(time.Hour))
	c.Hash = "c"
	e := movement(token, types.DirectionDebit, "1", t0.Add(time.Hour))
	e.Hash = "e"

	entries := []*models.LedgerEntry{a, b, c, e}
	SortEntries(entries)

	hashes := []string{entries[0].Hash, entries[1].Hash, entries[2].Hash, entries[3].Hash}
	assert.Equal(t, []string{"b", "a", "c", "e"}, hashes)
}

func TestApplyRunningBalance(t *testing.T) {
	token := testToken()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	in := movement(token, types.DirectionCredit, "2", t0)
	in.ApplyPrice(d("1.20"))
	out := movement(token, types.DirectionDebit, "1", t0.Add(time.Hour))
	out.ApplyPrice(d("1.10"))
	gain := &models.LedgerEntry{Asset: token, Direction: types.DirectionCredit, USDValue: d("4.70"), Synthetic: true, Timestamp: t0.Add(2 * time.Hour)}

	entries := []*models.LedgerEntry{in, out, gain}
	summary, err := ApplyRunningBalance(entries, d("10"), d("16"))
	require.NoError(t, err)

	assert.True(t, in.RunningBalance.Equal(d("12.40")))
	assert.True(t, out.RunningBalance.Equal(d("11.30")))
	assert.True(t, gain.RunningBalance.Equal(d("16")))

	assert.True(t, summary.TotalDeposits.Equal(d("7.10")))
	assert.True(t, summary.TotalWithdrawals.Equal(d("1.10")))
	assert.Equal(t, 2, summary.EntryCount)
	assert.True(t, summary.NetChange.Equal(d("6")))
}

func TestApplyRunningBalanceEmpty(t *testing.T) {
	summary, err := ApplyRunningBalance(nil, d("100"), d("80"))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.EntryCount)
	assert.True(t, summary.TotalDeposits.IsZero())
	assert.True(t, summary.TotalWithdrawals.IsZero())
	assert.True(t, summary.NetChange.Equal(d("-20")))
}

func TestApplyRunningBalanceRejectsSecondPass(t *testing.T) {
	entry := movement(testToken(), types.DirectionCredit, "1", time.Now())
	entry.ApplyPrice(d("1"))
	entries := []*models.LedgerEntry{entry}

	_, err := ApplyRunningBalance(entries, d("0"), d("1"))
	require.NoError(t, err)

	_, err = ApplyRunningBalance(entries, d("0"), d("1"))
	assert.ErrorIs(t, err, ErrRunningBalanceAssigned)
	assert.True(t, entry.RunningBalance.Equal(d("1")))
}

// Opening 10 TOKEN at $1.00, closing 10 TOKEN at $1.50, no transfers
func TestScenarioPriceOnlyGain(t *testing.T) {
	token := testToken()
	end := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
	closingQty := d("10")

	openingQty := Reconcile(token, closingQty, nil)
	require.True(t, openingQty.Equal(d("10")))

	opening := models.NewPosition(token, openingQty, d("1.00"))
	closing := models.NewPosition(token, closingQty, d("1.50"))

	var entries []*models.LedgerEntry
	if gain := SynthesizeUnrealized(opening, models.NewPosition(token, openingQty, closing.PricePerUnit), end); gain != nil {
		entries = append(entries, gain)
	}
	require.Len(t, entries, 1)

	summary, err := ApplyRunningBalance(entries, opening.USDValue, closing.USDValue)
	require.NoError(t, err)

	assert.True(t, summary.TotalDeposits.Equal(decimal.RequireFromString("5.00")))
	assert.True(t, summary.TotalWithdrawals.IsZero())
	assert.Equal(t, 0, summary.EntryCount)
	assert.True(t, summary.NetChange.Equal(decimal.RequireFromString("5.00")))
	assert.True(t, entries[0].RunningBalance.Equal(closing.USDValue))
}
