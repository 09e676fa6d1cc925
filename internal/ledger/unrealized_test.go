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

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSynthesizeUnrealizedGain(t *testing.T) {
	token := testToken()
	end := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)

	opening := models.NewPosition(token, d("10"), d("1.00"))
	closing := models.NewPosition(token, d("10"), d("1.50"))

	entry := SynthesizeUnrealized(opening, closing, end)
	require.NotNil(t, entry)
	assert.True(t, entry.Synthetic)
	assert.Equal(t, types.DirectionCredit, entry.Direction)
	assert.Equal(t, "unrealized_gain", entry.Type())
	assert.True(t, entry.USDValue.Equal(d("5")))
	assert.True(t, entry.Timestamp.Equal(end))
	assert.Equal(t, models.MarketMovementCounterparty, entry.From)
	assert.Equal(t, models.MarketMovementCounterparty, entry.To)
	assert.True(t, entry.Quantity.Mul(entry.PricePerUnit).Equal(entry.USDValue))
}

func TestSynthesizeUnrealizedLoss(t *testing.T) {
	token := testToken()
	opening := models.NewPosition(token, d("4"), d("2.50"))
	closing := models.NewPosition(token, d("4"), d("2.25"))

	entry := SynthesizeUnrealized(opening, closing, time.Now())
	require.NotNil(t, entry)
	assert.Equal(t, types.DirectionDebit, entry.Direction)
	assert.Equal(t, "unrealized_loss", entry.Type())
	assert.True(t, entry.USDValue.Equal(d("1")))
}

func TestSynthesizeUnrealizedThreshold(t *testing.T) {
	token := testToken()
	tests := []struct {
		name    string
		qty     string
		open    string
		close   string
		emitted bool
	}{
		{name: "no price change", qty: "10", open: "1", close: "1", emitted: false},
		{name: "sub cent drift", qty: "1", open: "1.000", close: "1.009", emitted: false},
		{name: "sub cent drop", qty: "1", open: "1.009", close: "1.000", emitted: false},
		{name: "exactly one cent", qty: "1", open: "1.00", close: "1.01", emitted: true},
		{name: "exactly one cent loss", qty: "1", open: "1.01", close: "1.00", emitted: true},
		{name: "zero quantity", qty: "0", open: "1", close: "100", emitted: false},
		{name: "unknown closing price", qty: "2", open: "3", close: "0", emitted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := SynthesizeUnrealized(
				models.NewPosition(token, d(tt.qty), d(tt.open)),
				models.NewPosition(token, d(tt.qty), d(tt.close)),
				time.Now(),
			)
			assert.Equal(t, tt.emitted, entry != nil)
		})
	}
}

func TestSynthesizeUsesOpeningQuantity(t *testing.T) {
	token := testToken()
	opening := models.NewPosition(token, d("10"), d("1"))
	// closing snapshot holds more tokens, but only the price is used
	closing := models.NewPosition(token, d("25"), d("2"))

	entry := SynthesizeUnrealized(opening, closing, time.Now())
	require.NotNil(t, entry)
	assert.True(t, entry.USDValue.Equal(d("10")))
	assert.True(t, entry.Quantity.Equal(d("10")))
}
