package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallet-statement/internal/models"
	"github.com/wallet-statement/internal/types"
)

// UnrealizedThreshold is the smallest valuation change reported as an entry
var UnrealizedThreshold = decimal.New(1, -2)

// SynthesizeUnrealized values the opening quantity at the opening and closing
// prices and returns a synthetic gain or loss entry dated at for the difference.
// It returns nil when the absolute change is below UnrealizedThreshold.
// The closing position's quantity is ignored; only its price is used.
func SynthesizeUnrealized(opening, closing models.Position, at time.Time) *models.LedgerEntry {
	quantity := opening.Quantity
	openingValue := quantity.Mul(opening.PricePerUnit)
	closingValue := quantity.Mul(closing.PricePerUnit)
	delta := closingValue.Sub(openingValue)

	if delta.Abs().LessThan(UnrealizedThreshold) {
		return nil
	}

	direction := types.DirectionCredit
	if delta.IsNegative() {
		direction = types.DirectionDebit
	}

	return &models.LedgerEntry{
		Hash:         fmt.Sprintf("unrealized:%s", opening.Asset.Key()),
		Chain:        opening.Asset.ChainID,
		Timestamp:    at.UTC(),
		Asset:        opening.Asset,
		Direction:    direction,
		From:         models.MarketMovementCounterparty,
		To:           models.MarketMovementCounterparty,
		Quantity:     quantity.Abs(),
		PricePerUnit: closing.PricePerUnit.Sub(opening.PricePerUnit).Abs(),
		USDValue:     delta.Abs(),
		Synthetic:    true,
	}
}
