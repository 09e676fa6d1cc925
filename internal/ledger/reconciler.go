package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/wallet-statement/internal/models"
	"github.com/wallet-statement/internal/types"
)

// Reconcile derives the opening quantity of asset from its closing quantity by
// undoing the period's movements: credits are subtracted, debits added back.
// Entries for other assets and synthetic entries are ignored. The entry set is
// assumed to be complete; nothing here can detect a missing transfer.
func Reconcile(asset types.Asset, closing decimal.Decimal, entries []*models.LedgerEntry) decimal.Decimal {
	opening := closing
	key := asset.Key()
	for _, e := range entries {
		if e.Synthetic || e.Asset.Key() != key {
			continue
		}
		opening = opening.Sub(e.SignedQuantity())
	}
	return opening
}

// ApplyForward replays entries on top of an opening quantity
func ApplyForward(asset types.Asset, opening decimal.Decimal, entries []*models.LedgerEntry) decimal.Decimal {
	closing := opening
	key := asset.Key()
	for _, e := range entries {
		if e.Synthetic || e.Asset.Key() != key {
			continue
		}
		closing = closing.Add(e.SignedQuantity())
	}
	return closing
}
