package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/wallet-statement/internal/models"
	"github.com/wallet-statement/internal/types"
)

// Classify turns a raw transfer into a ledger entry for wallet on chain.
// Every error it returns means "skip this transfer": ErrUnresolvedAsset,
// ErrZeroQuantity, ErrMalformedQuantity or ErrInvalidTimestamp.
// The entry is unpriced; a timestamp replaced by capturedAt is flagged on the entry.
func Classify(transfer models.RawTransfer, wallet string, chain types.Chain, tracked []types.Asset, capturedAt time.Time) (*models.LedgerEntry, error) {
	asset, ok := resolveAsset(transfer, chain, tracked)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s on %s", ErrUnresolvedAsset, transfer.Category, deref(transfer.ContractAddress), chain.ID)
	}

	raw := "0"
	if transfer.RawValue != nil {
		raw = *transfer.RawValue
	}
	quantity, err := NormalizeQuantity(raw, asset.Decimals)
	if err != nil {
		return nil, err
	}
	if quantity.IsZero() {
		return nil, ErrZeroQuantity
	}

	ts, fellBack, err := ResolveTimestamp(transfer.BlockTimestamp, chain, capturedAt)
	if err != nil {
		return nil, err
	}

	direction := types.DirectionDebit
	if types.SameAddress(transfer.ToAddress, wallet) {
		direction = types.DirectionCredit
	}

	return &models.LedgerEntry{
		Hash:               transfer.Hash,
		Chain:              chain.ID,
		BlockNumber:        transfer.BlockNumber,
		Timestamp:          ts,
		TimestampEstimated: fellBack,
		Asset:              asset,
		Direction:          direction,
		From:               transfer.FromAddress,
		To:                 transfer.ToAddress,
		RawValue:           raw,
		Quantity:           quantity,
	}, nil
}

func resolveAsset(transfer models.RawTransfer, chain types.Chain, tracked []types.Asset) (types.Asset, bool) {
	for _, asset := range tracked {
		if asset.ChainID != chain.ID {
			continue
		}
		switch transfer.Category {
		case types.CategoryNative:
			if asset.IsNative() {
				return asset, true
			}
		case types.CategoryToken:
			if transfer.ContractAddress != nil && asset.MatchesContract(*transfer.ContractAddress) {
				return asset, true
			}
		}
	}
	return types.Asset{}, false
}

// SkipReason maps a Classify error onto a short label for reports
func SkipReason(err error) string {
	switch {
	case errors.Is(err, ErrUnresolvedAsset):
		return "unresolved_asset"
	case errors.Is(err, ErrZeroQuantity):
		return "zero_quantity"
	case errors.Is(err, ErrMalformedQuantity):
		return "malformed_quantity"
	case errors.Is(err, ErrInvalidTimestamp):
		return "invalid_timestamp"
	default:
		return "other"
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
