// Package ledger holds the pure statement arithmetic: quantity normalization,
// transfer classification, balance reconciliation, unrealized P&L synthesis and
// running balance application. Nothing in this package performs I/O.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDisplayDecimals is the number of fractional digits kept after normalization
const MaxDisplayDecimals = 8

var (
	// ErrMalformedQuantity is returned for raw amounts that are not non-negative integers
	ErrMalformedQuantity = errors.New("malformed quantity")
	// ErrUnresolvedAsset is returned when a transfer does not belong to a tracked asset
	ErrUnresolvedAsset = errors.New("unresolved asset")
	// ErrZeroQuantity is returned when a transfer normalizes to exactly zero
	ErrZeroQuantity = errors.New("zero quantity")
	// ErrInvalidTimestamp is returned when no timestamp encoding matches
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

var ten = big.NewInt(10)

// NormalizeQuantity converts a base-unit integer string into a decimal amount.
// The integer is split by 10^decimals with integer division, the fraction is
// zero-padded to decimals digits and truncated to MaxDisplayDecimals.
func NormalizeQuantity(raw string, decimals int) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || decimals < 0 || !isDigits(raw) {
		return decimal.Zero, fmt.Errorf("%w: %q (decimals %d)", ErrMalformedQuantity, raw, decimals)
	}

	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedQuantity, raw)
	}

	if decimals == 0 {
		return decimal.NewFromBigInt(value, 0), nil
	}

	divisor := new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(value, divisor, new(big.Int))

	fraction := frac.String()
	if len(fraction) < decimals {
		fraction = strings.Repeat("0", decimals-len(fraction)) + fraction
	}
	if len(fraction) > MaxDisplayDecimals {
		fraction = fraction[:MaxDisplayDecimals]
	}

	d, err := decimal.NewFromString(whole.String() + "." + fraction)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrMalformedQuantity, err)
	}
	return d, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
