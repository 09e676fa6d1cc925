package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wallet-statement/internal/types"
)

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ResolveTimestamp decodes a block timestamp given as ISO-8601, 0x-prefixed
// hex seconds or decimal seconds. A result earlier than the chain's genesis
// year is replaced by capturedAt and reported through the fellBack flag.
func ResolveTimestamp(raw string, chain types.Chain, capturedAt time.Time) (ts time.Time, fellBack bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}

	switch {
	case strings.Contains(raw, "-"):
		ts, err = parseISO(raw)
	case strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X"):
		ts, err = parseSeconds(raw[2:], 16)
	default:
		ts, err = parseSeconds(raw, 10)
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %q: %v", ErrInvalidTimestamp, raw, err)
	}

	if ts.Year() < chain.GenesisYear {
		return capturedAt.UTC(), true, nil
	}
	return ts.UTC(), false, nil
}

func parseISO(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range isoLayouts {
		ts, err := time.Parse(layout, raw)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func parseSeconds(raw string, base int) (time.Time, error) {
	secs, err := strconv.ParseInt(raw, base, 64)
	if err != nil {
		return time.Time{}, err
	}
	if secs < 0 {
		return time.Time{}, fmt.Errorf("negative seconds %d", secs)
	}
	return time.Unix(secs, 0), nil
}
