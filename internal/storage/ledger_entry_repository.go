package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/wallet-statement/internal/models"
)

// LedgerEntryRepository archives generated statement entries in ClickHouse
// for analytics. The table is append-only; a regenerated statement replaces
// its rows on merge.
type LedgerEntryRepository struct {
	db *ClickHouseDB
}

// NewLedgerEntryRepository creates a new ledger entry repository
func NewLedgerEntryRepository(db *ClickHouseDB) *LedgerEntryRepository {
	return &LedgerEntryRepository{db: db}
}

// InsertStatementEntries writes every entry of stmt in one batch
func (r *LedgerEntryRepository) InsertStatementEntries(ctx context.Context, stmt *models.Statement) error {
	if len(stmt.Entries) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO ledger_entries (statement_id, wallet_address, seq, chain, hash, block_number, timestamp,
			asset_key, symbol, entry_type, direction, quantity, price_per_unit, usd_value,
			running_balance, synthetic, generated_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	wallet := strings.ToLower(stmt.WalletAddress)
	for i, e := range stmt.Entries {
		if err := batch.Append(
			stmt.ID,
			wallet,
			uint32(i), // #nosec G115 - entry counts are far below 2^32
			string(e.Chain),
			e.Hash,
			e.BlockNumber,
			e.Timestamp,
			e.Asset.Key(),
			e.Asset.Symbol,
			e.Type(),
			string(e.Direction),
			e.Quantity.String(),
			e.PricePerUnit.String(),
			e.USDValue.String(),
			e.RunningBalance.String(),
			e.Synthetic,
			stmt.GeneratedAt,
		); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// CountByStatement returns the number of archived entries of a statement
func (r *LedgerEntryRepository) CountByStatement(ctx context.Context, statementID string) (uint64, error) {
	var count uint64
	err := r.db.Conn().QueryRow(ctx, `
		SELECT count() FROM ledger_entries FINAL WHERE statement_id = ?
	`, statementID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// Ping checks the archive connection
func (r *LedgerEntryRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
