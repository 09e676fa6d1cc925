package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/wallet-statement/internal/models"
)

// ErrStatementNotFound is returned when no statement has the requested id
var ErrStatementNotFound = errors.New("statement not found")

// StatementHeader is the listing view of a stored statement
type StatementHeader struct {
	ID              string          `json:"id"`
	WalletAddress   string          `json:"walletAddress"`
	PeriodStart     time.Time       `json:"periodStart"`
	PeriodEnd       time.Time       `json:"periodEnd"`
	Chains          []string        `json:"chains"`
	OpeningTotalUSD decimal.Decimal `json:"openingTotalUsd"`
	ClosingTotalUSD decimal.Decimal `json:"closingTotalUsd"`
	EntryCount      int             `json:"entryCount"`
	GeneratedAt     time.Time       `json:"generatedAt"`
}

// StatementRepository stores generated statements as JSONB documents
type StatementRepository struct {
	db *PostgresDB
}

// NewStatementRepository creates a new statement repository
func NewStatementRepository(db *PostgresDB) *StatementRepository {
	return &StatementRepository{db: db}
}

// Save upserts a statement by id. Regenerating a statement replaces the stored document.
func (r *StatementRepository) Save(ctx context.Context, stmt *models.Statement) error {
	document, err := json.Marshal(stmt)
	if err != nil {
		return fmt.Errorf("failed to marshal statement: %w", err)
	}

	chains := make([]string, len(stmt.Chains))
	for i, c := range stmt.Chains {
		chains[i] = string(c)
	}

	query := `
		INSERT INTO statements (id, wallet_address, period_start, period_end, chains,
			opening_total_usd, closing_total_usd, entry_count, document, generated_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO UPDATE SET
			opening_total_usd = EXCLUDED.opening_total_usd,
			closing_total_usd = EXCLUDED.closing_total_usd,
			entry_count = EXCLUDED.entry_count,
			document = EXCLUDED.document,
			generated_at = EXCLUDED.generated_at,
			updated_at = NOW()
	`

	_, err = r.db.Pool().Exec(ctx, query,
		stmt.ID,
		strings.ToLower(stmt.WalletAddress),
		stmt.Period.Start,
		stmt.Period.End,
		chains,
		stmt.OpeningTotalUSD.String(),
		stmt.ClosingTotalUSD.String(),
		stmt.Summary.EntryCount,
		document,
		stmt.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save statement: %w", err)
	}

	return nil
}

// GetByID retrieves a statement by id
func (r *StatementRepository) GetByID(ctx context.Context, id string) (*models.Statement, error) {
	var document []byte
	err := r.db.Pool().QueryRow(ctx, `SELECT document FROM statements WHERE id = $1`, id).Scan(&document)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStatementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement: %w", err)
	}

	var stmt models.Statement
	if err := json.Unmarshal(document, &stmt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal statement: %w", err)
	}
	return &stmt, nil
}

// ListByWallet returns the most recently generated statements of a wallet
func (r *StatementRepository) ListByWallet(ctx context.Context, wallet string, limit int) ([]StatementHeader, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, wallet_address, period_start, period_end, chains,
			opening_total_usd::text, closing_total_usd::text, entry_count, generated_at
		FROM statements
		WHERE wallet_address = $1
		ORDER BY period_start DESC, generated_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, strings.ToLower(wallet), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list statements: %w", err)
	}
	defer rows.Close()

	var headers []StatementHeader
	for rows.Next() {
		var h StatementHeader
		var opening, closing string
		if err := rows.Scan(&h.ID, &h.WalletAddress, &h.PeriodStart, &h.PeriodEnd, &h.Chains,
			&opening, &closing, &h.EntryCount, &h.GeneratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		h.OpeningTotalUSD, _ = decimal.NewFromString(opening)
		h.ClosingTotalUSD, _ = decimal.NewFromString(closing)
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate statements: %w", err)
	}

	return headers, nil
}

// Ping checks the statement store connection
func (r *StatementRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
