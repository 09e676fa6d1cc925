package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wallet-statement/internal/adapter"
	apperrors "github.com/wallet-statement/internal/errors"
	"github.com/wallet-statement/internal/ledger"
	"github.com/wallet-statement/internal/logging"
	"github.com/wallet-statement/internal/models"
	"github.com/wallet-statement/internal/pricing"
	"github.com/wallet-statement/internal/storage"
	"github.com/wallet-statement/internal/types"
)

// StatementStore persists generated statements
type StatementStore interface {
	Save(ctx context.Context, stmt *models.Statement) error
	GetByID(ctx context.Context, id string) (*models.Statement, error)
	ListByWallet(ctx context.Context, wallet string, limit int) ([]storage.StatementHeader, error)
}

// EntryArchive keeps ledger entries for analytics
type EntryArchive interface {
	InsertStatementEntries(ctx context.Context, stmt *models.Statement) error
}

var statementNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("wallet-statement/statements"))

// StatementService generates wallet statements across chains
type StatementService struct {
	balances  adapter.BalanceSource
	transfers adapter.TransferSource
	blocks    adapter.BlockRangeSource
	prices    *pricing.Resolver

	registry    types.AssetRegistry
	store       StatementStore
	archive     EntryArchive
	clock       func() time.Time
	maxParallel int
	monitor     *GenerationMonitor
	logger      *logging.Logger
}

// StatementOption configures a StatementService
type StatementOption func(*StatementService)

// WithClock sets the capture time source
func WithClock(clock func() time.Time) StatementOption {
	return func(s *StatementService) { s.clock = clock }
}

// WithMaxParallelChains bounds how many chains are processed at once
func WithMaxParallelChains(n int) StatementOption {
	return func(s *StatementService) {
		if n > 0 {
			s.maxParallel = n
		}
	}
}

// WithAssetRegistry replaces the built-in tracked assets
func WithAssetRegistry(registry types.AssetRegistry) StatementOption {
	return func(s *StatementService) { s.registry = registry }
}

// WithStatementStore enables statement persistence
func WithStatementStore(store StatementStore) StatementOption {
	return func(s *StatementService) { s.store = store }
}

// WithEntryArchive enables archiving entries of saved statements
func WithEntryArchive(archive EntryArchive) StatementOption {
	return func(s *StatementService) { s.archive = archive }
}

// WithServiceLogger sets the service logger
func WithServiceLogger(logger *logging.Logger) StatementOption {
	return func(s *StatementService) { s.logger = logger }
}

// WithGenerationMonitor shares a monitor between services
func WithGenerationMonitor(monitor *GenerationMonitor) StatementOption {
	return func(s *StatementService) {
		if monitor != nil {
			s.monitor = monitor
		}
	}
}

// NewStatementService creates a new statement service
func NewStatementService(
	balances adapter.BalanceSource,
	transfers adapter.TransferSource,
	blocks adapter.BlockRangeSource,
	prices *pricing.Resolver,
	opts ...StatementOption,
) *StatementService {
	s := &StatementService{
		balances:    balances,
		transfers:   transfers,
		blocks:      blocks,
		prices:      prices,
		registry:    types.DefaultAssetRegistry(),
		clock:       time.Now,
		maxParallel: 5,
		monitor:     NewGenerationMonitor(),
		logger:      logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateStatementInput represents input for generating a statement
type GenerateStatementInput struct {
	AccountHolder *models.AccountHolder  `json:"accountHolder,omitempty"`
	WalletAddress string                 `json:"walletAddress"`
	Period        models.StatementPeriod `json:"period"`
	Assets        []types.Asset          `json:"assets"`
	// Chains defaults to the chains of Assets
	Chains []types.ChainID `json:"chains,omitempty"`
}

// GenerationStats returns timings of the statements generated so far
func (s *StatementService) GenerationStats() *GenerationStats {
	return s.monitor.GetStats()
}

// Registry returns the tracked assets
func (s *StatementService) Registry() types.AssetRegistry {
	return s.registry
}

// ResolveAssets picks tracked assets by symbol on each chain. No symbols
// selects every tracked asset. A symbol tracked on none of the chains is an error.
func (s *StatementService) ResolveAssets(chains []types.Chain, symbols []string) ([]types.Asset, error) {
	var assets []types.Asset
	if len(symbols) == 0 {
		for _, c := range chains {
			assets = append(assets, s.registry.AssetsForChain(c.ID)...)
		}
		return assets, nil
	}

	for _, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		found := false
		for _, c := range chains {
			if asset, ok := s.registry.FindBySymbol(c.ID, symbol); ok {
				assets = append(assets, asset)
				found = true
			}
		}
		if !found {
			return nil, apperrors.NewInvalidParameterError("assets", fmt.Sprintf("%s is not tracked on the selected chains", symbol))
		}
	}
	return assets, nil
}

// GenerateStatement builds a statement. Chains that fail are left out and
// reported in the statement coverage; only invalid input or cancellation
// fail the whole call.
func (s *StatementService) GenerateStatement(ctx context.Context, input GenerateStatementInput) (*models.Statement, error) {
	a, err := s.Assemble(ctx, input)
	if err != nil {
		return nil, err
	}
	return a.Statement, nil
}

// Assemble runs every phase of statement generation and returns the run
func (s *StatementService) Assemble(ctx context.Context, input GenerateStatementInput) (*Assembly, error) {
	chains, assets, err := s.validateInput(input)
	if err != nil {
		return nil, err
	}

	a := &Assembly{}
	for _, c := range chains {
		var onChain []types.Asset
		for _, asset := range assets {
			if asset.ChainID == c.ID {
				onChain = append(onChain, asset)
			}
		}
		a.chains = append(a.chains, newChainWork(c, onChain))
	}

	r := &run{
		wallet:      types.ChecksumAddress(input.WalletAddress),
		period:      models.StatementPeriod{Start: input.Period.Start.UTC(), End: input.Period.End.UTC()},
		capturedAt:  s.clock().UTC(),
		session:     s.prices.NewSession(),
		maxParallel: s.maxParallel,
	}

	logger := s.logger.WithFields(map[string]interface{}{
		"wallet": r.wallet,
		"start":  r.period.Start.Format(time.RFC3339),
		"end":    r.period.End.Format(time.RFC3339),
	})
	ctx = logging.WithLogger(ctx, logger)

	phases := []struct {
		state AssemblyState
		fn    func(context.Context, *run, *chainWork) error
	}{
		{StateFetching, s.fetch},
		{StateClassifying, s.classify},
		{StateReconciling, s.reconcile},
		{StatePricing, s.price},
		{StateSynthesizing, s.synthesize},
	}
	started := time.Now()
	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			s.monitor.RecordRun(time.Since(started), OutcomeFailed)
			return a, err
		}
		a.enter(p.state)
		fn := p.fn
		phaseStart := time.Now()
		r.eachChain(ctx, a, p.state, func(ctx context.Context, w *chainWork) error {
			return fn(ctx, r, w)
		})
		s.monitor.RecordPhase(p.state, time.Since(phaseStart))
	}
	if err := ctx.Err(); err != nil {
		s.monitor.RecordRun(time.Since(started), OutcomeFailed)
		return a, err
	}

	a.enter(StateMerging)
	stmt, err := s.merge(r, a, chains, assets)
	if err != nil {
		s.monitor.RecordRun(time.Since(started), OutcomeFailed)
		return a, apperrors.NewInternalError("failed to merge statement", err)
	}
	stmt.AccountHolder = input.AccountHolder

	if missing := r.session.Unavailable(); len(missing) > 0 {
		logger.WithField("prices", missing).Warn("prices unavailable, valued at zero")
	}

	a.Statement = stmt
	a.enter(StateFinalized)

	outcome := OutcomeComplete
	if len(stmt.FailedChains()) > 0 {
		outcome = OutcomePartial
	}
	s.monitor.RecordRun(time.Since(started), outcome)

	logger.WithFields(map[string]interface{}{
		"statement_id":  stmt.ID,
		"entries":       len(stmt.Entries),
		"failed_chains": stmt.FailedChains(),
	}).Info("statement generated")

	return a, nil
}

func (s *StatementService) merge(r *run, a *Assembly, chains []types.Chain, assets []types.Asset) (*models.Statement, error) {
	stmt := &models.Statement{
		ID:               StatementID(r.wallet, r.period, chains, assets),
		WalletAddress:    r.wallet,
		Period:           r.period,
		Assets:           assets,
		OpeningPositions: []models.Position{},
		ClosingPositions: []models.Position{},
		Entries:          []*models.LedgerEntry{},
		GeneratedAt:      r.capturedAt,
	}
	for _, c := range chains {
		stmt.Chains = append(stmt.Chains, c.ID)
	}

	var synthetic []*models.LedgerEntry
	for _, w := range a.chains {
		stmt.Coverage = append(stmt.Coverage, w.report)
		if w.failed {
			continue
		}
		stmt.OpeningPositions = append(stmt.OpeningPositions, w.openPos...)
		stmt.ClosingPositions = append(stmt.ClosingPositions, w.closePos...)
		stmt.Entries = append(stmt.Entries, w.entries...)
		synthetic = append(synthetic, w.synthetic...)
	}
	stmt.Entries = append(stmt.Entries, synthetic...)
	ledger.SortEntries(stmt.Entries)

	stmt.OpeningTotalUSD = models.TotalUSD(stmt.OpeningPositions)
	stmt.ClosingTotalUSD = models.TotalUSD(stmt.ClosingPositions)

	summary, err := ledger.ApplyRunningBalance(stmt.Entries, stmt.OpeningTotalUSD, stmt.ClosingTotalUSD)
	if err != nil {
		return nil, err
	}
	stmt.Summary = summary
	return stmt, nil
}

// StatementID derives a stable id from the statement request
func StatementID(wallet string, period models.StatementPeriod, chains []types.Chain, assets []types.Asset) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(wallet))
	b.WriteString("|")
	b.WriteString(period.Start.UTC().Format(time.RFC3339))
	b.WriteString("|")
	b.WriteString(period.End.UTC().Format(time.RFC3339))
	for _, c := range chains {
		b.WriteString("|")
		b.WriteString(string(c.ID))
	}
	for _, asset := range assets {
		b.WriteString("|")
		b.WriteString(asset.Key())
	}
	return uuid.NewSHA1(statementNamespace, []byte(b.String())).String()
}

func (s *StatementService) validateInput(input GenerateStatementInput) ([]types.Chain, []types.Asset, error) {
	if !types.IsValidAddress(input.WalletAddress) {
		return nil, nil, apperrors.NewInvalidAddressError(input.WalletAddress)
	}
	if err := input.Period.Validate(); err != nil {
		return nil, nil, apperrors.NewInvalidPeriodError(err)
	}
	if len(input.Assets) == 0 {
		return nil, nil, apperrors.NewInvalidParameterError("assets", "at least one asset is required")
	}

	ids := input.Chains
	if len(ids) == 0 {
		for _, asset := range input.Assets {
			ids = append(ids, asset.ChainID)
		}
	}

	var chains []types.Chain
	selected := make(map[types.ChainID]bool)
	for _, id := range ids {
		if selected[id] {
			continue
		}
		chain, ok := types.GetChain(id)
		if !ok {
			return nil, nil, &types.ServiceError{
				Code:    "UNSUPPORTED_CHAIN",
				Message: fmt.Sprintf("unsupported chain: %s", id),
				Details: map[string]interface{}{"chain": id},
			}
		}
		selected[id] = true
		chains = append(chains, chain)
	}

	var assets []types.Asset
	seen := make(map[string]bool, len(input.Assets))
	for _, asset := range input.Assets {
		if !selected[asset.ChainID] {
			return nil, nil, apperrors.NewInvalidParameterError("assets",
				fmt.Sprintf("%s is on %s, which is not selected", asset.Symbol, asset.ChainID))
		}
		if seen[asset.Key()] {
			continue
		}
		seen[asset.Key()] = true
		assets = append(assets, asset)
	}
	return chains, assets, nil
}

// SaveStatement stores a statement and archives its entries when an archive
// is configured. Archive failures are logged only.
func (s *StatementService) SaveStatement(ctx context.Context, stmt *models.Statement) error {
	if s.store == nil {
		return storageDisabled()
	}
	if err := s.store.Save(ctx, stmt); err != nil {
		return apperrors.NewDatabaseError("save statement", err)
	}

	if s.archive != nil {
		if err := s.archive.InsertStatementEntries(ctx, stmt); err != nil {
			s.logger.WithError(err).WithField("statement_id", stmt.ID).Warn("failed to archive statement entries")
		}
	}
	return nil
}

// GetStatement loads a saved statement
func (s *StatementService) GetStatement(ctx context.Context, id string) (*models.Statement, error) {
	if s.store == nil {
		return nil, storageDisabled()
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NewInvalidParameterError("id", "must be a UUID")
	}

	stmt, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrStatementNotFound) {
			return nil, apperrors.NewNotFoundError("STATEMENT", id)
		}
		return nil, apperrors.NewDatabaseError("get statement", err)
	}
	return stmt, nil
}

// ListStatements lists saved statements of a wallet, newest first
func (s *StatementService) ListStatements(ctx context.Context, wallet string, limit int) ([]storage.StatementHeader, error) {
	if s.store == nil {
		return nil, storageDisabled()
	}
	if !types.IsValidAddress(wallet) {
		return nil, apperrors.NewInvalidAddressError(wallet)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	headers, err := s.store.ListByWallet(ctx, wallet, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list statements", err)
	}
	return headers, nil
}

// StorageEnabled reports whether statements can be saved
func (s *StatementService) StorageEnabled() bool {
	return s.store != nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// StorageHealth pings the configured store and archive. Backends that are
// not configured are omitted.
func (s *StatementService) StorageHealth(ctx context.Context) map[string]string {
	backends := map[string]interface{}{}
	if s.store != nil {
		backends["statements"] = s.store
	}
	if s.archive != nil {
		backends["archive"] = s.archive
	}

	health := make(map[string]string, len(backends))
	for name, backend := range backends {
		p, ok := backend.(pinger)
		if !ok {
			health[name] = "ok"
			continue
		}
		if err := p.Ping(ctx); err != nil {
			health[name] = err.Error()
			continue
		}
		health[name] = "ok"
	}
	return health
}

func storageDisabled() error {
	return &types.ServiceError{
		Code:    "STORAGE_DISABLED",
		Message: "statement storage is not configured",
	}
}
