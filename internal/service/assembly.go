package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/wallet-statement/internal/errors"
	"github.com/wallet-statement/internal/ledger"
	"github.com/wallet-statement/internal/logging"
	"github.com/wallet-statement/internal/models"
	"github.com/wallet-statement/internal/pricing"
	"github.com/wallet-statement/internal/types"
)

// AssemblyState is a phase of statement assembly
type AssemblyState string

const (
	StateFetching     AssemblyState = "fetching"
	StateClassifying  AssemblyState = "classifying"
	StateReconciling  AssemblyState = "reconciling"
	StatePricing      AssemblyState = "pricing"
	StateSynthesizing AssemblyState = "synthesizing"
	StateMerging      AssemblyState = "merging"
	StateFinalized    AssemblyState = "finalized"
)

// Skip reasons recorded in chain reports besides the classifier's
const (
	skipMalformedBalance = "malformed_balance"
)

// Assembly is one statement run. Phases apply to every chain before the next
// phase starts; a chain that fails in any phase is dropped from the result.
type Assembly struct {
	mu      sync.Mutex
	state   AssemblyState
	history []AssemblyState

	Statement *models.Statement
	chains    []*chainWork
}

// State returns the current phase
func (a *Assembly) State() AssemblyState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// History returns every phase entered so far, in order
func (a *Assembly) History() []AssemblyState {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AssemblyState, len(a.history))
	copy(out, a.history)
	return out
}

// Reports returns the per-chain coverage reports in chain selection order
func (a *Assembly) Reports() []models.ChainReport {
	out := make([]models.ChainReport, len(a.chains))
	for i, w := range a.chains {
		out[i] = w.report
	}
	return out
}

func (a *Assembly) enter(state AssemblyState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = state
	a.history = append(a.history, state)
}

// chainWork is the private state of one chain inside a run
type chainWork struct {
	chain  types.Chain
	assets []types.Asset
	report models.ChainReport
	failed bool

	blocks    models.BlockRange
	balances  []models.RawBalance
	transfers []models.RawTransfer

	entries   []*models.LedgerEntry
	included  []types.Asset
	closing   map[string]decimal.Decimal
	opening   map[string]decimal.Decimal
	openPos   []models.Position
	closePos  []models.Position
	synthetic []*models.LedgerEntry
}

func newChainWork(chain types.Chain, assets []types.Asset) *chainWork {
	return &chainWork{
		chain:  chain,
		assets: assets,
		report: models.ChainReport{
			Chain:   chain.ID,
			Status:  models.ChainProcessed,
			Skipped: map[string]int{},
		},
		closing: map[string]decimal.Decimal{},
		opening: map[string]decimal.Decimal{},
	}
}

func (w *chainWork) fail(ctx context.Context, stage AssemblyState, err error) {
	w.failed = true
	w.report.Status = models.ChainFailed
	w.report.FailedStage = string(stage)
	w.report.Error = err.Error()

	cerr := apperrors.NewChainProcessingError(w.chain.ID, string(stage), err)
	logging.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
		"code":  cerr.Code,
		"chain": w.chain.ID,
		"stage": stage,
	}).Warn("chain dropped from statement")
}

// run holds the inputs shared by every phase of one assembly
type run struct {
	wallet      string
	period      models.StatementPeriod
	capturedAt  time.Time
	session     *pricing.Session
	maxParallel int
}

// eachChain runs fn for every chain still in the run, at most maxParallel at
// a time. An error or panic drops that chain only.
func (r *run) eachChain(ctx context.Context, a *Assembly, stage AssemblyState, fn func(ctx context.Context, w *chainWork) error) {
	var g errgroup.Group
	g.SetLimit(r.maxParallel)

	for _, w := range a.chains {
		if w.failed {
			continue
		}
		w := w
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					logging.FromContext(ctx).WithField("stack", string(debug.Stack())).Errorf("panic in %s: %v", stage, p)
					err = fmt.Errorf("panic: %v", p)
				}
				if err != nil {
					w.fail(ctx, stage, err)
				}
			}()
			return fn(ctx, w)
		})
	}
	_ = g.Wait() // failures are recorded per chain
}

func (s *StatementService) fetch(ctx context.Context, r *run, w *chainWork) error {
	if len(w.assets) == 0 {
		return nil
	}

	blocks, err := s.blocks.GetBlockRangeForPeriod(ctx, r.period, w.chain)
	if err != nil {
		return fmt.Errorf("block range: %w", err)
	}
	w.blocks = blocks
	w.report.FromBlock = blocks.FromBlock
	w.report.ToBlock = blocks.ToBlock
	w.report.ApproximateBlocks = blocks.Approximate

	atBlock := blocks.ToBlock
	balances, err := s.balances.GetBalances(ctx, r.wallet, w.assets, w.chain, &atBlock)
	if err != nil {
		return fmt.Errorf("balances: %w", err)
	}
	w.balances = balances

	transfers, err := s.transfers.GetTransfers(ctx, r.wallet, blocks.FromBlock, blocks.ToBlock, w.assets, w.chain)
	if err != nil {
		return fmt.Errorf("transfers: %w", err)
	}
	w.transfers = transfers
	w.report.TransferCount = len(transfers)
	return nil
}

func (s *StatementService) classify(ctx context.Context, r *run, w *chainWork) error {
	logger := logging.FromContext(ctx).WithField("chain", w.chain.ID)

	// deterministic order regardless of how the source paginated
	sort.SliceStable(w.transfers, func(i, j int) bool {
		if w.transfers[i].BlockNumber != w.transfers[j].BlockNumber {
			return w.transfers[i].BlockNumber < w.transfers[j].BlockNumber
		}
		return w.transfers[i].DedupKey() < w.transfers[j].DedupKey()
	})

	for _, t := range w.transfers {
		entry, err := ledger.Classify(t, r.wallet, w.chain, w.assets, r.capturedAt)
		if err != nil {
			reason := ledger.SkipReason(err)
			w.report.Skipped[reason]++
			logger.WithFields(map[string]interface{}{
				"hash":   t.Hash,
				"reason": reason,
			}).Debug("transfer skipped")
			continue
		}
		if entry.TimestampEstimated {
			w.report.TimestampFallbacks++
			logger.WithFields(map[string]interface{}{
				"hash":      t.Hash,
				"timestamp": t.BlockTimestamp,
			}).Warn("implausible block timestamp, using capture time")
		}
		w.entries = append(w.entries, entry)
	}
	return nil
}

func (s *StatementService) reconcile(ctx context.Context, r *run, w *chainWork) error {
	logger := logging.FromContext(ctx).WithField("chain", w.chain.ID)

	raw := make(map[string]string, len(w.balances))
	for _, b := range w.balances {
		raw[b.Asset.Key()] = b.RawQuantity
	}

	dropped := map[string]bool{}
	for _, asset := range w.assets {
		key := asset.Key()
		closing := decimal.Zero
		if q, ok := raw[key]; ok {
			parsed, err := ledger.NormalizeQuantity(q, asset.Decimals)
			if err != nil {
				w.report.Skipped[skipMalformedBalance]++
				dropped[key] = true
				logger.WithError(err).WithField("asset", asset.Symbol).Warn("unreadable balance, asset excluded")
				continue
			}
			closing = parsed
		}

		opening := ledger.Reconcile(asset, closing, w.entries)
		if opening.IsNegative() {
			logger.WithFields(map[string]interface{}{
				"asset":   asset.Symbol,
				"opening": opening.String(),
			}).Warn("negative opening balance, transfer history may be incomplete")
		}

		// an asset with no balance at either end and no activity was never held
		if closing.IsZero() && opening.IsZero() && !hasEntries(w.entries, key) {
			continue
		}
		w.closing[key] = closing
		w.opening[key] = opening
		w.included = append(w.included, asset)
	}

	if len(dropped) > 0 {
		kept := w.entries[:0]
		for _, e := range w.entries {
			if !dropped[e.Asset.Key()] {
				kept = append(kept, e)
			}
		}
		w.entries = kept
	}
	w.report.EntryCount = len(w.entries)
	return nil
}

func (s *StatementService) price(ctx context.Context, r *run, w *chainWork) error {
	zero := 0
	lookup := func(asset types.Asset, at time.Time) decimal.Decimal {
		p := r.session.Price(ctx, asset.PriceID, at)
		if p.IsZero() {
			zero++
		}
		return p
	}

	for _, asset := range w.included {
		key := asset.Key()
		w.openPos = append(w.openPos, models.NewPosition(asset, w.opening[key], lookup(asset, r.period.Start)))
		w.closePos = append(w.closePos, models.NewPosition(asset, w.closing[key], lookup(asset, r.period.End)))
	}
	for _, e := range w.entries {
		e.ApplyPrice(lookup(e.Asset, e.Timestamp))
	}

	w.report.ZeroPrices = zero
	return nil
}

func (s *StatementService) synthesize(_ context.Context, r *run, w *chainWork) error {
	for i := range w.openPos {
		if entry := ledger.SynthesizeUnrealized(w.openPos[i], w.closePos[i], r.period.End); entry != nil {
			w.synthetic = append(w.synthetic, entry)
		}
	}
	return nil
}

func hasEntries(entries []*models.LedgerEntry, key string) bool {
	for _, e := range entries {
		if e.Asset.Key() == key {
			return true
		}
	}
	return false
}
