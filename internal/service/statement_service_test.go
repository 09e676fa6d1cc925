package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wallet-statement/internal/errors"
	"github.com/wallet-statement/internal/models"
	"github.com/wallet-statement/internal/pricing"
	"github.com/wallet-statement/internal/storage"
	"github.com/wallet-statement/internal/types"
)

const (
	testWallet       = "0x1111111111111111111111111111111111111111"
	testCounterparty = "0x2222222222222222222222222222222222222222"
)

var (
	testPeriod = models.MonthPeriod(2024, time.March)
	testNow    = time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
)

// fakeChains serves balances, transfers and block ranges from fixtures
type fakeChains struct {
	balances  map[types.ChainID][]models.RawBalance
	transfers map[types.ChainID][]models.RawTransfer
	failOn    map[types.ChainID]string // "balances", "transfers", "blocks" or "panic"
}

func newFakeChains() *fakeChains {
	return &fakeChains{
		balances:  map[types.ChainID][]models.RawBalance{},
		transfers: map[types.ChainID][]models.RawTransfer{},
		failOn:    map[types.ChainID]string{},
	}
}

func (f *fakeChains) GetBalances(_ context.Context, _ string, _ []types.Asset, chain types.Chain, atBlock *uint64) ([]models.RawBalance, error) {
	switch f.failOn[chain.ID] {
	case "balances":
		return nil, fmt.Errorf("balance node down")
	case "panic":
		panic("unexpected response shape")
	}
	if atBlock == nil || *atBlock != 200 {
		return nil, fmt.Errorf("balances requested at wrong block")
	}
	return f.balances[chain.ID], nil
}

func (f *fakeChains) GetTransfers(_ context.Context, _ string, fromBlock, toBlock uint64, _ []types.Asset, chain types.Chain) ([]models.RawTransfer, error) {
	if f.failOn[chain.ID] == "transfers" {
		return nil, fmt.Errorf("transfer feed down")
	}
	if fromBlock != 100 || toBlock != 200 {
		return nil, fmt.Errorf("unexpected block range %d-%d", fromBlock, toBlock)
	}
	out := make([]models.RawTransfer, len(f.transfers[chain.ID]))
	copy(out, f.transfers[chain.ID])
	return out, nil
}

func (f *fakeChains) GetBlockRangeForPeriod(_ context.Context, _ models.StatementPeriod, chain types.Chain) (models.BlockRange, error) {
	if f.failOn[chain.ID] == "blocks" {
		return models.BlockRange{}, fmt.Errorf("no block for timestamp")
	}
	return models.BlockRange{FromBlock: 100, ToBlock: 200}, nil
}

// fakePrices returns a flat price per id, overridden per calendar day
type fakePrices struct {
	flat  map[string]string
	daily map[string]string
}

func (f *fakePrices) GetHistoricalPrice(_ context.Context, priceID string, at time.Time) (decimal.Decimal, error) {
	if p, ok := f.daily[pricing.CacheKey(priceID, at)]; ok {
		return decimal.RequireFromString(p), nil
	}
	if p, ok := f.flat[priceID]; ok {
		return decimal.RequireFromString(p), nil
	}
	return decimal.Zero, nil
}

type fakeStore struct {
	mu         sync.Mutex
	statements map[string]*models.Statement
	archived   []string
	archiveErr error
	pingErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{statements: map[string]*models.Statement{}}
}

func (f *fakeStore) Save(_ context.Context, stmt *models.Statement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statements[stmt.ID] = stmt
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*models.Statement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stmt, ok := f.statements[id]
	if !ok {
		return nil, storage.ErrStatementNotFound
	}
	return stmt, nil
}

func (f *fakeStore) ListByWallet(_ context.Context, wallet string, limit int) ([]storage.StatementHeader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.StatementHeader
	for _, s := range f.statements {
		if types.SameAddress(s.WalletAddress, wallet) && len(out) < limit {
			out = append(out, storage.StatementHeader{ID: s.ID, WalletAddress: s.WalletAddress})
		}
	}
	return out, nil
}

func (f *fakeStore) InsertStatementEntries(_ context.Context, stmt *models.Statement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, stmt.ID)
	return f.archiveErr
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func ethAsset(t *testing.T) types.Asset {
	t.Helper()
	asset, ok := types.DefaultAssetRegistry().Native(types.ChainEthereum)
	require.True(t, ok)
	return asset
}

func assetBySymbol(t *testing.T, chain types.ChainID, symbol string) types.Asset {
	t.Helper()
	asset, ok := types.DefaultAssetRegistry().FindBySymbol(chain, symbol)
	require.True(t, ok)
	return asset
}

func nativeTransfer(hash string, block uint64, from, to, wei, ts string) models.RawTransfer {
	return models.RawTransfer{
		Hash:           hash,
		ChainID:        types.ChainEthereum,
		FromAddress:    from,
		ToAddress:      to,
		BlockNumber:    block,
		BlockTimestamp: ts,
		Category:       types.CategoryNative,
		RawValue:       &wei,
	}
}

func newTestService(chains *fakeChains, prices *fakePrices, opts ...StatementOption) *StatementService {
	resolver := pricing.NewResolver(prices, pricing.WithRateLimit(0, 0))
	opts = append([]StatementOption{WithClock(func() time.Time { return testNow })}, opts...)
	return NewStatementService(chains, chains, chains, resolver, opts...)
}

func TestGenerateStatementUnrealizedGainOnly(t *testing.T) {
	eth := ethAsset(t)
	chains := newFakeChains()
	chains.balances[types.ChainEthereum] = []models.RawBalance{{Asset: eth, RawQuantity: "1000000000000000000"}}
	prices := &fakePrices{daily: map[string]string{
		pricing.CacheKey("ethereum", testPeriod.Start): "100",
		pricing.CacheKey("ethereum", testPeriod.End):   "105",
	}}

	stmt, err := newTestService(chains, prices).GenerateStatement(context.Background(), GenerateStatementInput{
		WalletAddress: testWallet,
		Period:        testPeriod,
		Assets:        []types.Asset{eth},
	})
	require.NoError(t, err)

	assert.True(t, stmt.OpeningTotalUSD.Equal(decimal.NewFromInt(100)))
	assert.True(t, stmt.ClosingTotalUSD.Equal(decimal.NewFromInt(105)))
	assert.True(t, stmt.Summary.TotalDeposits.Equal(decimal.NewFromInt(5)))
	assert.True(t, stmt.Summary.TotalWithdrawals.IsZero())
	assert.Equal(t, 0, stmt.Summary.EntryCount)
	assert.True(t, stmt.Summary.NetChange.Equal(decimal.NewFromInt(5)))

	require.Len(t, stmt.Entries, 1)
	gain := stmt.Entries[0]
	assert.True(t, gain.Synthetic)
	assert.Equal(t, "unrealized_gain", gain.Type())
	assert.Equal(t, testPeriod.End, gain.Timestamp)
	assert.True(t, gain.RunningBalance.Equal(decimal.NewFromInt(105)))
}

func TestGenerateStatementReconcilesOpeningFromClosing(t *testing.T) {
	eth := ethAsset(t)
	chains := newFakeChains()
	chains.balances[types.ChainEthereum] = []models.RawBalance{{Asset: eth, RawQuantity: "11000000000000000000"}}
	chains.transfers[types.ChainEthereum] = []models.RawTransfer{
		nativeTransfer("0xbb", 150, testWallet, testCounterparty, "1000000000000000000", "2024-03-10T12:00:00Z"),
		nativeTransfer("0xaa", 120, testCounterparty, testWallet, "2000000000000000000", "2024-03-05T10:00:00Z"),
	}
	prices := &fakePrices{flat: map[string]string{"ethereum": "100"}}

	stmt, err := newTestService(chains, prices).GenerateStatement(context.Background(), GenerateStatementInput{
		WalletAddress: testWallet,
		Period:        testPeriod,
		Assets:        []types.Asset{eth},
	})
	require.NoError(t, err)

	require.Len(t, stmt.OpeningPositions, 1)
	assert.True(t, stmt.OpeningPositions[0].Quantity.Equal(decimal.NewFromInt(10)), stmt.OpeningPositions[0].Quantity.String())
	assert.True(t, stmt.ClosingPositions[0].Quantity.Equal(decimal.NewFromInt(11)))

	require.Len(t, stmt.Entries, 2)
	assert.Equal(t, "0xaa", stmt.Entries[0].Hash)
	assert.Equal(t, types.DirectionCredit, stmt.Entries[0].Direction)
	assert.True(t, stmt.Entries[0].RunningBalance.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, "0xbb", stmt.Entries[1].Hash)
	assert.True(t, stmt.Entries[1].RunningBalance.Equal(decimal.NewFromInt(1100)))

	assert.True(t, stmt.Summary.TotalDeposits.Equal(decimal.NewFromInt(200)))
	assert.True(t, stmt.Summary.TotalWithdrawals.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 2, stmt.Summary.EntryCount)
	assert.True(t, stmt.Summary.NetChange.Equal(decimal.NewFromInt(100)))

	require.Len(t, stmt.Coverage, 1)
	assert.Equal(t, models.ChainProcessed, stmt.Coverage[0].Status)
	assert.Equal(t, 2, stmt.Coverage[0].TransferCount)
	assert.Equal(t, 2, stmt.Coverage[0].EntryCount)
}

func TestGenerateStatementDropsFailingChain(t *testing.T) {
	eth := ethAsset(t)
	maticUSDC := assetBySymbol(t, types.ChainPolygon, "USDC")
	baseETH, _ := types.DefaultAssetRegistry().Native(types.ChainBase)

	chains := newFakeChains()
	chains.balances[types.ChainEthereum] = []models.RawBalance{{Asset: eth, RawQuantity: "2000000000000000000"}}
	chains.failOn[types.ChainPolygon] = "transfers"
	chains.failOn[types.ChainBase] = "panic"
	prices := &fakePrices{flat: map[string]string{"ethereum": "100", "usd-coin": "1"}}

	stmt, err := newTestService(chains, prices, WithMaxParallelChains(2)).GenerateStatement(context.Background(), GenerateStatementInput{
		WalletAddress: testWallet,
		Period:        testPeriod,
		Assets:        []types.Asset{eth, maticUSDC, baseETH},
	})
	require.NoError(t, err)

	assert.Equal(t, []types.ChainID{types.ChainEthereum, types.ChainPolygon, types.ChainBase}, stmt.Chains)
	assert.ElementsMatch(t, []types.ChainID{types.ChainPolygon, types.ChainBase}, stmt.FailedChains())

	require.Len(t, stmt.Coverage, 3)
	assert.Equal(t, models.ChainProcessed, stmt.Coverage[0].Status)
	assert.Equal(t, models.ChainFailed, stmt.Coverage[1].Status)
	assert.Equal(t, string(StateFetching), stmt.Coverage[1].FailedStage)
	assert.Contains(t, stmt.Coverage[1].Error, "transfer feed down")
	assert.Equal(t, models.ChainFailed, stmt.Coverage[2].Status)
	assert.Contains(t, stmt.Coverage[2].Error, "panic")

	require.Len(t, stmt.ClosingPositions, 1)
	assert.Equal(t, types.ChainEthereum, stmt.ClosingPositions[0].Chain)
	assert.True(t, stmt.ClosingTotalUSD.Equal(decimal.NewFromInt(200)))
}

func TestGenerationStatsTrackOutcomes(t *testing.T) {
	eth := ethAsset(t)
	maticUSDC := assetBySymbol(t, types.ChainPolygon, "USDC")
	chains := newFakeChains()
	chains.failOn[types.ChainPolygon] = "balances"
	svc := newTestService(chains, &fakePrices{})

	_, err := svc.GenerateStatement(context.Background(), GenerateStatementInput{
		WalletAddress: testWallet, Period: testPeriod, Assets: []types.Asset{eth},
	})
	require.NoError(t, err)
	_, err = svc.GenerateStatement(context.Background(), GenerateStatementInput{
		WalletAddress: testWallet, Period: testPeriod, Assets: []types.Asset{eth, maticUSDC},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.GenerateStatement(ctx, GenerateStatementInput{
		WalletAddress: testWallet, Period: testPeriod, Assets: []types.Asset{eth},
	})
	require.Error(t, err)

	stats := svc.GenerationStats()
	assert.Equal(t, int64(3), stats.TotalRuns)
	assert.Equal(t, int64(1), stats.CompleteRuns)
	assert.Equal(t, int64(1), stats.PartialRuns)
	assert.Equal(t, int64(1), stats.FailedRuns)
	assert.Equal(t, 2, stats.Phases[StateFetching].Samples)
	assert.Equal(t, 2, stats.Phases[StateSynthesizing].Samples)
}

func TestGenerateStatementIsDeterministic(t *testing.T) {
	eth := ethAsset(t)
	usdc := assetBySymbol(t, types.ChainEthereum, "USDC")
	chains := newFakeChains()
	chains.balances[types.ChainEthereum] = []models.RawBalance{
		{Asset: eth, RawQuantity: "3000000000000000000"},
		{Asset: usdc, RawQuantity: "250000000"},
	}
	usdcAddr := usdc.ContractAddress
	tokenValue := "50000000"
	chains.transfers[types.ChainEthereum] = []models.RawTransfer{
		nativeTransfer("0x01", 110, testCounterparty, testWallet, "1000000000000000000", "2024-03-02T00:00:00Z"),
		{
			Hash: "0x02", UniqueID: "0x02:log:4", ChainID: types.ChainEthereum,
			FromAddress: testWallet, ToAddress: testCounterparty, BlockNumber: 130,
			BlockTimestamp: "0x65f0a2c0", Category: types.CategoryToken,
			RawValue: &tokenValue, ContractAddress: &usdcAddr,
		},
	}
	prices := &fakePrices{
		flat:  map[string]string{"ethereum": "3500", "usd-coin": "1"},
		daily: map[string]string{pricing.CacheKey("ethereum", testPeriod.End): "3600"},
	}
	svc := newTestService(chains, prices)
	input := GenerateStatementInput{
		AccountHolder: &models.AccountHolder{Name: "Jordan Lee", Address: "1 Main St"},
		WalletAddress: testWallet,
		Period:        testPeriod,
		Assets:        []types.Asset{eth, usdc},
	}

	first, err := svc.GenerateStatement(context.Background(), input)
	require.NoError(t, err)
	second, err := svc.GenerateStatement(context.Background(), input)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, testNow, first.GeneratedAt)
}

func TestStatementIDDependsOnRequest(t *testing.T) {
	eth, _ := types.DefaultAssetRegistry().Native(types.ChainEthereum)
	chain, _ := types.GetChain(types.ChainEthereum)

	id := StatementID(testWallet, testPeriod, []types.Chain{chain}, []types.Asset{eth})
	assert.Equal(t, id, StatementID("0x1111111111111111111111111111111111111111", testPeriod, []types.Chain{chain}, []types.Asset{eth}))
	assert.NotEqual(t, id, StatementID(testWallet, models.MonthPeriod(2024, time.April), []types.Chain{chain}, []types.Asset{eth}))
	assert.NotEqual(t, id, StatementID(testCounterparty, testPeriod, []types.Chain{chain}, []types.Asset{eth}))
}

func TestAssembleRecordsPhasesInOrder(t *testing.T) {
	chains := newFakeChains()
	a, err := newTestService(chains, &fakePrices{}).Assemble(context.Background(), GenerateStatementInput{
		WalletAddress: testWallet,
		Period:        testPeriod,
		Assets:        []types.Asset{ethAsset(t)},
	})
	require.NoError(t, err)

	assert.Equal(t, []AssemblyState{
		StateFetching, StateClassifying, StateReconciling, StatePricing,
		StateSynthesizing, StateMerging, StateFinalized,
	}, a.History())
	assert.Equal(t, StateFinalized, a.State())
	require.NotNil(t, a.Statement)
	assert.Empty(t, a.Statement.Entries)
	assert.Empty(t, a.Statement.ClosingPositions)
	assert.Len(t, a.Reports(), 1)
}

func TestGenerateStatementSortsEntriesAcrossChains(t *testing.T) {
	eth := ethAsset(t)
	arbETH, _ := types.DefaultAssetRegistry().Native(types.ChainArbitrum)
	chains := newFakeChains()
	chains.balances[types.ChainEthereum] = []models.RawBalance{{Asset: eth, RawQuantity: "5000000000000000000"}}
	chains.balances[types.ChainArbitrum] = []models.RawBalance{{Asset: arbETH, RawQuantity: "1000000000000000000"}}
	chains.transfers[types.ChainEthereum] = []models.RawTransfer{
		nativeTransfer("0xe2", 180, testCounterparty, testWallet, "1000000000000000000", "2024-03-20T00:00:00Z"),
		nativeTransfer("0xe1", 110, testCounterparty, testWallet, "1000000000000000000", "2024-03-03T00:00:00Z"),
	}
	arb := nativeTransfer("0xa1", 150, testCounterparty, testWallet, "1000000000000000000", "2024-03-11T00:00:00Z")
	arb.ChainID = types.ChainArbitrum
	chains.transfers[types.ChainArbitrum] = []models.RawTransfer{arb}
	prices := &fakePrices{
		flat:  map[string]string{"ethereum": "100"},
		daily: map[string]string{pricing.CacheKey("ethereum", testPeriod.End): "90"},
	}

	stmt, err := newTestService(chains, prices).GenerateStatement(context.Background(), GenerateStatementInput{
		WalletAddress: testWallet,
		Period:        testPeriod,
		Assets:        []types.Asset{eth, arbETH},
		Chains:        []types.ChainID{types.ChainEthereum, types.ChainArbitrum},
	})
	require.NoError(t, err)

	var hashes []string
	for i, e := range stmt.Entries {
		hashes = append(hashes, e.Hash)
		if i > 0 {
			assert.False(t, e.Timestamp.Before(stmt.Entries[i-1].Timestamp))
		}
	}
	// ethereum opens at 3, arbitrum at 0; only ethereum has a valuation change
	assert.Equal(t, []string{"0xe1", "0xa1", "0xe2", "unrealized:ethereum:native"}, hashes)
	loss := stmt.Entries[3]
	assert.Equal(t, "unrealized_loss", loss.Type())
	assert.True(t, loss.USDValue.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, 3, stmt.Summary.EntryCount)
	// 300 + 100 + 100 + 100 - 30; received coins are not revalued, so the
	// walk ends above the 540 closing total while NetChange stays exact
	assert.True(t, loss.RunningBalance.Equal(decimal.NewFromInt(570)), loss.RunningBalance.String())
	assert.True(t, stmt.ClosingTotalUSD.Equal(decimal.NewFromInt(540)))
	assert.True(t, stmt.Summary.NetChange.Equal(decimal.NewFromInt(240)))
}

func TestGenerateStatementExcludesMalformedBalance(t *testing.T) {
	eth := ethAsset(t)
	usdc := assetBySymbol(t, types.ChainEthereum, "USDC")
	chains := newFakeChains()
	chains.balances[types.ChainEthereum] = []models.RawBalance{
		{Asset: eth, RawQuantity: "1000000000000000000"},
		{Asset: usdc, RawQuantity: "12abc"},
	}
	usdcAddr := usdc.ContractAddress
	value := "1000000"
	chains.transfers[types.ChainEthereum] = []models.RawTransfer{{
		Hash: "0xc1", ChainID: types.ChainEthereum, FromAddress: testCounterparty, ToAddress: testWallet,
		BlockNumber: 140, BlockTimestamp: "2024-03-08T00:00:00Z", Category: types.CategoryToken,
		RawValue: &value, ContractAddress: &usdcAddr,
	}}
	prices := &fakePrices{flat: map[string]string{"ethereum": "100", "usd-coin": "1"}}

	stmt, err := newTestService(chains, prices).GenerateStatement(context.Background(), GenerateStatementInput{
		WalletAddress: testWallet,
		Period:        testPeriod,
		Assets:        []types.Asset{eth, usdc},
	})
	require.NoError(t, err)

	require.Len(t, stmt.ClosingPositions, 1)
	assert.Equal(t, "ETH", stmt.ClosingPositions[0].Asset.Symbol)
	assert.Empty(t, stmt.Entries)
	assert.Equal(t, 1, stmt.Coverage[0].Skipped[skipMalformedBalance])
	assert.Equal(t, models.ChainProcessed, stmt.Coverage[0].Status)
}

func TestGenerateStatementOmitsIdleAssets(t *testing.T) {
	eth := ethAsset(t)
	usdc := assetBySymbol(t, types.ChainEthereum, "USDC")
	dai := assetBySymbol(t, types.ChainEthereum, "DAI")
	chains := newFakeChains()
	chains.balances[types.ChainEthereum] = []models.RawBalance{
		{Asset: eth, RawQuantity: "1000000000000000000"},
		{Asset: usdc, RawQuantity: "0"},
		{Asset: dai, RawQuantity: "0"},
	}
	daiAddr := dai.ContractAddress
	value := "5000000000000000000"
	chains.transfers[types.ChainEthereum] = []models.RawTransfer{
		{Hash: "0xd1", ChainID: types.ChainEthereum, FromAddress: testCounterparty, ToAddress: testWallet,
			BlockNumber: 130, BlockTimestamp: "2024-03-05T00:00:00Z", Category: types.CategoryToken,
			RawValue: &value, ContractAddress: &daiAddr},
		{Hash: "0xd2", ChainID: types.ChainEthereum, FromAddress: testWallet, ToAddress: testCounterparty,
			BlockNumber: 150, BlockTimestamp: "2024-03-09T00:00:00Z", Category: types.CategoryToken,
			RawValue: &value, ContractAddress: &daiAddr},
	}
	prices := &fakePrices{flat: map[string]string{"ethereum": "100", "usd-coin": "1", "dai": "1"}}

	stmt, err := newTestService(chains, prices).GenerateStatement(context.Background(), GenerateStatementInput{
		WalletAddress: testWallet,
		Period:        testPeriod,
		Assets:        []types.Asset{eth, usdc, dai},
	})
	require.NoError(t, err)

	// USDC was neither held nor moved; DAI was moved in and out, so it stays at zero
	var symbols []string
	for _, p := range stmt.ClosingPositions {
		symbols = append(symbols, p.Asset.Symbol)
	}
	assert.ElementsMatch(t, []string{"ETH", "DAI"}, symbols)
	require.Len(t, stmt.OpeningPositions, 2)
	for _, p := range stmt.OpeningPositions {
		if p.Asset.Symbol == "DAI" {
			assert.True(t, p.Quantity.IsZero())
		}
	}
	assert.Len(t, stmt.Entries, 2)
	assert.Zero(t, stmt.Coverage[0].ZeroPrices)
}

func TestGenerateStatementReportsSkipsAndFallbacks(t *testing.T) {
	eth := ethAsset(t)
	chains := newFakeChains()
	chains.balances[types.ChainEthereum] = []models.RawBalance{{Asset: eth, RawQuantity: "1000000000000000000"}}
	unknownToken := "0x9999999999999999999999999999999999999999"
	value := "5"
	chains.transfers[types.ChainEthereum] = []models.RawTransfer{
		nativeTransfer("0xf1", 120, testCounterparty, testWallet, "1000000000000000000", "0x1"),
		nativeTransfer("0xf2", 121, testCounterparty, testWallet, "0", "2024-03-04T00:00:00Z"),
		nativeTransfer("0xf3", 122, testCounterparty, testWallet, "100", "not a time"),
		{Hash: "0xf4", ChainID: types.ChainEthereum, FromAddress: testCounterparty, ToAddress: testWallet,
			BlockNumber: 123, BlockTimestamp: "2024-03-04T00:00:00Z", Category: types.CategoryToken,
			RawValue: &value, ContractAddress: &unknownToken},
	}
	prices := &fakePrices{flat: map[string]string{"ethereum": "100"}}

	stmt, err := newTestService(chains, prices).GenerateStatement(context.Background(), GenerateStatementInput{
		WalletAddress: testWallet,
		Period:        testPeriod,
		Assets:        []types.Asset{eth},
	})
	require.NoError(t, err)

	report := stmt.Coverage[0]
	assert.Equal(t, 4, report.TransferCount)
	assert.Equal(t, 1, report.EntryCount)
	assert.Equal(t, 1, report.TimestampFallbacks)
	assert.Equal(t, map[string]int{"zero_quantity": 1, "invalid_timestamp": 1, "unresolved_asset": 1}, report.Skipped)

	require.Len(t, stmt.Entries, 1)
	assert.True(t, stmt.Entries[0].TimestampEstimated)
	assert.Equal(t, testNow, stmt.Entries[0].Timestamp)
}

func TestGenerateStatementCountsZeroPrices(t *testing.T) {
	usdt := assetBySymbol(t, types.ChainEthereum, "USDT")
	chains := newFakeChains()
	chains.balances[types.ChainEthereum] = []models.RawBalance{{Asset: usdt, RawQuantity: "10000000"}}

	stmt, err := newTestService(chains, &fakePrices{}).GenerateStatement(context.Background(), GenerateStatementInput{
		WalletAddress: testWallet,
		Period:        testPeriod,
		Assets:        []types.Asset{usdt},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, stmt.Coverage[0].ZeroPrices)
	require.Len(t, stmt.ClosingPositions, 1)
	assert.True(t, stmt.ClosingPositions[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, stmt.ClosingTotalUSD.IsZero())
	assert.Empty(t, stmt.Entries)
}

func TestGenerateStatementValidatesInput(t *testing.T) {
	eth := ethAsset(t)
	svc := newTestService(newFakeChains(), &fakePrices{})

	tests := []struct {
		name  string
		input GenerateStatementInput
		code  string
	}{
		{"bad wallet", GenerateStatementInput{WalletAddress: "0x123", Period: testPeriod, Assets: []types.Asset{eth}}, "INVALID_ADDRESS"},
		{"inverted period", GenerateStatementInput{WalletAddress: testWallet, Period: models.StatementPeriod{Start: testPeriod.End, End: testPeriod.Start}, Assets: []types.Asset{eth}}, "INVALID_PERIOD"},
		{"no assets", GenerateStatementInput{WalletAddress: testWallet, Period: testPeriod}, "INVALID_PARAMETER"},
		{"unknown chain", GenerateStatementInput{WalletAddress: testWallet, Period: testPeriod, Assets: []types.Asset{eth}, Chains: []types.ChainID{"solana"}}, "UNSUPPORTED_CHAIN"},
		{"asset off selection", GenerateStatementInput{WalletAddress: testWallet, Period: testPeriod, Assets: []types.Asset{eth}, Chains: []types.ChainID{types.ChainBase}}, "INVALID_PARAMETER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GenerateStatement(context.Background(), tt.input)
			require.Error(t, err)
			cat := apperrors.Categorize(err)
			assert.Equal(t, tt.code, cat.Code)
			assert.Equal(t, http.StatusBadRequest, cat.StatusCode)
		})
	}
}

func TestGenerateStatementHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestService(newFakeChains(), &fakePrices{}).GenerateStatement(ctx, GenerateStatementInput{
		WalletAddress: testWallet,
		Period:        testPeriod,
		Assets:        []types.Asset{ethAsset(t)},
	})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestResolveAssets(t *testing.T) {
	svc := newTestService(newFakeChains(), &fakePrices{})
	ethereum, _ := types.GetChain(types.ChainEthereum)
	polygon, _ := types.GetChain(types.ChainPolygon)

	all, err := svc.ResolveAssets([]types.Chain{ethereum}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultAssetRegistry().AssetsForChain(types.ChainEthereum), all)

	usdc, err := svc.ResolveAssets([]types.Chain{ethereum, polygon}, []string{"usdc"})
	require.NoError(t, err)
	require.Len(t, usdc, 2)
	assert.Equal(t, types.ChainEthereum, usdc[0].ChainID)
	assert.Equal(t, types.ChainPolygon, usdc[1].ChainID)

	_, err = svc.ResolveAssets([]types.Chain{ethereum}, []string{"NOPE"})
	assert.Error(t, err)
}

func TestSaveAndGetStatement(t *testing.T) {
	store := newFakeStore()
	store.archiveErr = fmt.Errorf("clickhouse unavailable")
	eth := ethAsset(t)
	chains := newFakeChains()
	chains.balances[types.ChainEthereum] = []models.RawBalance{{Asset: eth, RawQuantity: "1"}}
	svc := newTestService(chains, &fakePrices{flat: map[string]string{"ethereum": "1"}},
		WithStatementStore(store), WithEntryArchive(store))
	assert.True(t, svc.StorageEnabled())

	stmt, err := svc.GenerateStatement(context.Background(), GenerateStatementInput{
		WalletAddress: testWallet,
		Period:        testPeriod,
		Assets:        []types.Asset{eth},
	})
	require.NoError(t, err)

	// archive failures do not fail the save
	require.NoError(t, svc.SaveStatement(context.Background(), stmt))
	assert.Equal(t, []string{stmt.ID}, store.archived)

	got, err := svc.GetStatement(context.Background(), stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, stmt, got)

	headers, err := svc.ListStatements(context.Background(), testWallet, 0)
	require.NoError(t, err)
	require.Len(t, headers, 1)

	_, err = svc.GetStatement(context.Background(), "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	assert.Equal(t, "STATEMENT_NOT_FOUND", apperrors.Categorize(err).Code)
	assert.Equal(t, http.StatusNotFound, apperrors.GetHTTPStatusCode(err))

	_, err = svc.GetStatement(context.Background(), "not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, apperrors.GetHTTPStatusCode(err))
}

func TestStorageDisabled(t *testing.T) {
	svc := newTestService(newFakeChains(), &fakePrices{})
	assert.False(t, svc.StorageEnabled())
	assert.Empty(t, svc.StorageHealth(context.Background()))

	err := svc.SaveStatement(context.Background(), &models.Statement{})
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.GetHTTPStatusCode(err))
	_, err = svc.GetStatement(context.Background(), "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.GetHTTPStatusCode(err))
	_, err = svc.ListStatements(context.Background(), testWallet, 10)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.GetHTTPStatusCode(err))
}

func TestStorageHealth(t *testing.T) {
	store := newFakeStore()
	archive := newFakeStore()
	archive.pingErr = fmt.Errorf("clickhouse unavailable")
	svc := newTestService(newFakeChains(), &fakePrices{},
		WithStatementStore(store), WithEntryArchive(archive))

	assert.Equal(t, map[string]string{
		"statements": "ok",
		"archive":    "clickhouse unavailable",
	}, svc.StorageHealth(context.Background()))
}
