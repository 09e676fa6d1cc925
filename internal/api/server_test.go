package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wallet-statement/internal/errors"
	"github.com/wallet-statement/internal/models"
	"github.com/wallet-statement/internal/service"
	"github.com/wallet-statement/internal/storage"
	"github.com/wallet-statement/internal/types"
)

const testWallet = "0x1111111111111111111111111111111111111111"

// mockStatementService records inputs and returns canned results
type mockStatementService struct {
	generateFunc func(ctx context.Context, input service.GenerateStatementInput) (*models.Statement, error)
	getFunc      func(ctx context.Context, id string) (*models.Statement, error)
	listFunc     func(ctx context.Context, wallet string, limit int) ([]storage.StatementHeader, error)
	storage      bool
	health       map[string]string

	lastInput service.GenerateStatementInput
	saved     []*models.Statement
}

func (m *mockStatementService) GenerateStatement(ctx context.Context, input service.GenerateStatementInput) (*models.Statement, error) {
	m.lastInput = input
	if m.generateFunc != nil {
		return m.generateFunc(ctx, input)
	}
	return &models.Statement{
		ID:              "4e0ad6a4-1f4e-5b0f-9d3c-1b2c3d4e5f60",
		WalletAddress:   input.WalletAddress,
		Period:          input.Period,
		AccountHolder:   input.AccountHolder,
		OpeningTotalUSD: decimal.NewFromInt(100),
		ClosingTotalUSD: decimal.NewFromInt(105),
		Entries:         []*models.LedgerEntry{},
	}, nil
}

func (m *mockStatementService) ResolveAssets(chains []types.Chain, symbols []string) ([]types.Asset, error) {
	svc := service.NewStatementService(nil, nil, nil, nil)
	return svc.ResolveAssets(chains, symbols)
}

func (m *mockStatementService) SaveStatement(_ context.Context, stmt *models.Statement) error {
	m.saved = append(m.saved, stmt)
	return nil
}

func (m *mockStatementService) GetStatement(ctx context.Context, id string) (*models.Statement, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return nil, apperrors.NewNotFoundError("STATEMENT", id)
}

func (m *mockStatementService) ListStatements(ctx context.Context, wallet string, limit int) ([]storage.StatementHeader, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, wallet, limit)
	}
	return nil, nil
}

func (m *mockStatementService) StorageEnabled() bool { return m.storage }

func (m *mockStatementService) StorageHealth(context.Context) map[string]string {
	if m.health == nil {
		return map[string]string{}
	}
	return m.health
}

func (m *mockStatementService) Registry() types.AssetRegistry { return types.DefaultAssetRegistry() }

func (m *mockStatementService) GenerationStats() *service.GenerationStats {
	return &service.GenerationStats{TotalRuns: 3, CompleteRuns: 2, PartialRuns: 1}
}

func createTestServer(svc *mockStatementService) *Server {
	ethereum, _ := types.GetChain(types.ChainEthereum)
	polygon, _ := types.GetChain(types.ChainPolygon)
	return NewServer(&ServerConfig{
		Host:          "localhost",
		Port:          "8080",
		EnabledChains: []types.Chain{ethereum, polygon},
	}, svc, nil)
}

func doRequest(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ServiceError {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	w := doRequest(t, createTestServer(&mockStatementService{storage: true}), "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["storage"])
}

func TestHealthDegraded(t *testing.T) {
	svc := &mockStatementService{storage: true, health: map[string]string{
		"statements": "ok",
		"archive":    "dial tcp: connection refused",
	}}
	w := doRequest(t, createTestServer(svc), "GET", "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	backends := body["backends"].(map[string]interface{})
	assert.Equal(t, "ok", backends["statements"])
}

func TestMetrics(t *testing.T) {
	w := doRequest(t, createTestServer(&mockStatementService{}), "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats service.GenerationStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats.TotalRuns)
	assert.Equal(t, int64(1), stats.PartialRuns)
}

func TestListChains(t *testing.T) {
	w := doRequest(t, createTestServer(&mockStatementService{}), "GET", "/api/chains", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Chains []struct {
			ID         string `json:"id"`
			NumericID  int64  `json:"chainId"`
			AssetCount int    `json:"assetCount"`
		} `json:"chains"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Chains, 2)
	assert.Equal(t, "ethereum", body.Chains[0].ID)
	assert.Equal(t, int64(1), body.Chains[0].NumericID)
	assert.Equal(t, len(types.DefaultAssetRegistry().AssetsForChain(types.ChainEthereum)), body.Chains[0].AssetCount)
}

func TestListAssets(t *testing.T) {
	server := createTestServer(&mockStatementService{})

	w := doRequest(t, server, "GET", "/api/chains/Polygon/assets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Chain  string        `json:"chain"`
		Assets []types.Asset `json:"assets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "polygon", body.Chain)
	assert.Equal(t, "MATIC", body.Assets[0].Symbol)

	// supported but not enabled
	w = doRequest(t, server, "GET", "/api/chains/base/assets", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CHAIN_NOT_FOUND", decodeError(t, w).Code)
}
