package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/wallet-statement/internal/errors"
	"github.com/wallet-statement/internal/logging"
	"github.com/wallet-statement/internal/models"
	"github.com/wallet-statement/internal/service"
	"github.com/wallet-statement/internal/types"
)

const maxAccountHolderField = 200

// generateStatementRequest is the body of POST /api/statements. The period is
// either year+month or startDate+endDate (YYYY-MM-DD or RFC 3339; a bare end
// date includes the whole day).
type generateStatementRequest struct {
	AccountHolder *models.AccountHolder `json:"accountHolder,omitempty"`
	WalletAddress string                `json:"walletAddress"`
	StartDate     string                `json:"startDate,omitempty"`
	EndDate       string                `json:"endDate,omitempty"`
	Year          int                   `json:"year,omitempty"`
	Month         int                   `json:"month,omitempty"`
	Chains        []string              `json:"chains,omitempty"`
	Assets        []string              `json:"assets,omitempty"` // symbols; empty means every tracked asset
	Save          bool                  `json:"save,omitempty"`
}

// handleGenerateStatement handles POST /api/statements
func (s *Server) handleGenerateStatement(w http.ResponseWriter, r *http.Request) {
	var req generateStatementRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if err := validateAccountHolder(req.AccountHolder); err != nil {
		respondServiceError(w, err)
		return
	}

	period, err := req.period()
	if err != nil {
		respondServiceError(w, err)
		return
	}

	chains, err := s.selectChains(req.Chains)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	assets, err := s.statements.ResolveAssets(chains, req.Assets)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if req.Save && !s.statements.StorageEnabled() {
		respondServiceError(w, &types.ServiceError{Code: "STORAGE_DISABLED", Message: "statement storage is not configured"})
		return
	}

	chainIDs := make([]types.ChainID, len(chains))
	for i, c := range chains {
		chainIDs[i] = c.ID
	}

	stmt, err := s.statements.GenerateStatement(r.Context(), service.GenerateStatementInput{
		AccountHolder: req.AccountHolder,
		WalletAddress: req.WalletAddress,
		Period:        period,
		Assets:        assets,
		Chains:        chainIDs,
	})
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("statement generation failed")
		respondServiceError(w, err)
		return
	}

	if !req.Save {
		respondJSON(w, http.StatusOK, stmt)
		return
	}

	if err := s.statements.SaveStatement(r.Context(), stmt); err != nil {
		logging.FromContext(r.Context()).WithError(err).WithField("statement_id", stmt.ID).Error("failed to save statement")
		respondServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/api/statements/"+stmt.ID)
	respondJSON(w, http.StatusCreated, stmt)
}

// handleGetStatement handles GET /api/statements/{id}
func (s *Server) handleGetStatement(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	stmt, err := s.statements.GetStatement(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stmt)
}

// handleListStatements handles GET /api/statements?wallet=0x...&limit=20
func (s *Server) handleListStatements(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	wallet := query.Get("wallet")
	if wallet == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "wallet query parameter required", nil)
		return
	}

	limit := 20
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	headers, err := s.statements.ListStatements(r.Context(), wallet, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":     wallet,
		"statements": headers,
		"count":      len(headers),
	})
}

func validateAccountHolder(holder *models.AccountHolder) error {
	if holder == nil {
		return nil
	}
	holder.Name = strings.TrimSpace(holder.Name)
	holder.Address = strings.TrimSpace(holder.Address)

	switch {
	case holder.Name == "":
		return apperrors.NewInvalidParameterError("accountHolder.name", "required")
	case holder.Address == "":
		return apperrors.NewInvalidParameterError("accountHolder.address", "required")
	case len(holder.Name) > maxAccountHolderField:
		return apperrors.NewInvalidParameterError("accountHolder.name", "too long")
	case len(holder.Address) > maxAccountHolderField:
		return apperrors.NewInvalidParameterError("accountHolder.address", "too long")
	}
	return nil
}

func (req generateStatementRequest) period() (models.StatementPeriod, error) {
	if req.Year != 0 || req.Month != 0 {
		if req.StartDate != "" || req.EndDate != "" {
			return models.StatementPeriod{}, apperrors.NewInvalidParameterError("period", "use either year/month or startDate/endDate")
		}
		if req.Month < 1 || req.Month > 12 {
			return models.StatementPeriod{}, apperrors.NewInvalidParameterError("month", "must be between 1 and 12")
		}
		if req.Year < 2009 || req.Year > 9999 {
			return models.StatementPeriod{}, apperrors.NewInvalidParameterError("year", "out of range")
		}
		return models.MonthPeriod(req.Year, time.Month(req.Month)), nil
	}

	if req.StartDate == "" || req.EndDate == "" {
		return models.StatementPeriod{}, apperrors.NewInvalidParameterError("period", "startDate and endDate or year and month are required")
	}
	start, err := parseDate(req.StartDate, false)
	if err != nil {
		return models.StatementPeriod{}, apperrors.NewInvalidParameterError("startDate", err.Error())
	}
	end, err := parseDate(req.EndDate, true)
	if err != nil {
		return models.StatementPeriod{}, apperrors.NewInvalidParameterError("endDate", err.Error())
	}

	period := models.StatementPeriod{Start: start, End: end}
	if err := period.Validate(); err != nil {
		return models.StatementPeriod{}, apperrors.NewInvalidPeriodError(err)
	}
	return period, nil
}

// parseDate accepts RFC 3339 or YYYY-MM-DD. A bare date used as a period end
// means the last second of that day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

// selectChains resolves requested chain ids against the enabled chains.
// No ids selects every enabled chain.
func (s *Server) selectChains(ids []string) ([]types.Chain, error) {
	if len(ids) == 0 {
		return s.config.EnabledChains, nil
	}

	chains, err := types.ParseChainIDs(ids)
	if err != nil {
		return nil, &types.ServiceError{Code: "UNSUPPORTED_CHAIN", Message: err.Error()}
	}
	for _, c := range chains {
		if !s.chainEnabled(c.ID) {
			return nil, &types.ServiceError{
				Code:    "UNSUPPORTED_CHAIN",
				Message: fmt.Sprintf("chain %s is not enabled", c.ID),
				Details: map[string]interface{}{"chain": c.ID},
			}
		}
	}
	return chains, nil
}

func (s *Server) chainEnabled(id types.ChainID) bool {
	for _, c := range s.config.EnabledChains {
		if c.ID == id {
			return true
		}
	}
	return false
}
