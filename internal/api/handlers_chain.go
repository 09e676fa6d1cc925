package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	apperrors "github.com/wallet-statement/internal/errors"
	"github.com/wallet-statement/internal/types"
)

type chainView struct {
	types.Chain
	AssetCount int `json:"assetCount"`
}

// handleListChains handles GET /api/chains
func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	registry := s.statements.Registry()

	chains := make([]chainView, 0, len(s.config.EnabledChains))
	for _, c := range s.config.EnabledChains {
		chains = append(chains, chainView{Chain: c, AssetCount: len(registry.AssetsForChain(c.ID))})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"chains": chains,
	})
}

// handleListAssets handles GET /api/chains/{chain}/assets
func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	id := types.ChainID(strings.ToLower(mux.Vars(r)["chain"]))
	if !s.chainEnabled(id) {
		respondServiceError(w, apperrors.NewNotFoundError("CHAIN", string(id)))
		return
	}

	assets := s.statements.Registry().AssetsForChain(id)
	if assets == nil {
		assets = []types.Asset{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"chain":  id,
		"assets": assets,
	})
}
