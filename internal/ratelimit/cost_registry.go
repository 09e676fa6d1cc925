// Package ratelimit provides CU (Compute Unit) budgeting for Alchemy RPC calls.
package ratelimit

import (
	"sync"
)

// Default CU costs for the RPC methods used to build statements.
const (
	DefaultCUCost = 20 // Default cost for unknown methods

	CostEthBlockNumber           = 10
	CostEthGetBalance            = 20
	CostEthCall                  = 26
	CostEthGetBlockByNumber      = 16
	CostAlchemyGetAssetTransfers = 150 // per page and direction
)

// RPC method names
const (
	MethodEthBlockNumber           = "eth_blockNumber"
	MethodEthGetBalance            = "eth_getBalance"
	MethodEthCall                  = "eth_call"
	MethodEthGetBlockByNumber      = "eth_getBlockByNumber"
	MethodAlchemyGetAssetTransfers = "alchemy_getAssetTransfers"
)

// CUCostRegistry maps RPC methods to their CU costs.
// It is safe for concurrent use.
type CUCostRegistry struct {
	mu          sync.RWMutex
	costs       map[string]int
	defaultCost int
}

// NewCUCostRegistry creates a registry with the default Alchemy costs.
// Overrides with a non-positive cost are ignored.
func NewCUCostRegistry(overrides map[string]int) *CUCostRegistry {
	costs := map[string]int{
		MethodEthBlockNumber:           CostEthBlockNumber,
		MethodEthGetBalance:            CostEthGetBalance,
		MethodEthCall:                  CostEthCall,
		MethodEthGetBlockByNumber:      CostEthGetBlockByNumber,
		MethodAlchemyGetAssetTransfers: CostAlchemyGetAssetTransfers,
	}
	for method, cost := range overrides {
		if cost > 0 {
			costs[method] = cost
		}
	}

	return &CUCostRegistry{
		costs:       costs,
		defaultCost: DefaultCUCost,
	}
}

// GetCost returns the CU cost for an RPC method, or the default cost for
// unknown methods.
func (r *CUCostRegistry) GetCost(method string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cost, ok := r.costs[method]; ok {
		return cost
	}
	return r.defaultCost
}

// SetCost updates the cost of one method. Non-positive costs are ignored.
func (r *CUCostRegistry) SetCost(method string, cost int) {
	if cost <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.costs[method] = cost
}
