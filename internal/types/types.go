// Package types provides common type definitions for the wallet statement system.
package types

import (
	"fmt"
	"strings"
	"time"
)

// ChainID represents supported blockchain networks
type ChainID string

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = "ethereum"
	// ChainPolygon represents the Polygon network
	ChainPolygon ChainID = "polygon"
	// ChainArbitrum represents the Arbitrum network
	ChainArbitrum ChainID = "arbitrum"
	// ChainOptimism represents the Optimism network
	ChainOptimism ChainID = "optimism"
	// ChainBase represents the Base network
	ChainBase ChainID = "base"
	// ChainBSC represents the BNB Smart Chain
	ChainBSC ChainID = "bsc"
	// ChainAvalanche represents the Avalanche C-Chain
	ChainAvalanche ChainID = "avalanche"
)

// NativeAddress is the contract address placeholder used for a chain's native currency
const NativeAddress = "NATIVE"

// Chain describes one network contributing transfers and balances to a statement.
// It is a value object and is passed explicitly wherever chain-specific behavior is needed.
type Chain struct {
	ID             ChainID       `json:"id"`
	Name           string        `json:"name"`
	NativeSymbol   string        `json:"nativeSymbol"`
	NativePriceID  string        `json:"nativePriceId"`
	NumericID      int64         `json:"chainId"` // EIP-155 id, also the Etherscan v2 chainid
	AlchemyNetwork string        `json:"alchemyNetwork"`
	ExplorerURL    string        `json:"explorerUrl"`
	GenesisYear    int           `json:"genesisYear"`
	AvgBlockTime   time.Duration `json:"avgBlockTime"`
	IsDefault      bool          `json:"isDefault"`
}

// String returns the chain id
func (c Chain) String() string {
	return string(c.ID)
}

// TransferCategory distinguishes native currency movements from token movements
type TransferCategory string

const (
	// CategoryNative represents a movement of the chain's native currency
	CategoryNative TransferCategory = "NATIVE"
	// CategoryToken represents a fungible token (ERC-20) movement
	CategoryToken TransferCategory = "TOKEN"
)

// Direction represents whether a ledger entry adds to or removes from the wallet
type Direction string

const (
	// DirectionCredit represents value received by the wallet
	DirectionCredit Direction = "CREDIT"
	// DirectionDebit represents value sent by the wallet
	DirectionDebit Direction = "DEBIT"
)

// Asset is a fungible token or native currency tracked on one chain.
// Identity is (ChainID, lowercased ContractAddress).
type Asset struct {
	ChainID         ChainID `json:"chainId"`
	ContractAddress string  `json:"contractAddress"`
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name"`
	Decimals        int     `json:"decimals"`
	PriceID         string  `json:"priceId"`
}

// IsNative reports whether the asset is the chain's native currency
func (a Asset) IsNative() bool {
	return strings.EqualFold(a.ContractAddress, NativeAddress)
}

// Key returns the asset identity as "chain:address" with the address lowercased
func (a Asset) Key() string {
	return fmt.Sprintf("%s:%s", a.ChainID, strings.ToLower(a.ContractAddress))
}

// MatchesContract reports whether the asset is the token deployed at contract
func (a Asset) MatchesContract(contract string) bool {
	if a.IsNative() || contract == "" {
		return false
	}
	return strings.EqualFold(a.ContractAddress, contract)
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
