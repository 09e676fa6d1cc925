package models

import (
	"github.com/wallet-statement/internal/types"
)

// RawTransfer is one on-chain movement as reported by a transfer source.
// It is consumed once by the classifier.
type RawTransfer struct {
	Hash            string                 `json:"hash"`
	UniqueID        string                 `json:"uniqueId,omitempty"`
	ChainID         types.ChainID          `json:"chainId"`
	FromAddress     string                 `json:"from"`
	ToAddress       string                 `json:"to"`
	BlockNumber     uint64                 `json:"blockNumber"`
	BlockTimestamp  string                 `json:"blockTimestamp"` // ISO-8601, 0x-hex or decimal seconds
	Category        types.TransferCategory `json:"category"`
	RawValue        *string                `json:"rawValue"` // base-unit integer, decimal digits
	ContractAddress *string                `json:"contractAddress"`
}

// DedupKey identifies the transfer across the from- and to-direction queries
func (t RawTransfer) DedupKey() string {
	if t.UniqueID != "" {
		return t.UniqueID
	}
	return t.Hash
}

// RawBalance is an asset balance in base units at some block
type RawBalance struct {
	Asset       types.Asset `json:"asset"`
	RawQuantity string      `json:"rawQuantity"`
}

// BlockRange is the inclusive block span covering a statement period on one chain
type BlockRange struct {
	FromBlock   uint64 `json:"fromBlock"`
	ToBlock     uint64 `json:"toBlock"`
	Approximate bool   `json:"approximate"`
}
