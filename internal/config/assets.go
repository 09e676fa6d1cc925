package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wallet-statement/internal/types"
)

type assetFile struct {
	Chains map[string][]assetEntry `yaml:"chains"`
}

type assetEntry struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals int    `yaml:"decimals"`
	PriceID  string `yaml:"priceId"`
}

// LoadAssetRegistry reads a tracked-asset registry from a YAML file:
//
//	chains:
//	  ethereum:
//	    - address: NATIVE
//	      symbol: ETH
//	      name: Ethereum
//	      decimals: 18
//	      priceId: ethereum
func LoadAssetRegistry(path string) (types.AssetRegistry, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read asset registry: %w", err)
	}
	return ParseAssetRegistry(data)
}

// ParseAssetRegistry decodes and validates a YAML asset registry
func ParseAssetRegistry(data []byte) (types.AssetRegistry, error) {
	var file assetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse asset registry: %w", err)
	}
	if len(file.Chains) == 0 {
		return nil, fmt.Errorf("asset registry defines no chains")
	}

	registry := make(types.AssetRegistry, len(file.Chains))
	for rawChain, entries := range file.Chains {
		chain, ok := types.GetChain(types.ChainID(strings.ToLower(rawChain)))
		if !ok {
			return nil, fmt.Errorf("asset registry: unsupported chain %q", rawChain)
		}

		seen := make(map[string]bool, len(entries))
		for i, e := range entries {
			if err := validateAssetEntry(e); err != nil {
				return nil, fmt.Errorf("asset registry %s[%d]: %w", chain.ID, i, err)
			}
			address := e.Address
			if strings.EqualFold(address, types.NativeAddress) {
				address = types.NativeAddress
			}
			key := strings.ToLower(address)
			if seen[key] {
				return nil, fmt.Errorf("asset registry %s: duplicate asset %s", chain.ID, e.Address)
			}
			seen[key] = true

			registry[chain.ID] = append(registry[chain.ID], types.Asset{
				ChainID:         chain.ID,
				ContractAddress: address,
				Symbol:          e.Symbol,
				Name:            e.Name,
				Decimals:        e.Decimals,
				PriceID:         e.PriceID,
			})
		}
	}
	return registry, nil
}

func validateAssetEntry(e assetEntry) error {
	if e.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !strings.EqualFold(e.Address, types.NativeAddress) && !types.IsValidAddress(e.Address) {
		return fmt.Errorf("invalid address %q", e.Address)
	}
	if e.Decimals < 0 || e.Decimals > 36 {
		return fmt.Errorf("decimals %d out of range", e.Decimals)
	}
	return nil
}
