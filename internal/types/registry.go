package types

import (
	"fmt"
	"strings"
	"time"
)

var supportedChains = []Chain{
	{ID: ChainEthereum, Name: "Ethereum", NativeSymbol: "ETH", NativePriceID: "ethereum", NumericID: 1, AlchemyNetwork: "eth-mainnet", ExplorerURL: "https://etherscan.io", GenesisYear: 2015, AvgBlockTime: 12 * time.Second, IsDefault: true},
	{ID: ChainPolygon, Name: "Polygon", NativeSymbol: "MATIC", NativePriceID: "matic-network", NumericID: 137, AlchemyNetwork: "polygon-mainnet", ExplorerURL: "https://polygonscan.com", GenesisYear: 2020, AvgBlockTime: 2 * time.Second, IsDefault: true},
	{ID: ChainArbitrum, Name: "Arbitrum", NativeSymbol: "ETH", NativePriceID: "ethereum", NumericID: 42161, AlchemyNetwork: "arb-mainnet", ExplorerURL: "https://arbiscan.io", GenesisYear: 2021, AvgBlockTime: 250 * time.Millisecond, IsDefault: true},
	{ID: ChainOptimism, Name: "Optimism", NativeSymbol: "ETH", NativePriceID: "ethereum", NumericID: 10, AlchemyNetwork: "opt-mainnet", ExplorerURL: "https://optimistic.etherscan.io", GenesisYear: 2021, AvgBlockTime: 2 * time.Second, IsDefault: true},
	{ID: ChainBase, Name: "Base", NativeSymbol: "ETH", NativePriceID: "ethereum", NumericID: 8453, AlchemyNetwork: "base-mainnet", ExplorerURL: "https://basescan.org", GenesisYear: 2023, AvgBlockTime: 2 * time.Second, IsDefault: true},
	{ID: ChainBSC, Name: "BNB Chain", NativeSymbol: "BNB", NativePriceID: "binancecoin", NumericID: 56, AlchemyNetwork: "bnb-mainnet", ExplorerURL: "https://bscscan.com", GenesisYear: 2020, AvgBlockTime: 3 * time.Second},
	{ID: ChainAvalanche, Name: "Avalanche", NativeSymbol: "AVAX", NativePriceID: "avalanche-2", NumericID: 43114, AlchemyNetwork: "avax-mainnet", ExplorerURL: "https://snowtrace.io", GenesisYear: 2020, AvgBlockTime: 2 * time.Second},
}

// SupportedChains returns every chain the system knows about
func SupportedChains() []Chain {
	out := make([]Chain, len(supportedChains))
	copy(out, supportedChains)
	return out
}

// DefaultChains returns the chains selected when a request names none
func DefaultChains() []Chain {
	var out []Chain
	for _, c := range supportedChains {
		if c.IsDefault {
			out = append(out, c)
		}
	}
	return out
}

// GetChain looks up a chain by id
func GetChain(id ChainID) (Chain, bool) {
	for _, c := range supportedChains {
		if c.ID == id {
			return c, true
		}
	}
	return Chain{}, false
}

// ParseChainIDs resolves a list of chain ids, rejecting unknown ones.
// An empty list yields the default chains.
func ParseChainIDs(ids []string) ([]Chain, error) {
	if len(ids) == 0 {
		return DefaultChains(), nil
	}

	seen := make(map[ChainID]bool, len(ids))
	chains := make([]Chain, 0, len(ids))
	for _, raw := range ids {
		id := ChainID(strings.ToLower(strings.TrimSpace(raw)))
		if id == "" || seen[id] {
			continue
		}
		chain, ok := GetChain(id)
		if !ok {
			return nil, fmt.Errorf("unsupported chain: %s", raw)
		}
		seen[id] = true
		chains = append(chains, chain)
	}
	return chains, nil
}

// AssetRegistry holds the tracked assets of each chain
type AssetRegistry map[ChainID][]Asset

// AssetsForChain returns the tracked assets of a chain in registry order
func (r AssetRegistry) AssetsForChain(id ChainID) []Asset {
	return r[id]
}

// Find resolves an asset by chain and contract address (or NATIVE)
func (r AssetRegistry) Find(id ChainID, address string) (Asset, bool) {
	for _, a := range r[id] {
		if strings.EqualFold(a.ContractAddress, address) {
			return a, true
		}
	}
	return Asset{}, false
}

// FindBySymbol resolves an asset by chain and ticker symbol
func (r AssetRegistry) FindBySymbol(id ChainID, symbol string) (Asset, bool) {
	for _, a := range r[id] {
		if strings.EqualFold(a.Symbol, symbol) {
			return a, true
		}
	}
	return Asset{}, false
}

// Native returns the native asset of a chain
func (r AssetRegistry) Native(id ChainID) (Asset, bool) {
	return r.Find(id, NativeAddress)
}

func token(chain ChainID, address, symbol, name string, decimals int, priceID string) Asset {
	return Asset{ChainID: chain, ContractAddress: address, Symbol: symbol, Name: name, Decimals: decimals, PriceID: priceID}
}

// DefaultAssetRegistry returns the built-in tracked assets
func DefaultAssetRegistry() AssetRegistry {
	return AssetRegistry{
		ChainEthereum: {
			token(ChainEthereum, NativeAddress, "ETH", "Ethereum", 18, "ethereum"),
			token(ChainEthereum, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "USDC", "USD Coin", 6, "usd-coin"),
			token(ChainEthereum, "0xdAC17F958D2ee523a2206206994597C13D831ec7", "USDT", "Tether USD", 6, "tether"),
			token(ChainEthereum, "0x6B175474E89094C44Da98b954EedeAC495271d0F", "DAI", "Dai Stablecoin", 18, "dai"),
			token(ChainEthereum, "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", "WBTC", "Wrapped Bitcoin", 8, "wrapped-bitcoin"),
			token(ChainEthereum, "0x514910771AF9Ca656af840dff83E8264EcF986CA", "LINK", "Chainlink", 18, "chainlink"),
			token(ChainEthereum, "0x7Fc66500c84A76Ad7e9c93437bFc5Ac33E2DDaE9", "AAVE", "Aave", 18, "aave"),
			token(ChainEthereum, "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984", "UNI", "Uniswap", 18, "uniswap"),
		},
		ChainPolygon: {
			token(ChainPolygon, NativeAddress, "MATIC", "Polygon", 18, "matic-network"),
			token(ChainPolygon, "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", "USDC", "USD Coin", 6, "usd-coin"),
			token(ChainPolygon, "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", "USDT", "Tether USD", 6, "tether"),
			token(ChainPolygon, "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063", "DAI", "Dai Stablecoin", 18, "dai"),
			token(ChainPolygon, "0x1BFD67037B42Cf73acF2047067bd4F2C47D9BfD6", "WBTC", "Wrapped Bitcoin", 8, "wrapped-bitcoin"),
			token(ChainPolygon, "0x53E0bca35eC356BD5ddDFebbD1Fc0fD03FaBad39", "LINK", "Chainlink", 18, "chainlink"),
			token(ChainPolygon, "0xD6DF932A45C0f255f85145f286eA0b292B21C90B", "AAVE", "Aave", 18, "aave"),
		},
		ChainArbitrum: {
			token(ChainArbitrum, NativeAddress, "ETH", "Ethereum", 18, "ethereum"),
			token(ChainArbitrum, "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", "USDC", "USD Coin", 6, "usd-coin"),
			token(ChainArbitrum, "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", "USDT", "Tether USD", 6, "tether"),
			token(ChainArbitrum, "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", "DAI", "Dai Stablecoin", 18, "dai"),
			token(ChainArbitrum, "0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f", "WBTC", "Wrapped Bitcoin", 8, "wrapped-bitcoin"),
			token(ChainArbitrum, "0xf97f4df75117a78c1A5a0DBb814Af92458539FB4", "LINK", "Chainlink", 18, "chainlink"),
		},
		ChainOptimism: {
			token(ChainOptimism, NativeAddress, "ETH", "Ethereum", 18, "ethereum"),
			token(ChainOptimism, "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", "USDC", "USD Coin", 6, "usd-coin"),
			token(ChainOptimism, "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", "USDT", "Tether USD", 6, "tether"),
			token(ChainOptimism, "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", "DAI", "Dai Stablecoin", 18, "dai"),
			token(ChainOptimism, "0x68f180fcCe6836688e9084f035309E29Bf0A2095", "WBTC", "Wrapped Bitcoin", 8, "wrapped-bitcoin"),
			token(ChainOptimism, "0x350a791Bfc2C21F9Ed5d10980Dad2e2638ffa87", "LINK", "Chainlink", 18, "chainlink"),
		},
		ChainBase: {
			token(ChainBase, NativeAddress, "ETH", "Ethereum", 18, "ethereum"),
			token(ChainBase, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "USDC", "USD Coin", 6, "usd-coin"),
			token(ChainBase, "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", "DAI", "Dai Stablecoin", 18, "dai"),
		},
		ChainBSC: {
			token(ChainBSC, NativeAddress, "BNB", "BNB", 18, "binancecoin"),
			token(ChainBSC, "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", "USDC", "USD Coin", 18, "usd-coin"),
			token(ChainBSC, "0x55d398326f99059fF775485246999027B3197955", "USDT", "Tether USD", 18, "tether"),
			token(ChainBSC, "0x1AF3F329e8BE154074D8769D1FFa4eE058B1DBc3", "DAI", "Dai Stablecoin", 18, "dai"),
		},
		ChainAvalanche: {
			token(ChainAvalanche, NativeAddress, "AVAX", "Avalanche", 18, "avalanche-2"),
			token(ChainAvalanche, "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", "USDC", "USD Coin", 6, "usd-coin"),
			token(ChainAvalanche, "0x9702230A8Ea53601f5cD2dc00fDBc13d4dF4A8c7", "USDT", "Tether USD", 6, "tether"),
			token(ChainAvalanche, "0xd586E7F844cEa2F87f50152665BCbc2C279D8d70", "DAI", "Dai Stablecoin", 18, "dai"),
		},
	}
}
