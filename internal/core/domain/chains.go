package domain

import "fmt"

// NetworkInfo describes an EVM network known to the wallet.
type NetworkInfo struct {
	ID             string `json:"id"               yaml:"id"`
	Name           string `json:"name"             yaml:"name"`
	ChainID        uint64 `json:"chain_id"         yaml:"chain_id"`
	RPCURL         string `json:"rpc_url"          yaml:"rpc_url"`
	ExplorerURL    string `json:"explorer_url"     yaml:"explorer_url"`
	CurrencySymbol string `json:"currency_symbol"  yaml:"currency_symbol"`
	IsTestnet      bool   `json:"is_testnet"       yaml:"is_testnet"`
}

// Chain IDs
const (
	ChainIDEthereum uint64 = 1
	ChainIDHolesky  uint64 = 17000
	ChainIDSepolia  uint64 = 11155111
	ChainIDEphemery uint64 = 1337803
)

// DefaultNetworks is the built-in network table. Order matters: the first
// match for a chain id wins.
var DefaultNetworks = []NetworkInfo{
	{
		ID:             "ethereum-mainnet",
		Name:           "Ethereum Mainnet",
		ChainID:        ChainIDEthereum,
		RPCURL:         "https://mainnet.infura.io/v3/your-api-key",
		ExplorerURL:    "https://etherscan.io",
		CurrencySymbol: "ETH",
	},
	{
		ID:             "holesky",
		Name:           "Holesky Testnet",
		ChainID:        ChainIDHolesky,
		RPCURL:         "https://ethereum-holesky.publicnode.com",
		ExplorerURL:    "https://holesky.etherscan.io",
		CurrencySymbol: "ETH",
		IsTestnet:      true,
	},
	{
		ID:             "sepolia",
		Name:           "Sepolia Testnet",
		ChainID:        ChainIDSepolia,
		RPCURL:         "https://ethereum-sepolia.publicnode.com",
		ExplorerURL:    "https://sepolia.etherscan.io",
		CurrencySymbol: "ETH",
		IsTestnet:      true,
	},
	{
		ID:             "ephemery",
		Name:           "Ephemery Testnet",
		ChainID:        ChainIDEphemery,
		RPCURL:         "https://ephemery.dev",
		ExplorerURL:    "https://explorer.ephemery.dev",
		CurrencySymbol: "ETH",
		IsTestnet:      true,
	},
}

// UnknownNetwork builds the placeholder record for a chain id missing from the table.
func UnknownNetwork(chainID uint64) NetworkInfo {
	return NetworkInfo{
		ID:             fmt.Sprintf("unknown-%d", chainID),
		Name:           fmt.Sprintf("Unknown network (%d)", chainID),
		ChainID:        chainID,
		CurrencySymbol: "ETH",
		IsTestnet:      false,
	}
}

// ChainIDHex returns the 0x-prefixed hex form used by wallet_* requests.
func (n NetworkInfo) ChainIDHex() string {
	return fmt.Sprintf("0x%x", n.ChainID)
}
