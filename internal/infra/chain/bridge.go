package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/event"

	"github.com/vietddude/walletsync/internal/core/domain"
)

// Bridge is the boundary between the wallet core and the wallet provider.
// Implementations translate provider errors into domain errors
// (domain.ErrUserRejected, domain.ErrNetworkSwitchUnsupported, ...).
type Bridge interface {
	// RequestAccounts asks the account holder for access and returns the granted accounts
	RequestAccounts(ctx context.Context) ([]string, error)

	// Accounts returns the accounts already granted, without prompting
	Accounts(ctx context.Context) ([]string, error)

	// ChainID returns the chain the provider is currently on
	ChainID(ctx context.Context) (uint64, error)

	// BlockNumber returns the latest block number
	BlockNumber(ctx context.Context) (uint64, error)

	// Balance returns the native balance of address in wei
	Balance(ctx context.Context, address string) (*big.Int, error)

	// Code returns the deployed bytecode at address (empty for plain accounts)
	Code(ctx context.Context, address string) ([]byte, error)

	// Call executes a read-only contract call
	Call(ctx context.Context, msg CallMsg) ([]byte, error)

	// SendTransaction submits a transaction for the provider to sign and returns its hash
	SendTransaction(ctx context.Context, tx TxRequest) (string, error)

	// SwitchChain asks the provider to switch to chainID
	SwitchChain(ctx context.Context, chainID uint64) error

	// AddChain asks the provider to register and switch to a chain
	AddChain(ctx context.Context, params AddChainParams) error

	// SubscribeEvents delivers accountsChanged / chainChanged events until unsubscribed
	SubscribeEvents(ch chan<- domain.ProviderEvent) event.Subscription
}

// CallMsg is a read-only contract call.
type CallMsg struct {
	From string
	To   string
	Data []byte
}

// TxRequest is a transaction handed to the provider for signing.
type TxRequest struct {
	From  string
	To    string
	Value *big.Int
	Gas   uint64
	Data  []byte
}

// AddChainParams carries the metadata for wallet_addEthereumChain.
type AddChainParams struct {
	ChainID        uint64
	ChainName      string
	CurrencyName   string
	CurrencySymbol string
	RPCURLs        []string
	ExplorerURLs   []string
}

// AddChainParamsFor builds add-chain metadata from a registry entry.
func AddChainParamsFor(n domain.NetworkInfo) AddChainParams {
	p := AddChainParams{
		ChainID:        n.ChainID,
		ChainName:      n.Name,
		CurrencyName:   n.CurrencySymbol,
		CurrencySymbol: n.CurrencySymbol,
	}
	if n.RPCURL != "" {
		p.RPCURLs = []string{n.RPCURL}
	}
	if n.ExplorerURL != "" {
		p.ExplorerURLs = []string{n.ExplorerURL}
	}
	return p
}
