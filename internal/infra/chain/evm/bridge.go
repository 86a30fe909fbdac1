// Package evm implements the wallet provider bridge for EVM JSON-RPC wallets.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	logger "log/slog"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/infra/chain"
	"github.com/vietddude/walletsync/internal/infra/rpc"
)

// DefaultEventPollInterval is how often accounts and chain id are sampled for events.
const DefaultEventPollInterval = 2 * time.Second

var _ chain.Bridge = (*EVMBridge)(nil)

// EVMBridge implements chain.Bridge over a JSON-RPC wallet provider.
type EVMBridge struct {
	client rpc.RPCProvider
	retry  rpc.RetryConfig
	log    *logger.Logger

	pollInterval time.Duration
	feed         event.Feed
	noBatch      atomic.Bool

	watchMu  sync.Mutex
	watchers int
	stopPoll context.CancelFunc
}

// NewEVMBridge creates a bridge. A zero pollInterval selects DefaultEventPollInterval.
func NewEVMBridge(client rpc.RPCProvider, pollInterval time.Duration) *EVMBridge {
	if pollInterval <= 0 {
		pollInterval = DefaultEventPollInterval
	}
	return &EVMBridge{
		client:       client,
		retry:        rpc.DefaultRetryConfig,
		log:          logger.Default().With("component", "bridge"),
		pollInterval: pollInterval,
	}
}

// WithRetry overrides the retry policy for reads.
func (b *EVMBridge) WithRetry(cfg rpc.RetryConfig) *EVMBridge {
	b.retry = cfg
	return b
}

// read runs an idempotent call with retry.
func (b *EVMBridge) read(ctx context.Context, method string, params []any) (any, error) {
	result, err := rpc.CallWithRetry(ctx, b.client, method, params, b.retry)
	if err != nil {
		return nil, wrapError(method, err)
	}
	return result, nil
}

// write runs a wallet-mutating or prompting call exactly once.
func (b *EVMBridge) write(ctx context.Context, method string, params []any) (any, error) {
	result, err := b.client.Call(ctx, method, params)
	if err != nil {
		return nil, wrapError(method, err)
	}
	return result, nil
}

// wrapError maps provider codes to domain errors while keeping the rpc.Error reachable.
func wrapError(method string, err error) error {
	switch {
	case rpc.IsUserRejected(err):
		return fmt.Errorf("%s: %w: %w", method, domain.ErrUserRejected, err)
	case rpc.IsUnrecognizedChain(err):
		return fmt.Errorf("%s: %w: %w", method, domain.ErrNetworkSwitchUnsupported, err)
	}
	if _, ok := rpc.ErrorCode(err); ok {
		return fmt.Errorf("%s: %w", method, err)
	}
	return fmt.Errorf("%s: %w: %w", method, domain.ErrProviderUnavailable, err)
}

func (b *EVMBridge) RequestAccounts(ctx context.Context) ([]string, error) {
	result, err := b.write(ctx, "eth_requestAccounts", nil)
	if err != nil {
		return nil, err
	}
	return getStrings(result), nil
}

func (b *EVMBridge) Accounts(ctx context.Context) ([]string, error) {
	result, err := b.read(ctx, "eth_accounts", nil)
	if err != nil {
		return nil, err
	}
	return getStrings(result), nil
}

func (b *EVMBridge) ChainID(ctx context.Context) (uint64, error) {
	result, err := b.read(ctx, "eth_chainId", nil)
	if err != nil {
		return 0, err
	}
	id, err := parseHexString(getString(result))
	if err != nil {
		return 0, fmt.Errorf("eth_chainId: %w", err)
	}
	return id, nil
}

func (b *EVMBridge) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := b.read(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, err
	}
	n, err := parseHexString(getString(result))
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return n, nil
}

func (b *EVMBridge) Balance(ctx context.Context, address string) (*big.Int, error) {
	result, err := b.read(ctx, "eth_getBalance", []any{address, "latest"})
	if err != nil {
		return nil, err
	}
	wei, err := parseHexToBigInt(getString(result))
	if err != nil {
		return nil, fmt.Errorf("eth_getBalance: %w", err)
	}
	return wei, nil
}

func (b *EVMBridge) Code(ctx context.Context, address string) ([]byte, error) {
	result, err := b.read(ctx, "eth_getCode", []any{address, "latest"})
	if err != nil {
		return nil, err
	}
	code, err := hexutil.Decode(getString(result))
	if err != nil {
		return nil, fmt.Errorf("eth_getCode: %w", err)
	}
	return code, nil
}

func (b *EVMBridge) Call(ctx context.Context, msg chain.CallMsg) ([]byte, error) {
	callObj := map[string]any{
		"to":   msg.To,
		"data": hexutil.Encode(msg.Data),
	}
	if msg.From != "" {
		callObj["from"] = msg.From
	}
	result, err := b.read(ctx, "eth_call", []any{callObj, "latest"})
	if err != nil {
		return nil, err
	}
	out, err := hexutil.Decode(getString(result))
	if err != nil {
		return nil, fmt.Errorf("eth_call: %w", err)
	}
	return out, nil
}

func (b *EVMBridge) SendTransaction(ctx context.Context, tx chain.TxRequest) (string, error) {
	txObj := map[string]any{
		"from": tx.From,
		"to":   tx.To,
	}
	if tx.Value != nil {
		txObj["value"] = hexutil.EncodeBig(tx.Value)
	}
	if tx.Gas > 0 {
		txObj["gas"] = hexutil.EncodeUint64(tx.Gas)
	}
	if len(tx.Data) > 0 {
		txObj["data"] = hexutil.Encode(tx.Data)
	}

	result, err := b.write(ctx, "eth_sendTransaction", []any{txObj})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrTransactionSubmission, err)
	}
	hash := getString(result)
	if hash == "" {
		return "", fmt.Errorf("%w: empty transaction hash", domain.ErrTransactionSubmission)
	}
	return hash, nil
}

func (b *EVMBridge) SwitchChain(ctx context.Context, chainID uint64) error {
	_, err := b.write(ctx, "wallet_switchEthereumChain", []any{
		map[string]any{"chainId": hexutil.EncodeUint64(chainID)},
	})
	return err
}

func (b *EVMBridge) AddChain(ctx context.Context, p chain.AddChainParams) error {
	params := map[string]any{
		"chainId":   hexutil.EncodeUint64(p.ChainID),
		"chainName": p.ChainName,
		"nativeCurrency": map[string]any{
			"name":     p.CurrencyName,
			"symbol":   p.CurrencySymbol,
			"decimals": 18,
		},
		"rpcUrls":           nonNil(p.RPCURLs),
		"blockExplorerUrls": nonNil(p.ExplorerURLs),
	}
	_, err := b.write(ctx, "wallet_addEthereumChain", []any{params})
	return err
}

// Close stops the event poller.
func (b *EVMBridge) Close() error {
	b.watchMu.Lock()
	defer b.watchMu.Unlock()
	if b.stopPoll != nil {
		b.stopPoll()
		b.stopPoll = nil
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
