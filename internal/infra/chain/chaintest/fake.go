// Package chaintest provides an in-memory chain.Bridge for tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/infra/chain"
)

var _ chain.Bridge = (*FakeBridge)(nil)

// FakeBridge is a scriptable wallet provider. Zero values behave like a
// connected provider with no accounts on chain 0.
type FakeBridge struct {
	mu sync.Mutex

	AccountList []string
	Chain       uint64
	Block       uint64
	Balances    map[string]*big.Int
	Codes       map[string][]byte

	// Optional overrides
	RequestAccountsErr error
	AccountsErr        error
	ChainErr           error
	BalanceErr         error
	CodeErr            error
	CallFunc           func(msg chain.CallMsg) ([]byte, error)
	SendFunc           func(tx chain.TxRequest) (string, error)
	SwitchFunc         func(chainID uint64) error
	AddFunc            func(p chain.AddChainParams) error
	// IgnoreSwitch accepts switch requests without changing the chain.
	IgnoreSwitch bool

	Sent  []chain.TxRequest
	Added []chain.AddChainParams
	calls map[string]int
	feed  event.Feed
	nonce int
}

// New returns a fake on chainID with a single connected account.
func New(account string, chainID uint64) *FakeBridge {
	f := &FakeBridge{Chain: chainID, Balances: map[string]*big.Int{}, Codes: map[string][]byte{}}
	if account != "" {
		f.AccountList = []string{account}
	}
	return f
}

func (f *FakeBridge) count(method string) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++
}

// Calls returns how often method was invoked.
func (f *FakeBridge) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of provider calls of any kind.
func (f *FakeBridge) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// SetBalance sets the wei balance of address.
func (f *FakeBridge) SetBalance(address string, wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Balances == nil {
		f.Balances = map[string]*big.Int{}
	}
	f.Balances[strings.ToLower(address)] = wei
}

// SetCode deploys bytecode at address.
func (f *FakeBridge) SetCode(address string, code []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Codes == nil {
		f.Codes = map[string][]byte{}
	}
	f.Codes[strings.ToLower(address)] = code
}

// SetChain changes the reported chain id without emitting an event.
func (f *FakeBridge) SetChain(chainID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Chain = chainID
}

// SetAccounts changes the granted accounts without emitting an event.
func (f *FakeBridge) SetAccounts(accounts ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AccountList = accounts
}

// SetBlock sets the latest block number.
func (f *FakeBridge) SetBlock(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Block = n
}

// Emit delivers ev to every event subscriber.
func (f *FakeBridge) Emit(ev domain.ProviderEvent) int {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	return f.feed.Send(ev)
}

// SentTransactions returns a copy of the submitted transactions.
func (f *FakeBridge) SentTransactions() []chain.TxRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chain.TxRequest(nil), f.Sent...)
}

func (f *FakeBridge) RequestAccounts(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("eth_requestAccounts")
	if f.RequestAccountsErr != nil {
		return nil, f.RequestAccountsErr
	}
	return append([]string(nil), f.AccountList...), nil
}

func (f *FakeBridge) Accounts(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("eth_accounts")
	if f.AccountsErr != nil {
		return nil, f.AccountsErr
	}
	return append([]string(nil), f.AccountList...), nil
}

func (f *FakeBridge) ChainID(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("eth_chainId")
	if f.ChainErr != nil {
		return 0, f.ChainErr
	}
	return f.Chain, nil
}

func (f *FakeBridge) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("eth_blockNumber")
	return f.Block, nil
}

func (f *FakeBridge) Balance(ctx context.Context, address string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("eth_getBalance")
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	if b, ok := f.Balances[strings.ToLower(address)]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *FakeBridge) Code(ctx context.Context, address string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("eth_getCode")
	if f.CodeErr != nil {
		return nil, f.CodeErr
	}
	return f.Codes[strings.ToLower(address)], nil
}

func (f *FakeBridge) Call(ctx context.Context, msg chain.CallMsg) ([]byte, error) {
	f.mu.Lock()
	f.count("eth_call")
	fn := f.CallFunc
	f.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("eth_call: execution reverted")
	}
	return fn(msg)
}

func (f *FakeBridge) SendTransaction(ctx context.Context, tx chain.TxRequest) (string, error) {
	f.mu.Lock()
	f.count("eth_sendTransaction")
	fn := f.SendFunc
	f.mu.Unlock()

	if fn != nil {
		hash, err := fn(tx)
		if err != nil {
			return "", err
		}
		f.mu.Lock()
		f.Sent = append(f.Sent, tx)
		f.mu.Unlock()
		return hash, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, tx)
	f.nonce++
	return fmt.Sprintf("0x%064x", f.nonce), nil
}

func (f *FakeBridge) SwitchChain(ctx context.Context, chainID uint64) error {
	f.mu.Lock()
	f.count("wallet_switchEthereumChain")
	fn, ignore := f.SwitchFunc, f.IgnoreSwitch
	f.mu.Unlock()

	if fn != nil {
		if err := fn(chainID); err != nil {
			return err
		}
	}
	if !ignore {
		f.SetChain(chainID)
	}
	return nil
}

func (f *FakeBridge) AddChain(ctx context.Context, p chain.AddChainParams) error {
	f.mu.Lock()
	f.count("wallet_addEthereumChain")
	fn := f.AddFunc
	f.mu.Unlock()

	if fn != nil {
		if err := fn(p); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.Added = append(f.Added, p)
	f.Chain = p.ChainID
	f.mu.Unlock()
	return nil
}

func (f *FakeBridge) SubscribeEvents(ch chan<- domain.ProviderEvent) event.Subscription {
	return f.feed.Subscribe(ch)
}
