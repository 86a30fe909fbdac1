package evm

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/infra/chain"
	"github.com/vietddude/walletsync/internal/infra/rpc"
)

// MockProvider implements rpc.RPCProvider for testing
type MockProvider struct {
	CallFunc  func(ctx context.Context, method string, params []any) (any, error)
	BatchFunc func(ctx context.Context, requests []rpc.BatchRequest) ([]rpc.BatchResponse, error)
}

func (m *MockProvider) Call(ctx context.Context, method string, params []any) (any, error) {
	if m.CallFunc != nil {
		return m.CallFunc(ctx, method, params)
	}
	return nil, nil
}

func (m *MockProvider) BatchCall(
	ctx context.Context,
	requests []rpc.BatchRequest,
) ([]rpc.BatchResponse, error) {
	if m.BatchFunc != nil {
		return m.BatchFunc(ctx, requests)
	}
	return nil, errors.New("batch not supported")
}

func (m *MockProvider) GetName() string             { return "mock" }
func (m *MockProvider) GetHealth() rpc.HealthStatus { return rpc.HealthStatus{Available: true} }
func (m *MockProvider) IsAvailable() bool           { return true }
func (m *MockProvider) Close() error                { return nil }

var noRetry = rpc.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiple: 1}

func TestEVMBridge_ChainID(t *testing.T) {
	mock := &MockProvider{
		CallFunc: func(ctx context.Context, method string, params []any) (any, error) {
			if method == "eth_chainId" {
				return "0x4268", nil
			}
			return nil, nil
		},
	}

	b := NewEVMBridge(mock, 0)
	id, err := b.ChainID(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != domain.ChainIDHolesky {
		t.Errorf("expected 17000, got %d", id)
	}
}

func TestEVMBridge_Balance(t *testing.T) {
	mock := &MockProvider{
		CallFunc: func(ctx context.Context, method string, params []any) (any, error) {
			if method != "eth_getBalance" {
				t.Errorf("unexpected method %s", method)
			}
			if params[1] != "latest" {
				t.Errorf("expected latest tag, got %v", params[1])
			}
			return "0x14d1120d7b160000", nil // 1.5 ETH
		},
	}

	b := NewEVMBridge(mock, 0)
	wei, err := b.Balance(context.Background(), "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	if wei.Cmp(want) != 0 {
		t.Errorf("expected %s, got %s", want, wei)
	}
}

func TestEVMBridge_Code(t *testing.T) {
	mock := &MockProvider{
		CallFunc: func(ctx context.Context, method string, params []any) (any, error) {
			if params[0] == "0x2222222222222222222222222222222222222222" {
				return "0x6080", nil
			}
			return "0x", nil
		},
	}

	b := NewEVMBridge(mock, 0)
	code, err := b.Code(context.Background(), "0x2222222222222222222222222222222222222222")
	if err != nil || len(code) != 2 {
		t.Errorf("expected 2 bytes of code, got %x (%v)", code, err)
	}
	code, err = b.Code(context.Background(), "0x1111111111111111111111111111111111111111")
	if err != nil || len(code) != 0 {
		t.Errorf("expected empty code, got %x (%v)", code, err)
	}
}

func TestEVMBridge_RequestAccountsRejected(t *testing.T) {
	mock := &MockProvider{
		CallFunc: func(ctx context.Context, method string, params []any) (any, error) {
			return nil, &rpc.Error{Code: rpc.CodeUserRejected, Message: "User rejected the request."}
		},
	}

	b := NewEVMBridge(mock, 0)
	_, err := b.RequestAccounts(context.Background())
	if !errors.Is(err, domain.ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}
	if code, ok := rpc.ErrorCode(err); !ok || code != rpc.CodeUserRejected {
		t.Errorf("expected rpc code 4001 preserved, got %d", code)
	}
}

func TestEVMBridge_TransportFailureIsUnavailable(t *testing.T) {
	mock := &MockProvider{
		CallFunc: func(ctx context.Context, method string, params []any) (any, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}

	b := NewEVMBridge(mock, 0).WithRetry(noRetry)
	_, err := b.Accounts(context.Background())
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestEVMBridge_SwitchChainUnrecognized(t *testing.T) {
	var gotChain any
	mock := &MockProvider{
		CallFunc: func(ctx context.Context, method string, params []any) (any, error) {
			gotChain = params[0].(map[string]any)["chainId"]
			return nil, &rpc.Error{Code: rpc.CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
		},
	}

	b := NewEVMBridge(mock, 0)
	err := b.SwitchChain(context.Background(), domain.ChainIDSepolia)
	if !errors.Is(err, domain.ErrNetworkSwitchUnsupported) {
		t.Fatalf("expected ErrNetworkSwitchUnsupported, got %v", err)
	}
	if gotChain != "0xaa36a7" {
		t.Errorf("expected chainId 0xaa36a7, got %v", gotChain)
	}
}

func TestEVMBridge_AddChainParams(t *testing.T) {
	var params map[string]any
	mock := &MockProvider{
		CallFunc: func(ctx context.Context, method string, p []any) (any, error) {
			if method != "wallet_addEthereumChain" {
				t.Errorf("unexpected method %s", method)
			}
			params = p[0].(map[string]any)
			return nil, nil
		},
	}

	b := NewEVMBridge(mock, 0)
	net := domain.DefaultNetworks[1]
	if err := b.AddChain(context.Background(), chain.AddChainParamsFor(net)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params["chainId"] != "0x4268" || params["chainName"] != net.Name {
		t.Errorf("unexpected params %v", params)
	}
	currency := params["nativeCurrency"].(map[string]any)
	if currency["decimals"] != 18 || currency["symbol"] != "ETH" {
		t.Errorf("unexpected native currency %v", currency)
	}
	if urls := params["rpcUrls"].([]string); len(urls) != 1 || urls[0] != net.RPCURL {
		t.Errorf("unexpected rpc urls %v", urls)
	}
}

func TestEVMBridge_SendTransaction(t *testing.T) {
	var txObj map[string]any
	mock := &MockProvider{
		CallFunc: func(ctx context.Context, method string, params []any) (any, error) {
			txObj = params[0].(map[string]any)
			return "0xhash", nil
		},
	}

	b := NewEVMBridge(mock, 0)
	hash, err := b.SendTransaction(context.Background(), chain.TxRequest{
		From:  "0x1111111111111111111111111111111111111111",
		To:    "0x2222222222222222222222222222222222222222",
		Value: big.NewInt(1000),
		Gas:   21000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash != "0xhash" {
		t.Errorf("expected hash unchanged, got %s", hash)
	}
	if txObj["gas"] != "0x5208" || txObj["value"] != "0x3e8" {
		t.Errorf("unexpected tx object %v", txObj)
	}
	if _, ok := txObj["data"]; ok {
		t.Error("plain transfer must not carry data")
	}
}

func TestEVMBridge_SendTransactionRejected(t *testing.T) {
	mock := &MockProvider{
		CallFunc: func(ctx context.Context, method string, params []any) (any, error) {
			return nil, &rpc.Error{Code: rpc.CodeUserRejected, Message: "denied"}
		},
	}

	b := NewEVMBridge(mock, 0)
	_, err := b.SendTransaction(context.Background(), chain.TxRequest{To: "0x2222222222222222222222222222222222222222"})
	if !errors.Is(err, domain.ErrTransactionSubmission) || !errors.Is(err, domain.ErrUserRejected) {
		t.Errorf("expected submission + rejection errors, got %v", err)
	}
}

func TestEVMBridge_SubscribeEvents(t *testing.T) {
	var mu sync.Mutex
	chainHex := "0x1"
	accounts := []any{"0x1111111111111111111111111111111111111111"}

	mock := &MockProvider{
		CallFunc: func(ctx context.Context, method string, params []any) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			switch method {
			case "eth_accounts":
				return accounts, nil
			case "eth_chainId":
				return chainHex, nil
			}
			return nil, nil
		},
	}

	b := NewEVMBridge(mock, 10*time.Millisecond)
	ch := make(chan domain.ProviderEvent, 4)
	sub := b.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	// Let the poller take its baseline sample.
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	chainHex = "0x4268"
	mu.Unlock()

	select {
	case ev := <-ch:
		if ev.Type != domain.EventChainChanged || ev.ChainID != domain.ChainIDHolesky {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for chainChanged")
	}

	mu.Lock()
	accounts = []any{}
	mu.Unlock()

	select {
	case ev := <-ch:
		if ev.Type != domain.EventAccountsChanged || len(ev.Accounts) != 0 {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accountsChanged")
	}
}

func TestEVMBridge_UnsubscribeStopsPoller(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	mock := &MockProvider{
		CallFunc: func(ctx context.Context, method string, params []any) (any, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			if method == "eth_chainId" {
				return "0x1", nil
			}
			return []any{}, nil
		},
	}

	b := NewEVMBridge(mock, 5*time.Millisecond)
	sub := b.SubscribeEvents(make(chan domain.ProviderEvent, 1))
	time.Sleep(20 * time.Millisecond)
	sub.Unsubscribe()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	before := calls
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	after := calls
	mu.Unlock()

	if after != before {
		t.Errorf("poller still running after unsubscribe: %d -> %d calls", before, after)
	}
}

func TestEVMBridge_EventPollUsesBatch(t *testing.T) {
	var mu sync.Mutex
	chainHex := "0x1"
	batches := 0

	mock := &MockProvider{
		CallFunc: func(ctx context.Context, method string, params []any) (any, error) {
			t.Errorf("unexpected single call %s", method)
			return nil, nil
		},
		BatchFunc: func(ctx context.Context, requests []rpc.BatchRequest) ([]rpc.BatchResponse, error) {
			mu.Lock()
			defer mu.Unlock()
			batches++
			if len(requests) != 2 || requests[0].Method != "eth_accounts" || requests[1].Method != "eth_chainId" {
				t.Errorf("unexpected batch %+v", requests)
			}
			return []rpc.BatchResponse{
				{Result: []any{"0x1111111111111111111111111111111111111111"}},
				{Result: chainHex},
			}, nil
		},
	}

	b := NewEVMBridge(mock, 10*time.Millisecond)
	ch := make(chan domain.ProviderEvent, 4)
	sub := b.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	chainHex = "0x4268"
	mu.Unlock()

	select {
	case ev := <-ch:
		if ev.Type != domain.EventChainChanged || ev.ChainID != domain.ChainIDHolesky {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for chainChanged")
	}

	mu.Lock()
	defer mu.Unlock()
	if batches < 2 {
		t.Errorf("expected batched polls, got %d", batches)
	}
}
