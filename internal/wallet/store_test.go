package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/infra/chain/chaintest"
	"github.com/vietddude/walletsync/internal/network"
	"github.com/vietddude/walletsync/internal/notify"
)

const account = "0x1111111111111111111111111111111111111111"

type fakeExplorer struct {
	mu       sync.Mutex
	txs      []domain.Transaction
	token    float64
	nfts     int
	txErr    error
	tokenErr error
	nftErr   error

	// When block is set, the next Transactions call signals entered and waits.
	block   chan struct{}
	entered chan struct{}
	blocked []domain.Transaction
}

func (f *fakeExplorer) setTransactions(hashes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = txList(hashes...)
}

func txList(hashes ...string) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, domain.Transaction{Hash: h, Direction: domain.DirectionReceived, Status: domain.TxStatusCompleted})
	}
	return out
}

func (f *fakeExplorer) Transactions(ctx context.Context, address string, endBlock uint64) ([]domain.Transaction, error) {
	f.mu.Lock()
	block, entered := f.block, f.entered
	if block != nil {
		f.block, f.entered = nil, nil
		blocked := f.blocked
		f.mu.Unlock()
		close(entered)
		<-block
		return blocked, nil
	}
	defer f.mu.Unlock()
	if f.txErr != nil {
		return nil, f.txErr
	}
	return append([]domain.Transaction(nil), f.txs...), nil
}

func (f *fakeExplorer) TokenBalance(ctx context.Context, address string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.tokenErr
}

func (f *fakeExplorer) NFTCount(ctx context.Context, address string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nfts, f.nftErr
}

type countingResetter struct {
	mu    sync.Mutex
	count int
}

func (c *countingResetter) Reset() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *countingResetter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

type fixture struct {
	bridge   *chaintest.FakeBridge
	explorer *fakeExplorer
	notes    *notify.Recorder
	contract *countingResetter
	store    *Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureInterval(t, time.Hour)
}

func newFixtureInterval(t *testing.T, refreshInterval time.Duration) *fixture {
	t.Helper()
	bridge := chaintest.New(account, domain.ChainIDHolesky)
	bridge.SetBalance(account, new(big.Int).Mul(big.NewInt(15), big.NewInt(1e17)))
	explorer := &fakeExplorer{token: 12.5, nfts: 3}
	notes := notify.NewRecorder(nil, 100)
	resetter := &countingResetter{}
	registry := network.NewRegistry(bridge, network.Options{Notifier: notes})

	store := NewStore(bridge, explorer, registry, Options{
		RefreshInterval: refreshInterval,
		SettleTimeout:   500 * time.Millisecond,
		PollInterval:    5 * time.Millisecond,
		Contracts:       resetter,
		Notifier:        notes,
	})
	t.Cleanup(store.Close)
	return &fixture{bridge: bridge, explorer: explorer, notes: notes, contract: resetter, store: store}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStore_ConnectPublishesSnapshot(t *testing.T) {
	f := newFixture(t)
	f.explorer.setTransactions("0xaaa")

	addr, err := f.store.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if addr != account {
		t.Errorf("expected %s, got %s", account, addr)
	}
	if !f.store.IsConnected() {
		t.Fatal("expected connected")
	}

	snap := f.store.Current()
	if snap == nil {
		t.Fatal("expected snapshot")
	}
	if snap.BalanceEth != 1.5 || snap.TokenBalance != 12.5 || snap.NFTCount != 3 {
		t.Errorf("unexpected balances: %+v", snap)
	}
	if snap.Network != "Holesky Testnet" || snap.ChainID != domain.ChainIDHolesky {
		t.Errorf("unexpected network: %s (%d)", snap.Network, snap.ChainID)
	}
	if snap.TransactionCount != 1 || snap.HeadHash() != "0xaaa" {
		t.Errorf("unexpected history: %+v", snap.Transactions)
	}
	if len(snap.Partial) != 0 {
		t.Errorf("expected complete snapshot, got partial %v", snap.Partial)
	}

	sink := make(chan *domain.WalletSnapshot, 1)
	sub := f.store.Subscribe(sink)
	defer sub.Unsubscribe()
	select {
	case got := <-sink:
		if got != snap {
			t.Error("expected replay of the current snapshot")
		}
	case <-time.After(time.Second):
		t.Fatal("no replay on subscribe")
	}
}

func TestStore_ConnectErrors(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		s := NewStore(nil, nil, nil, Options{Notifier: notify.NewRecorder(nil, 10)})
		defer s.Close()
		if _, err := s.Connect(context.Background()); !errors.Is(err, domain.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		f := newFixture(t)
		f.bridge.RequestAccountsErr = fmt.Errorf("eth_requestAccounts: %w", domain.ErrUserRejected)
		if _, err := f.store.Connect(context.Background()); !errors.Is(err, domain.ErrUserRejected) {
			t.Errorf("expected ErrUserRejected, got %v", err)
		}
		if f.store.IsConnected() {
			t.Error("must not be connected")
		}
		if f.notes.Count(notify.LevelError) != 1 {
			t.Error("expected error notification")
		}
	})

	t.Run("no accounts", func(t *testing.T) {
		f := newFixture(t)
		f.bridge.SetAccounts()
		if _, err := f.store.Connect(context.Background()); !errors.Is(err, domain.ErrUserRejected) {
			t.Errorf("expected ErrUserRejected, got %v", err)
		}
	})
}

func TestStore_NewTransactionDetection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.explorer.setTransactions("0xaaa")
	if _, err := f.store.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	events := make(chan domain.NewTransactionEvent, 4)
	sub := f.store.SubscribeNewTransactions(events)
	defer sub.Unsubscribe()

	// Head unchanged: nothing fires.
	if err := f.store.Refresh(ctx, false); err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("unexpected event for unchanged head")
	}

	f.explorer.setTransactions("0xbbb", "0xaaa")
	if err := f.store.Refresh(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Refresh(ctx, false); err != nil {
		t.Fatal(err)
	}

	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	ev := <-events
	if ev.Transaction.Hash != "0xbbb" || ev.Silent {
		t.Errorf("unexpected event %+v", ev)
	}
	if n := f.notes.Count(notify.LevelInfo); n != 1 {
		t.Errorf("expected one info notification, got %d", n)
	}
}

func TestStore_NewTransactionAfterEmptyHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	events := make(chan domain.NewTransactionEvent, 4)
	sub := f.store.SubscribeNewTransactions(events)
	defer sub.Unsubscribe()

	f.explorer.setTransactions("0xfirst")
	if err := f.store.Refresh(ctx, true); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if ev := <-events; !ev.Silent {
		t.Error("expected silent event")
	}
	if n := f.notes.Count(notify.LevelInfo); n != 0 {
		t.Errorf("silent refresh must not notify, got %d", n)
	}
}

func TestStore_StaleGenerationDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.explorer.setTransactions("0xaaa")
	if _, err := f.store.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	before := f.store.Current()

	f.explorer.mu.Lock()
	f.explorer.block = make(chan struct{})
	f.explorer.entered = make(chan struct{})
	f.explorer.blocked = txList("0xstale")
	release, entered := f.explorer.block, f.explorer.entered
	f.explorer.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- f.store.Refresh(ctx, true) }()
	<-entered

	sess, _ := f.store.Session()
	f.store.newSession(account, sess.ChainID)
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("stale refresh should not fail: %v", err)
	}
	if got := f.store.Current(); got != before {
		t.Errorf("stale snapshot was published: %+v", got)
	}
}

func TestStore_OnlyLatestRefreshPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.explorer.setTransactions("0xaaa")
	if _, err := f.store.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	f.explorer.mu.Lock()
	f.explorer.block = make(chan struct{})
	f.explorer.entered = make(chan struct{})
	f.explorer.blocked = txList("0xslow")
	release, entered := f.explorer.block, f.explorer.entered
	f.explorer.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- f.store.Refresh(ctx, true) }()
	<-entered

	f.explorer.setTransactions("0xfast")
	if err := f.store.Refresh(ctx, true); err != nil {
		t.Fatal(err)
	}
	close(release)
	<-done

	if got := f.store.Current().HeadHash(); got != "0xfast" {
		t.Errorf("expected latest refresh to win, got %s", got)
	}
}

func TestStore_PartialData(t *testing.T) {
	f := newFixture(t)
	f.explorer.tokenErr = errors.New("explorer down")
	f.explorer.nftErr = errors.New("explorer down")

	if _, err := f.store.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap := f.store.Current()
	if snap == nil {
		t.Fatal("expected snapshot despite auxiliary failures")
	}
	if snap.BalanceEth != 1.5 {
		t.Errorf("balance should survive, got %v", snap.BalanceEth)
	}
	if snap.TokenBalance != 0 || snap.NFTCount != 0 {
		t.Errorf("failed fields should be zero: %+v", snap)
	}
	if len(snap.Partial) != 2 {
		t.Errorf("expected two partial fields, got %v", snap.Partial)
	}
}

func TestStore_AddressFailureKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	before := f.store.Current()

	f.bridge.AccountsErr = domain.ErrProviderUnavailable
	f.bridge.RequestAccountsErr = domain.ErrProviderUnavailable
	if err := f.store.Refresh(ctx, false); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if f.store.Current() != before {
		t.Error("last good snapshot must stay")
	}
	if f.bridge.Calls("eth_requestAccounts") != 2 {
		t.Errorf("expected one reconnect attempt, got %d requests", f.bridge.Calls("eth_requestAccounts"))
	}
	if f.notes.Count(notify.LevelError) != 1 {
		t.Error("expected error notification for non-silent failure")
	}
}

func TestStore_NoAccountsDisconnects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	f.bridge.SetAccounts()

	if err := f.store.Refresh(ctx, true); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if f.store.IsConnected() || f.store.Current() != nil {
		t.Error("expected disconnected store")
	}
}

func TestStore_DisconnectPublishesNil(t *testing.T) {
	f := newFixture(t)
	if _, err := f.store.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	sink := make(chan *domain.WalletSnapshot, 4)
	sub := f.store.Subscribe(sink)
	defer sub.Unsubscribe()
	if got := <-sink; got == nil {
		t.Fatal("expected replayed snapshot")
	}

	f.store.Disconnect()
	select {
	case got := <-sink:
		if got != nil {
			t.Errorf("expected nil after disconnect, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no publication after disconnect")
	}
	if f.contract.Count() != 1 {
		t.Errorf("expected contract caches reset once, got %d", f.contract.Count())
	}
	if _, err := f.store.CurrentAddress(context.Background()); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestStore_RefreshSkippedWhileNetworkChanging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	calls := f.bridge.Calls("eth_accounts")

	f.store.networkChanging.Store(true)
	if err := f.store.Refresh(ctx, true); err != nil {
		t.Fatalf("skipped refresh should not fail: %v", err)
	}
	if f.bridge.Calls("eth_accounts") != calls {
		t.Error("provider must not be queried while the network changes")
	}
	f.store.networkChanging.Store(false)
}

func TestStore_AccountsChangedEmptyDisconnects(t *testing.T) {
	f := newFixture(t)
	if _, err := f.store.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.bridge.Emit(domain.ProviderEvent{Type: domain.EventAccountsChanged})
	waitFor(t, "disconnect", func() bool { return !f.store.IsConnected() })
}

func TestStore_AccountsChangedNewAccount(t *testing.T) {
	f := newFixture(t)
	if _, err := f.store.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	first, _ := f.store.Session()

	other := "0x2222222222222222222222222222222222222222"
	f.bridge.SetAccounts(other)
	f.bridge.Emit(domain.ProviderEvent{Type: domain.EventAccountsChanged, Accounts: []string{other}})

	waitFor(t, "snapshot for new account", func() bool {
		snap := f.store.Current()
		return snap != nil && snap.Address == other
	})
	sess, _ := f.store.Session()
	if sess.Generation <= first.Generation {
		t.Error("account change must start a new generation")
	}
}

func TestStore_ChainChangedRebuildsSession(t *testing.T) {
	f := newFixture(t)
	if _, err := f.store.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	first, _ := f.store.Session()

	f.bridge.SetChain(domain.ChainIDSepolia)
	f.bridge.Emit(domain.ProviderEvent{Type: domain.EventChainChanged, ChainID: domain.ChainIDSepolia})

	waitFor(t, "snapshot on new chain", func() bool {
		snap := f.store.Current()
		return snap != nil && snap.ChainID == domain.ChainIDSepolia
	})
	sess, _ := f.store.Session()
	if sess.Generation <= first.Generation || sess.ChainID != domain.ChainIDSepolia {
		t.Errorf("expected new session on sepolia, got %+v", sess)
	}
	if f.store.Current().Network != "Sepolia Testnet" {
		t.Errorf("unexpected network %s", f.store.Current().Network)
	}
	waitFor(t, "flag cleared", func() bool { return !f.store.NetworkChanging() })
}

func TestStore_AutoRefreshStopsOnDisconnect(t *testing.T) {
	f := newFixtureInterval(t, 20*time.Millisecond)
	if _, err := f.store.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := f.store.Current()

	f.explorer.setTransactions("0xbbb")
	waitFor(t, "ticker refresh", func() bool {
		snap := f.store.Current()
		return snap != nil && snap != first && snap.HeadHash() == "0xbbb"
	})

	f.store.Disconnect()
	// Let a refresh that was already running finish.
	time.Sleep(30 * time.Millisecond)
	calls := f.bridge.Calls("eth_accounts")
	time.Sleep(100 * time.Millisecond)
	if got := f.bridge.Calls("eth_accounts"); got != calls {
		t.Errorf("refresh ran after disconnect: %d -> %d calls", calls, got)
	}
	if f.store.Current() != nil {
		t.Error("expected no snapshot after disconnect")
	}
}

func TestStore_AutoRefreshRestartsAfterChainChange(t *testing.T) {
	f := newFixtureInterval(t, 20*time.Millisecond)
	if _, err := f.store.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.bridge.SetChain(domain.ChainIDSepolia)
	f.bridge.Emit(domain.ProviderEvent{Type: domain.EventChainChanged, ChainID: domain.ChainIDSepolia})
	waitFor(t, "chain change handled", func() bool {
		snap := f.store.Current()
		return snap != nil && snap.ChainID == domain.ChainIDSepolia && !f.store.NetworkChanging()
	})

	f.explorer.setTransactions("0xccc")
	waitFor(t, "ticker refresh on new chain", func() bool {
		return f.store.Current().HeadHash() == "0xccc"
	})
}

func TestStore_CheckForNewBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if moved, _ := f.store.CheckForNewBlocks(ctx); moved {
		t.Error("disconnected store must not refresh")
	}
	if _, err := f.store.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	f.bridge.SetBlock(10)
	if moved, err := f.store.CheckForNewBlocks(ctx); err != nil || !moved {
		t.Fatalf("expected refresh on new block, got %v (%v)", moved, err)
	}
	if moved, _ := f.store.CheckForNewBlocks(ctx); moved {
		t.Error("same block must not refresh")
	}
	f.bridge.SetBlock(11)
	if moved, _ := f.store.CheckForNewBlocks(ctx); !moved {
		t.Error("expected refresh on block 11")
	}
}

func TestStore_AddressBalance(t *testing.T) {
	f := newFixture(t)
	other := "0x3333333333333333333333333333333333333333"
	f.bridge.SetBalance(other, big.NewInt(2e18))

	got, err := f.store.AddressBalance(context.Background(), other)
	if err != nil || got != 2 {
		t.Errorf("expected 2, got %v (%v)", got, err)
	}
	if _, err := f.store.AddressBalance(context.Background(), "nope"); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestSnapshotHub_Conflates(t *testing.T) {
	hub := newSnapshotHub()
	sink := make(chan *domain.WalletSnapshot)
	sub := hub.subscribe(sink)
	defer sub.Unsubscribe()

	s1 := &domain.WalletSnapshot{Address: "1"}
	s2 := &domain.WalletSnapshot{Address: "2"}
	s3 := &domain.WalletSnapshot{Address: "3"}
	hub.publish(s1)
	hub.publish(s2)
	hub.publish(s3)

	received := 0
	timeout := time.After(time.Second)
	for {
		select {
		case got := <-sink:
			received++
			if got == s3 {
				if received > 2 {
					t.Errorf("expected at most 2 deliveries, got %d", received)
				}
				return
			}
		case <-timeout:
			t.Fatal("latest snapshot never delivered")
		}
	}
}

func TestSnapshotHub_UnsubscribeRemoves(t *testing.T) {
	hub := newSnapshotHub()
	sub := hub.subscribe(make(chan *domain.WalletSnapshot, 1))
	if hub.count() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.count())
	}
	sub.Unsubscribe()
	if hub.count() != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.count())
	}
}
