// Package wallet keeps the current wallet snapshot in sync with the provider.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	logger "log/slog"

	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/infra/chain"
	"github.com/vietddude/walletsync/internal/metrics"
	"github.com/vietddude/walletsync/internal/notify"
)

const (
	DefaultRefreshInterval = 15 * time.Second
	DefaultSettleTimeout   = 10 * time.Second
	DefaultPollInterval    = 250 * time.Millisecond

	// historyEndBlock is the explorer's "latest" upper bound.
	historyEndBlock = 99999999
)

// Explorer supplies history and auxiliary balances for an address.
type Explorer interface {
	Transactions(ctx context.Context, address string, endBlock uint64) ([]domain.Transaction, error)
	TokenBalance(ctx context.Context, address string) (float64, error)
	NFTCount(ctx context.Context, address string) (int, error)
}

// NetworkResolver maps the provider's chain to a known network.
type NetworkResolver interface {
	ResolveCurrent(ctx context.Context) (domain.NetworkInfo, error)
}

// Resetter drops cached contract state on disconnect.
type Resetter interface {
	Reset()
}

// Options configures a Store.
type Options struct {
	RefreshInterval time.Duration
	SettleTimeout   time.Duration
	PollInterval    time.Duration
	Contracts       Resetter
	Notifier        notify.Notifier
	Logger          *logger.Logger
}

// Store owns the current WalletSnapshot. Exactly one snapshot exists per
// connected session; nil is published while disconnected.
type Store struct {
	bridge    chain.Bridge
	explorer  Explorer
	networks  NetworkResolver
	contracts Resetter
	notify    notify.Notifier
	log       *logger.Logger

	refreshInterval time.Duration
	settleTimeout   time.Duration
	pollInterval    time.Duration

	mu         sync.Mutex
	session    *domain.Session
	snapshot   *domain.WalletSnapshot
	lastBlock  uint64
	stopAuto   context.CancelFunc
	stopEvents context.CancelFunc

	generation      atomic.Uint64
	refreshSeq      atomic.Uint64
	networkChanging atomic.Bool

	hub     *snapshotHub
	txFeed  event.Feed
	scope   event.SubscriptionScope
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewStore creates a disconnected store.
func NewStore(bridge chain.Bridge, explorer Explorer, networks NetworkResolver, opts Options) *Store {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = DefaultSettleTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(opts.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		bridge:          bridge,
		explorer:        explorer,
		networks:        networks,
		contracts:       opts.Contracts,
		notify:          opts.Notifier,
		log:             opts.Logger.With("component", "wallet"),
		refreshInterval: opts.RefreshInterval,
		settleTimeout:   opts.SettleTimeout,
		pollInterval:    opts.PollInterval,
		hub:             newSnapshotHub(),
		baseCtx:         ctx,
		cancel:          cancel,
	}
}

// Connect asks the provider for account access and starts syncing.
func (s *Store) Connect(ctx context.Context) (string, error) {
	if s.bridge == nil {
		s.notify.Error("No wallet provider available")
		return "", domain.ErrProviderUnavailable
	}

	accounts, err := s.bridge.RequestAccounts(ctx)
	if err != nil {
		s.reportConnectError(err)
		return "", fmt.Errorf("connect: %w", err)
	}
	if len(accounts) == 0 {
		s.notify.Error("Wallet connection was rejected")
		return "", fmt.Errorf("connect: no accounts: %w", domain.ErrUserRejected)
	}
	chainID, err := s.bridge.ChainID(ctx)
	if err != nil {
		s.reportConnectError(err)
		return "", fmt.Errorf("connect: %w", err)
	}

	s.stopLoops()
	sess := s.newSession(accounts[0], chainID)
	s.log.Info("wallet connected", "address", sess.Address, "chain_id", chainID, "session", sess.ID)

	s.startEventLoop()
	if err := s.refresh(ctx, false, true); err != nil {
		s.log.Warn("initial refresh failed", "error", err)
	}
	s.startAutoRefresh()
	s.notify.Success("Wallet connected successfully")
	return sess.Address, nil
}

func (s *Store) reportConnectError(err error) {
	switch {
	case errors.Is(err, domain.ErrUserRejected):
		s.notify.Error("Wallet connection was rejected")
	case errors.Is(err, domain.ErrProviderUnavailable):
		s.notify.Error("No wallet provider available")
	default:
		s.notify.Error(fmt.Sprintf("Could not connect wallet: %v", err))
	}
}

// Disconnect stops syncing, clears contract caches and publishes nil.
func (s *Store) Disconnect() {
	s.stopLoops()

	s.mu.Lock()
	wasConnected := s.session != nil
	s.session = nil
	s.snapshot = nil
	s.lastBlock = 0
	s.generation.Add(1)
	s.hub.publish(nil)
	s.mu.Unlock()

	if s.contracts != nil {
		s.contracts.Reset()
	}
	metrics.WalletBalance.Set(0)
	metrics.WalletTransactions.Set(0)

	if wasConnected {
		s.log.Info("wallet disconnected")
		s.notify.Info("Wallet disconnected")
	}
}

// Close disconnects, waits for background work and drops every subscriber.
func (s *Store) Close() {
	s.Disconnect()
	s.cancel()
	s.wg.Wait()
	s.scope.Close()
}

func (s *Store) newSession(address string, chainID uint64) domain.Session {
	sess := domain.Session{
		ID:          uuid.NewString(),
		Generation:  s.generation.Add(1),
		Address:     address,
		ChainID:     chainID,
		ConnectedAt: time.Now(),
	}
	s.mu.Lock()
	s.session = &sess
	s.mu.Unlock()
	return sess
}

// Session returns the active session.
func (s *Store) Session() (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return domain.Session{}, false
	}
	return *s.session, true
}

func (s *Store) IsConnected() bool {
	_, ok := s.Session()
	return ok
}

// Current returns the last published snapshot, nil when disconnected.
func (s *Store) Current() *domain.WalletSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// NetworkChanging reports whether a chain change is being processed.
func (s *Store) NetworkChanging() bool {
	return s.networkChanging.Load()
}

// Subscribe delivers the current snapshot immediately and then every newer one.
// A sink that falls behind receives only the latest snapshot.
func (s *Store) Subscribe(sink chan<- *domain.WalletSnapshot) event.Subscription {
	return s.scope.Track(s.hub.subscribe(sink))
}

// SubscribeNewTransactions delivers one event per detected new head transaction.
func (s *Store) SubscribeNewTransactions(sink chan<- domain.NewTransactionEvent) event.Subscription {
	return s.scope.Track(s.txFeed.Subscribe(sink))
}

// CurrentAddress returns the provider's selected account.
func (s *Store) CurrentAddress(ctx context.Context) (string, error) {
	if !s.IsConnected() {
		return "", domain.ErrNotConnected
	}
	address, err := s.fetchAddress(ctx)
	if err != nil {
		return "", err
	}
	if address == "" {
		return "", domain.ErrNotConnected
	}
	return address, nil
}

// AddressBalance returns the native balance of any address in ether.
func (s *Store) AddressBalance(ctx context.Context, address string) (float64, error) {
	if !domain.IsValidAddress(address) {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	wei, err := s.bridge.Balance(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", address, err)
	}
	return domain.WeiToEther(wei), nil
}

// CheckForNewBlocks refreshes silently when the chain head moved past the
// last seen block. It reports whether a refresh was triggered.
func (s *Store) CheckForNewBlocks(ctx context.Context) (bool, error) {
	if !s.IsConnected() {
		return false, nil
	}
	head, err := s.bridge.BlockNumber(ctx)
	if err != nil {
		return false, fmt.Errorf("block number: %w", err)
	}

	s.mu.Lock()
	moved := head > s.lastBlock
	if moved {
		s.lastBlock = head
	}
	s.mu.Unlock()

	if !moved {
		return false, nil
	}
	s.log.Debug("new block", "number", head)
	return true, s.Refresh(ctx, true)
}

// Refresh rebuilds the snapshot from the provider and the explorer. It is a
// no-op while a network change is in flight.
func (s *Store) Refresh(ctx context.Context, silent bool) error {
	return s.refresh(ctx, silent, false)
}

func (s *Store) refresh(ctx context.Context, silent, force bool) error {
	if !force && s.networkChanging.Load() {
		metrics.WalletRefreshesTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	sess, ok := s.Session()
	if !ok {
		metrics.WalletRefreshesTotal.WithLabelValues("skipped").Inc()
		return domain.ErrNotConnected
	}
	seq := s.refreshSeq.Add(1)

	address, err := s.fetchAddress(ctx)
	if err != nil {
		return s.refreshFailed(silent, fmt.Errorf("refresh address: %w", err))
	}
	if address == "" {
		s.log.Info("provider reports no accounts")
		s.Disconnect()
		return domain.ErrNotConnected
	}

	network, err := s.networks.ResolveCurrent(ctx)
	if err != nil {
		s.log.Warn("resolve network failed, retrying", "error", err)
		network, err = s.networks.ResolveCurrent(ctx)
	}
	if err != nil {
		return s.refreshFailed(silent, fmt.Errorf("refresh network: %w", err))
	}

	snap := &domain.WalletSnapshot{
		Address:      address,
		Network:      network.Name,
		ChainID:      network.ChainID,
		Transactions: []domain.Transaction{},
	}
	s.fetchAuxiliary(ctx, snap)
	snap.TransactionCount = len(snap.Transactions)
	snap.RefreshedAt = time.Now()

	s.mu.Lock()
	if s.session == nil || s.session.Generation != sess.Generation || seq != s.refreshSeq.Load() {
		s.mu.Unlock()
		metrics.WalletRefreshesTotal.WithLabelValues("stale").Inc()
		s.log.Debug("discarding stale snapshot", "generation", sess.Generation, "seq", seq)
		return nil
	}
	prev := s.snapshot
	s.snapshot = snap
	s.session.ChainID = network.ChainID
	// Publishing under mu keeps hub order equal to generation order.
	s.hub.publish(snap)
	s.mu.Unlock()

	metrics.WalletBalance.Set(snap.BalanceEth)
	metrics.WalletTransactions.Set(float64(snap.TransactionCount))
	if len(snap.Partial) > 0 {
		metrics.WalletRefreshesTotal.WithLabelValues("partial").Inc()
		s.log.Warn("snapshot published with defaults", "fields", snap.Partial, "error", domain.ErrPartialData)
	} else {
		metrics.WalletRefreshesTotal.WithLabelValues("published").Inc()
	}

	s.detectNewTransaction(prev, snap, silent)
	return nil
}

func (s *Store) refreshFailed(silent bool, err error) error {
	metrics.WalletRefreshesTotal.WithLabelValues("failed").Inc()
	if silent {
		s.log.Warn("background refresh failed", "error", err)
	} else {
		s.log.Error("refresh failed", "error", err)
		s.notify.Error("Could not load wallet data")
	}
	return err
}

// fetchAddress reads the selected account, asking for access once more when
// the read fails. An empty address means the provider has no accounts.
func (s *Store) fetchAddress(ctx context.Context) (string, error) {
	accounts, err := s.bridge.Accounts(ctx)
	if err != nil {
		s.log.Warn("read accounts failed, reconnecting", "error", err)
		accounts, err = s.bridge.RequestAccounts(ctx)
	}
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", nil
	}
	return accounts[0], nil
}

// fetchAuxiliary fills balance, history, token balance and NFT count in
// parallel. Each field falls back to its zero value on its own.
func (s *Store) fetchAuxiliary(ctx context.Context, snap *domain.WalletSnapshot) {
	var (
		mu      sync.Mutex
		partial []domain.PartialField
	)
	degrade := func(field domain.PartialField, err error) {
		s.log.Warn("partial wallet data", "field", field, "error", err)
		mu.Lock()
		partial = append(partial, field)
		mu.Unlock()
	}

	var g errgroup.Group
	g.Go(func() error {
		wei, err := s.bridge.Balance(ctx, snap.Address)
		if err != nil {
			degrade(domain.PartialBalance, err)
			return nil
		}
		snap.BalanceEth = domain.WeiToEther(wei)
		return nil
	})
	if s.explorer != nil {
		g.Go(func() error {
			txs, err := s.explorer.Transactions(ctx, snap.Address, historyEndBlock)
			if err != nil {
				degrade(domain.PartialTransactions, err)
				return nil
			}
			if txs != nil {
				snap.Transactions = txs
			}
			return nil
		})
		g.Go(func() error {
			balance, err := s.explorer.TokenBalance(ctx, snap.Address)
			if err != nil {
				degrade(domain.PartialTokenBalance, err)
				return nil
			}
			snap.TokenBalance = balance
			return nil
		})
		g.Go(func() error {
			count, err := s.explorer.NFTCount(ctx, snap.Address)
			if err != nil {
				degrade(domain.PartialNFTCount, err)
				return nil
			}
			snap.NFTCount = count
			return nil
		})
	}
	_ = g.Wait()
	snap.Partial = partial
}

// detectNewTransaction fires once when the head transaction changed since
// the previous snapshot of the same address.
func (s *Store) detectNewTransaction(prev, next *domain.WalletSnapshot, silent bool) {
	if prev == nil || len(next.Transactions) == 0 || !domain.SameAddress(prev.Address, next.Address) {
		return
	}
	if len(prev.Transactions) > 0 && prev.HeadHash() == next.HeadHash() {
		return
	}

	head := next.Transactions[0]
	s.log.Info("new transaction", "hash", head.Hash, "type", head.Direction)
	if !silent {
		s.notify.Info(fmt.Sprintf("New transaction detected: %s", head.Hash))
	}
	s.txFeed.Send(domain.NewTransactionEvent{
		Address:     next.Address,
		Transaction: head,
		Silent:      silent,
	})
}

func (s *Store) startAutoRefresh() {
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	if s.stopAuto != nil {
		s.stopAuto()
	}
	s.stopAuto = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Refresh(ctx, true); err != nil && !errors.Is(err, domain.ErrNotConnected) {
					s.log.Debug("auto refresh failed", "error", err)
				}
			}
		}
	}()
}

func (s *Store) stopAutoRefresh() {
	s.mu.Lock()
	if s.stopAuto != nil {
		s.stopAuto()
		s.stopAuto = nil
	}
	s.mu.Unlock()
}

// stopLoops cancels the background loops without waiting for them, so it is
// safe to call from inside the loops.
func (s *Store) stopLoops() {
	s.stopAutoRefresh()
	s.mu.Lock()
	if s.stopEvents != nil {
		s.stopEvents()
		s.stopEvents = nil
	}
	s.mu.Unlock()
}
