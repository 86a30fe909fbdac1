// Package control wires the wallet core together and manages its lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/walletsync/internal/contacts"
	"github.com/vietddude/walletsync/internal/contract"
	"github.com/vietddude/walletsync/internal/core/config"
	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/health"
	"github.com/vietddude/walletsync/internal/infra/chain/evm"
	"github.com/vietddude/walletsync/internal/infra/explorer"
	"github.com/vietddude/walletsync/internal/infra/rpc"
	"github.com/vietddude/walletsync/internal/infra/storage"
	"github.com/vietddude/walletsync/internal/infra/storage/postgres"
	"github.com/vietddude/walletsync/internal/network"
	"github.com/vietddude/walletsync/internal/notify"
	"github.com/vietddude/walletsync/internal/prefs"
	"github.com/vietddude/walletsync/internal/transfer"
	"github.com/vietddude/walletsync/internal/wallet"
)

// App holds every wallet component built from one configuration.
type App struct {
	cfg *config.AppConfig
	log *slog.Logger

	Store         storage.KVStore
	Provider      *rpc.HTTPProvider
	Bridge        *evm.EVMBridge
	Explorer      *explorer.Client
	Notifications *notify.Recorder
	Prefs         *prefs.Preferences
	Networks      *network.Registry
	Contracts     *contract.Gateway
	Wallet        *wallet.Store
	Transfers     *transfer.Orchestrator
	Contacts      *contacts.Registry

	db           *postgres.DB
	healthServer *health.Server
	cancel       context.CancelFunc
}

// New builds the application. Nothing is started and the wallet is not connected.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	log := slog.Default()

	// 1. Storage
	store, db, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	// 2. Provider
	if cfg.Provider.URL == "" {
		_ = store.Close()
		return nil, fmt.Errorf("provider.url is required: %w", domain.ErrProviderUnavailable)
	}
	provider := rpc.NewHTTPProvider(cfg.Provider.Name, cfg.Provider.URL, cfg.Provider.Timeout)
	bridge := evm.NewEVMBridge(provider, cfg.Provider.EventPollInterval)

	// 3. Collaborators
	notes := notify.NewRecorder(notify.NewLogNotifier(log), 100)
	preferences := prefs.New(store)

	networks := network.NewRegistry(bridge, network.Options{
		SettleTimeout: cfg.Network.SettleTimeout,
		PollInterval:  cfg.Network.PollInterval,
		Custom:        cfg.Network.Custom,
		Routes:        preferences,
		Notifier:      notes,
		Logger:        log,
	})

	contractAddress, err := preferences.ContractAddress(ctx)
	if err != nil {
		log.Warn("Failed to read saved contract address", "error", err)
	}
	if contractAddress == "" {
		contractAddress = cfg.Contract.Address
	}
	gateway := contract.NewGateway(bridge, contract.Options{
		ContractAddress: contractAddress,
		FallbackToPlain: cfg.Contract.FallbackEnabled(),
		Logger:          log,
	})

	explorerClient := explorer.NewClient(explorer.Config{
		URL:           cfg.Explorer.URL,
		APIKey:        cfg.Explorer.APIKey,
		TokenContract: cfg.Explorer.TokenContract,
		Timeout:       cfg.Explorer.Timeout,
	})

	walletStore := wallet.NewStore(bridge, explorerClient, networks, wallet.Options{
		RefreshInterval: cfg.Wallet.RefreshInterval,
		SettleTimeout:   cfg.Network.SettleTimeout,
		PollInterval:    cfg.Network.PollInterval,
		Contracts:       gateway,
		Notifier:        notes,
		Logger:          log,
	})

	transfers := transfer.NewOrchestrator(walletStore, gateway, transfer.Options{
		RefreshDelay: cfg.Transfer.RefreshDelay,
		Notifier:     notes,
		Logger:       log,
	})

	book := contacts.NewRegistry(store)
	if err := book.Load(ctx); err != nil {
		log.Warn("Contacts could not be loaded, starting empty", "error", err)
	}

	app := &App{
		cfg:           cfg,
		log:           log,
		Store:         store,
		Provider:      provider,
		Bridge:        bridge,
		Explorer:      explorerClient,
		Notifications: notes,
		Prefs:         preferences,
		Networks:      networks,
		Contracts:     gateway,
		Wallet:        walletStore,
		Transfers:     transfers,
		Contacts:      book,
		db:            db,
	}

	if cfg.Server.Port > 0 {
		staleAfter := 3 * cfg.Wallet.RefreshInterval
		monitor := health.NewMonitor(provider, walletStore, staleAfter, 10*time.Second)
		if db != nil {
			monitor.WithStorage(db)
		}
		app.healthServer = health.NewServer(monitor, walletStore, networks, notes, cfg.Server.Port)
	}
	return app, nil
}

// SetContractAddress saves the wallet contract and points the gateway at it.
func (a *App) SetContractAddress(ctx context.Context, address string) error {
	if err := a.Prefs.SetContractAddress(ctx, address); err != nil {
		return err
	}
	return a.Contracts.SetContractAddress(address)
}

// Start runs the status server and background loops, and connects the wallet
// when auto-connect is enabled.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if a.healthServer != nil {
		go func() {
			if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("Health server failed", "error", err)
			}
		}()
	}
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	go a.watchNetworkSwitches(ctx)
	go a.watchNewTransactions(ctx)

	if a.cfg.Wallet.AutoConnectEnabled() {
		if _, err := a.Wallet.Connect(ctx); err != nil {
			a.log.Warn("Wallet not connected at startup", "error", err)
		}
	}
	if a.cfg.Wallet.BlockPollInterval > 0 {
		go a.runBlockWatcher(ctx, a.cfg.Wallet.BlockPollInterval)
	}
	return nil
}

// Stop shuts everything down in reverse order.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping walletsync...")
	if a.cancel != nil {
		a.cancel()
	}

	var errs []error
	if a.healthServer != nil {
		if err := a.healthServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop health server: %w", err))
		}
	}
	a.Transfers.Close()
	a.Wallet.Close()
	a.Networks.Close()
	if err := a.Bridge.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bridge: %w", err))
	}
	if err := a.Provider.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close provider: %w", err))
	}
	// The postgres store owns a.db and closes it.
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) watchNetworkSwitches(ctx context.Context) {
	switches := make(chan domain.NetworkSwitchedEvent, 4)
	sub := a.Networks.SubscribeSwitches(switches)
	defer sub.Unsubscribe()

	for {
		select {
		case ev := <-switches:
			a.log.Info("Network switched", "network", ev.Network.ID, "added", ev.Added, "restore_route", ev.RestoreRoute)
		case <-sub.Err():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) watchNewTransactions(ctx context.Context) {
	txs := make(chan domain.NewTransactionEvent, 8)
	sub := a.Wallet.SubscribeNewTransactions(txs)
	defer sub.Unsubscribe()

	for {
		select {
		case ev := <-txs:
			a.log.Info("New transaction", "hash", ev.Transaction.Hash, "type", ev.Transaction.Direction,
				"amount", ev.Transaction.AmountDisplay, "explorer", a.Networks.ExplorerTxURL(ev.Transaction.Hash))
		case <-sub.Err():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) runBlockWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Wallet.CheckForNewBlocks(ctx); err != nil {
				a.log.Debug("Block check failed", "error", err)
			}
		}
	}
}
