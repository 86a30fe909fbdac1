// Package network keeps the table of known networks and drives chain switches.
package network

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	logger "log/slog"

	"github.com/ethereum/go-ethereum/event"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/infra/chain"
	"github.com/vietddude/walletsync/internal/metrics"
	"github.com/vietddude/walletsync/internal/notify"
)

const (
	// DefaultSettleTimeout bounds the wait for the provider to confirm a switch.
	DefaultSettleTimeout = 10 * time.Second
	// DefaultPollInterval is the eth_chainId poll period while waiting.
	DefaultPollInterval = 250 * time.Millisecond
	// DefaultRoute is restored when no route was saved.
	DefaultRoute = "/wallet/dashboard"
)

// RouteSource supplies the route to restore after a switch.
type RouteSource interface {
	LastRoute(ctx context.Context) string
}

// Options configures a Registry.
type Options struct {
	SettleTimeout time.Duration
	PollInterval  time.Duration
	Custom        []domain.NetworkInfo
	Routes        RouteSource
	Notifier      notify.Notifier
	Logger        *logger.Logger
}

// Registry resolves the provider's chain to a known network and switches networks.
type Registry struct {
	bridge chain.Bridge
	routes RouteSource
	notify notify.Notifier
	log    *logger.Logger

	settleTimeout time.Duration
	pollInterval  time.Duration

	mu       sync.RWMutex
	networks []domain.NetworkInfo
	unknown  map[uint64]domain.NetworkInfo
	current  domain.NetworkInfo

	// switchMu serializes switch requests.
	switchMu sync.Mutex

	currentFeed event.Feed
	switchFeed  event.Feed
	scope       event.SubscriptionScope
}

// NewRegistry creates a registry seeded with domain.DefaultNetworks plus opts.Custom.
func NewRegistry(bridge chain.Bridge, opts Options) *Registry {
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = DefaultSettleTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	r := &Registry{
		bridge:        bridge,
		routes:        opts.Routes,
		notify:        opts.Notifier,
		log:           opts.Logger.With("component", "network"),
		settleTimeout: opts.SettleTimeout,
		pollInterval:  opts.PollInterval,
		networks:      append([]domain.NetworkInfo(nil), domain.DefaultNetworks...),
		unknown:       make(map[uint64]domain.NetworkInfo),
	}
	for _, n := range opts.Custom {
		r.RegisterCustom(n)
	}
	r.current = r.networks[0]
	return r
}

// List returns every registered network.
func (r *Registry) List() []domain.NetworkInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.NetworkInfo(nil), r.networks...)
}

// ListMainnets returns the registered production networks.
func (r *Registry) ListMainnets() []domain.NetworkInfo {
	return r.filter(func(n domain.NetworkInfo) bool { return !n.IsTestnet })
}

// ListTestnets returns the registered test networks.
func (r *Registry) ListTestnets() []domain.NetworkInfo {
	return r.filter(func(n domain.NetworkInfo) bool { return n.IsTestnet })
}

func (r *Registry) filter(keep func(domain.NetworkInfo) bool) []domain.NetworkInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.NetworkInfo, 0, len(r.networks))
	for _, n := range r.networks {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// RegisterCustom replaces the entry with the same chain id, or appends.
func (r *Registry) RegisterCustom(n domain.NetworkInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.networks {
		if existing.ChainID == n.ChainID {
			r.networks[i] = n
			return
		}
	}
	r.networks = append(r.networks, n)
}

// Lookup finds a registered network by id.
func (r *Registry) Lookup(id string) (domain.NetworkInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.networks {
		if n.ID == id {
			return n, true
		}
	}
	return domain.NetworkInfo{}, false
}

// ForChainID returns the first registered match for chainID, or a placeholder
// that is kept for the life of the registry.
func (r *Registry) ForChainID(chainID uint64) domain.NetworkInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.networks {
		if n.ChainID == chainID {
			return n
		}
	}
	if n, ok := r.unknown[chainID]; ok {
		return n
	}
	n := domain.UnknownNetwork(chainID)
	r.unknown[chainID] = n
	return n
}

// Current returns the last resolved network.
func (r *Registry) Current() domain.NetworkInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// CurrencySymbol returns the native currency symbol of the current network.
func (r *Registry) CurrencySymbol() string {
	return r.Current().CurrencySymbol
}

// ExplorerTxURL links a transaction on the current network's explorer.
func (r *Registry) ExplorerTxURL(hash string) string {
	return explorerURL(r.Current(), "tx", hash)
}

// ExplorerAddressURL links an address on the current network's explorer.
func (r *Registry) ExplorerAddressURL(address string) string {
	return explorerURL(r.Current(), "address", address)
}

func explorerURL(n domain.NetworkInfo, kind, id string) string {
	if n.ExplorerURL == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerURL, "/") + "/" + kind + "/" + id
}

// ResolveCurrent asks the provider for its chain id and publishes the matching network.
func (r *Registry) ResolveCurrent(ctx context.Context) (domain.NetworkInfo, error) {
	chainID, err := r.bridge.ChainID(ctx)
	if err != nil {
		return domain.NetworkInfo{}, fmt.Errorf("resolve network: %w", err)
	}
	n := r.ForChainID(chainID)
	r.setCurrent(n)
	return n, nil
}

func (r *Registry) setCurrent(n domain.NetworkInfo) {
	r.mu.Lock()
	changed := r.current != n
	r.current = n
	r.mu.Unlock()

	if changed {
		r.log.Info("current network", "network", n.ID, "chain_id", n.ChainID)
	}
	r.currentFeed.Send(n)
}

// Subscribe delivers every published current network.
func (r *Registry) Subscribe(ch chan<- domain.NetworkInfo) event.Subscription {
	return r.scope.Track(r.currentFeed.Subscribe(ch))
}

// SubscribeSwitches delivers confirmed switches along with the route to restore.
func (r *Registry) SubscribeSwitches(ch chan<- domain.NetworkSwitchedEvent) event.Subscription {
	return r.scope.Track(r.switchFeed.Subscribe(ch))
}

// Close unsubscribes every subscriber.
func (r *Registry) Close() {
	r.scope.Close()
}

// Switch moves the provider to the network with targetID. On any failure the
// current network is left unchanged and false is returned with the cause.
func (r *Registry) Switch(ctx context.Context, targetID string) (bool, error) {
	target, ok := r.Lookup(targetID)
	if !ok {
		metrics.NetworkSwitchesTotal.WithLabelValues(targetID, "unknown").Inc()
		r.notify.Error(fmt.Sprintf("Network %q not found", targetID))
		return false, fmt.Errorf("%w: %s", domain.ErrUnknownNetwork, targetID)
	}

	r.switchMu.Lock()
	defer r.switchMu.Unlock()

	// Listen before asking so the provider's own event cannot be missed.
	events := make(chan domain.ProviderEvent, 8)
	sub := r.bridge.SubscribeEvents(events)
	defer sub.Unsubscribe()

	added := false
	err := r.bridge.SwitchChain(ctx, target.ChainID)
	if errors.Is(err, domain.ErrNetworkSwitchUnsupported) {
		r.log.Info("chain unknown to provider, adding it", "network", target.ID)
		err = r.bridge.AddChain(ctx, chain.AddChainParamsFor(target))
		added = err == nil
	}
	if err != nil {
		metrics.NetworkSwitchesTotal.WithLabelValues(target.ID, "failed").Inc()
		r.notify.Error(fmt.Sprintf("Could not switch network: %v", err))
		return false, fmt.Errorf("switch to %s: %w", target.ID, err)
	}

	if err := r.awaitChain(ctx, target.ChainID, events); err != nil {
		metrics.NetworkSwitchesTotal.WithLabelValues(target.ID, "unconfirmed").Inc()
		r.notify.Error(fmt.Sprintf("Network switch to %s was not confirmed", target.Name))
		return false, fmt.Errorf("switch to %s: %w", target.ID, err)
	}

	r.setCurrent(target)
	metrics.NetworkSwitchesTotal.WithLabelValues(target.ID, "ok").Inc()
	if added {
		r.notify.Success(fmt.Sprintf("Network %s added and selected", target.Name))
	} else {
		r.notify.Success(fmt.Sprintf("Switched to %s", target.Name))
	}

	r.switchFeed.Send(domain.NetworkSwitchedEvent{
		Network:      target,
		Added:        added,
		RestoreRoute: r.restoreRoute(ctx),
	})
	return true, nil
}

// awaitChain waits for a chainChanged event for chainID, polling eth_chainId
// in parallel, for at most the settle timeout.
func (r *Registry) awaitChain(ctx context.Context, chainID uint64, events <-chan domain.ProviderEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.settleTimeout)
	defer cancel()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		if id, err := r.bridge.ChainID(ctx); err == nil && id == chainID {
			return nil
		}

		select {
		case ev := <-events:
			if ev.Type == domain.EventChainChanged && ev.ChainID == chainID {
				return nil
			}
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("provider did not report chain %d within %v: %w", chainID, r.settleTimeout, ctx.Err())
		}
	}
}

func (r *Registry) restoreRoute(ctx context.Context) string {
	if r.routes == nil {
		return DefaultRoute
	}
	if route := r.routes.LastRoute(ctx); route != "" {
		return route
	}
	return DefaultRoute
}
