package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/infra/rpc"
	"github.com/vietddude/walletsync/internal/infra/rpc/provider"
)

// WalletState is the view of the wallet store the monitor reads.
type WalletState interface {
	IsConnected() bool
	Current() *domain.WalletSnapshot
	NetworkChanging() bool
}

// Pinger reports whether a storage backend is reachable.
type Pinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from the provider and the wallet store.
type Monitor struct {
	provider rpc.Provider
	wallet   WalletState
	storage  Pinger
	// staleAfter marks a snapshot older than this as degraded.
	staleAfter time.Duration
	cacheTTL   time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a monitor. Reports are cached for cacheTTL.
func NewMonitor(p rpc.Provider, wallet WalletState, staleAfter, cacheTTL time.Duration) *Monitor {
	return &Monitor{
		provider:   p,
		wallet:     wallet,
		staleAfter: staleAfter,
		cacheTTL:   cacheTTL,
	}
}

// WithStorage adds a storage component to every report.
func (m *Monitor) WithStorage(p Pinger) *Monitor {
	m.storage = p
	return m
}

// CheckHealth builds a report, reusing the previous one within the cache TTL.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < m.cacheTTL {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
		CheckedAt:    time.Now(),
	}
	checks := []ComponentHealth{m.checkProvider(), m.checkWallet()}
	if m.storage != nil {
		checks = append(checks, m.checkStorage(ctx))
	}
	for _, c := range checks {
		report.Components[c.Name] = c
		report.SystemStatus = worst(report.SystemStatus, c.Status)
	}

	m.lastCheck = report.CheckedAt
	m.lastReport = &report
	return report
}

func (m *Monitor) checkProvider() ComponentHealth {
	c := ComponentHealth{Name: "provider", Status: StatusHealthy}
	if m.provider == nil {
		c.Status = StatusCritical
		c.Detail = "no wallet provider configured"
		return c
	}

	h := m.provider.GetHealth()
	switch {
	case !h.Available:
		c.Status = StatusCritical
		c.Detail = fmt.Sprintf("unavailable, error rate %.2f", h.ErrorRate)
	case h.MonitorStats != nil && h.MonitorStats.Status != provider.StatusHealthy:
		c.Status = StatusDegraded
		c.Detail = h.MonitorStats.Status.String()
	case h.ErrorRate > 0.1:
		c.Status = StatusDegraded
		c.Detail = fmt.Sprintf("error rate %.2f", h.ErrorRate)
	}
	return c
}

func (m *Monitor) checkWallet() ComponentHealth {
	c := ComponentHealth{Name: "wallet", Status: StatusHealthy}
	if m.wallet == nil || !m.wallet.IsConnected() {
		c.Detail = "disconnected"
		return c
	}
	if m.wallet.NetworkChanging() {
		c.Status = StatusDegraded
		c.Detail = "network change in progress"
		return c
	}

	snap := m.wallet.Current()
	switch {
	case snap == nil:
		c.Status = StatusDegraded
		c.Detail = "no snapshot yet"
	case len(snap.Partial) > 0:
		c.Status = StatusDegraded
		c.Detail = fmt.Sprintf("partial data: %v", snap.Partial)
	case m.staleAfter > 0 && time.Since(snap.RefreshedAt) > m.staleAfter:
		c.Status = StatusDegraded
		c.Detail = fmt.Sprintf("last refresh %s ago", time.Since(snap.RefreshedAt).Round(time.Second))
	default:
		c.Detail = "connected " + domain.ShortAddress(snap.Address)
	}
	return c
}

func (m *Monitor) checkStorage(ctx context.Context) ComponentHealth {
	c := ComponentHealth{Name: "storage", Status: StatusHealthy}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.storage.Health(ctx); err != nil {
		c.Status = StatusDegraded
		c.Detail = err.Error()
	}
	return c
}
