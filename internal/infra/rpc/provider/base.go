package provider

import (
	"sync"
	"time"
)

const (
	// healthWindow is the number of recent outcomes the error rate is computed over.
	healthWindow = 50
	// unavailableRate marks the endpoint unavailable once a full window fails this often.
	unavailableRate = 0.5
	// minSamples is the number of outcomes needed before availability can flip.
	minSamples = 5
)

// BaseProvider tracks the health of one wallet endpoint over a sliding window
// of recent calls, so a daemon recovers once the endpoint does.
type BaseProvider struct {
	Name string

	mu       sync.RWMutex
	outcomes [healthWindow]bool // true = failure
	next     int
	filled   int
	failures int

	latencyEWMA   time.Duration
	lastSuccessAt time.Time
	lastFailureAt time.Time

	Monitor *ProviderMonitor
}

func NewBaseProvider(name string) *BaseProvider {
	return &BaseProvider{
		Name:          name,
		lastSuccessAt: time.Now(),
		Monitor:       NewProviderMonitor(),
	}
}

func (p *BaseProvider) GetName() string {
	return p.Name
}

// GetHealth returns a health snapshot including the throttle monitor's stats.
func (p *BaseProvider) GetHealth() HealthStatus {
	stats := p.Monitor.GetStats()

	p.mu.RLock()
	defer p.mu.RUnlock()
	rate := p.errorRateLocked()
	return HealthStatus{
		Available:     p.availableLocked(rate),
		Latency:       p.latencyEWMA,
		ErrorRate:     rate,
		LastSuccessAt: p.lastSuccessAt,
		LastFailureAt: p.lastFailureAt,
		MonitorStats:  &stats,
	}
}

// IsAvailable is false while the endpoint is throttled or failing most calls.
func (p *BaseProvider) IsAvailable() bool {
	status := p.Monitor.CheckProviderStatus()
	if status == StatusBlocked || status == StatusThrottled {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.availableLocked(p.errorRateLocked())
}

func (p *BaseProvider) RecordSuccess(latency time.Duration) {
	p.Monitor.RecordRequest(latency)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushLocked(false)
	p.lastSuccessAt = time.Now()
	if p.latencyEWMA == 0 {
		p.latencyEWMA = latency
	} else {
		p.latencyEWMA = (p.latencyEWMA*4 + latency) / 5
	}
}

// RecordFailure records a transport failure. Provider-level rejections
// (a well-formed JSON-RPC error) are not failures of the endpoint.
func (p *BaseProvider) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushLocked(true)
	p.lastFailureAt = time.Now()
}

func (p *BaseProvider) pushLocked(failed bool) {
	if p.filled == healthWindow {
		if p.outcomes[p.next] {
			p.failures--
		}
	} else {
		p.filled++
	}
	p.outcomes[p.next] = failed
	if failed {
		p.failures++
	}
	p.next = (p.next + 1) % healthWindow
}

func (p *BaseProvider) errorRateLocked() float64 {
	if p.filled == 0 {
		return 0
	}
	return float64(p.failures) / float64(p.filled)
}

func (p *BaseProvider) availableLocked(rate float64) bool {
	return p.filled < minSamples || rate <= unavailableRate
}
