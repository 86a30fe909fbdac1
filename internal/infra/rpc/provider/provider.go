// Package provider implements the wallet provider transport.
//
// This package contains:
//   - Provider interface: core abstraction for a wallet RPC endpoint
//   - HTTPProvider: JSON-RPC 2.0 over HTTP implementation
//   - Error: typed JSON-RPC error carrying the provider code (4001, 4902, ...)
//   - ProviderMonitor: latency and throttle tracking
package provider

import (
	"context"
	"time"
)

// Provider defines the core interface for a wallet RPC endpoint.
// It serves as the base abstraction for health checking and lifecycle management.
type Provider interface {
	// GetName returns provider identifier (e.g., "wallet", "anvil")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// Close cleans up resources
	Close() error
}

// RPCProvider extends Provider with methods for making JSON-RPC calls.
type RPCProvider interface {
	Provider

	// Call makes a single RPC request
	Call(ctx context.Context, method string, params []any) (any, error)

	// BatchCall makes multiple RPC calls in one request
	BatchCall(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error)
}

// BatchRequest represents a single request in a batch call.
type BatchRequest struct {
	Method string
	Params []any
}

// BatchResponse represents a single response from a batch call.
type BatchResponse struct {
	Result any
	Error  error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}
