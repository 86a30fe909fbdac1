// Package rpc provides the wallet provider client.
//
// The wallet provider is a JSON-RPC 2.0 endpoint that owns the account keys
// (EIP-1193 methods such as eth_requestAccounts, eth_sendTransaction and
// wallet_switchEthereumChain). This package offers:
//   - HTTP transport with health and throttle tracking
//   - Typed JSON-RPC errors so callers can match provider codes (4001, 4902)
//   - Retry with exponential backoff for idempotent reads
//
// # Quick Start
//
//	import "github.com/vietddude/walletsync/internal/infra/rpc"
//
//	p := rpc.NewHTTPProvider("wallet", url, 30*time.Second)
//	result, err := rpc.CallWithRetry(ctx, p, "eth_chainId", nil, rpc.DefaultRetryConfig)
//
// # Package Structure
//
//   - provider/ - Provider implementations (HTTPProvider, errors, monitoring)
//   - routing/  - Error classification and retry logic
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"time"

	"github.com/vietddude/walletsync/internal/infra/rpc/provider"
	"github.com/vietddude/walletsync/internal/infra/rpc/routing"
)

// Provider is the core interface for RPC endpoints.
type Provider = provider.Provider

// RPCProvider is the interface for providers that support JSON-RPC calls.
type RPCProvider = provider.RPCProvider

// HTTPProvider implements RPCProvider over HTTP.
type HTTPProvider = provider.HTTPProvider

// HealthStatus represents the health state of a provider.
type HealthStatus = provider.HealthStatus

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats = provider.MonitorStats

// BatchRequest represents a single request in a batch call.
type BatchRequest = provider.BatchRequest

// BatchResponse represents a single response from a batch call.
type BatchResponse = provider.BatchResponse

// Error is a JSON-RPC error returned by the provider.
type Error = provider.Error

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// Provider error codes
const (
	CodeUserRejected      = provider.CodeUserRejected
	CodeUnrecognizedChain = provider.CodeUnrecognizedChain
)

// DefaultRetryConfig provides retry defaults for reads.
var DefaultRetryConfig = routing.DefaultRetryConfig

// CallWithRetry executes an idempotent RPC call with exponential backoff.
var CallWithRetry = routing.CallWithRetry

// IsUserRejected reports whether the account holder denied the request.
var IsUserRejected = provider.IsUserRejected

// IsUnrecognizedChain reports whether the provider does not know the chain.
var IsUnrecognizedChain = provider.IsUnrecognizedChain

// ErrorCode extracts the JSON-RPC code from an error.
var ErrorCode = provider.ErrorCode

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return provider.NewHTTPProvider(name, endpoint, timeout)
}
