package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCallsTotal tracks provider calls per method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsync_rpc_calls_total",
			Help: "Total number of wallet provider RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks provider errors per method
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsync_rpc_errors_total",
			Help: "Total number of wallet provider RPC errors",
		},
		[]string{"provider", "method"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletsync_rpc_latency_seconds",
			Help:    "Wallet provider RPC latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// ExplorerRequestsTotal tracks block explorer requests by action and outcome
	ExplorerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsync_explorer_requests_total",
			Help: "Total number of block explorer requests",
		},
		[]string{"action", "outcome"},
	)

	// WalletRefreshesTotal tracks snapshot refreshes by outcome (published, partial, failed, stale, skipped)
	WalletRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsync_wallet_refreshes_total",
			Help: "Total number of wallet snapshot refreshes",
		},
		[]string{"outcome"},
	)

	// WalletBalance tracks the last published native balance
	WalletBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletsync_wallet_balance_eth",
			Help: "Native balance of the connected wallet",
		},
	)

	// WalletTransactions tracks the last published transaction count
	WalletTransactions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletsync_wallet_transactions",
			Help: "Number of transactions in the current snapshot",
		},
	)

	// TransfersTotal tracks submitted transfers by path (plain, contract, downgraded, token) and outcome
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsync_transfers_total",
			Help: "Total number of transfer submissions",
		},
		[]string{"path", "outcome"},
	)

	// NetworkSwitchesTotal tracks network switch attempts
	NetworkSwitchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsync_network_switches_total",
			Help: "Total number of network switch attempts",
		},
		[]string{"network", "outcome"},
	)

	// StorageConnectionPoolUsage tracks SQL pool usage percentage
	StorageConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletsync_storage_connection_pool_usage_percent",
			Help: "Percentage of open SQL connections in use",
		},
	)
)
