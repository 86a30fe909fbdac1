package domain

import "time"

// ProviderEventType names the wallet provider events the core listens to.
type ProviderEventType string

const (
	EventAccountsChanged ProviderEventType = "accountsChanged"
	EventChainChanged    ProviderEventType = "chainChanged"
)

// ProviderEvent is emitted when the provider reports an account or chain change.
type ProviderEvent struct {
	Type     ProviderEventType
	Accounts []string
	ChainID  uint64
	At       time.Time
}

// NewTransactionEvent is emitted when a refresh finds a new head transaction.
type NewTransactionEvent struct {
	Address     string
	Transaction Transaction
	Silent      bool
}

// NetworkSwitchedEvent is emitted after a confirmed network switch.
type NetworkSwitchedEvent struct {
	Network      NetworkInfo
	Added        bool
	RestoreRoute string
}
