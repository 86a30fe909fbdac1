package domain

import (
	"time"
)

// WalletSnapshot is the full wallet state published after a refresh.
// Snapshots are never mutated once published.
type WalletSnapshot struct {
	Address          string         `json:"address"`
	BalanceEth       float64        `json:"balance"`
	Network          string         `json:"network"`
	ChainID          uint64         `json:"chain_id"`
	TokenBalance     float64        `json:"token_balance"`
	NFTCount         int            `json:"nft_count"`
	TransactionCount int            `json:"transaction_count"`
	Transactions     []Transaction  `json:"transactions"`
	RefreshedAt      time.Time      `json:"refreshed_at"`
	Partial          []PartialField `json:"partial,omitempty"`
}

// HeadHash returns the hash of the most recent transaction, or "" when there is none.
func (s *WalletSnapshot) HeadHash() string {
	if s == nil || len(s.Transactions) == 0 {
		return ""
	}
	return s.Transactions[0].Hash
}

// PartialField names an auxiliary snapshot field that fell back to its zero value.
type PartialField string

const (
	PartialBalance      PartialField = "balance"
	PartialTransactions PartialField = "transactions"
	PartialTokenBalance PartialField = "token_balance"
	PartialNFTCount     PartialField = "nft_count"
)

// Session identifies one connection to the wallet provider.
// A reconnect creates a new Session with a higher Generation; work started
// under an older generation must not publish.
type Session struct {
	ID          string
	Generation  uint64
	Address     string
	ChainID     uint64
	ConnectedAt time.Time
}
