package domain

import "time"

// Transaction is one history entry as reported by the block explorer.
type Transaction struct {
	Hash          string    `json:"hash"`
	Direction     Direction `json:"type"`
	AmountDisplay string    `json:"amount"`
	Status        TxStatus  `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusCompleted TxStatus = "completed"
	TxStatusFailed    TxStatus = "failed"
)

// ConfirmationsForCompleted is the confirmation count above which a transaction is completed.
const ConfirmationsForCompleted = 12
