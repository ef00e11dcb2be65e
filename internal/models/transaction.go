package models

import (
	"time"

	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionSuccess   TransactionStatus = "success"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is an immutable record of one transfer.
type Transaction struct {
	ID            string            `json:"id"`
	TransactionID string            `json:"transaction_id"`
	SenderID      string            `json:"sender_id"`
	ReceiverID    string            `json:"receiver_id"`
	Amount        money.Amount      `json:"amount"`
	Status        TransactionStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
}

// NewTransactionID returns a fresh globally unique transaction reference.
func NewTransactionID() string {
	return "txn-" + uuid.NewString()
}
