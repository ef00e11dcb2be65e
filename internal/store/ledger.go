// Package store declares the transactional surface the ledger runs on.
// Postgres and in-memory stores both implement it.
package store

import (
	"context"
	"time"

	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/pkg/money"
)

// TransferTx is the store surface available inside one atomic transfer.
type TransferTx interface {
	// LockAccounts loads the accounts and holds a row lock on each until
	// the surrounding transaction ends.
	LockAccounts(ctx context.Context, ids ...string) (map[string]*models.Account, error)
	SetBalance(ctx context.Context, id string, balance money.Amount) error
	CreateTransaction(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)

	// ClaimMandate moves an active mandate's next payment date from prev to
	// next and reports whether it did. It returns false when the mandate
	// is no longer active or another writer already moved the date. The
	// mandate row stays locked until the transaction ends.
	ClaimMandate(ctx context.Context, mandateID string, prev *time.Time, next time.Time) (bool, error)
}

// LedgerStore runs fn atomically: either everything fn wrote commits, or
// nothing does.
type LedgerStore interface {
	InTransferTx(ctx context.Context, fn func(tx TransferTx) error) error
}
