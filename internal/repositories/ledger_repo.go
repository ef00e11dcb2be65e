package repositories

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/BradenHooton/autopay/internal/database"
	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/internal/store"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transactionColumns = `id, transaction_id, sender_id, receiver_id, amount, status, created_at`

// LedgerRepository runs transfers inside a single Postgres transaction with
// the affected account rows locked.
type LedgerRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db, pool: db.Pool}
}

func (r *LedgerRepository) InTransferTx(ctx context.Context, fn func(tx store.TransferTx) error) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		return fn(&pgTransferTx{tx: tx})
	})
}

type pgTransferTx struct {
	tx pgx.Tx
}

// LockAccounts takes FOR UPDATE locks in ascending id order so two
// transfers over the same pair can never deadlock.
func (t *pgTransferTx) LockAccounts(ctx context.Context, ids ...string) (map[string]*models.Account, error) {
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)

	locked := make(map[string]*models.Account, len(ordered))
	for _, id := range ordered {
		if _, done := locked[id]; done {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			return nil, models.ErrNotFound
		}
		query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
		account, err := scanAccountRow(t.tx.QueryRow(ctx, query, id))
		if err != nil {
			return nil, err
		}
		locked[id] = account
	}
	return locked, nil
}

func (t *pgTransferTx) SetBalance(ctx context.Context, id string, balance money.Amount) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1`,
		id, balance.Minor(),
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (t *pgTransferTx) CreateTransaction(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	txn.ID = uuid.New().String()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO transactions (id, transaction_id, sender_id, receiver_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + transactionColumns

	return scanTransactionRow(t.tx.QueryRow(ctx, query,
		txn.ID, txn.TransactionID, txn.SenderID, txn.ReceiverID,
		txn.Amount.Minor(), string(txn.Status), txn.CreatedAt,
	))
}

// ClaimMandate is a compare-and-set on next_payment_date. A concurrent
// claimer blocks on the row lock and then sees the moved date, so only one
// transaction can claim a given interval.
func (t *pgTransferTx) ClaimMandate(ctx context.Context, mandateID string, prev *time.Time, next time.Time) (bool, error) {
	if _, err := uuid.Parse(mandateID); err != nil {
		return false, nil
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE mandates SET next_payment_date = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		AND next_payment_date IS NOT DISTINCT FROM $2::timestamptz`,
		mandateID, prev, next,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim mandate interval: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func scanTransactionRow(scanner rowScanner) (*models.Transaction, error) {
	var (
		txn    models.Transaction
		amount int64
		status string
	)
	err := scanner.Scan(&txn.ID, &txn.TransactionID, &txn.SenderID, &txn.ReceiverID, &amount, &status, &txn.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	txn.Amount = money.FromMinor(amount)
	txn.Status = models.TransactionStatus(status)
	return &txn, nil
}

// ListByAccount returns transactions the account sent or received, newest first.
func (r *LedgerRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.Transaction, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return []*models.Transaction{}, nil
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]*models.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransactionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return txns, nil
}
