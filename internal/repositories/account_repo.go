package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/autopay/internal/database"
	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, name, email, password_hash, pin_hash, balance,
	failed_login_attempts, failed_pin_attempts, is_locked, lockout_expires_at,
	created_at, updated_at`

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner covers pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var (
		a       models.Account
		balance int64
	)

	err := scanner.Scan(
		&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.PINHash, &balance,
		&a.FailedLoginAttempts, &a.FailedPINAttempts, &a.IsLocked, &a.LockoutExpiresAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	a.Balance = money.FromMinor(balance)
	return &a, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	query := `
		INSERT INTO accounts (id, name, email, password_hash, pin_hash, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + accountColumns

	created, err := scanAccountRow(r.pool.QueryRow(ctx, query,
		account.ID, account.Name, account.Email, account.PasswordHash, account.PINHash,
		account.Balance.Minor(), account.CreatedAt, account.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

// UpdateSecurityState writes the lockout fields only. Balance is never
// touched here.
func (r *AccountRepository) UpdateSecurityState(ctx context.Context, id string, state models.SecurityState) error {
	query := `
		UPDATE accounts
		SET failed_login_attempts = $2, failed_pin_attempts = $3,
			is_locked = $4, lockout_expires_at = $5, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id,
		state.FailedLoginAttempts, state.FailedPINAttempts, state.IsLocked, state.LockoutExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update security state: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id, hash string, state models.SecurityState) error {
	return r.updateSecret(ctx, "password_hash", id, hash, state)
}

func (r *AccountRepository) UpdatePINHash(ctx context.Context, id, hash string, state models.SecurityState) error {
	return r.updateSecret(ctx, "pin_hash", id, hash, state)
}

func (r *AccountRepository) updateSecret(ctx context.Context, column, id, hash string, state models.SecurityState) error {
	query := fmt.Sprintf(`
		UPDATE accounts
		SET %s = $2, failed_login_attempts = $3, failed_pin_attempts = $4,
			is_locked = $5, lockout_expires_at = $6, updated_at = NOW()
		WHERE id = $1
	`, column)
	tag, err := r.pool.Exec(ctx, query, id, hash,
		state.FailedLoginAttempts, state.FailedPINAttempts, state.IsLocked, state.LockoutExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", column, database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
