package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/autopay/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const balanceCheckConstraint = "accounts_balance_check"

// MapPostgresError translates driver errors into the model sentinels the
// services and handlers switch on. Unknown errors pass through unchanged.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return models.ErrConflict
	case "23503": // foreign_key_violation
		return models.ErrNotFound
	case "23514": // check_violation
		if pgErr.ConstraintName == balanceCheckConstraint {
			return models.ErrInsufficientFunds
		}
		return models.ErrBadRequest
	case "23502", "22P02": // not_null_violation, invalid_text_representation
		return models.ErrBadRequest
	case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
		return fmt.Errorf("%w: %s", models.ErrServiceUnavailable, pgErr.Message)
	}
	return err
}

// WithTransaction runs fn in one read-committed transaction. It commits
// only when fn returns nil and rolls back on error or panic.
func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, db.Pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}
