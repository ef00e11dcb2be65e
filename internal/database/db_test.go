package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/BradenHooton/autopay/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapPostgresError(t *testing.T) {
	plain := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, models.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), models.ErrNotFound},
		{"unique", &pgconn.PgError{Code: "23505"}, models.ErrConflict},
		{"foreign key", &pgconn.PgError{Code: "23503"}, models.ErrNotFound},
		{"balance check", &pgconn.PgError{Code: "23514", ConstraintName: "accounts_balance_check"}, models.ErrInsufficientFunds},
		{"other check", &pgconn.PgError{Code: "23514", ConstraintName: "products_price_check"}, models.ErrBadRequest},
		{"bad uuid text", &pgconn.PgError{Code: "22P02"}, models.ErrBadRequest},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, models.ErrServiceUnavailable},
		{"lock timeout", fmt.Errorf("update: %w", &pgconn.PgError{Code: "55P03"}), models.ErrServiceUnavailable},
		{"unmapped code", &pgconn.PgError{Code: "XX000"}, nil},
		{"plain error", plain, plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapPostgresError(tt.err)
			switch {
			case tt.err == nil:
				assert.NoError(t, got)
			case tt.want == nil:
				assert.Equal(t, tt.err, got)
			default:
				assert.ErrorIs(t, got, tt.want)
			}
		})
	}
}
