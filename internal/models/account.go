package models

import (
	"time"

	"github.com/BradenHooton/autopay/pkg/money"
)

// Account is a ledger holder. Balance is mutated only by the ledger; the
// counters and lock fields only by the lockout guard.
type Account struct {
	ID                  string
	Name                string
	Email               string
	PasswordHash        string
	PINHash             string
	Balance             money.Amount
	FailedLoginAttempts int
	FailedPINAttempts   int
	IsLocked            bool
	LockoutExpiresAt    *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SecurityState is the lockout-owned slice of an account.
type SecurityState struct {
	FailedLoginAttempts int
	FailedPINAttempts   int
	IsLocked            bool
	LockoutExpiresAt    *time.Time
}

func (a *Account) SecurityState() SecurityState {
	return SecurityState{
		FailedLoginAttempts: a.FailedLoginAttempts,
		FailedPINAttempts:   a.FailedPINAttempts,
		IsLocked:            a.IsLocked,
		LockoutExpiresAt:    a.LockoutExpiresAt,
	}
}

// AccountDetails is the public view of an account.
type AccountDetails struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	Balance   money.Amount `json:"balance"`
	IsLocked  bool         `json:"is_locked"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (a *Account) Details() AccountDetails {
	return AccountDetails{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Balance:   a.Balance,
		IsLocked:  a.IsLocked,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
