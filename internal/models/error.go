package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Credential and lockout errors
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrInvalidPIN        = errors.New("invalid pin")
	ErrAccountLocked     = errors.New("account is temporarily locked")

	// Ledger errors
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSameAccount       = errors.New("sender and receiver must differ")
	ErrInvalidAmount     = errors.New("amount must be positive")

	// Mandate errors
	ErrInvalidTransition = errors.New("invalid mandate status transition")

	// Returned in place of the wrapped result while a circuit is open
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)

// LockedError reports a lockout together with the time left before it lapses.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s: try again in %d minute(s)", ErrAccountLocked.Error(), e.RemainingMinutes())
}

// RemainingMinutes is the remaining lockout in whole minutes, rounded up.
func (e *LockedError) RemainingMinutes() int {
	if e.Remaining <= 0 {
		return 0
	}
	return int(math.Ceil(e.Remaining.Minutes()))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// IsDomainError reports whether err is an expected business outcome rather
// than an infrastructure failure.
func IsDomainError(err error) bool {
	for _, domain := range []error{
		ErrNotFound, ErrConflict, ErrUnauthorized, ErrForbidden, ErrBadRequest,
		ErrInvalidCredential, ErrInvalidPIN, ErrAccountLocked,
		ErrInsufficientFunds, ErrSameAccount, ErrInvalidAmount,
		ErrInvalidTransition,
	} {
		if errors.Is(err, domain) {
			return true
		}
	}
	return false
}
