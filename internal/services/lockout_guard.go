package services

import (
	"time"

	"github.com/BradenHooton/autopay/internal/models"
)

// Credential selects which failure counter a LockoutGuard drives.
type Credential int

const (
	CredentialPassword Credential = iota
	CredentialPIN
)

func (c Credential) String() string {
	if c == CredentialPIN {
		return "pin"
	}
	return "password"
}

// LockoutPolicy holds the lockout thresholds
type LockoutPolicy struct {
	MaxFailures  int           // failures tolerated before the next one locks
	LockDuration time.Duration // how long a lock lasts
}

// DefaultLockoutPolicy locks on the 6th consecutive failure for 30 minutes
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxFailures:  5,
		LockDuration: 30 * time.Minute,
	}
}

// LockoutGuard is the per-account failure counting state machine for one
// credential. It only mutates the account it is handed; persisting the
// result is the caller's job.
//
// Open --(failure, counter > MaxFailures)--> Locked
// Locked --(checked at or after expiry)--> Open
type LockoutGuard struct {
	credential Credential
	policy     LockoutPolicy
}

func NewLockoutGuard(credential Credential, policy LockoutPolicy) *LockoutGuard {
	return &LockoutGuard{credential: credential, policy: policy}
}

func (g *LockoutGuard) Credential() Credential {
	return g.credential
}

// CheckAndMaybeClearLock fails with *models.LockedError while a lock is live.
// An expired lock is cleared lazily and cleared reports true so the caller
// knows to persist the reset.
func (g *LockoutGuard) CheckAndMaybeClearLock(account *models.Account, now time.Time) (cleared bool, err error) {
	if !account.IsLocked {
		return false, nil
	}

	if account.LockoutExpiresAt != nil && now.Before(*account.LockoutExpiresAt) {
		return false, &models.LockedError{Remaining: account.LockoutExpiresAt.Sub(now)}
	}

	// The lock is shared. Only this credential's counter restarts.
	account.IsLocked = false
	account.LockoutExpiresAt = nil
	*g.counter(account) = 0
	return true, nil
}

// RecordFailure counts a mismatch. It returns *models.LockedError when this
// failure crossed the threshold, otherwise the credential's mismatch error.
func (g *LockoutGuard) RecordFailure(account *models.Account, now time.Time) error {
	counter := g.counter(account)
	*counter++

	if *counter > g.policy.MaxFailures {
		expiresAt := now.Add(g.policy.LockDuration)
		account.IsLocked = true
		account.LockoutExpiresAt = &expiresAt
		return &models.LockedError{Remaining: g.policy.LockDuration}
	}

	if g.credential == CredentialPIN {
		return models.ErrInvalidPIN
	}
	return models.ErrInvalidCredential
}

// RecordSuccess resets the counter. Lock state is untouched.
func (g *LockoutGuard) RecordSuccess(account *models.Account) {
	*g.counter(account) = 0
}

func (g *LockoutGuard) counter(account *models.Account) *int {
	if g.credential == CredentialPIN {
		return &account.FailedPINAttempts
	}
	return &account.FailedLoginAttempts
}
