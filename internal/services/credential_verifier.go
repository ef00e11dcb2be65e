package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/pkg/logger"
)

// AccountRepository defines the account persistence the services need.
// None of these writes touch the balance.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdateSecurityState(ctx context.Context, id string, state models.SecurityState) error
	UpdatePasswordHash(ctx context.Context, id, hash string, state models.SecurityState) error
	UpdatePINHash(ctx context.Context, id, hash string, state models.SecurityState) error
}

// SecretVerifier compares a plaintext secret against its stored hash
type SecretVerifier interface {
	Verify(hash, secret string) (bool, error)
}

// CredentialVerifier runs the lockout-guarded verification sequence and
// persists the resulting security state. Work on one account is serialized
// across every operation class so failure counters are never lost.
type CredentialVerifier struct {
	accounts AccountRepository
	secrets  SecretVerifier
	password *LockoutGuard
	pin      *LockoutGuard
	locks    *keyedMutex
	audit    *logger.AuditLogger
	logger   *slog.Logger
	now      func() time.Time
}

func NewCredentialVerifier(
	accounts AccountRepository,
	secrets SecretVerifier,
	policy LockoutPolicy,
	audit *logger.AuditLogger,
	logger *slog.Logger,
) *CredentialVerifier {
	return &CredentialVerifier{
		accounts: accounts,
		secrets:  secrets,
		password: NewLockoutGuard(CredentialPassword, policy),
		pin:      NewLockoutGuard(CredentialPIN, policy),
		locks:    newKeyedMutex(),
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

func (v *CredentialVerifier) guard(c Credential) *LockoutGuard {
	if c == CredentialPIN {
		return v.pin
	}
	return v.password
}

// WithAccount loads the account under its per-account lock and hands it to
// fn. The lock is held until fn returns.
func (v *CredentialVerifier) WithAccount(ctx context.Context, accountID string, fn func(account *models.Account) error) error {
	unlock := v.locks.Lock(accountID)
	defer unlock()

	account, err := v.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	return fn(account)
}

// CheckLock fails while a lock is live and persists a lapsed lock's reset.
func (v *CredentialVerifier) CheckLock(ctx context.Context, account *models.Account, c Credential) error {
	cleared, err := v.guard(c).CheckAndMaybeClearLock(account, v.now())
	if err != nil {
		v.audit.LogAuthAttempt(logger.AuditEvent{
			EventType:     c.String() + "_check",
			AccountID:     account.ID,
			Success:       false,
			FailureReason: "account_locked",
		})
		return err
	}
	if cleared {
		if err := v.accounts.UpdateSecurityState(ctx, account.ID, account.SecurityState()); err != nil {
			return fmt.Errorf("failed to persist lock expiry: %w", err)
		}
		v.logger.Info("lockout expired", slog.String("account_id", account.ID))
	}
	return nil
}

// Verify checks the lock, compares the secret and records the outcome, in
// that order. A locked account is rejected before any comparison happens.
func (v *CredentialVerifier) Verify(ctx context.Context, account *models.Account, c Credential, secret string) error {
	if err := v.CheckLock(ctx, account, c); err != nil {
		return err
	}

	hash := account.PasswordHash
	if c == CredentialPIN {
		hash = account.PINHash
	}

	match, err := v.secrets.Verify(hash, secret)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInternalServer, err)
	}

	guard := v.guard(c)
	var verdict error
	if match {
		guard.RecordSuccess(account)
	} else {
		verdict = guard.RecordFailure(account, v.now())
	}

	if err := v.accounts.UpdateSecurityState(ctx, account.ID, account.SecurityState()); err != nil {
		return fmt.Errorf("failed to persist security state: %w", err)
	}

	event := logger.AuditEvent{EventType: c.String() + "_verify", AccountID: account.ID, Success: match}
	if verdict != nil {
		event.FailureReason = verdict.Error()
	}
	v.audit.LogAuthAttempt(event)

	if account.IsLocked && verdict != nil {
		v.logger.Warn("account locked",
			slog.String("account_id", account.ID),
			slog.String("credential", c.String()),
		)
	}
	return verdict
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
