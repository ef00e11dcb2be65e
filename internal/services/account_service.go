package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/autopay/internal/admission"
	"github.com/BradenHooton/autopay/internal/models"
	pkgauth "github.com/BradenHooton/autopay/pkg/auth"
	pkglogger "github.com/BradenHooton/autopay/pkg/logger"
	"github.com/BradenHooton/autopay/pkg/money"
)

// TokenIssuer issues access tokens for an authenticated account
type TokenIssuer interface {
	GenerateAccessToken(accountID, email string) (string, error)
}

// SecretHasher hashes passwords and PINs
type SecretHasher interface {
	Hash(secret string) (string, error)
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	AccessToken string                 `json:"access_token"`
	Account     *models.AccountDetails `json:"account"`
}

// RegisterInput carries a new account's details
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	PIN      string
}

// AccountService handles registration, login and credential resets
type AccountService struct {
	accounts       AccountRepository
	verifier       *CredentialVerifier
	hasher         SecretHasher
	tokens         TokenIssuer
	dispatcher     *admission.Dispatcher
	openingBalance money.Amount
	logger         *slog.Logger
	audit          *pkglogger.AuditLogger
}

func NewAccountService(
	accounts AccountRepository,
	verifier *CredentialVerifier,
	hasher SecretHasher,
	tokens TokenIssuer,
	dispatcher *admission.Dispatcher,
	openingBalance money.Amount,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *AccountService {
	return &AccountService{
		accounts:       accounts,
		verifier:       verifier,
		hasher:         hasher,
		tokens:         tokens,
		dispatcher:     dispatcher,
		openingBalance: openingBalance,
		logger:         logger,
		audit:          audit,
	}
}

// Register opens an account with the configured opening balance
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*AuthResponse, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Email == "" || in.Name == "" {
		return nil, fmt.Errorf("%w: name and email are required", models.ErrBadRequest)
	}
	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}
	if err := pkgauth.ValidatePIN(in.PIN); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	return admission.Do(ctx, s.dispatcher, admission.ClassLogin, func(ctx context.Context) (*AuthResponse, error) {
		if _, err := s.accounts.GetByEmail(ctx, in.Email); err == nil {
			return nil, models.ErrConflict
		} else if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}

		passwordHash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
		}
		pinHash, err := s.hasher.Hash(in.PIN)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
		}

		account, err := s.accounts.Create(ctx, &models.Account{
			Name:         in.Name,
			Email:        in.Email,
			PasswordHash: passwordHash,
			PINHash:      pinHash,
			Balance:      s.openingBalance,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}

		s.audit.LogAccountAction("register", account.ID, map[string]string{
			"email": pkglogger.SanitizedEmail(account.Email),
		})
		return s.issue(account)
	})
}

// Login checks the lock, then the password, then records the outcome
func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.ErrInvalidCredential
	}

	return admission.Do(ctx, s.dispatcher, admission.ClassLogin, func(ctx context.Context) (*AuthResponse, error) {
		found, err := s.accounts.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				s.audit.LogAuthAttempt(pkglogger.AuditEvent{
					EventType:     "login",
					Success:       false,
					FailureReason: "unknown_email",
					Metadata:      map[string]string{"email": pkglogger.SanitizedEmail(email)},
				})
			}
			return nil, err
		}

		var account *models.Account
		err = s.verifier.WithAccount(ctx, found.ID, func(a *models.Account) error {
			account = a
			return s.verifier.Verify(ctx, a, CredentialPassword, password)
		})
		if err != nil {
			return nil, err
		}
		return s.issue(account)
	})
}

// ResetPassword sets a new password for an authenticated account once the
// payment PIN is proven.
func (s *AccountService) ResetPassword(ctx context.Context, accountID, pin, newPassword string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	_, err := admission.Do(ctx, s.dispatcher, admission.ClassPasswordReset, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.verifier.WithAccount(ctx, accountID, func(account *models.Account) error {
			if err := s.verifier.CheckLock(ctx, account, CredentialPassword); err != nil {
				return err
			}
			if err := s.verifier.Verify(ctx, account, CredentialPIN, pin); err != nil {
				return err
			}

			hash, err := s.hasher.Hash(newPassword)
			if err != nil {
				return fmt.Errorf("%w: %v", models.ErrInternalServer, err)
			}
			account.FailedLoginAttempts = 0
			if err := s.accounts.UpdatePasswordHash(ctx, account.ID, hash, account.SecurityState()); err != nil {
				return fmt.Errorf("failed to update password: %w", err)
			}
			return nil
		})
	})

	s.audit.LogCredentialChange("password", accountID, err == nil)
	return err
}

// ResetPIN sets a new payment PIN once the password is proven
func (s *AccountService) ResetPIN(ctx context.Context, accountID, password, newPIN string) error {
	if err := pkgauth.ValidatePIN(newPIN); err != nil {
		return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	_, err := admission.Do(ctx, s.dispatcher, admission.ClassPINReset, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.verifier.WithAccount(ctx, accountID, func(account *models.Account) error {
			if err := s.verifier.CheckLock(ctx, account, CredentialPIN); err != nil {
				return err
			}
			if err := s.verifier.Verify(ctx, account, CredentialPassword, password); err != nil {
				return err
			}

			hash, err := s.hasher.Hash(newPIN)
			if err != nil {
				return fmt.Errorf("%w: %v", models.ErrInternalServer, err)
			}
			account.FailedPINAttempts = 0
			if err := s.accounts.UpdatePINHash(ctx, account.ID, hash, account.SecurityState()); err != nil {
				return fmt.Errorf("failed to update pin: %w", err)
			}
			return nil
		})
	})

	s.audit.LogCredentialChange("pin", accountID, err == nil)
	return err
}

// Details returns the public view of an account
func (s *AccountService) Details(ctx context.Context, accountID string) (*models.AccountDetails, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	details := account.Details()
	return &details, nil
}

func (s *AccountService) issue(account *models.Account) (*AuthResponse, error) {
	token, err := s.tokens.GenerateAccessToken(account.ID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
	}
	details := account.Details()
	return &AuthResponse{AccessToken: token, Account: &details}, nil
}
