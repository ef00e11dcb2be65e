package services

import (
	"context"
	"log/slog"

	"github.com/BradenHooton/autopay/internal/admission"
	"github.com/BradenHooton/autopay/internal/models"
	pkglogger "github.com/BradenHooton/autopay/pkg/logger"
	"github.com/BradenHooton/autopay/pkg/money"
)

// TransactionRepository lists recorded transfers
type TransactionRepository interface {
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.Transaction, error)
}

// Transferer moves balance between accounts atomically
type Transferer interface {
	Transfer(ctx context.Context, senderID, receiverID string, amount money.Amount) (*TransferResult, error)
}

// PaymentInput is one interactive payment request
type PaymentInput struct {
	CallerID   string
	SenderID   string
	ReceiverID string
	Amount     money.Amount
	PIN        string
}

// PaymentService handles PIN-authorized payments and transaction history
type PaymentService struct {
	accounts     AccountRepository
	transactions TransactionRepository
	verifier     *CredentialVerifier
	ledger       Transferer
	dispatcher   *admission.Dispatcher
	logger       *slog.Logger
	audit        *pkglogger.AuditLogger
}

func NewPaymentService(
	accounts AccountRepository,
	transactions TransactionRepository,
	verifier *CredentialVerifier,
	ledger Transferer,
	dispatcher *admission.Dispatcher,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *PaymentService {
	return &PaymentService{
		accounts:     accounts,
		transactions: transactions,
		verifier:     verifier,
		ledger:       ledger,
		dispatcher:   dispatcher,
		logger:       logger,
		audit:        audit,
	}
}

// InitiatePayment verifies the sender's PIN and transfers the amount
func (s *PaymentService) InitiatePayment(ctx context.Context, in PaymentInput) (*TransferResult, error) {
	if in.CallerID != in.SenderID {
		return nil, models.ErrForbidden
	}
	if !in.Amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	if in.SenderID == in.ReceiverID {
		return nil, models.ErrSameAccount
	}

	result, err := admission.Do(ctx, s.dispatcher, admission.ClassPayment, func(ctx context.Context) (*TransferResult, error) {
		if _, err := s.accounts.GetByID(ctx, in.ReceiverID); err != nil {
			return nil, err
		}

		err := s.verifier.WithAccount(ctx, in.SenderID, func(sender *models.Account) error {
			return s.verifier.Verify(ctx, sender, CredentialPIN, in.PIN)
		})
		if err != nil {
			return nil, err
		}

		return s.ledger.Transfer(ctx, in.SenderID, in.ReceiverID, in.Amount)
	})

	metadata := map[string]string{
		"receiver_id": in.ReceiverID,
		"amount":      in.Amount.String(),
		"success":     "true",
	}
	if err != nil {
		metadata["success"] = "false"
		metadata["failure_reason"] = err.Error()
	}
	s.audit.LogAccountAction("payment", in.SenderID, metadata)

	return result, err
}

// TransactionLogs lists the caller's own transactions, newest first
func (s *PaymentService) TransactionLogs(ctx context.Context, callerID, accountID string, limit, offset int) ([]*models.Transaction, error) {
	if callerID != accountID {
		return nil, models.ErrForbidden
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.transactions.ListByAccount(ctx, accountID, limit, offset)
}
