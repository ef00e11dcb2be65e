package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/BradenHooton/autopay/internal/events"
	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/internal/store"
	"github.com/BradenHooton/autopay/pkg/money"
)

// ErrMandateNotDue means the mandate's current interval was already
// claimed, or the mandate left the active state, before it could be charged.
var ErrMandateNotDue = errors.New("mandate interval already claimed or mandate not active")

// TransferResult is the outcome of a committed transfer
type TransferResult struct {
	SenderBalance   money.Amount        `json:"sender_balance"`
	ReceiverBalance money.Amount        `json:"receiver_balance"`
	Transaction     *models.Transaction `json:"transaction"`
}

// MandateCharge is the outcome of one claimed mandate interval. Transfer is
// nil when the sender could not cover the amount; the interval is still
// consumed in that case.
type MandateCharge struct {
	Transfer *TransferResult
	Sender   *models.Account
	Next     time.Time
}

// LedgerService is the only writer of account balances.
type LedgerService struct {
	store     store.LedgerStore
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewLedgerService(ledgerStore store.LedgerStore, publisher events.Publisher, logger *slog.Logger) *LedgerService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &LedgerService{
		store:     ledgerStore,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Transfer moves amount from sender to receiver and records one completed
// Transaction. Both balance writes and the record commit together or not
// at all; the funds check happens under the row locks.
func (s *LedgerService) Transfer(ctx context.Context, senderID, receiverID string, amount money.Amount) (*TransferResult, error) {
	if !amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	if senderID == receiverID {
		return nil, models.ErrSameAccount
	}

	var result *TransferResult
	err := s.store.InTransferTx(ctx, func(tx store.TransferTx) error {
		sender, receiver, err := lockPair(ctx, tx, senderID, receiverID)
		if err != nil {
			return err
		}
		if sender.Balance < amount {
			return models.ErrInsufficientFunds
		}
		result, err = s.move(ctx, tx, sender, receiver, amount)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, result)
	return result, nil
}

// ChargeMandate claims the interval due at m.DueAt() and charges it in the
// same transaction. The claim advances the mandate to the next interval
// only if the mandate is still active and nobody claimed the interval
// first; otherwise ErrMandateNotDue is returned and nothing moves. A
// missing party rolls the claim back. An uncovered amount consumes the
// interval without moving money.
func (s *LedgerService) ChargeMandate(ctx context.Context, m *models.Mandate) (*MandateCharge, error) {
	if !m.AmountMax.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	if m.SenderID == m.ReceiverID {
		return nil, models.ErrSameAccount
	}

	charge := &MandateCharge{Next: m.DueAt().Add(m.Frequency.Interval())}
	err := s.store.InTransferTx(ctx, func(tx store.TransferTx) error {
		claimed, err := tx.ClaimMandate(ctx, m.ID, m.NextPaymentDate, charge.Next)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrMandateNotDue
		}

		sender, receiver, err := lockPair(ctx, tx, m.SenderID, m.ReceiverID)
		if err != nil {
			return err
		}
		charge.Sender = sender
		if sender.Balance < m.AmountMax {
			return nil
		}
		charge.Transfer, err = s.move(ctx, tx, sender, receiver, m.AmountMax)
		return err
	})
	if err != nil {
		return nil, err
	}

	if charge.Transfer != nil {
		s.committed(ctx, charge.Transfer)
	}
	return charge, nil
}

func lockPair(ctx context.Context, tx store.TransferTx, senderID, receiverID string) (*models.Account, *models.Account, error) {
	accounts, err := tx.LockAccounts(ctx, senderID, receiverID)
	if err != nil {
		return nil, nil, err
	}
	sender, receiver := accounts[senderID], accounts[receiverID]
	if sender == nil || receiver == nil {
		return nil, nil, models.ErrNotFound
	}
	return sender, receiver, nil
}

// move writes both balances and the transaction record. Callers hold the
// row locks and have checked the sender's funds.
func (s *LedgerService) move(ctx context.Context, tx store.TransferTx, sender, receiver *models.Account, amount money.Amount) (*TransferResult, error) {
	if receiver.Balance > money.Amount(math.MaxInt64)-amount {
		return nil, models.ErrInvalidAmount
	}

	senderBalance := sender.Balance - amount
	receiverBalance := receiver.Balance + amount

	if err := tx.SetBalance(ctx, sender.ID, senderBalance); err != nil {
		return nil, err
	}
	if err := tx.SetBalance(ctx, receiver.ID, receiverBalance); err != nil {
		return nil, err
	}

	txn, err := tx.CreateTransaction(ctx, &models.Transaction{
		TransactionID: models.NewTransactionID(),
		SenderID:      sender.ID,
		ReceiverID:    receiver.ID,
		Amount:        amount,
		Status:        models.TransactionCompleted,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return nil, err
	}

	return &TransferResult{
		SenderBalance:   senderBalance,
		ReceiverBalance: receiverBalance,
		Transaction:     txn,
	}, nil
}

func (s *LedgerService) committed(ctx context.Context, result *TransferResult) {
	txn := result.Transaction
	s.logger.Info("transfer committed",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("sender_id", txn.SenderID),
		slog.String("receiver_id", txn.ReceiverID),
		slog.String("amount", txn.Amount.String()),
	)

	// Best effort: the transfer is already committed.
	if err := s.publisher.Publish(context.WithoutCancel(ctx), events.StreamTransactions, events.TypeTransferCompleted, txn); err != nil {
		s.logger.Warn("failed to publish transfer event",
			slog.String("transaction_id", txn.TransactionID),
			slog.Any("error", err),
		)
	}
}
