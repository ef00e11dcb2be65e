package services

import (
	"context"
	"testing"

	"github.com/BradenHooton/autopay/internal/models"
	pkglogger "github.com/BradenHooton/autopay/pkg/logger"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPaymentFixture(t *testing.T, accounts ...*models.Account) (*PaymentService, *MemoryAccountStore) {
	t.Helper()
	store := NewMemoryAccountStore(accounts...)
	logger := NewTestLogger()
	audit := pkglogger.NewAuditLogger(logger)
	dispatcher := NewTestDispatcher()
	t.Cleanup(dispatcher.Close)

	verifier := NewCredentialVerifier(store, PlainSecrets{}, DefaultLockoutPolicy(), audit, logger)
	ledger := NewLedgerService(store, nil, logger)
	return NewPaymentService(store, store, verifier, ledger, dispatcher, logger, audit), store
}

func TestPaymentService_InitiatePayment_Success(t *testing.T) {
	svc, store := newPaymentFixture(t,
		NewTestAccount("alice", "alice@example.com", money.FromMinor(100000)),
		NewTestAccount("bob", "bob@example.com", money.FromMinor(20000)),
	)

	result, err := svc.InitiatePayment(context.Background(), PaymentInput{
		CallerID: "alice", SenderID: "alice", ReceiverID: "bob",
		Amount: money.FromMinor(30000), PIN: testPIN,
	})
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(70000), result.SenderBalance)
	assert.Equal(t, money.FromMinor(50000), store.Snapshot("bob").Balance)
}

func TestPaymentService_InitiatePayment_Rejections(t *testing.T) {
	tests := []struct {
		name string
		in   PaymentInput
		want error
	}{
		{"paying from someone else's account", PaymentInput{CallerID: "bob", SenderID: "alice", ReceiverID: "bob", Amount: 100, PIN: testPIN}, models.ErrForbidden},
		{"zero amount", PaymentInput{CallerID: "alice", SenderID: "alice", ReceiverID: "bob", Amount: 0, PIN: testPIN}, models.ErrInvalidAmount},
		{"self payment", PaymentInput{CallerID: "alice", SenderID: "alice", ReceiverID: "alice", Amount: 100, PIN: testPIN}, models.ErrSameAccount},
		{"unknown receiver", PaymentInput{CallerID: "alice", SenderID: "alice", ReceiverID: "carol", Amount: 100, PIN: testPIN}, models.ErrNotFound},
		{"wrong pin", PaymentInput{CallerID: "alice", SenderID: "alice", ReceiverID: "bob", Amount: 100, PIN: "00000"}, models.ErrInvalidPIN},
		{"insufficient funds", PaymentInput{CallerID: "alice", SenderID: "alice", ReceiverID: "bob", Amount: 100001, PIN: testPIN}, models.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newPaymentFixture(t,
				NewTestAccount("alice", "alice@example.com", money.FromMinor(100000)),
				NewTestAccount("bob", "bob@example.com", money.FromMinor(0)),
			)

			_, err := svc.InitiatePayment(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, money.FromMinor(100000), store.Snapshot("alice").Balance)
			assert.Empty(t, store.Transactions())
		})
	}
}

func TestPaymentService_InitiatePayment_LockedSenderMovesNothing(t *testing.T) {
	svc, store := newPaymentFixture(t,
		NewTestAccount("alice", "alice@example.com", money.FromMinor(1000)),
		NewTestAccount("bob", "bob@example.com", 0),
	)
	ctx := context.Background()
	bad := PaymentInput{CallerID: "alice", SenderID: "alice", ReceiverID: "bob", Amount: 10, PIN: "00000"}

	for i := 0; i < 6; i++ {
		_, _ = svc.InitiatePayment(ctx, bad)
	}

	good := bad
	good.PIN = testPIN
	_, err := svc.InitiatePayment(ctx, good)
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Equal(t, money.FromMinor(1000), store.Snapshot("alice").Balance)
}

func TestPaymentService_TransactionLogs(t *testing.T) {
	svc, _ := newPaymentFixture(t,
		NewTestAccount("alice", "alice@example.com", money.FromMinor(1000)),
		NewTestAccount("bob", "bob@example.com", 0),
	)
	ctx := context.Background()

	for _, amount := range []int64{100, 200} {
		_, err := svc.InitiatePayment(ctx, PaymentInput{
			CallerID: "alice", SenderID: "alice", ReceiverID: "bob", Amount: money.FromMinor(amount), PIN: testPIN,
		})
		require.NoError(t, err)
	}

	logs, err := svc.TransactionLogs(ctx, "bob", "bob", 0, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, money.FromMinor(200), logs[0].Amount, "newest first")

	_, err = svc.TransactionLogs(ctx, "bob", "alice", 10, 0)
	assert.ErrorIs(t, err, models.ErrForbidden)
}
