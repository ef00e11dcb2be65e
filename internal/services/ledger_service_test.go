package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/autopay/internal/events"
	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedgerFixture(balances ...int64) (*LedgerService, *MemoryAccountStore, *RecordingPublisher) {
	store := NewMemoryAccountStore()
	for i, b := range balances {
		id := string(rune('a' + i))
		store.Put(NewTestAccount(id, id+"@example.com", money.FromMinor(b)))
	}
	publisher := &RecordingPublisher{}
	return NewLedgerService(store, publisher, NewTestLogger()), store, publisher
}

func TestLedger_Transfer_MovesBalance(t *testing.T) {
	ledger, store, publisher := newLedgerFixture(100000, 20000)

	result, err := ledger.Transfer(context.Background(), "a", "b", money.FromMinor(30000))
	require.NoError(t, err)

	assert.Equal(t, money.FromMinor(70000), result.SenderBalance)
	assert.Equal(t, money.FromMinor(50000), result.ReceiverBalance)
	assert.Equal(t, models.TransactionCompleted, result.Transaction.Status)
	assert.Equal(t, money.FromMinor(70000), store.Snapshot("a").Balance)
	assert.Equal(t, money.FromMinor(50000), store.Snapshot("b").Balance)
	assert.Len(t, store.Transactions(), 1)
	assert.Equal(t, []string{events.TypeTransferCompleted}, publisher.Types())

	// 800.00 from a 700.00 balance changes nothing
	_, err = ledger.Transfer(context.Background(), "a", "b", money.FromMinor(80000))
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	assert.Equal(t, money.FromMinor(70000), store.Snapshot("a").Balance)
	assert.Equal(t, money.FromMinor(50000), store.Snapshot("b").Balance)
	assert.Len(t, store.Transactions(), 1)
}

func TestLedger_Transfer_ExactBalance(t *testing.T) {
	ledger, store, _ := newLedgerFixture(500, 0)

	_, err := ledger.Transfer(context.Background(), "a", "b", money.FromMinor(500))
	require.NoError(t, err)
	assert.Equal(t, money.Amount(0), store.Snapshot("a").Balance)
}

func TestLedger_Transfer_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		sender   string
		receiver string
		amount   int64
		want     error
	}{
		{"zero amount", "a", "b", 0, models.ErrInvalidAmount},
		{"negative amount", "a", "b", -5, models.ErrInvalidAmount},
		{"same account", "a", "a", 10, models.ErrSameAccount},
		{"unknown sender", "zz", "b", 10, models.ErrNotFound},
		{"unknown receiver", "a", "zz", 10, models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, store, publisher := newLedgerFixture(1000, 1000)

			_, err := ledger.Transfer(context.Background(), tt.sender, tt.receiver, money.FromMinor(tt.amount))
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, store.Transactions())
			assert.Empty(t, publisher.Types())
		})
	}
}

func TestLedger_Transfer_StoreFailureLeavesNoTrace(t *testing.T) {
	ledger, store, publisher := newLedgerFixture(1000, 1000)
	store.FailTransfers = errors.New("connection reset")

	_, err := ledger.Transfer(context.Background(), "a", "b", money.FromMinor(10))
	assert.Error(t, err)
	assert.Equal(t, money.FromMinor(1000), store.Snapshot("a").Balance)
	assert.Empty(t, store.Transactions())
	assert.Empty(t, publisher.Types())
}

func TestLedger_Transfer_PublishFailureDoesNotFail(t *testing.T) {
	ledger, store, publisher := newLedgerFixture(1000, 0)
	publisher.Err = errors.New("redis down")

	_, err := ledger.Transfer(context.Background(), "a", "b", money.FromMinor(10))
	require.NoError(t, err)
	assert.Len(t, store.Transactions(), 1)
}

func TestLedger_Transfer_ConcurrentNeverOverdraws(t *testing.T) {
	ledger, store, _ := newLedgerFixture(1000, 1000, 0)
	const workers = 100

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := "a", "c"
			if i%2 == 1 {
				from, to = "b", "a"
			}
			if _, err := ledger.Transfer(context.Background(), from, to, money.FromMinor(30)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, models.ErrInsufficientFunds)
			}
		}(i)
	}
	wg.Wait()

	a, b, c := store.Snapshot("a"), store.Snapshot("b"), store.Snapshot("c")
	assert.Equal(t, money.FromMinor(2000), a.Balance+b.Balance+c.Balance)
	assert.GreaterOrEqual(t, int64(a.Balance), int64(0))
	assert.GreaterOrEqual(t, int64(b.Balance), int64(0))
	assert.Len(t, store.Transactions(), succeeded)

	seen := make(map[string]bool)
	for _, txn := range store.Transactions() {
		assert.False(t, seen[txn.TransactionID], "duplicate transaction id")
		seen[txn.TransactionID] = true
	}
}

func newChargeFixture(senderBalance int64, m *models.Mandate) (*LedgerService, *MemoryAccountStore, *MemoryMandateStore) {
	ledger, accounts, _ := newLedgerFixture(senderBalance, 0)
	mandates := NewMemoryMandateStore(m)
	accounts.Mandates = mandates
	return ledger, accounts, mandates
}

func dailyChargeMandate() *models.Mandate {
	return &models.Mandate{
		ID:         "m-1",
		SenderID:   "a",
		ReceiverID: "b",
		AmountMax:  money.FromMinor(250),
		Frequency:  models.FrequencyDaily,
		StartDate:  time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC),
		Status:     models.MandateActive,
	}
}

func TestLedger_ChargeMandate_ClaimsAndCharges(t *testing.T) {
	m := dailyChargeMandate()
	ledger, accounts, mandates := newChargeFixture(1000, m)

	charge, err := ledger.ChargeMandate(context.Background(), m)
	require.NoError(t, err)
	require.NotNil(t, charge.Transfer)

	want := m.StartDate.Add(48 * time.Hour)
	assert.Equal(t, want, charge.Next)
	assert.Equal(t, money.FromMinor(750), charge.Transfer.SenderBalance)
	assert.Equal(t, want, *mandates.Snapshot("m-1").NextPaymentDate)
	assert.Len(t, accounts.Transactions(), 1)
}

func TestLedger_ChargeMandate_StaleSnapshotChargesOnce(t *testing.T) {
	m := dailyChargeMandate()
	ledger, accounts, _ := newChargeFixture(10000, m)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snapshot := *m
			_, errs[i] = ledger.ChargeMandate(context.Background(), &snapshot)
		}(i)
	}
	wg.Wait()

	claimed := 0
	for _, err := range errs {
		if err == nil {
			claimed++
			continue
		}
		assert.ErrorIs(t, err, ErrMandateNotDue)
	}
	assert.Equal(t, 1, claimed)
	assert.Len(t, accounts.Transactions(), 1)
	assert.Equal(t, money.FromMinor(9750), accounts.Snapshot("a").Balance)
}

func TestLedger_ChargeMandate_NotActive(t *testing.T) {
	m := dailyChargeMandate()
	ledger, accounts, mandates := newChargeFixture(1000, m)
	require.NoError(t, mandates.UpdateStatus(context.Background(), "m-1", models.MandatePaused))

	_, err := ledger.ChargeMandate(context.Background(), m)
	assert.ErrorIs(t, err, ErrMandateNotDue)
	assert.Empty(t, accounts.Transactions())
	assert.Nil(t, mandates.Snapshot("m-1").NextPaymentDate)
}

func TestLedger_ChargeMandate_InsufficientConsumesInterval(t *testing.T) {
	m := dailyChargeMandate()
	ledger, accounts, mandates := newChargeFixture(100, m)

	charge, err := ledger.ChargeMandate(context.Background(), m)
	require.NoError(t, err)

	assert.Nil(t, charge.Transfer)
	require.NotNil(t, charge.Sender)
	assert.Equal(t, money.FromMinor(100), charge.Sender.Balance)
	assert.Empty(t, accounts.Transactions())
	assert.Equal(t, charge.Next, *mandates.Snapshot("m-1").NextPaymentDate)
}

func TestLedger_ChargeMandate_MissingPartyRollsBackClaim(t *testing.T) {
	m := dailyChargeMandate()
	m.ReceiverID = "zz"
	ledger, accounts, mandates := newChargeFixture(1000, m)

	_, err := ledger.ChargeMandate(context.Background(), m)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Empty(t, accounts.Transactions())
	assert.Nil(t, mandates.Snapshot("m-1").NextPaymentDate)
}
