package background

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/internal/services"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

type schedulerFixture struct {
	scheduler *MandateScheduler
	accounts  *services.MemoryAccountStore
	mandates  *services.MemoryMandateStore
	notifier  *services.RecordingNotifier
}

func newSchedulerFixture(senderBalance int64, mandates ...*models.Mandate) *schedulerFixture {
	logger := services.NewTestLogger()
	accounts := services.NewMemoryAccountStore(
		services.NewTestAccount("alice", "alice@example.com", money.FromMinor(senderBalance)),
		services.NewTestAccount("bob", "bob@example.com", 0),
	)
	store := services.NewMemoryMandateStore(mandates...)
	accounts.Mandates = store
	notifier := &services.RecordingNotifier{}
	ledger := services.NewLedgerService(accounts, nil, logger)
	journal := services.NewMandateJournal(store, nil, logger)

	return &schedulerFixture{
		scheduler: NewMandateScheduler(store, ledger, journal, notifier, logger, "", 0),
		accounts:  accounts,
		mandates:  store,
		notifier:  notifier,
	}
}

func dailyMandate(id string, amount int64) *models.Mandate {
	return &models.Mandate{
		ID:         id,
		SenderID:   "alice",
		ReceiverID: "bob",
		AmountMax:  money.FromMinor(amount),
		Frequency:  models.FrequencyDaily,
		StartDate:  day0,
		Status:     models.MandateActive,
	}
}

func TestSweep_DailyCadence(t *testing.T) {
	f := newSchedulerFixture(10000, dailyMandate("m-1", 500))
	ctx := context.Background()

	for _, tick := range []time.Time{day0, day0.Add(12 * time.Hour), day0.Add(25 * time.Hour)} {
		_, err := f.scheduler.Sweep(ctx, tick)
		require.NoError(t, err)
	}

	assert.Len(t, f.accounts.Transactions(), 1)
	assert.Equal(t, money.FromMinor(9500), f.accounts.Snapshot("alice").Balance)
	assert.Equal(t, money.FromMinor(500), f.accounts.Snapshot("bob").Balance)

	m := f.mandates.Snapshot("m-1")
	require.NotNil(t, m.NextPaymentDate)
	assert.Equal(t, day0.Add(48*time.Hour), *m.NextPaymentDate)
	assert.Equal(t, []models.MandateEventType{
		models.MandateEventPaymentSuccess,
		models.MandateEventNextTrigger,
	}, f.mandates.EventTypes("m-1"))
}

func TestSweep_SameTickTwiceChargesOnce(t *testing.T) {
	f := newSchedulerFixture(10000, dailyMandate("m-1", 500))
	tick := day0.Add(25 * time.Hour)

	first, err := f.scheduler.Sweep(context.Background(), tick)
	require.NoError(t, err)
	second, err := f.scheduler.Sweep(context.Background(), tick)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Triggered)
	assert.Equal(t, 0, second.Triggered)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, f.accounts.Transactions(), 1)
}

func TestSweep_InsufficientBalance(t *testing.T) {
	f := newSchedulerFixture(100, dailyMandate("m-1", 500))

	report, err := f.scheduler.Sweep(context.Background(), day0.Add(25*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, SweepReport{Evaluated: 1, Failed: 1}, report)
	assert.Empty(t, f.accounts.Transactions())
	assert.Equal(t, money.FromMinor(100), f.accounts.Snapshot("alice").Balance)
	assert.Equal(t, 1, f.notifier.Count())

	m := f.mandates.Snapshot("m-1")
	assert.Equal(t, models.MandateActive, m.Status, "failure never deactivates")
	assert.Equal(t, day0.Add(48*time.Hour), *m.NextPaymentDate)
	assert.Equal(t, []models.MandateEventType{
		models.MandateEventPaymentFailed,
		models.MandateEventNextTrigger,
	}, f.mandates.EventTypes("m-1"))
}

func TestSweep_CatchUpOneIntervalPerTick(t *testing.T) {
	m := dailyMandate("m-1", 100)
	f := newSchedulerFixture(10000, m)
	late := day0.Add(10 * 24 * time.Hour)

	_, err := f.scheduler.Sweep(context.Background(), late)
	require.NoError(t, err)
	_, err = f.scheduler.Sweep(context.Background(), late)
	require.NoError(t, err)

	assert.Len(t, f.accounts.Transactions(), 2)
	assert.Equal(t, day0.Add(3*24*time.Hour), *f.mandates.Snapshot("m-1").NextPaymentDate)
}

func TestSweep_ExpiresPastEndDate(t *testing.T) {
	m := dailyMandate("m-1", 100)
	end := day0.Add(3 * 24 * time.Hour)
	m.EndDate = &end
	f := newSchedulerFixture(10000, m)

	report, err := f.scheduler.Sweep(context.Background(), end.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Expired)
	assert.Empty(t, f.accounts.Transactions())
	assert.Equal(t, models.MandateExpired, f.mandates.Snapshot("m-1").Status)
	assert.Equal(t, []models.MandateEventType{models.MandateEventExpired}, f.mandates.EventTypes("m-1"))

	// expired mandates are no longer active
	report, err = f.scheduler.Sweep(context.Background(), end.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, report.Evaluated)
}

func TestSweep_SkipsBeforeStartAndMissingParties(t *testing.T) {
	future := dailyMandate("m-future", 100)
	future.StartDate = day0.Add(30 * 24 * time.Hour)
	orphan := dailyMandate("m-orphan", 100)
	orphan.ReceiverID = "gone"
	paused := dailyMandate("m-paused", 100)
	paused.Status = models.MandatePaused

	f := newSchedulerFixture(10000, future, orphan, paused)

	report, err := f.scheduler.Sweep(context.Background(), day0.Add(25*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, SweepReport{Evaluated: 2, Skipped: 2}, report)
	assert.Empty(t, f.accounts.Transactions())
	assert.Empty(t, f.mandates.EventTypes("m-orphan"))
	assert.Nil(t, f.mandates.Snapshot("m-orphan").NextPaymentDate)
}

// pausingMandateStore pauses the listed mandates right after handing out
// the active snapshot, as a request landing mid-sweep would.
type pausingMandateStore struct {
	*services.MemoryMandateStore
	pause []string
}

func (s *pausingMandateStore) ListActive(ctx context.Context) ([]*models.Mandate, error) {
	active, err := s.MemoryMandateStore.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range s.pause {
		if err := s.UpdateStatus(ctx, id, models.MandatePaused); err != nil {
			return nil, err
		}
	}
	return active, nil
}

func TestSweep_PausedAfterListingIsNotCharged(t *testing.T) {
	f := newSchedulerFixture(10000, dailyMandate("m-1", 500), dailyMandate("m-2", 500))
	logger := services.NewTestLogger()
	store := &pausingMandateStore{MemoryMandateStore: f.mandates, pause: []string{"m-1"}}
	scheduler := NewMandateScheduler(store,
		services.NewLedgerService(f.accounts, nil, logger),
		services.NewMandateJournal(store, nil, logger),
		f.notifier, logger, "", 0)

	report, err := scheduler.Sweep(context.Background(), day0.Add(25*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, SweepReport{Evaluated: 2, Triggered: 1, Skipped: 1}, report)
	require.Len(t, f.accounts.Transactions(), 1)
	assert.Equal(t, money.FromMinor(9500), f.accounts.Snapshot("alice").Balance)

	paused := f.mandates.Snapshot("m-1")
	assert.Equal(t, models.MandatePaused, paused.Status)
	assert.Nil(t, paused.NextPaymentDate)
	assert.Empty(t, f.mandates.EventTypes("m-1"))
}

func TestSweep_ConcurrentSchedulersChargeOnce(t *testing.T) {
	f := newSchedulerFixture(10000, dailyMandate("m-1", 500))
	logger := services.NewTestLogger()
	other := NewMandateScheduler(f.mandates,
		services.NewLedgerService(f.accounts, nil, logger),
		services.NewMandateJournal(f.mandates, nil, logger),
		f.notifier, logger, "", 0)
	tick := day0.Add(25 * time.Hour)

	// Both processes hold the same pre-charge snapshot.
	snapshot, err := f.mandates.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	var first, second SweepReport
	f.scheduler.evaluate(context.Background(), snapshot[0], tick, &first)
	other.evaluate(context.Background(), snapshot[0], tick, &second)

	assert.Equal(t, SweepReport{Triggered: 1}, first)
	assert.Equal(t, SweepReport{Skipped: 1}, second)
	assert.Len(t, f.accounts.Transactions(), 1)
	assert.Equal(t, money.FromMinor(9500), f.accounts.Snapshot("alice").Balance)
	assert.Equal(t, day0.Add(48*time.Hour), *f.mandates.Snapshot("m-1").NextPaymentDate)
	assert.Equal(t, []models.MandateEventType{
		models.MandateEventPaymentSuccess,
		models.MandateEventNextTrigger,
	}, f.mandates.EventTypes("m-1"))
}

func TestSweep_ScheduleAdvancesWithTheCharge(t *testing.T) {
	f := newSchedulerFixture(10000, dailyMandate("m-1", 500))
	tick := day0.Add(25 * time.Hour)
	f.accounts.FailTransfers = errors.New("connection reset")

	report, err := f.scheduler.Sweep(context.Background(), tick)
	require.NoError(t, err)

	assert.Equal(t, SweepReport{Evaluated: 1, Failed: 1}, report)
	assert.Empty(t, f.accounts.Transactions())
	assert.Nil(t, f.mandates.Snapshot("m-1").NextPaymentDate, "rolled back with the transfer")

	// The interval stays due and is charged exactly once when the store recovers.
	f.accounts.FailTransfers = nil
	report, err = f.scheduler.Sweep(context.Background(), tick)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggered)

	report, err = f.scheduler.Sweep(context.Background(), tick)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)

	assert.Len(t, f.accounts.Transactions(), 1)
	assert.Equal(t, day0.Add(48*time.Hour), *f.mandates.Snapshot("m-1").NextPaymentDate)
}

func TestSweep_NeverOverlaps(t *testing.T) {
	f := newSchedulerFixture(10000, dailyMandate("m-1", 100))

	f.scheduler.sweepMu.Lock()
	_, err := f.scheduler.Sweep(context.Background(), day0.Add(25*time.Hour))
	f.scheduler.sweepMu.Unlock()

	assert.ErrorIs(t, err, ErrSweepInProgress)
	assert.Empty(t, f.accounts.Transactions())
}

func TestSweep_ListFailure(t *testing.T) {
	f := newSchedulerFixture(10000)
	f.mandates.ListActiveErr = errors.New("connection reset")

	_, err := f.scheduler.Sweep(context.Background(), day0)
	assert.Error(t, err)
}

func TestMandateScheduler_StartStop(t *testing.T) {
	f := newSchedulerFixture(10000)

	done := make(chan error, 1)
	go func() { done <- f.scheduler.Start(context.Background()) }()
	f.scheduler.Stop()
	f.scheduler.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestMandateScheduler_InvalidSpec(t *testing.T) {
	f := newSchedulerFixture(10000)
	f.scheduler.schedule = "every now and then"

	assert.Error(t, f.scheduler.Start(context.Background()))
}
