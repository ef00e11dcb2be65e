package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/internal/services"
	"github.com/robfig/cron/v3"
)

// ErrSweepInProgress is returned when a sweep is requested while another runs
var ErrSweepInProgress = errors.New("mandate sweep already in progress")

// MandateCharger claims one mandate interval and charges it in the same
// transaction.
type MandateCharger interface {
	ChargeMandate(ctx context.Context, m *models.Mandate) (*services.MandateCharge, error)
}

// SweepReport summarizes one pass over the active mandates
type SweepReport struct {
	Evaluated int `json:"evaluated"`
	Triggered int `json:"triggered"`
	Failed    int `json:"failed"`
	Expired   int `json:"expired"`
	Skipped   int `json:"skipped"`
}

// MandateScheduler charges due mandates on a fixed schedule. Sweeps never
// overlap: a tick that finds the previous sweep still running is skipped.
type MandateScheduler struct {
	mandates services.MandateRepository
	ledger   MandateCharger
	journal  *services.MandateJournal
	notifier services.Notifier
	logger   *slog.Logger

	schedule     string
	sweepTimeout time.Duration
	now          func() time.Time

	sweepMu sync.Mutex
	cron    *cron.Cron
	stopCh  chan struct{}
	stopped sync.Once
}

func NewMandateScheduler(
	mandates services.MandateRepository,
	ledger MandateCharger,
	journal *services.MandateJournal,
	notifier services.Notifier,
	logger *slog.Logger,
	schedule string,
	sweepTimeout time.Duration,
) *MandateScheduler {
	if schedule == "" {
		schedule = "@every 1m"
	}
	if sweepTimeout <= 0 {
		sweepTimeout = 50 * time.Second
	}
	if notifier == nil {
		notifier = services.NewLogNotifier(logger)
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	return &MandateScheduler{
		mandates:     mandates,
		ledger:       ledger,
		journal:      journal,
		notifier:     notifier,
		logger:       logger,
		schedule:     schedule,
		sweepTimeout: sweepTimeout,
		now:          time.Now,
		cron:         cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		stopCh:       make(chan struct{}),
	}
}

// Start schedules the sweep and blocks until Stop is called or ctx ends.
// In-flight sweeps finish before Start returns.
func (s *MandateScheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("invalid mandate schedule %q: %w", s.schedule, err)
	}
	s.logger.Info("mandate scheduler started", slog.String("schedule", s.schedule))
	s.cron.Start()

	select {
	case <-s.stopCh:
		s.logger.Info("mandate scheduler stopped")
	case <-ctx.Done():
		s.logger.Info("mandate scheduler context cancelled")
	}

	<-s.cron.Stop().Done()
	return nil
}

// Stop signals the scheduler to stop. Safe to call more than once.
func (s *MandateScheduler) Stop() {
	s.stopped.Do(func() { close(s.stopCh) })
}

func (s *MandateScheduler) tick(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.sweepTimeout)
	defer cancel()

	report, err := s.Sweep(sweepCtx, s.now())
	if err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			s.logger.Warn("skipping mandate tick, previous sweep still running")
			return
		}
		s.logger.Error("mandate sweep failed", slog.Any("error", err))
		return
	}

	if report.Triggered+report.Failed+report.Expired > 0 {
		s.logger.Info("mandate sweep completed",
			slog.Int("evaluated", report.Evaluated),
			slog.Int("triggered", report.Triggered),
			slog.Int("failed", report.Failed),
			slog.Int("expired", report.Expired),
			slog.Int("skipped", report.Skipped))
	}
}

// Sweep evaluates every active mandate once against now.
func (s *MandateScheduler) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport
	if !s.sweepMu.TryLock() {
		return report, ErrSweepInProgress
	}
	defer s.sweepMu.Unlock()

	active, err := s.mandates.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list active mandates: %w", err)
	}

	for _, mandate := range active {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Evaluated++
		s.evaluate(ctx, mandate, now, &report)
	}
	return report, nil
}

func (s *MandateScheduler) evaluate(ctx context.Context, mandate *models.Mandate, now time.Time, report *SweepReport) {
	log := s.logger.With(slog.String("mandate_id", mandate.ID))

	if mandate.EndDate != nil && now.After(*mandate.EndDate) {
		s.expire(ctx, mandate, log)
		report.Expired++
		return
	}

	if !mandate.InWindow(now) || now.Before(mandate.DueAt()) {
		report.Skipped++
		return
	}

	// The listed mandate is only a snapshot. The ledger re-checks status
	// and due date under the mandate row lock, so a writer that paused the
	// mandate or charged this interval first turns this into a skip.
	charge, err := s.ledger.ChargeMandate(ctx, mandate)
	switch {
	case errors.Is(err, services.ErrMandateNotDue):
		report.Skipped++
		log.Debug("mandate interval no longer due, skipping")
		return
	case errors.Is(err, models.ErrNotFound):
		report.Skipped++
		log.Debug("mandate party missing, skipping")
		return
	case err != nil:
		// Nothing committed, so the interval stays due for the next tick.
		report.Failed++
		log.Error("scheduled transfer failed", slog.Any("error", err))
		s.record(ctx, log, &models.MandateEvent{
			MandateID: mandate.ID,
			EventType: models.MandateEventPaymentFailed,
			Message:   "transfer failed: " + err.Error(),
		})
		return
	}

	if charge.Transfer != nil {
		report.Triggered++
		txnID := charge.Transfer.Transaction.TransactionID
		s.record(ctx, log, &models.MandateEvent{
			MandateID:     mandate.ID,
			EventType:     models.MandateEventPaymentSuccess,
			Message:       fmt.Sprintf("%s payment of %s completed", mandate.Frequency, mandate.AmountMax),
			AmountDebited: mandate.AmountMax,
			TransactionID: &txnID,
		})
	} else {
		report.Failed++
		reason := fmt.Sprintf("insufficient balance: %s available, %s required", charge.Sender.Balance, mandate.AmountMax)
		s.fail(ctx, mandate, charge.Sender, reason, log)
	}

	s.record(ctx, log, &models.MandateEvent{
		MandateID: mandate.ID,
		EventType: models.MandateEventNextTrigger,
		Message:   "next payment scheduled for " + charge.Next.UTC().Format(time.RFC3339),
	})
}

func (s *MandateScheduler) fail(ctx context.Context, mandate *models.Mandate, sender *models.Account, reason string, log *slog.Logger) {
	s.record(ctx, log, &models.MandateEvent{
		MandateID: mandate.ID,
		EventType: models.MandateEventPaymentFailed,
		Message:   reason,
	})
	if err := s.notifier.NotifyMandatePaymentFailed(ctx, sender, mandate, reason); err != nil {
		log.Warn("failed to notify sender of failed payment", slog.Any("error", err))
	}
}

func (s *MandateScheduler) expire(ctx context.Context, mandate *models.Mandate, log *slog.Logger) {
	if err := s.mandates.UpdateStatus(ctx, mandate.ID, models.MandateExpired); err != nil {
		log.Error("failed to expire mandate", slog.Any("error", err))
		return
	}
	s.record(ctx, log, &models.MandateEvent{
		MandateID: mandate.ID,
		EventType: models.MandateEventExpired,
		Message:   "mandate end date " + mandate.EndDate.UTC().Format(time.RFC3339) + " has passed",
	})
	log.Info("mandate expired")
}

func (s *MandateScheduler) record(ctx context.Context, log *slog.Logger, e *models.MandateEvent) {
	if _, err := s.journal.Append(ctx, e); err != nil {
		log.Error("failed to record mandate event",
			slog.String("event_type", string(e.EventType)),
			slog.Any("error", err))
	}
}
