package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/autopay/internal/admission"
	"github.com/BradenHooton/autopay/internal/models"
	pkglogger "github.com/BradenHooton/autopay/pkg/logger"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/google/uuid"
)

// CreateMandateInput describes a new standing payment authorization
type CreateMandateInput struct {
	SenderID   string
	ReceiverID string
	Amount     money.Amount
	Frequency  models.Frequency
	StartDate  time.Time
	EndDate    *time.Time
}

// MandateService manages mandate lifecycle on behalf of account holders
type MandateService struct {
	mandates   MandateRepository
	accounts   AccountRepository
	journal    *MandateJournal
	dispatcher *admission.Dispatcher
	logger     *slog.Logger
	audit      *pkglogger.AuditLogger
}

func NewMandateService(
	mandates MandateRepository,
	accounts AccountRepository,
	journal *MandateJournal,
	dispatcher *admission.Dispatcher,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *MandateService {
	return &MandateService{
		mandates:   mandates,
		accounts:   accounts,
		journal:    journal,
		dispatcher: dispatcher,
		logger:     logger,
		audit:      audit,
	}
}

// Create persists an active mandate and journals its creation
func (s *MandateService) Create(ctx context.Context, in CreateMandateInput) (*models.Mandate, error) {
	if !in.Amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	if in.SenderID == in.ReceiverID {
		return nil, models.ErrSameAccount
	}
	if !in.Frequency.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %q", models.ErrBadRequest, in.Frequency)
	}
	if in.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", models.ErrBadRequest)
	}
	if in.EndDate != nil && !in.EndDate.After(in.StartDate) {
		return nil, fmt.Errorf("%w: end date must be after start date", models.ErrBadRequest)
	}

	return admission.Do(ctx, s.dispatcher, admission.ClassMandateUpdate, func(ctx context.Context) (*models.Mandate, error) {
		if _, err := s.accounts.GetByID(ctx, in.ReceiverID); err != nil {
			return nil, err
		}

		mandate, err := s.mandates.Create(ctx, &models.Mandate{
			SenderID:   in.SenderID,
			ReceiverID: in.ReceiverID,
			AmountMax:  in.Amount,
			Frequency:  in.Frequency,
			StartDate:  in.StartDate.UTC(),
			EndDate:    in.EndDate,
			Status:     models.MandateActive,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create mandate: %w", err)
		}

		_, err = s.journal.Append(ctx, &models.MandateEvent{
			MandateID: mandate.ID,
			EventType: models.MandateEventCreated,
			Message: fmt.Sprintf("%s mandate for %s created, first payment due %s",
				mandate.Frequency, mandate.AmountMax, mandate.DueAt().Format(time.RFC3339)),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record mandate creation: %w", err)
		}

		s.audit.LogAccountAction("mandate_created", in.SenderID, map[string]string{
			"mandate_id":  mandate.ID,
			"receiver_id": in.ReceiverID,
			"frequency":   string(in.Frequency),
		})
		return mandate, nil
	})
}

// UpdateStatus moves a mandate out of active. Cancelled and expired are final.
func (s *MandateService) UpdateStatus(ctx context.Context, callerID, mandateID string, status models.MandateStatus, reason string) (*models.Mandate, error) {
	if _, err := uuid.Parse(mandateID); err != nil {
		return nil, fmt.Errorf("%w: invalid mandate id", models.ErrBadRequest)
	}
	switch status {
	case models.MandatePaused, models.MandateCancelled, models.MandateExpired:
	default:
		return nil, fmt.Errorf("%w: status must be paused, cancelled or expired", models.ErrBadRequest)
	}

	return admission.Do(ctx, s.dispatcher, admission.ClassMandateUpdate, func(ctx context.Context) (*models.Mandate, error) {
		mandate, err := s.mandates.GetByID(ctx, mandateID)
		if err != nil {
			return nil, err
		}
		if mandate.SenderID != callerID {
			return nil, models.ErrForbidden
		}
		if mandate.Status.Terminal() {
			return nil, fmt.Errorf("%w: mandate is %s", models.ErrInvalidTransition, mandate.Status)
		}
		if mandate.Status == status {
			return mandate, nil
		}

		if err := s.mandates.UpdateStatus(ctx, mandate.ID, status); err != nil {
			return nil, fmt.Errorf("failed to update mandate status: %w", err)
		}
		previous := mandate.Status
		mandate.Status = status

		message := fmt.Sprintf("mandate %s by account holder", status)
		if reason = strings.TrimSpace(reason); reason != "" {
			message += ": " + reason
		}
		if _, err := s.journal.Append(ctx, &models.MandateEvent{
			MandateID: mandate.ID,
			EventType: models.MandateEventType(status),
			Message:   message,
		}); err != nil {
			return nil, fmt.Errorf("failed to record mandate transition: %w", err)
		}

		s.logger.Info("mandate status changed",
			slog.String("mandate_id", mandate.ID),
			slog.String("from", string(previous)),
			slog.String("to", string(status)))
		return mandate, nil
	})
}

// Events returns the audit trail for a mandate the caller is party to
func (s *MandateService) Events(ctx context.Context, callerID, mandateID string) ([]*models.MandateEvent, error) {
	if _, err := uuid.Parse(mandateID); err != nil {
		return nil, fmt.Errorf("%w: invalid mandate id", models.ErrBadRequest)
	}
	mandate, err := s.mandates.GetByID(ctx, mandateID)
	if err != nil {
		return nil, err
	}
	if mandate.SenderID != callerID && mandate.ReceiverID != callerID {
		return nil, models.ErrForbidden
	}
	return s.mandates.ListEvents(ctx, mandateID)
}

// List returns the mandates the caller pays out of
func (s *MandateService) List(ctx context.Context, callerID string) ([]*models.Mandate, error) {
	return s.mandates.ListBySender(ctx, callerID)
}
