package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/autopay/internal/events"
	"github.com/BradenHooton/autopay/internal/models"
)

// MandateRepository defines mandate and mandate event persistence
type MandateRepository interface {
	Create(ctx context.Context, m *models.Mandate) (*models.Mandate, error)
	GetByID(ctx context.Context, id string) (*models.Mandate, error)
	ListActive(ctx context.Context) ([]*models.Mandate, error)
	ListBySender(ctx context.Context, senderID string) ([]*models.Mandate, error)
	UpdateStatus(ctx context.Context, id string, status models.MandateStatus) error
	AppendEvent(ctx context.Context, e *models.MandateEvent) (*models.MandateEvent, error)
	ListEvents(ctx context.Context, mandateID string) ([]*models.MandateEvent, error)
}

// MandateJournal appends mandate events and mirrors each one to the
// mandate event stream.
type MandateJournal struct {
	repo      MandateRepository
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewMandateJournal(repo MandateRepository, publisher events.Publisher, logger *slog.Logger) *MandateJournal {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &MandateJournal{repo: repo, publisher: publisher, logger: logger, now: time.Now}
}

// Append stores the event. Only a failed store write is an error; the
// stream mirror is best effort.
func (j *MandateJournal) Append(ctx context.Context, e *models.MandateEvent) (*models.MandateEvent, error) {
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = j.now()
	}

	stored, err := j.repo.AppendEvent(ctx, e)
	if err != nil {
		return nil, err
	}

	if err := j.publisher.Publish(context.WithoutCancel(ctx), events.StreamMandates, events.TypeMandatePrefix+string(stored.EventType), stored); err != nil {
		j.logger.Warn("failed to publish mandate event",
			slog.String("mandate_id", stored.MandateID),
			slog.String("event_type", string(stored.EventType)),
			slog.Any("error", err))
	}
	return stored, nil
}
