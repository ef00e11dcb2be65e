package models

import (
	"time"

	"github.com/BradenHooton/autopay/pkg/money"
)

type Frequency string

const (
	FrequencyEveryTwoMinutes Frequency = "2min"
	FrequencyDaily           Frequency = "daily"
	FrequencyWeekly          Frequency = "weekly"
	FrequencyMonthly         Frequency = "monthly"
	FrequencyYearly          Frequency = "yearly"
	FrequencyOnDemand        Frequency = "asNeeded"
)

var frequencyIntervals = map[Frequency]time.Duration{
	FrequencyEveryTwoMinutes: 2 * time.Minute,
	FrequencyDaily:           24 * time.Hour,
	FrequencyWeekly:          7 * 24 * time.Hour,
	FrequencyMonthly:         30 * 24 * time.Hour,
	FrequencyYearly:          365 * 24 * time.Hour,
}

// Interval returns the charge interval. Unknown and on-demand frequencies
// fall back to monthly.
func (f Frequency) Interval() time.Duration {
	if d, ok := frequencyIntervals[f]; ok {
		return d
	}
	return frequencyIntervals[FrequencyMonthly]
}

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyEveryTwoMinutes, FrequencyDaily, FrequencyWeekly,
		FrequencyMonthly, FrequencyYearly, FrequencyOnDemand:
		return true
	}
	return false
}

type MandateStatus string

const (
	MandateActive    MandateStatus = "active"
	MandatePaused    MandateStatus = "paused"
	MandateCancelled MandateStatus = "cancelled"
	MandateExpired   MandateStatus = "expired"
)

// Terminal statuses never return to active.
func (s MandateStatus) Terminal() bool {
	return s == MandateCancelled || s == MandateExpired
}

// Mandate is a standing authorization for fixed recurring transfers.
type Mandate struct {
	ID              string        `json:"id"`
	SenderID        string        `json:"sender_id"`
	ReceiverID      string        `json:"receiver_id"`
	AmountMax       money.Amount  `json:"amount_max"`
	Frequency       Frequency     `json:"frequency"`
	StartDate       time.Time     `json:"start_date"`
	EndDate         *time.Time    `json:"end_date,omitempty"`
	NextPaymentDate *time.Time    `json:"next_payment_date,omitempty"`
	Status          MandateStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// DueAt is when the next charge falls due. A mandate that has never been
// charged is due one interval after its start.
func (m *Mandate) DueAt() time.Time {
	if m.NextPaymentDate != nil {
		return *m.NextPaymentDate
	}
	return m.StartDate.Add(m.Frequency.Interval())
}

// InWindow reports whether now lies within [StartDate, EndDate].
func (m *Mandate) InWindow(now time.Time) bool {
	if now.Before(m.StartDate) {
		return false
	}
	return m.EndDate == nil || !now.After(*m.EndDate)
}

type MandateEventType string

const (
	MandateEventCreated        MandateEventType = "created"
	MandateEventPaused         MandateEventType = "paused"
	MandateEventCancelled      MandateEventType = "cancelled"
	MandateEventExpired        MandateEventType = "expired"
	MandateEventPaymentSuccess MandateEventType = "payment_success"
	MandateEventPaymentFailed  MandateEventType = "payment_failed"
	MandateEventNextTrigger    MandateEventType = "next_trigger"
)

// MandateEvent is one append-only audit entry for a mandate.
type MandateEvent struct {
	ID            string           `json:"id"`
	MandateID     string           `json:"mandate_id"`
	EventType     MandateEventType `json:"event_type"`
	Message       string           `json:"message"`
	AmountDebited money.Amount     `json:"amount_debited"`
	TransactionID *string          `json:"transaction_id,omitempty"`
	ExecutedAt    time.Time        `json:"executed_at"`
}
