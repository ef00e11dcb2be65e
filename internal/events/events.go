package events

import (
	"context"
	"time"
)

// Streams
const (
	StreamTransactions = "autopay:transactions"
	StreamMandates     = "autopay:mandates"
)

// Event types
const (
	TypeTransferCompleted = "transfer.completed"
	TypeMandatePrefix     = "mandate."
)

// Event is the envelope written to a stream entry.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Publisher appends domain events to a named stream.
type Publisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, string, any) error {
	return nil
}
