package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/autopay/internal/database"
	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const mandateColumns = `id, sender_id, receiver_id, amount_max, frequency, start_date,
	end_date, next_payment_date, status, created_at, updated_at`

const mandateEventColumns = `id, mandate_id, event_type, message, amount_debited, transaction_id, executed_at`

type MandateRepository struct {
	pool *pgxpool.Pool
}

func NewMandateRepository(db *database.DB) *MandateRepository {
	return &MandateRepository{pool: db.Pool}
}

func scanMandateRow(scanner rowScanner) (*models.Mandate, error) {
	var (
		m                 models.Mandate
		amount            int64
		frequency, status string
	)
	err := scanner.Scan(
		&m.ID, &m.SenderID, &m.ReceiverID, &amount, &frequency, &m.StartDate,
		&m.EndDate, &m.NextPaymentDate, &status, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	m.AmountMax = money.FromMinor(amount)
	m.Frequency = models.Frequency(frequency)
	m.Status = models.MandateStatus(status)
	return &m, nil
}

func scanMandateRows(rows pgx.Rows) ([]*models.Mandate, error) {
	defer rows.Close()

	mandates := make([]*models.Mandate, 0)
	for rows.Next() {
		m, err := scanMandateRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mandate: %w", err)
		}
		mandates = append(mandates, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return mandates, nil
}

func (r *MandateRepository) Create(ctx context.Context, m *models.Mandate) (*models.Mandate, error) {
	m.ID = uuid.New().String()
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Status == "" {
		m.Status = models.MandateActive
	}

	query := `
		INSERT INTO mandates (id, sender_id, receiver_id, amount_max, frequency, start_date,
			end_date, next_payment_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + mandateColumns

	return scanMandateRow(r.pool.QueryRow(ctx, query,
		m.ID, m.SenderID, m.ReceiverID, m.AmountMax.Minor(), string(m.Frequency), m.StartDate,
		m.EndDate, m.NextPaymentDate, string(m.Status), m.CreatedAt, m.UpdatedAt,
	))
}

func (r *MandateRepository) GetByID(ctx context.Context, id string) (*models.Mandate, error) {
	query := `SELECT ` + mandateColumns + ` FROM mandates WHERE id = $1`
	return scanMandateRow(r.pool.QueryRow(ctx, query, id))
}

func (r *MandateRepository) ListActive(ctx context.Context) ([]*models.Mandate, error) {
	query := `SELECT ` + mandateColumns + ` FROM mandates WHERE status = 'active' ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active mandates: %w", err)
	}
	return scanMandateRows(rows)
}

func (r *MandateRepository) ListBySender(ctx context.Context, senderID string) ([]*models.Mandate, error) {
	query := `SELECT ` + mandateColumns + ` FROM mandates WHERE sender_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, senderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mandates: %w", err)
	}
	return scanMandateRows(rows)
}

func (r *MandateRepository) UpdateStatus(ctx context.Context, id string, status models.MandateStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE mandates SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update mandate status: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *MandateRepository) AppendEvent(ctx context.Context, e *models.MandateEvent) (*models.MandateEvent, error) {
	e.ID = uuid.New().String()
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = time.Now()
	}

	query := `
		INSERT INTO mandate_events (id, mandate_id, event_type, message, amount_debited, transaction_id, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + mandateEventColumns

	return scanMandateEventRow(r.pool.QueryRow(ctx, query,
		e.ID, e.MandateID, string(e.EventType), e.Message, e.AmountDebited.Minor(), e.TransactionID, e.ExecutedAt,
	))
}

func (r *MandateRepository) ListEvents(ctx context.Context, mandateID string) ([]*models.MandateEvent, error) {
	query := `SELECT ` + mandateEventColumns + ` FROM mandate_events WHERE mandate_id = $1 ORDER BY executed_at, id`
	rows, err := r.pool.Query(ctx, query, mandateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mandate events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.MandateEvent, 0)
	for rows.Next() {
		e, err := scanMandateEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mandate event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return events, nil
}

func scanMandateEventRow(scanner rowScanner) (*models.MandateEvent, error) {
	var (
		e         models.MandateEvent
		eventType string
		amount    int64
	)
	err := scanner.Scan(&e.ID, &e.MandateID, &eventType, &e.Message, &amount, &e.TransactionID, &e.ExecutedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	e.EventType = models.MandateEventType(eventType)
	e.AmountDebited = money.FromMinor(amount)
	return &e, nil
}
