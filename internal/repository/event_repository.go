package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
)

// EventRepository persists the append-only reservation and payment event
// tables and handles their retention purge.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateReservationEvent appends a reservation event row.
func (r *EventRepository) CreateReservationEvent(ctx context.Context, event *models.ReservationEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	const query = `INSERT INTO reservation_events (id, enrollment_id, event_type, actor_id, metadata, occurred_at)
        VALUES (:id, :enrollment_id, :event_type, :actor_id, :metadata, :occurred_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create reservation event: %w", err)
	}
	return nil
}

// ListByEnrollment returns reservation events for one enrollment, newest first.
func (r *EventRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.ReservationEvent, error) {
	const query = `SELECT id, enrollment_id, event_type, actor_id, metadata, occurred_at FROM reservation_events WHERE enrollment_id = $1 ORDER BY occurred_at DESC`
	var events []models.ReservationEvent
	if err := r.db.SelectContext(ctx, &events, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list reservation events: %w", err)
	}
	return events, nil
}

// PurgeReservationEvents deletes reservation events older than the cutoff,
// returning the number of removed rows.
func (r *EventRepository) PurgeReservationEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	const query = `DELETE FROM reservation_events WHERE occurred_at < $1`
	res, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge reservation events: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge reservation events count: %w", err)
	}
	return affected, nil
}

// PurgePaymentEvents deletes payment events older than the cutoff.
func (r *EventRepository) PurgePaymentEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	const query = `DELETE FROM payment_events WHERE occurred_at < $1`
	res, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge payment events: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge payment events count: %w", err)
	}
	return affected, nil
}
