package models

import "time"

// Event types recorded against reservations and payments.
const (
	EventTypeCreate           = "CREATE"
	EventTypeCancel           = "CANCEL"
	EventTypeReactivate       = "REACTIVATE"
	EventTypeCleanup          = "CLEANUP"
	EventTypePaymentConfirmed = "PAYMENT_CONFIRMED"
	EventTypeReconcile        = "RECONCILE"
)

// ReservationEvent is an append-only audit row for enrollment state changes.
// ActorID is nil when the system (sweep, reconciler) performed the action.
// Rows are purged after the retention period.
type ReservationEvent struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	EventType    string    `db:"event_type" json:"event_type"`
	ActorID      *string   `db:"actor_id" json:"actor_id,omitempty"`
	Metadata     []byte    `db:"metadata" json:"metadata,omitempty"`
	OccurredAt   time.Time `db:"occurred_at" json:"occurred_at"`
}

// PaymentEvent is an append-only audit row for payment state changes.
type PaymentEvent struct {
	ID         string    `db:"id" json:"id"`
	PaymentID  string    `db:"payment_id" json:"payment_id"`
	EventType  string    `db:"event_type" json:"event_type"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Metadata   []byte    `db:"metadata" json:"metadata,omitempty"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}
