package models

import "time"

// PaymentStatus represents the one-way pending → paid lifecycle.
type PaymentStatus string

// Possible payment statuses.
const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// Payment is the internal record of a checkout attempt. SessionID maps
// uniquely to the processor's checkout session.
type Payment struct {
	ID          string        `db:"id" json:"id"`
	StudentID   *string       `db:"student_id" json:"student_id,omitempty"`
	ClassID     *string       `db:"class_id" json:"class_id,omitempty"`
	SessionID   string        `db:"session_id" json:"session_id"`
	AmountCents int64         `db:"amount_cents" json:"amount_cents"`
	Currency    string        `db:"currency" json:"currency"`
	Status      PaymentStatus `db:"status" json:"status"`
	PaidAt      *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}
