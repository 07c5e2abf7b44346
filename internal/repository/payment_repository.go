package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
)

// PaymentRepository handles persistence of payments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create persists a pending payment record for a checkout session.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	const query = `INSERT INTO payments (id, student_id, class_id, session_id, amount_cents, currency, status, paid_at, created_at)
        VALUES (:id, :student_id, :class_id, :session_id, :amount_cents, :currency, :status, :paid_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// FindBySessionID returns the payment keyed by the checkout session id.
func (r *PaymentRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	const query = `SELECT id, student_id, class_id, session_id, amount_cents, currency, status, paid_at, created_at FROM payments WHERE session_id = $1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, sessionID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListBetween returns payments created in [from, to), newest first. Used by
// admin report exports.
func (r *PaymentRepository) ListBetween(ctx context.Context, from, to time.Time) ([]models.Payment, error) {
	const query = `SELECT id, student_id, class_id, session_id, amount_cents, currency, status, paid_at, created_at
        FROM payments WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at DESC`
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, from, to); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// ConfirmPaid applies the whole payment confirmation as one transaction:
// the payment row keyed by its unique session id is marked paid, the
// enrollment (when requested) is created unless an active one already
// exists, and a payment event is appended. Re-running the confirmation for
// an already-paid session touches nothing and reports the existing rows.
func (r *PaymentRepository) ConfirmPaid(ctx context.Context, sessionID string, enrollment *models.Enrollment, actorID *string, paidAt time.Time) (*models.Payment, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin payment confirmation: %w", err)
	}

	const selectPayment = `SELECT id, student_id, class_id, session_id, amount_cents, currency, status, paid_at, created_at FROM payments WHERE session_id = $1 FOR UPDATE`
	var payment models.Payment
	if err = tx.GetContext(ctx, &payment, selectPayment, sessionID); err != nil {
		_ = tx.Rollback()
		return nil, false, fmt.Errorf("load payment for session %s: %w", sessionID, err)
	}

	if payment.Status == models.PaymentStatusPaid {
		_ = tx.Rollback()
		return &payment, false, nil
	}

	const updatePayment = `UPDATE payments SET status = $2, paid_at = $3 WHERE id = $1 AND status = $4`
	if _, err = tx.ExecContext(ctx, updatePayment, payment.ID, models.PaymentStatusPaid, paidAt, models.PaymentStatusPending); err != nil {
		_ = tx.Rollback()
		return nil, false, fmt.Errorf("mark payment paid: %w", err)
	}

	enrollmentCreated := false
	if enrollment != nil {
		var exists int
		const checkEnrollment = `SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2 AND status = $3 LIMIT 1`
		err = tx.GetContext(ctx, &exists, checkEnrollment, enrollment.StudentID, enrollment.ClassID, models.EnrollmentStatusActive)
		switch {
		case err == sql.ErrNoRows:
			if enrollment.ID == "" {
				enrollment.ID = uuid.NewString()
			}
			enrollment.Status = models.EnrollmentStatusActive
			enrollment.PaymentStatus = models.EnrollmentPaymentPaid
			enrollment.EnrolledAt = paidAt
			enrollment.UpdatedAt = paidAt
			const insertEnrollment = `INSERT INTO enrollments (id, student_id, class_id, status, payment_status, enrolled_at, updated_at)
                VALUES ($1, $2, $3, $4, $5, $6, $6)`
			if _, err = tx.ExecContext(ctx, insertEnrollment, enrollment.ID, enrollment.StudentID, enrollment.ClassID, enrollment.Status, enrollment.PaymentStatus, paidAt); err != nil {
				_ = tx.Rollback()
				return nil, false, fmt.Errorf("create enrollment for payment %s: %w", payment.ID, err)
			}
			enrollmentCreated = true
		case err != nil:
			_ = tx.Rollback()
			return nil, false, fmt.Errorf("check existing enrollment: %w", err)
		}
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"session_id":         sessionID,
		"enrollment_created": enrollmentCreated,
	})
	const insertEvent = `INSERT INTO payment_events (id, payment_id, event_type, actor_id, metadata, occurred_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err = tx.ExecContext(ctx, insertEvent, uuid.NewString(), payment.ID, models.EventTypePaymentConfirmed, actorID, metadata, paidAt); err != nil {
		_ = tx.Rollback()
		return nil, false, fmt.Errorf("record payment event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit payment confirmation: %w", err)
	}

	payment.Status = models.PaymentStatusPaid
	payment.PaidAt = &paidAt
	return &payment, enrollmentCreated, nil
}
