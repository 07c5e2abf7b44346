package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
)

func newPaymentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func paymentColumns() []string {
	return []string{"id", "student_id", "class_id", "session_id", "amount_cents", "currency", "status", "paid_at", "created_at"}
}

func TestPaymentRepositoryConfirmPaidCreatesEnrollment(t *testing.T) {
	db, mock, cleanup := newPaymentRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	now := time.Now().UTC()
	paidAt := now
	studentID := "stu-1"
	classID := "class-1"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE session_id = $1 FOR UPDATE")).
		WithArgs("cs_123").
		WillReturnRows(sqlmock.NewRows(paymentColumns()).
			AddRow("pay-1", studentID, classID, "cs_123", int64(15000), "USD", models.PaymentStatusPending, nil, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET status = $2, paid_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("pay-1", models.PaymentStatusPaid, paidAt, models.PaymentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2 AND status = $3 LIMIT 1")).
		WithArgs(studentID, classID, models.EnrollmentStatusActive).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), studentID, classID, models.EnrollmentStatusActive, models.EnrollmentPaymentPaid, paidAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_events")).
		WithArgs(sqlmock.AnyArg(), "pay-1", models.EventTypePaymentConfirmed, nil, sqlmock.AnyArg(), paidAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{StudentID: studentID, ClassID: classID}
	payment, created, err := repo.ConfirmPaid(context.Background(), "cs_123", enrollment, nil, paidAt)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, models.PaymentStatusPaid, payment.Status)
	require.NotNil(t, payment.PaidAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryConfirmPaidIsIdempotent(t *testing.T) {
	db, mock, cleanup := newPaymentRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	now := time.Now().UTC()
	paidAt := now.Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE session_id = $1 FOR UPDATE")).
		WithArgs("cs_123").
		WillReturnRows(sqlmock.NewRows(paymentColumns()).
			AddRow("pay-1", nil, nil, "cs_123", int64(15000), "USD", models.PaymentStatusPaid, paidAt, now))
	mock.ExpectRollback()

	enrollment := &models.Enrollment{StudentID: "stu-1", ClassID: "class-1"}
	payment, created, err := repo.ConfirmPaid(context.Background(), "cs_123", enrollment, nil, now)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, models.PaymentStatusPaid, payment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryConfirmPaidSkipsExistingEnrollment(t *testing.T) {
	db, mock, cleanup := newPaymentRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	now := time.Now().UTC()
	studentID := "stu-1"
	classID := "class-1"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE session_id = $1 FOR UPDATE")).
		WithArgs("cs_123").
		WillReturnRows(sqlmock.NewRows(paymentColumns()).
			AddRow("pay-1", studentID, classID, "cs_123", int64(15000), "USD", models.PaymentStatusPending, nil, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET status = $2, paid_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("pay-1", models.PaymentStatusPaid, now, models.PaymentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2 AND status = $3 LIMIT 1")).
		WithArgs(studentID, classID, models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_events")).
		WithArgs(sqlmock.AnyArg(), "pay-1", models.EventTypePaymentConfirmed, nil, sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{StudentID: studentID, ClassID: classID}
	_, created, err := repo.ConfirmPaid(context.Background(), "cs_123", enrollment, nil, now)
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}
