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

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func enrollmentDetailColumns() []string {
	return []string{"id", "student_id", "class_id", "status", "payment_status", "cancelled_at", "cleanup_logged_at", "enrolled_at", "updated_at", "student_name", "class_name", "class_level"}
}

func TestEnrollmentRepositoryListVisible(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	cutoff := now.Add(-24 * time.Hour)
	cancelledAt := now.Add(-2 * time.Hour)

	rows := sqlmock.NewRows(enrollmentDetailColumns()).
		AddRow("enr-1", "stu-1", "class-1", models.EnrollmentStatusActive, models.EnrollmentPaymentPaid, nil, nil, now, now, "Mila Joseph", "Dolphins", "L2").
		AddRow("enr-2", "stu-1", "class-2", models.EnrollmentStatusCancelled, models.EnrollmentPaymentPaid, cancelledAt, nil, now, now, "Mila Joseph", "Sharks", "L3")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.user_id = $1 AND (e.status = $2 OR (e.status = $3 AND e.cancelled_at > $4))")).
		WithArgs("user-1", models.EnrollmentStatusActive, models.EnrollmentStatusCancelled, cutoff).
		WillReturnRows(rows)

	enrollments, err := repo.ListVisible(context.Background(), "user-1", cutoff)
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	require.Equal(t, models.EnrollmentStatusCancelled, enrollments[1].Status)
	require.NotNil(t, enrollments[1].CancelledAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListExpiredCancellations(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	cutoff := now.Add(-24 * time.Hour)
	cancelledAt := now.Add(-30 * time.Hour)

	rows := sqlmock.NewRows(enrollmentDetailColumns()).
		AddRow("enr-1", "stu-1", "class-1", models.EnrollmentStatusCancelled, models.EnrollmentPaymentPaid, cancelledAt, nil, now, now, "Mila Joseph", "Dolphins", "L2")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.status = $1 AND e.cancelled_at <= $2 AND e.cleanup_logged_at IS NULL")).
		WithArgs(models.EnrollmentStatusCancelled, cutoff).
		WillReturnRows(rows)

	expired, err := repo.ListExpiredCancellations(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Nil(t, expired[0].CleanupLoggedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCancel(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	cancelledAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, cancelled_at = $3, cleanup_logged_at = NULL, updated_at = $3 WHERE id = $1")).
		WithArgs("enr-1", models.EnrollmentStatusCancelled, cancelledAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Cancel(context.Background(), "enr-1", cancelledAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryReactivateCommitsStatusAndEventTogether(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	occurredAt := time.Now().UTC()
	cutoff := occurredAt.Add(-24 * time.Hour)
	actor := "user-1"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = $4 AND cancelled_at >= $5")).
		WithArgs("enr-1", models.EnrollmentStatusActive, occurredAt, models.EnrollmentStatusCancelled, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservation_events")).
		WithArgs(sqlmock.AnyArg(), "enr-1", models.EventTypeReactivate, &actor, sqlmock.AnyArg(), occurredAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Reactivate(context.Background(), "enr-1", &actor, cutoff, occurredAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryReactivateRefusesWhenGuardMatchesNothing(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	occurredAt := time.Now().UTC()
	cutoff := occurredAt.Add(-24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = $4 AND cancelled_at >= $5")).
		WithArgs("enr-1", models.EnrollmentStatusActive, occurredAt, models.EnrollmentStatusCancelled, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Reactivate(context.Background(), "enr-1", nil, cutoff, occurredAt)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryReactivateRollsBackWhenEventInsertFails(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	occurredAt := time.Now().UTC()
	cutoff := occurredAt.Add(-24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = $4 AND cancelled_at >= $5")).
		WithArgs("enr-1", models.EnrollmentStatusActive, occurredAt, models.EnrollmentStatusCancelled, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservation_events")).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	err := repo.Reactivate(context.Background(), "enr-1", nil, cutoff, occurredAt)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkCleanupLogged(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	loggedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET cleanup_logged_at = $2 WHERE id = $1 AND cleanup_logged_at IS NULL")).
		WithArgs("enr-1", loggedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.MarkCleanupLogged(context.Background(), "enr-1", loggedAt)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkCleanupLoggedReportsLostClaim(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	loggedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND cleanup_logged_at IS NULL")).
		WithArgs("enr-1", loggedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.MarkCleanupLogged(context.Background(), "enr-1", loggedAt)
	require.NoError(t, err)
	require.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}
