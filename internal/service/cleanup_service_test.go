package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
)

type mockCleanupEnrollmentRepo struct {
	expired    []models.EnrollmentDetail
	listErr    error
	logged     map[string]time.Time
	markErr    error
	lastCutoff time.Time
}

func (m *mockCleanupEnrollmentRepo) ListExpiredCancellations(ctx context.Context, cutoff time.Time) ([]models.EnrollmentDetail, error) {
	m.lastCutoff = cutoff
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.EnrollmentDetail
	for _, e := range m.expired {
		if _, done := m.logged[e.ID]; !done {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockCleanupEnrollmentRepo) MarkCleanupLogged(ctx context.Context, id string, loggedAt time.Time) (bool, error) {
	if m.markErr != nil {
		return false, m.markErr
	}
	if m.logged == nil {
		m.logged = make(map[string]time.Time)
	}
	if _, done := m.logged[id]; done {
		return false, nil
	}
	m.logged[id] = loggedAt
	return true, nil
}

type mockCleanupEventRepo struct {
	events         []models.ReservationEvent
	createErr      error
	reservationN   int64
	paymentN       int64
	purgeResErr    error
	purgePayErr    error
	lastPurgeAfter time.Time
}

func (m *mockCleanupEventRepo) CreateReservationEvent(ctx context.Context, event *models.ReservationEvent) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.events = append(m.events, *event)
	return nil
}

func (m *mockCleanupEventRepo) PurgeReservationEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	m.lastPurgeAfter = olderThan
	if m.purgeResErr != nil {
		return 0, m.purgeResErr
	}
	return m.reservationN, nil
}

func (m *mockCleanupEventRepo) PurgePaymentEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	if m.purgePayErr != nil {
		return 0, m.purgePayErr
	}
	return m.paymentN, nil
}

func expiredEnrollment(id, className string, cancelledAt time.Time) models.EnrollmentDetail {
	return models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:          id,
			StudentID:   "stu-1",
			ClassID:     "class-1",
			Status:      models.EnrollmentStatusCancelled,
			CancelledAt: &cancelledAt,
		},
		ClassName: className,
	}
}

func TestCleanupServiceLogsEventAndMarksEnrollments(t *testing.T) {
	fixed := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	cancelledAt := fixed.Add(-30 * time.Hour)
	enrollments := &mockCleanupEnrollmentRepo{expired: []models.EnrollmentDetail{
		expiredEnrollment("enr-1", "Dolphins", cancelledAt),
		expiredEnrollment("enr-2", "Sharks", cancelledAt),
	}}
	events := &mockCleanupEventRepo{reservationN: 5, paymentN: 2}
	svc := NewCleanupService(enrollments, events, nil, 24*time.Hour, 90*24*time.Hour, nil)
	svc.now = func() time.Time { return fixed }

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.CleanedEnrollments)
	require.Equal(t, int64(5), result.PurgedReservation)
	require.Equal(t, int64(2), result.PurgedPayment)
	require.Equal(t, fixed, result.Timestamp)

	require.Equal(t, fixed.Add(-24*time.Hour), enrollments.lastCutoff)
	require.Equal(t, fixed.Add(-90*24*time.Hour), events.lastPurgeAfter)

	require.Len(t, events.events, 2)
	require.Equal(t, models.EventTypeCleanup, events.events[0].EventType)
	require.Len(t, enrollments.logged, 2)
}

func TestCleanupServiceSecondRunFindsNothing(t *testing.T) {
	fixed := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	enrollments := &mockCleanupEnrollmentRepo{expired: []models.EnrollmentDetail{
		expiredEnrollment("enr-1", "Dolphins", fixed.Add(-30*time.Hour)),
	}}
	events := &mockCleanupEventRepo{}
	svc := NewCleanupService(enrollments, events, nil, 24*time.Hour, 90*24*time.Hour, nil)
	svc.now = func() time.Time { return fixed }

	first, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.CleanedEnrollments)

	second, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, second.CleanedEnrollments)
	require.Len(t, events.events, 1)
}

func TestCleanupServiceSkipsEnrollmentsAnotherSweepClaimed(t *testing.T) {
	fixed := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	enrollments := &mockCleanupEnrollmentRepo{
		expired: []models.EnrollmentDetail{
			expiredEnrollment("enr-1", "Dolphins", fixed.Add(-30*time.Hour)),
			expiredEnrollment("enr-2", "Sharks", fixed.Add(-30*time.Hour)),
		},
		// enr-1 was already stamped by a sweep racing this one.
		logged: map[string]time.Time{"enr-1": fixed.Add(-time.Minute)},
	}
	events := &mockCleanupEventRepo{}
	svc := NewCleanupService(enrollments, events, nil, 24*time.Hour, 90*24*time.Hour, nil)
	svc.now = func() time.Time { return fixed }

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.CleanedEnrollments)
	require.Len(t, events.events, 1)
	require.Equal(t, "enr-2", events.events[0].EnrollmentID)
}

func TestCleanupServiceMarkFailureSkipsEventWrite(t *testing.T) {
	fixed := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	enrollments := &mockCleanupEnrollmentRepo{
		expired: []models.EnrollmentDetail{
			expiredEnrollment("enr-1", "Dolphins", fixed.Add(-30*time.Hour)),
		},
		markErr: context.DeadlineExceeded,
	}
	events := &mockCleanupEventRepo{}
	svc := NewCleanupService(enrollments, events, nil, 24*time.Hour, 90*24*time.Hour, nil)
	svc.now = func() time.Time { return fixed }

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.CleanedEnrollments)
	require.Empty(t, events.events)

	// The marker never landed, so the next run retries the enrollment.
	enrollments.markErr = nil
	result, err = svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.CleanedEnrollments)
	require.Len(t, events.events, 1)
}

func TestCleanupServiceMetadataFallsBackToUnknownClass(t *testing.T) {
	fixed := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	enrollments := &mockCleanupEnrollmentRepo{expired: []models.EnrollmentDetail{
		expiredEnrollment("enr-1", "", fixed.Add(-30*time.Hour)),
	}}
	events := &mockCleanupEventRepo{}
	svc := NewCleanupService(enrollments, events, nil, 24*time.Hour, 90*24*time.Hour, nil)
	svc.now = func() time.Time { return fixed }

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, events.events, 1)

	var metadata map[string]interface{}
	require.NoError(t, json.Unmarshal(events.events[0].Metadata, &metadata))
	require.Equal(t, "Unknown", metadata["class_name"])
}

func TestCleanupServicePurgeFailureIsNotFatal(t *testing.T) {
	enrollments := &mockCleanupEnrollmentRepo{}
	events := &mockCleanupEventRepo{purgeResErr: context.DeadlineExceeded, purgePayErr: context.DeadlineExceeded}
	svc := NewCleanupService(enrollments, events, nil, 24*time.Hour, 90*24*time.Hour, nil)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), result.PurgedReservation)
	require.Equal(t, int64(0), result.PurgedPayment)
}

func TestCleanupServiceCandidateQueryFailureIsFatal(t *testing.T) {
	enrollments := &mockCleanupEnrollmentRepo{listErr: context.DeadlineExceeded}
	svc := NewCleanupService(enrollments, &mockCleanupEventRepo{}, nil, 24*time.Hour, 90*24*time.Hour, nil)

	_, err := svc.Run(context.Background())
	require.Error(t, err)
}
