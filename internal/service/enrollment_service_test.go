package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
	appErrors "github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments      map[string]models.Enrollment
	visibleCutoff    time.Time
	visibleOwner     string
	cancelled        []string
	reactivated      []string
	reactivateCutoff time.Time
	reactivateErr    error
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var details []models.EnrollmentDetail
	for _, e := range m.enrollments {
		details = append(details, models.EnrollmentDetail{Enrollment: e})
	}
	return details, len(details), nil
}

func (m *mockEnrollmentRepo) ListVisible(ctx context.Context, ownerUserID string, cancelledAfter time.Time) ([]models.EnrollmentDetail, error) {
	m.visibleOwner = ownerUserID
	m.visibleCutoff = cancelledAfter
	return nil, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Cancel(ctx context.Context, id string, cancelledAt time.Time) error {
	e := m.enrollments[id]
	e.Status = models.EnrollmentStatusCancelled
	e.CancelledAt = &cancelledAt
	m.enrollments[id] = e
	m.cancelled = append(m.cancelled, id)
	return nil
}

func (m *mockEnrollmentRepo) Reactivate(ctx context.Context, id string, actorID *string, cancelledAfter, occurredAt time.Time) error {
	m.reactivateCutoff = cancelledAfter
	if m.reactivateErr != nil {
		return m.reactivateErr
	}
	e := m.enrollments[id]
	e.Status = models.EnrollmentStatusActive
	e.CancelledAt = nil
	e.CleanupLoggedAt = nil
	m.enrollments[id] = e
	m.reactivated = append(m.reactivated, id)
	return nil
}

type mockStudentReader struct {
	students map[string]models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type mockEventWriter struct {
	events []models.ReservationEvent
	err    error
}

func (m *mockEventWriter) CreateReservationEvent(ctx context.Context, event *models.ReservationEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, *event)
	return nil
}

func (m *mockEventWriter) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.ReservationEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []models.ReservationEvent
	for _, event := range m.events {
		if event.EnrollmentID == enrollmentID {
			out = append(out, event)
		}
	}
	return out, nil
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent, Email: "mila@example.com"}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func newTestEnrollmentService(repo *mockEnrollmentRepo, students *mockStudentReader, events *mockEventWriter) *EnrollmentService {
	return NewEnrollmentService(repo, students, events, nil, 24*time.Hour, nil, nil)
}

func TestEnrollmentServiceListScopesStudentsToVisibilityWindow(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	svc := newTestEnrollmentService(repo, &mockStudentReader{}, &mockEventWriter{})
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	_, _, err := svc.List(context.Background(), models.EnrollmentFilter{}, studentClaims())
	require.NoError(t, err)
	require.Equal(t, "user-1", repo.visibleOwner)
	require.Equal(t, fixed.Add(-24*time.Hour), repo.visibleCutoff)
}

func TestEnrollmentServiceCancelRequiresActive(t *testing.T) {
	cancelledAt := time.Now().UTC()
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusCancelled, CancelledAt: &cancelledAt},
	}}
	svc := newTestEnrollmentService(repo, &mockStudentReader{}, &mockEventWriter{})

	_, err := svc.Cancel(context.Background(), "enr-1", adminClaims())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	require.Empty(t, repo.cancelled)
}

func TestEnrollmentServiceCancelRecordsEvent(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusActive},
	}}
	students := &mockStudentReader{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", UserID: "user-1"},
	}}
	events := &mockEventWriter{}
	svc := newTestEnrollmentService(repo, students, events)

	detail, err := svc.Cancel(context.Background(), "enr-1", studentClaims())
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusCancelled, detail.Status)
	require.NotNil(t, detail.CancelledAt)
	require.Len(t, events.events, 1)
	require.Equal(t, models.EventTypeCancel, events.events[0].EventType)
	require.NotNil(t, events.events[0].ActorID)
	require.Equal(t, "user-1", *events.events[0].ActorID)
}

func TestEnrollmentServiceCancelSucceedsWhenEventWriteFails(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusActive},
	}}
	events := &mockEventWriter{err: context.DeadlineExceeded}
	svc := newTestEnrollmentService(repo, &mockStudentReader{}, events)

	detail, err := svc.Cancel(context.Background(), "enr-1", adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusCancelled, detail.Status)
}

func TestEnrollmentServiceReactivateInsideWindow(t *testing.T) {
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cancelledAt := fixed.Add(-23 * time.Hour)
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusCancelled, CancelledAt: &cancelledAt},
	}}
	svc := newTestEnrollmentService(repo, &mockStudentReader{}, &mockEventWriter{})
	svc.now = func() time.Time { return fixed }

	detail, err := svc.Reactivate(context.Background(), "enr-1", adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusActive, detail.Status)
	require.Nil(t, detail.CancelledAt)
	require.Equal(t, []string{"enr-1"}, repo.reactivated)
	require.Equal(t, fixed.Add(-24*time.Hour), repo.reactivateCutoff)
}

func TestEnrollmentServiceReactivateReportsLostRace(t *testing.T) {
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cancelledAt := fixed.Add(-23 * time.Hour)
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusCancelled, CancelledAt: &cancelledAt},
		},
		reactivateErr: sql.ErrNoRows,
	}
	svc := newTestEnrollmentService(repo, &mockStudentReader{}, &mockEventWriter{})
	svc.now = func() time.Time { return fixed }

	_, err := svc.Reactivate(context.Background(), "enr-1", adminClaims())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	require.Empty(t, repo.reactivated)
}

func TestEnrollmentServiceReactivateRejectsExpiredWindow(t *testing.T) {
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cancelledAt := fixed.Add(-25 * time.Hour)
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusCancelled, CancelledAt: &cancelledAt},
	}}
	svc := newTestEnrollmentService(repo, &mockStudentReader{}, &mockEventWriter{})
	svc.now = func() time.Time { return fixed }

	_, err := svc.Reactivate(context.Background(), "enr-1", adminClaims())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrWindowExpired.Code, appErr.Code)
	require.Empty(t, repo.reactivated)
}

func TestEnrollmentServiceReactivateExactWindowBoundaryStillAllowed(t *testing.T) {
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cancelledAt := fixed.Add(-24 * time.Hour)
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusCancelled, CancelledAt: &cancelledAt},
	}}
	svc := newTestEnrollmentService(repo, &mockStudentReader{}, &mockEventWriter{})
	svc.now = func() time.Time { return fixed }

	_, err := svc.Reactivate(context.Background(), "enr-1", adminClaims())
	require.NoError(t, err)
}

func TestEnrollmentServiceForbidsActingOnOthersEnrollments(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-2", Status: models.EnrollmentStatusActive},
	}}
	students := &mockStudentReader{students: map[string]models.Student{
		"stu-2": {ID: "stu-2", UserID: "user-2"},
	}}
	svc := newTestEnrollmentService(repo, students, &mockEventWriter{})

	_, err := svc.Cancel(context.Background(), "enr-1", studentClaims())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestEnrollmentServiceHistoryScopedToOwner(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusActive},
	}}
	students := &mockStudentReader{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", UserID: "user-1"},
	}}
	events := &mockEventWriter{events: []models.ReservationEvent{
		{EnrollmentID: "enr-1", EventType: models.EventTypeCancel},
		{EnrollmentID: "enr-2", EventType: models.EventTypeCleanup},
	}}
	svc := newTestEnrollmentService(repo, students, events)

	history, err := svc.History(context.Background(), "enr-1", studentClaims())
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, models.EventTypeCancel, history[0].EventType)

	_, err = svc.History(context.Background(), "enr-1", &models.JWTClaims{UserID: "user-2", Role: models.RoleStudent})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}
