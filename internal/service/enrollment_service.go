package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
	appErrors "github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	ListVisible(ctx context.Context, ownerUserID string, cancelledAfter time.Time) ([]models.EnrollmentDetail, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Cancel(ctx context.Context, id string, cancelledAt time.Time) error
	Reactivate(ctx context.Context, id string, actorID *string, cancelledAfter, occurredAt time.Time) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type reservationEventStore interface {
	CreateReservationEvent(ctx context.Context, event *models.ReservationEvent) error
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.ReservationEvent, error)
}

type bookingNotifier interface {
	NotifyBookingChange(ctx context.Context, action, enrollmentID string)
}

// EnrollmentService orchestrates the enrollment lifecycle: owner-scoped
// listing with the cancellation visibility window, cancellation, and
// reactivation inside that window.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  studentReader
	events    reservationEventStore
	realtime  bookingNotifier
	window    time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, events reservationEventStore, realtime bookingNotifier, window time.Duration, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &EnrollmentService{
		repo:      repo,
		students:  students,
		events:    events,
		realtime:  realtime,
		window:    window,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns enrollments. Admins see everything matching the filter;
// students see their own enrollments, with cancelled ones hidden once the
// visibility window has elapsed.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter, claims *models.JWTClaims) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}

	if claims.Role != models.RoleAdmin {
		cutoff := s.now().Add(-s.window)
		enrollments, err := s.repo.ListVisible(ctx, claims.UserID, cutoff)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
		}
		pagination := &models.Pagination{Page: 1, PageSize: len(enrollments), TotalCount: len(enrollments)}
		return enrollments, pagination, nil
	}

	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Cancel marks an enrollment cancelled and records the corresponding event.
// The enrollment stays visible to its owner for the full window afterwards.
func (s *EnrollmentService) Cancel(ctx context.Context, id string, claims *models.JWTClaims) (*models.EnrollmentDetail, error) {
	enrollment, err := s.loadOwned(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not active")
	}

	cancelledAt := s.now()
	if err := s.repo.Cancel(ctx, id, cancelledAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
	}

	metadata, _ := json.Marshal(map[string]interface{}{"cancelled_at": cancelledAt})
	actorID := actorFromClaims(claims)
	if err := s.events.CreateReservationEvent(ctx, &models.ReservationEvent{
		EnrollmentID: id,
		EventType:    models.EventTypeCancel,
		ActorID:      actorID,
		Metadata:     metadata,
		OccurredAt:   cancelledAt,
	}); err != nil {
		s.logger.Warn("failed to record cancellation event", zap.String("enrollment_id", id), zap.Error(err))
	}

	if s.realtime != nil {
		s.realtime.NotifyBookingChange(ctx, "UPDATE", id)
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Reactivate flips a cancelled enrollment back to active while its
// visibility window is still open. The status flip, the cancelled_at reset
// and the reactivation event are applied as one atomic repository operation.
func (s *EnrollmentService) Reactivate(ctx context.Context, id string, claims *models.JWTClaims) (*models.EnrollmentDetail, error) {
	enrollment, err := s.loadOwned(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusCancelled || enrollment.CancelledAt == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not cancelled")
	}
	if s.now().After(enrollment.CancelledAt.Add(s.window)) {
		return nil, appErrors.Clone(appErrors.ErrWindowExpired, "reactivation window expired")
	}

	actorID := actorFromClaims(claims)
	occurredAt := s.now()
	if err := s.repo.Reactivate(ctx, id, actorID, occurredAt.Add(-s.window), occurredAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate enrollment")
	}

	if s.realtime != nil {
		s.realtime.NotifyBookingChange(ctx, "UPDATE", id)
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// History returns the reservation events recorded for an enrollment, newest
// last. Owners see their own trail, admins any.
func (s *EnrollmentService) History(ctx context.Context, id string, claims *models.JWTClaims) ([]models.ReservationEvent, error) {
	if _, err := s.loadOwned(ctx, id, claims); err != nil {
		return nil, err
	}
	events, err := s.events.ListByEnrollment(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollment events")
	}
	return events, nil
}

// loadOwned fetches the enrollment and checks the caller may act on it:
// admins always, students only for their own profiles.
func (s *EnrollmentService) loadOwned(ctx context.Context, id string, claims *models.JWTClaims) (*models.Enrollment, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if claims.Role == models.RoleAdmin {
		return enrollment, nil
	}
	student, err := s.students.FindByID(ctx, enrollment.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment does not belong to caller")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.UserID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment does not belong to caller")
	}
	return enrollment, nil
}

func actorFromClaims(claims *models.JWTClaims) *string {
	if claims == nil || claims.UserID == "" {
		return nil
	}
	id := claims.UserID
	return &id
}
