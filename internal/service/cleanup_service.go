package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
	appErrors "github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/errors"
)

type cleanupEnrollmentRepository interface {
	ListExpiredCancellations(ctx context.Context, cutoff time.Time) ([]models.EnrollmentDetail, error)
	MarkCleanupLogged(ctx context.Context, id string, loggedAt time.Time) (bool, error)
}

type cleanupEventRepository interface {
	CreateReservationEvent(ctx context.Context, event *models.ReservationEvent) error
	PurgeReservationEvents(ctx context.Context, olderThan time.Time) (int64, error)
	PurgePaymentEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

// CleanupResult summarises one sweep run.
type CleanupResult struct {
	CleanedEnrollments int       `json:"cleaned_enrollments"`
	PurgedReservation  int64     `json:"purged_reservation_events"`
	PurgedPayment      int64     `json:"purged_payment_events"`
	Timestamp          time.Time `json:"timestamp"`
}

// CleanupService runs the cancellation expiry sweep. Cancelled enrollments
// past their visibility window get exactly one CLEANUP event: each candidate
// is claimed through the compare-and-set dedup marker before its event is
// written, so a re-run or a concurrent run racing this one skips enrollments
// another sweep already claimed. The run then purges both event tables past
// the retention horizon. Everything after candidate selection is
// best-effort: per-item and purge failures are logged, never fatal.
type CleanupService struct {
	enrollments cleanupEnrollmentRepository
	events      cleanupEventRepository
	metrics     *MetricsService
	window      time.Duration
	retention   time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewCleanupService constructs a CleanupService.
func NewCleanupService(enrollments cleanupEnrollmentRepository, events cleanupEventRepository, metrics *MetricsService, window, retention time.Duration, logger *zap.Logger) *CleanupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &CleanupService{
		enrollments: enrollments,
		events:      events,
		metrics:     metrics,
		window:      window,
		retention:   retention,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one sweep. Only the candidate query can fail the run; the
// returned count reports the expired enrollments this run claimed, excluding
// ones a concurrent sweep claimed first.
func (s *CleanupService) Run(ctx context.Context) (*CleanupResult, error) {
	runAt := s.now()
	cutoff := runAt.Add(-s.window)

	expired, err := s.enrollments.ListExpiredCancellations(ctx, cutoff)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to select expired cancellations")
	}

	cleaned := 0
	for _, enrollment := range expired {
		claimed, err := s.enrollments.MarkCleanupLogged(ctx, enrollment.ID, runAt)
		if err != nil {
			s.logger.Error("failed to mark enrollment cleanup-logged, skipping",
				zap.String("enrollment_id", enrollment.ID),
				zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		cleaned++
		if err := s.logCleanup(ctx, enrollment, runAt); err != nil {
			s.logger.Error("failed to log cleanup event",
				zap.String("enrollment_id", enrollment.ID),
				zap.Error(err))
		}
	}

	result := &CleanupResult{CleanedEnrollments: cleaned, Timestamp: runAt}

	retentionCutoff := runAt.Add(-s.retention)
	if purged, err := s.events.PurgeReservationEvents(ctx, retentionCutoff); err != nil {
		s.logger.Error("reservation event purge failed", zap.Error(err))
	} else {
		result.PurgedReservation = purged
	}
	if purged, err := s.events.PurgePaymentEvents(ctx, retentionCutoff); err != nil {
		s.logger.Error("payment event purge failed", zap.Error(err))
	} else {
		result.PurgedPayment = purged
	}

	if s.metrics != nil {
		s.metrics.ObserveCleanupRun(cleaned)
	}

	s.logger.Info("cleanup sweep finished",
		zap.Int("cleaned_enrollments", result.CleanedEnrollments),
		zap.Int64("purged_reservation_events", result.PurgedReservation),
		zap.Int64("purged_payment_events", result.PurgedPayment))

	return result, nil
}

func (s *CleanupService) logCleanup(ctx context.Context, enrollment models.EnrollmentDetail, runAt time.Time) error {
	className := enrollment.ClassName
	if className == "" {
		className = "Unknown"
	}
	metadata, _ := json.Marshal(map[string]interface{}{
		"cancelled_at": enrollment.CancelledAt,
		"cleaned_at":   runAt,
		"class_name":   className,
	})
	return s.events.CreateReservationEvent(ctx, &models.ReservationEvent{
		EnrollmentID: enrollment.ID,
		EventType:    models.EventTypeCleanup,
		Metadata:     metadata,
		OccurredAt:   runAt,
	})
}
