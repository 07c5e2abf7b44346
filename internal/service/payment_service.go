package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/gateway"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/config"
	appErrors "github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/errors"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/jobs"
)

type paymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	ConfirmPaid(ctx context.Context, sessionID string, enrollment *models.Enrollment, actorID *string, paidAt time.Time) (*models.Payment, bool, error)
}

type checkoutGateway interface {
	GetSession(ctx context.Context, sessionID string) (*gateway.CheckoutSession, error)
	CreateSession(ctx context.Context, params gateway.CreateSessionParams) (*gateway.CheckoutSession, error)
}

type paymentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type paymentClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type reconcileEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// VerifyPaymentRequest carries the checkout session to verify.
type VerifyPaymentRequest struct {
	SessionID string `json:"sessionId" binding:"required" validate:"required"`
}

// VerifyPaymentResult reports the verification outcome.
type VerifyPaymentResult struct {
	Verified          bool   `json:"success"`
	Message           string `json:"message"`
	EnrollmentCreated bool   `json:"enrollment_created"`
}

// CreateCheckoutRequest opens a checkout session for a class.
type CreateCheckoutRequest struct {
	ClassID   string `json:"class_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

// CreateCheckoutResult returns the processor session the frontend redirects to.
type CreateCheckoutResult struct {
	SessionID   string `json:"session_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// ReconcileJobType names queued payment reconciliation work.
const ReconcileJobType = "payment_reconcile"

// PaymentService verifies checkout sessions against the processor and
// applies the resulting payment/enrollment writes in one transaction.
type PaymentService struct {
	payments  paymentRepository
	students  paymentStudentReader
	classes   paymentClassReader
	gateway   checkoutGateway
	metrics   *MetricsService
	reconcile reconcileEnqueuer
	cfg       config.PaymentsConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(payments paymentRepository, students paymentStudentReader, classes paymentClassReader, gw checkoutGateway, metrics *MetricsService, reconcile reconcileEnqueuer, cfg config.PaymentsConfig, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		payments:  payments,
		students:  students,
		classes:   classes,
		gateway:   gw,
		metrics:   metrics,
		reconcile: reconcile,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateCheckout opens a processor session for the class price and stores a
// pending payment row keyed by the session id.
func (s *PaymentService) CreateCheckout(ctx context.Context, req CreateCheckoutRequest, claims *models.JWTClaims) (*CreateCheckoutResult, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checkout payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if claims.Role != models.RoleAdmin && student.UserID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student does not belong to caller")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if !class.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "class is not open for booking")
	}

	session, err := s.gateway.CreateSession(ctx, gateway.CreateSessionParams{
		AmountCents: class.PriceCents,
		Currency:    class.Currency,
		ClassID:     class.ID,
		StudentID:   student.ID,
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create checkout session")
	}

	payment := &models.Payment{
		StudentID:   &student.ID,
		ClassID:     &class.ID,
		SessionID:   session.ID,
		AmountCents: class.PriceCents,
		Currency:    class.Currency,
		Status:      models.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	return &CreateCheckoutResult{SessionID: session.ID, AmountCents: class.PriceCents, Currency: class.Currency}, nil
}

// Verify confirms the session with the processor and, when paid, marks the
// internal payment paid and creates the enrollment named in the session
// metadata. Both writes ride one transaction, so a crash between them is
// impossible; re-verifying an already-paid session changes nothing.
func (s *PaymentService) Verify(ctx context.Context, req VerifyPaymentRequest, claims *models.JWTClaims) (*VerifyPaymentResult, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}

	session, err := s.gateway.GetSession(ctx, req.SessionID)
	if err != nil {
		s.observe("failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query payment processor")
	}

	if session.PaymentStatus != gateway.PaymentStatusPaid {
		s.observe("not_completed")
		return nil, appErrors.Clone(appErrors.ErrPaymentIncomplete, "payment not completed")
	}

	enrollment, err := s.enrollmentFromSession(ctx, session, claims)
	if err != nil {
		s.observe("failed")
		return nil, err
	}

	actorID := actorFromClaims(claims)
	_, created, err := s.payments.ConfirmPaid(ctx, req.SessionID, enrollment, actorID, s.now())
	if err != nil {
		s.observe("failed")
		s.enqueueReconcile(req.SessionID, enrollment, actorID)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply payment confirmation")
	}

	s.observe("verified")
	return &VerifyPaymentResult{Verified: true, Message: "payment verified", EnrollmentCreated: created}, nil
}

// enrollmentFromSession resolves the enrollment the paid session should
// create. Sessions without a classId in their metadata verify the payment
// only. A studentId carried in the metadata is never trusted on its own:
// unless the caller is an admin, the named student must belong to them.
func (s *PaymentService) enrollmentFromSession(ctx context.Context, session *gateway.CheckoutSession, claims *models.JWTClaims) (*models.Enrollment, error) {
	classID := session.Metadata["classId"]
	if classID == "" {
		return nil, nil
	}

	studentID := session.Metadata["studentId"]
	if studentID == "" {
		student, err := s.students.FindByUserID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "no student profile for caller")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student profile")
		}
		studentID = student.ID
	} else if claims.Role != models.RoleAdmin {
		student, err := s.students.FindByID(ctx, studentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "student does not belong to caller")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student profile")
		}
		if student.UserID != claims.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "student does not belong to caller")
		}
	}

	return &models.Enrollment{StudentID: studentID, ClassID: classID}, nil
}

// enqueueReconcile schedules a retry of the confirmation so a verified
// processor payment is never lost to a transient database failure.
func (s *PaymentService) enqueueReconcile(sessionID string, enrollment *models.Enrollment, actorID *string) {
	if s.reconcile == nil {
		return
	}
	err := s.reconcile.Enqueue(jobs.Job{
		ID:   uuid.NewString(),
		Type: ReconcileJobType,
		Payload: ReconcilePayload{
			SessionID:  sessionID,
			Enrollment: enrollment,
			ActorID:    actorID,
		},
	})
	if err != nil {
		s.logger.Error("failed to enqueue payment reconciliation",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

// ReconcilePayload is the queued retry of a failed payment confirmation.
type ReconcilePayload struct {
	SessionID  string
	Enrollment *models.Enrollment
	ActorID    *string
}

// ReconcileHandler returns the jobs.Handler that re-applies a failed
// confirmation. Wired to the reconciliation queue at startup.
func (s *PaymentService) ReconcileHandler() jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(ReconcilePayload)
		if !ok {
			s.logger.Error("unexpected reconcile payload", zap.String("job_id", job.ID))
			return nil
		}
		_, _, err := s.payments.ConfirmPaid(ctx, payload.SessionID, payload.Enrollment, payload.ActorID, s.now())
		if err != nil {
			return err
		}
		s.logger.Info("payment reconciliation applied", zap.String("session_id", payload.SessionID))
		return nil
	}
}

func (s *PaymentService) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObservePaymentVerification(outcome)
	}
}
