package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
	appErrors "github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/errors"
)

type studentRepository interface {
	ListByUserID(ctx context.Context, userID string) ([]models.Student, error)
	Create(ctx context.Context, student *models.Student) error
}

// CreateStudentRequest registers a swimmer profile under the caller's account.
type CreateStudentRequest struct {
	FullName    string     `json:"full_name" binding:"required" validate:"required"`
	Level       string     `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	DateOfBirth *time.Time `json:"date_of_birth"`
}

// StudentService manages the swimmer profiles a portal account owns.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// ListMine returns the caller's swimmer profiles.
func (s *StudentService) ListMine(ctx context.Context, claims *models.JWTClaims) ([]models.Student, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	students, err := s.repo.ListByUserID(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// Create registers a swimmer profile owned by the caller.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest, claims *models.JWTClaims) (*models.Student, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student := &models.Student{
		UserID:      claims.UserID,
		FullName:    req.FullName,
		Level:       req.Level,
		DateOfBirth: req.DateOfBirth,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.logger.Info("student profile created",
		zap.String("student_id", student.ID),
		zap.String("user_id", claims.UserID))
	return student, nil
}
