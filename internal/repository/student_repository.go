package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
)

// StudentRepository handles persistence of swimmer profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student profile by identifier.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, user_id, full_name, level, date_of_birth, created_at, updated_at FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByUserID resolves the profile owned by a portal account. Payment
// verification uses this to map the authenticated caller to a student row.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	const query = `SELECT id, user_id, full_name, level, date_of_birth, created_at, updated_at FROM students WHERE user_id = $1 ORDER BY created_at LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, userID); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListByUserID returns every profile owned by a portal account.
func (r *StudentRepository) ListByUserID(ctx context.Context, userID string) ([]models.Student, error) {
	const query = `SELECT id, user_id, full_name, level, date_of_birth, created_at, updated_at FROM students WHERE user_id = $1 ORDER BY created_at`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, userID); err != nil {
		return nil, fmt.Errorf("list students for user: %w", err)
	}
	return students, nil
}

// Create inserts a swimmer profile.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, user_id, full_name, level, date_of_birth, created_at, updated_at)
        VALUES (:id, :user_id, :full_name, :level, :date_of_birth, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}
