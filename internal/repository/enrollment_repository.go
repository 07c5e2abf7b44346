package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria. Admin listing;
// owner-scoped reads with the visibility window go through ListVisible.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN classes c ON c.id = e.class_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("s.user_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "s.full_name",
		"class_name":   "c.name",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "enrolled_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.class_id, e.status, e.payment_status, e.cancelled_at, e.cleanup_logged_at, e.enrolled_at, e.updated_at,
        s.full_name AS student_name, c.name AS class_name, c.level AS class_level
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListVisible returns the owner's enrollments that should still appear in the
// portal: every active one plus cancelled ones whose cancellation is newer
// than the cutoff.
func (r *EnrollmentRepository) ListVisible(ctx context.Context, ownerUserID string, cancelledAfter time.Time) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.status, e.payment_status, e.cancelled_at, e.cleanup_logged_at, e.enrolled_at, e.updated_at,
        s.full_name AS student_name, c.name AS class_name, c.level AS class_level
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN classes c ON c.id = e.class_id
        WHERE s.user_id = $1 AND (e.status = $2 OR (e.status = $3 AND e.cancelled_at > $4))
        ORDER BY e.enrolled_at DESC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, ownerUserID, models.EnrollmentStatusActive, models.EnrollmentStatusCancelled, cancelledAfter); err != nil {
		return nil, fmt.Errorf("list visible enrollments: %w", err)
	}
	return enrollments, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, status, payment_status, cancelled_at, cleanup_logged_at, enrolled_at, updated_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.status, e.payment_status, e.cancelled_at, e.cleanup_logged_at, e.enrolled_at, e.updated_at,
        s.full_name AS student_name, c.name AS class_name, c.level AS class_level
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN classes c ON c.id = e.class_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Cancel marks the enrollment cancelled at the given time.
func (r *EnrollmentRepository) Cancel(ctx context.Context, id string, cancelledAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, cancelled_at = $3, cleanup_logged_at = NULL, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusCancelled, cancelledAt); err != nil {
		return fmt.Errorf("cancel enrollment: %w", err)
	}
	return nil
}

// Reactivate flips a cancelled enrollment back to active and records the
// reactivation event in the same transaction so a crash mid-operation cannot
// leave a status flip without its audit trail (or the reverse). The UPDATE
// re-checks the status and the window cutoff, so a concurrent reactivation or
// a window that expired since the caller's read matches zero rows and the
// whole transaction rolls back with sql.ErrNoRows.
func (r *EnrollmentRepository) Reactivate(ctx context.Context, id string, actorID *string, cancelledAfter, occurredAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reactivation: %w", err)
	}

	const update = `UPDATE enrollments SET status = $2, cancelled_at = NULL, cleanup_logged_at = NULL, updated_at = $3
        WHERE id = $1 AND status = $4 AND cancelled_at >= $5`
	res, err := tx.ExecContext(ctx, update, id, models.EnrollmentStatusActive, occurredAt, models.EnrollmentStatusCancelled, cancelledAfter)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("reactivate enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("reactivate enrollment: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return sql.ErrNoRows
	}

	metadata, _ := json.Marshal(map[string]interface{}{"reactivated_at": occurredAt})
	const insertEvent = `INSERT INTO reservation_events (id, enrollment_id, event_type, actor_id, metadata, occurred_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err = tx.ExecContext(ctx, insertEvent, uuid.NewString(), id, models.EventTypeReactivate, actorID, metadata, occurredAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record reactivation event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reactivation: %w", err)
	}
	return nil
}

// ListExpiredCancellations returns cancelled enrollments whose visibility
// window has elapsed and that the sweep has not logged yet.
func (r *EnrollmentRepository) ListExpiredCancellations(ctx context.Context, cutoff time.Time) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.status, e.payment_status, e.cancelled_at, e.cleanup_logged_at, e.enrolled_at, e.updated_at,
        s.full_name AS student_name, COALESCE(c.name, '') AS class_name, COALESCE(c.level, '') AS class_level
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN classes c ON c.id = e.class_id
        WHERE e.status = $1 AND e.cancelled_at <= $2 AND e.cleanup_logged_at IS NULL`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, models.EnrollmentStatusCancelled, cutoff); err != nil {
		return nil, fmt.Errorf("list expired cancellations: %w", err)
	}
	return enrollments, nil
}

// MarkCleanupLogged stamps the dedup marker and reports whether this call
// won the claim. The IS NULL predicate makes the stamp a compare-and-set, so
// of two sweeps racing over the same enrollment exactly one sees true.
func (r *EnrollmentRepository) MarkCleanupLogged(ctx context.Context, id string, loggedAt time.Time) (bool, error) {
	const query = `UPDATE enrollments SET cleanup_logged_at = $2 WHERE id = $1 AND cleanup_logged_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, loggedAt)
	if err != nil {
		return false, fmt.Errorf("mark cleanup logged: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark cleanup logged: %w", err)
	}
	return affected > 0, nil
}
