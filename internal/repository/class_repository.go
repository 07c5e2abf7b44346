package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
)

// ClassRepository reads swim classes and their scheduled sessions. The
// calendar surface is read-only; session writes happen through admin tooling
// outside this API.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class by identifier.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, level, instructor, capacity, price_cents, currency, active, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListActive returns every bookable class.
func (r *ClassRepository) ListActive(ctx context.Context) ([]models.Class, error) {
	const query = `SELECT id, name, level, instructor, capacity, price_cents, currency, active, created_at, updated_at FROM classes WHERE active = TRUE ORDER BY name`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// ListSessions returns calendar sessions matching the filter.
func (r *ClassRepository) ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.ClassSessionDetail, int, error) {
	base := `FROM class_sessions cs
JOIN classes c ON c.id = cs.class_id`
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("cs.starts_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("cs.starts_at < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT cs.id, cs.class_id, cs.starts_at, cs.ends_at, cs.lane, cs.capacity, cs.booked, cs.cancelled, cs.created_at, cs.updated_at,
        c.name AS class_name, c.level AS class_level, c.instructor
        %s ORDER BY cs.starts_at ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var sessions []models.ClassSessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list class sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count class sessions: %w", err)
	}
	return sessions, total, nil
}
