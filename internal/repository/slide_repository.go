package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/studydeck/content-api/internal/models"
)

const slideColumns = `id, title, description, course_id, file_url, file_path, mime_type, size_bytes, uploaded_by, created_at`

// QueryObserver receives per-query timings.
type QueryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// SlideRepository handles slide metadata persistence.
type SlideRepository struct {
	db      *sqlx.DB
	metrics QueryObserver
}

// NewSlideRepository constructs the repository. metrics may be nil.
func NewSlideRepository(db *sqlx.DB, metrics QueryObserver) *SlideRepository {
	return &SlideRepository{db: db, metrics: metrics}
}

func (r *SlideRepository) observe(label string, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveDBQuery(label, time.Since(start))
	}
}

// Create stores metadata for an uploaded slide file.
func (r *SlideRepository) Create(ctx context.Context, slide *models.Slide) error {
	if slide.ID == "" {
		slide.ID = uuid.NewString()
	}
	if slide.CreatedAt.IsZero() {
		slide.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO slides
	(id, title, description, course_id, file_url, file_path, mime_type, size_bytes, uploaded_by, created_at)
	VALUES (:id, :title, :description, :course_id, :file_url, :file_path, :mime_type, :size_bytes, :uploaded_by, :created_at)`
	defer r.observe("slides.create", time.Now())
	if _, err := r.db.NamedExecContext(ctx, query, slide); err != nil {
		return fmt.Errorf("create slide: %w", err)
	}
	return nil
}

// GetByID retrieves one slide row.
func (r *SlideRepository) GetByID(ctx context.Context, id string) (*models.Slide, error) {
	query := fmt.Sprintf(`SELECT %s FROM slides WHERE id = $1`, slideColumns)
	defer r.observe("slides.get", time.Now())
	var slide models.Slide
	if err := r.db.GetContext(ctx, &slide, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get slide %s: %w", id, err)
	}
	return &slide, nil
}

// List returns slides matching the filter. Conditions compose in a fixed
// order: text search on title, course equality, then the type predicate;
// the ordering clause follows the requested sort.
func (r *SlideRepository) List(ctx context.Context, filter models.SlideFilter) ([]models.Slide, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM slides`, slideColumns))

	conditions, args := slideConditions(filter)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	builder.WriteString(" ORDER BY ")
	builder.WriteString(orderClause(filter.Sort))

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	defer r.observe("slides.list", time.Now())
	var slides []models.Slide
	if err := r.db.SelectContext(ctx, &slides, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list slides: %w", err)
	}
	return slides, nil
}

// Count returns the number of slides matching the filter, ignoring pagination.
func (r *SlideRepository) Count(ctx context.Context, filter models.SlideFilter) (int, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT COUNT(*) FROM slides`)

	conditions, args := slideConditions(filter)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	defer r.observe("slides.count", time.Now())
	var total int
	if err := r.db.GetContext(ctx, &total, builder.String(), args...); err != nil {
		return 0, fmt.Errorf("count slides: %w", err)
	}
	return total, nil
}

// DistinctCourses returns the sorted set of course identifiers across all slides.
func (r *SlideRepository) DistinctCourses(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT course_id FROM slides ORDER BY course_id ASC`
	defer r.observe("slides.courses", time.Now())
	var courses []string
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("distinct courses: %w", err)
	}
	return courses, nil
}

// Delete removes a slide row by identifier. Returns sql.ErrNoRows when no
// row was deleted.
func (r *SlideRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM slides WHERE id = $1`
	defer r.observe("slides.delete", time.Now())
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete slide %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check slide delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PrivilegedDelete removes a slide through the definer-rights database
// function, bypassing row-level policies that reject the plain delete.
func (r *SlideRepository) PrivilegedDelete(ctx context.Context, id string) error {
	const query = `SELECT admin_delete_slide($1)`
	defer r.observe("slides.privileged_delete", time.Now())
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("privileged delete slide %s: %w", id, err)
	}
	return nil
}

// Probe issues a lightweight connectivity check against the store.
func (r *SlideRepository) Probe(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// IsPermissionDenied reports whether the error is a Postgres privilege or
// row-level-security rejection, the trigger for the privileged delete fallback.
func IsPermissionDenied(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 42501 insufficient_privilege, 0L/0P privilege classes.
		return pqErr.Code == "42501" || pqErr.Code.Class() == "0L" || pqErr.Code.Class() == "0P"
	}
	return false
}

func slideConditions(filter models.SlideFilter) ([]string, []interface{}) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)

	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)))
	}

	switch filter.Type {
	case models.TypeFilterImage:
		conditions = append(conditions, "mime_type LIKE 'image/%'")
	case models.TypeFilterPDF:
		conditions = append(conditions, "mime_type = 'application/pdf'")
	case models.TypeFilterOther:
		conditions = append(conditions, "NOT (mime_type LIKE 'image/%' OR mime_type = 'application/pdf')")
	}

	return conditions, args
}

func orderClause(sort models.SortOrder) string {
	switch sort {
	case models.SortOldest:
		return "created_at ASC"
	case models.SortTitleAsc:
		return "title ASC"
	case models.SortTitleDesc:
		return "title DESC"
	default:
		return "created_at DESC"
	}
}
