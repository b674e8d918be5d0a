package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/admission-tracker-api/internal/models"
)

const applicationColumns = `id, token_number, agent_id, first_name, last_name, email, phone, course, documents, status,
        coordinator_notes, signature_data, signature_type, coordinator_approved_at, coordinator_approved_by,
        admin_approved_at, admin_approved_by, admin_rejected_at, admin_rejected_by, admin_notes, created_at, updated_at`

// ApplicationRepository manages persistence for student application records.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs an ApplicationRepository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// List returns applications matching the provided filters.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.StudentApplication, int, error) {
	base := "FROM student_applications WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.AgentID != "" {
		conditions = append(conditions, fmt.Sprintf("agent_id = $%d", len(args)+1))
		args = append(args, filter.AgentID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Course != "" {
		conditions = append(conditions, fmt.Sprintf("course = $%d", len(args)+1))
		args = append(args, filter.Course)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(first_name) LIKE $%d OR LOWER(last_name) LIKE $%d OR LOWER(token_number) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.StartDate != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)+1))
		args = append(args, *filter.EndDate)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at":   true,
		"updated_at":   true,
		"token_number": true,
		"course":       true,
		"status":       true,
	}
	if sortBy == "" || !allowedSorts[sortBy] {
		sortBy = "created_at"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", applicationColumns, base, sortBy, order, size, offset)

	var applications []models.StudentApplication
	if err := r.db.SelectContext(ctx, &applications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return applications, total, nil
}

// FindByID fetches an application by ID.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.StudentApplication, error) {
	query := fmt.Sprintf("SELECT %s FROM student_applications WHERE id = $1 LIMIT 1", applicationColumns)
	var app models.StudentApplication
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by id: %w", err)
	}
	return &app, nil
}

// ExistsByTokenNumber checks whether a token number is already taken. The
// check is advisory, not transactional; the submit flow retries on collision.
func (r *ApplicationRepository) ExistsByTokenNumber(ctx context.Context, tokenNumber string) (bool, error) {
	const query = `SELECT 1 FROM student_applications WHERE token_number = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, tokenNumber); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check token number: %w", err)
	}
	return true, nil
}

// CountCreatedSince counts applications created at or after the given time.
func (r *ApplicationRepository) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM student_applications WHERE created_at >= $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, since); err != nil {
		return 0, fmt.Errorf("count applications since: %w", err)
	}
	return total, nil
}

// Create inserts a new application record.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.StudentApplication) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if app.Documents == nil {
		app.Documents = models.DocumentMap{}
	}
	const query = `INSERT INTO student_applications (id, token_number, agent_id, first_name, last_name, email, phone, course, documents, status, created_at, updated_at)
        VALUES (:id, :token_number, :agent_id, :first_name, :last_name, :email, :phone, :course, :documents, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// Update rewrites the workflow fields of an existing application.
func (r *ApplicationRepository) Update(ctx context.Context, app *models.StudentApplication) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE student_applications SET status = :status, coordinator_notes = :coordinator_notes,
        signature_data = :signature_data, signature_type = :signature_type,
        coordinator_approved_at = :coordinator_approved_at, coordinator_approved_by = :coordinator_approved_by,
        admin_approved_at = :admin_approved_at, admin_approved_by = :admin_approved_by,
        admin_rejected_at = :admin_rejected_at, admin_rejected_by = :admin_rejected_by,
        admin_notes = :admin_notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	return nil
}

// SetDocumentPath stores the storage path for one document type.
func (r *ApplicationRepository) SetDocumentPath(ctx context.Context, id, documentType, path string) error {
	const query = `UPDATE student_applications
        SET documents = jsonb_set(COALESCE(documents, '{}'::jsonb), ARRAY[$2], to_jsonb($3::text), true), updated_at = $4
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, documentType, path, time.Now().UTC()); err != nil {
		return fmt.Errorf("set document path: %w", err)
	}
	return nil
}

// ListByStatus returns all applications currently in the given status. Used
// by the reconciliation pass over approved records.
func (r *ApplicationRepository) ListByStatus(ctx context.Context, status models.ApplicationStatus) ([]models.StudentApplication, error) {
	query := fmt.Sprintf("SELECT %s FROM student_applications WHERE status = $1 ORDER BY created_at", applicationColumns)
	var applications []models.StudentApplication
	if err := r.db.SelectContext(ctx, &applications, query, status); err != nil {
		return nil, fmt.Errorf("list applications by status: %w", err)
	}
	return applications, nil
}

// CountByStatus returns per-status totals for dashboard reporting.
func (r *ApplicationRepository) CountByStatus(ctx context.Context) (map[models.ApplicationStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS total FROM student_applications GROUP BY status`
	rows := []struct {
		Status models.ApplicationStatus `db:"status"`
		Total  int                      `db:"total"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count applications by status: %w", err)
	}
	counts := make(map[models.ApplicationStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
