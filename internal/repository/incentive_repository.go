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

const incentiveColumns = `id, agent_id, student_id, course, amount, status, created_at`

// IncentiveRepository manages the per-student payout ledger.
type IncentiveRepository struct {
	db *sqlx.DB
}

// NewIncentiveRepository constructs an IncentiveRepository.
func NewIncentiveRepository(db *sqlx.DB) *IncentiveRepository {
	return &IncentiveRepository{db: db}
}

// List returns ledger entries matching the filter along with a total count.
func (r *IncentiveRepository) List(ctx context.Context, filter models.IncentiveFilter) ([]models.Incentive, int, error) {
	base := "FROM incentives WHERE 1=1"
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
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", incentiveColumns, base, size, offset)
	var incentives []models.Incentive
	if err := r.db.SelectContext(ctx, &incentives, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list incentives: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count incentives: %w", err)
	}
	return incentives, total, nil
}

// FindByID fetches a ledger entry by identifier.
func (r *IncentiveRepository) FindByID(ctx context.Context, id string) (*models.Incentive, error) {
	query := fmt.Sprintf("SELECT %s FROM incentives WHERE id = $1 LIMIT 1", incentiveColumns)
	var incentive models.Incentive
	if err := r.db.GetContext(ctx, &incentive, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find incentive by id: %w", err)
	}
	return &incentive, nil
}

// Create inserts a new ledger entry.
func (r *IncentiveRepository) Create(ctx context.Context, incentive *models.Incentive) error {
	if incentive.ID == "" {
		incentive.ID = uuid.NewString()
	}
	if incentive.CreatedAt.IsZero() {
		incentive.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO incentives (id, agent_id, student_id, course, amount, status, created_at)
        VALUES (:id, :agent_id, :student_id, :course, :amount, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, incentive); err != nil {
		return fmt.Errorf("create incentive: %w", err)
	}
	return nil
}

// UpdateStatus flips the paid/unpaid flag. No other field is mutable.
func (r *IncentiveRepository) UpdateStatus(ctx context.Context, id string, status models.IncentiveStatus) error {
	const query = `UPDATE incentives SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update incentive status: %w", err)
	}
	return nil
}

// ListStudentIDs returns the set of student ids that already have a ledger
// entry. The reconciliation pass builds this set before iterating.
func (r *IncentiveRepository) ListStudentIDs(ctx context.Context) (map[string]struct{}, error) {
	const query = `SELECT student_id FROM incentives`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list incentive student ids: %w", err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// FindByStudentID returns the ledger entry awarded for a student, if any.
func (r *IncentiveRepository) FindByStudentID(ctx context.Context, studentID string) (*models.Incentive, error) {
	query := fmt.Sprintf("SELECT %s FROM incentives WHERE student_id = $1 LIMIT 1", incentiveColumns)
	var incentive models.Incentive
	if err := r.db.GetContext(ctx, &incentive, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find incentive by student id: %w", err)
	}
	return &incentive, nil
}

// Totals sums ledger amounts by payout state, optionally scoped to one
// agent grouping key.
func (r *IncentiveRepository) Totals(ctx context.Context, agentID string) (*models.IncentiveSummary, error) {
	query := `SELECT
        COALESCE(SUM(amount) FILTER (WHERE status = 'paid'), 0) AS total_earned,
        COALESCE(SUM(amount) FILTER (WHERE status = 'unpaid'), 0) AS total_pending
        FROM incentives`
	var args []interface{}
	if agentID != "" {
		query += " WHERE agent_id = $1"
		args = append(args, agentID)
	}
	var summary models.IncentiveSummary
	if err := r.db.GetContext(ctx, &summary, query, args...); err != nil {
		return nil, fmt.Errorf("sum incentives: %w", err)
	}
	return &summary, nil
}

// TotalsByStatus sums ledger amounts grouped by payout state.
func (r *IncentiveRepository) TotalsByStatus(ctx context.Context) (map[models.IncentiveStatus]float64, error) {
	const query = `SELECT status, COALESCE(SUM(amount), 0) AS total FROM incentives GROUP BY status`
	rows := []struct {
		Status models.IncentiveStatus `db:"status"`
		Total  float64                `db:"total"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("sum incentives by status: %w", err)
	}
	totals := make(map[models.IncentiveStatus]float64, len(rows))
	for _, row := range rows {
		totals[row.Status] = row.Total
	}
	return totals, nil
}
