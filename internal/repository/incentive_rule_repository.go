package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/admission-tracker-api/internal/models"
)

const ruleColumns = `id, course, amount, active, created_at, updated_at`

// IncentiveRuleRepository manages the course payout rule table.
type IncentiveRuleRepository struct {
	db *sqlx.DB
}

// NewIncentiveRuleRepository constructs an IncentiveRuleRepository.
func NewIncentiveRuleRepository(db *sqlx.DB) *IncentiveRuleRepository {
	return &IncentiveRuleRepository{db: db}
}

// List returns all rules, active and inactive.
func (r *IncentiveRuleRepository) List(ctx context.Context) ([]models.IncentiveRule, error) {
	query := fmt.Sprintf("SELECT %s FROM incentive_rules ORDER BY course, created_at", ruleColumns)
	var rules []models.IncentiveRule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("list incentive rules: %w", err)
	}
	return rules, nil
}

// FindByID fetches a rule by identifier.
func (r *IncentiveRuleRepository) FindByID(ctx context.Context, id string) (*models.IncentiveRule, error) {
	query := fmt.Sprintf("SELECT %s FROM incentive_rules WHERE id = $1 LIMIT 1", ruleColumns)
	var rule models.IncentiveRule
	if err := r.db.GetContext(ctx, &rule, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find incentive rule by id: %w", err)
	}
	return &rule, nil
}

// FindActiveByCourse returns the active rule for the exact course string.
// Matching is case-sensitive and unnormalized on purpose.
func (r *IncentiveRuleRepository) FindActiveByCourse(ctx context.Context, course string) (*models.IncentiveRule, error) {
	query := fmt.Sprintf("SELECT %s FROM incentive_rules WHERE course = $1 AND active = TRUE LIMIT 1", ruleColumns)
	var rule models.IncentiveRule
	if err := r.db.GetContext(ctx, &rule, query, course); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active rule by course: %w", err)
	}
	return &rule, nil
}

// ExistsActiveByCourse checks for a live rule on the exact course string,
// optionally excluding a rule id (used by update).
func (r *IncentiveRuleRepository) ExistsActiveByCourse(ctx context.Context, course string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM incentive_rules WHERE course = $1 AND active = TRUE"
	args := []interface{}{course}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active rule: %w", err)
	}
	return true, nil
}

// Create inserts a new rule.
func (r *IncentiveRuleRepository) Create(ctx context.Context, rule *models.IncentiveRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	const query = `INSERT INTO incentive_rules (id, course, amount, active, created_at, updated_at)
        VALUES (:id, :course, :amount, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("create incentive rule: %w", err)
	}
	return nil
}

// Update rewrites course and amount on an existing rule. Existing incentive
// records keep the amount copied at award time.
func (r *IncentiveRuleRepository) Update(ctx context.Context, rule *models.IncentiveRule) error {
	rule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE incentive_rules SET course = :course, amount = :amount, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("update incentive rule: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a rule by flipping its active flag.
func (r *IncentiveRuleRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE incentive_rules SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate incentive rule: %w", err)
	}
	return nil
}
