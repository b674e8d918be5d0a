package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-tracker-api/internal/models"
	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
)

type incentiveRuleRepository interface {
	List(ctx context.Context) ([]models.IncentiveRule, error)
	FindByID(ctx context.Context, id string) (*models.IncentiveRule, error)
	ExistsActiveByCourse(ctx context.Context, course string, excludeID string) (bool, error)
	Create(ctx context.Context, rule *models.IncentiveRule) error
	Update(ctx context.Context, rule *models.IncentiveRule) error
	Deactivate(ctx context.Context, id string) error
}

type incentiveLedgerRepository interface {
	List(ctx context.Context, filter models.IncentiveFilter) ([]models.Incentive, int, error)
	FindByID(ctx context.Context, id string) (*models.Incentive, error)
	UpdateStatus(ctx context.Context, id string, status models.IncentiveStatus) error
	Totals(ctx context.Context, agentID string) (*models.IncentiveSummary, error)
}

// CreateRuleRequest is the payload for defining a per-course payout rule.
// A zero amount is a valid rule; it suppresses payouts for the course.
type CreateRuleRequest struct {
	Course string   `json:"course" validate:"required"`
	Amount *float64 `json:"amount" validate:"required,gte=0"`
}

// UpdateRuleRequest carries the mutable rule fields.
type UpdateRuleRequest struct {
	Course *string  `json:"course"`
	Amount *float64 `json:"amount" validate:"omitempty,gte=0"`
	Active *bool    `json:"active"`
}

// LedgerPage bundles ledger rows with the caller's running totals.
type LedgerPage struct {
	Incentives []models.Incentive       `json:"incentives"`
	Summary    *models.IncentiveSummary `json:"summary"`
	Pagination *models.Pagination       `json:"pagination"`
}

// IncentiveService manages payout rules and the incentive ledger.
type IncentiveService struct {
	rules     incentiveRuleRepository
	ledger    incentiveLedgerRepository
	audits    workflowAuditRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewIncentiveService constructs the incentive service.
func NewIncentiveService(
	rules incentiveRuleRepository,
	ledger incentiveLedgerRepository,
	audits workflowAuditRepository,
	validate *validator.Validate,
	logger *zap.Logger,
) *IncentiveService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IncentiveService{
		rules:     rules,
		ledger:    ledger,
		audits:    audits,
		validator: validate,
		logger:    logger,
	}
}

// ListRules returns every payout rule, active and inactive.
func (s *IncentiveService) ListRules(ctx context.Context, actor *models.JWTClaims) ([]models.IncentiveRule, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin access required")
	}
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list incentive rules")
	}
	return rules, nil
}

// CreateRule defines a new payout rule. At most one active rule may exist
// per course.
func (s *IncentiveService) CreateRule(ctx context.Context, actor *models.JWTClaims, req CreateRuleRequest) (*models.IncentiveRule, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin access required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rule payload")
	}
	course := strings.TrimSpace(req.Course)
	if course == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course is required")
	}

	exists, err := s.rules.ExistsActiveByCourse(ctx, course, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing rules")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an active rule already exists for this course")
	}

	rule := &models.IncentiveRule{
		Course: course,
		Amount: *req.Amount,
		Active: true,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create incentive rule")
	}
	s.recordAudit(ctx, actor, models.AuditActionRuleCreate, "incentive_rules", rule.ID)
	return rule, nil
}

// UpdateRule rewrites a rule's course, amount or active flag. Renaming and
// reactivating both honor the one-active-rule-per-course constraint.
func (s *IncentiveService) UpdateRule(ctx context.Context, actor *models.JWTClaims, id string, req UpdateRuleRequest) (*models.IncentiveRule, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin access required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rule payload")
	}

	rule, err := s.rules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "incentive rule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load incentive rule")
	}

	course := rule.Course
	if req.Course != nil {
		course = strings.TrimSpace(*req.Course)
		if course == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course cannot be blank")
		}
	}
	active := rule.Active
	if req.Active != nil {
		active = *req.Active
	}

	if active && (course != rule.Course || !rule.Active) {
		exists, err := s.rules.ExistsActiveByCourse(ctx, course, rule.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing rules")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an active rule already exists for this course")
		}
	}

	rule.Course = course
	rule.Active = active
	if req.Amount != nil {
		rule.Amount = *req.Amount
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update incentive rule")
	}
	s.recordAudit(ctx, actor, models.AuditActionRuleUpdate, "incentive_rules", rule.ID)
	return rule, nil
}

// DeactivateRule retires a rule. Existing ledger entries keep the amount
// they were awarded with.
func (s *IncentiveService) DeactivateRule(ctx context.Context, actor *models.JWTClaims, id string) error {
	if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "admin access required")
	}
	if _, err := s.rules.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "incentive rule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load incentive rule")
	}
	if err := s.rules.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate incentive rule")
	}
	s.recordAudit(ctx, actor, models.AuditActionRuleDelete, "incentive_rules", id)
	return nil
}

// Ledger returns ledger entries visible to the caller together with
// earned/pending totals. Agents are always scoped to their own grouping
// key.
func (s *IncentiveService) Ledger(ctx context.Context, actor *models.JWTClaims, filter models.IncentiveFilter) (*LedgerPage, error) {
	if actor.Role == models.RoleAgent {
		filter.AgentID = actor.GroupKey()
	}
	incentives, total, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list incentives")
	}
	summary, err := s.ledger.Totals(ctx, filter.AgentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to total incentives")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return &LedgerPage{
		Incentives: incentives,
		Summary:    summary,
		Pagination: &models.Pagination{Page: page, PageSize: size, TotalCount: total},
	}, nil
}

// SetStatus flips one ledger entry between unpaid and paid.
func (s *IncentiveService) SetStatus(ctx context.Context, actor *models.JWTClaims, id string, status models.IncentiveStatus) (*models.Incentive, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin access required")
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be paid or unpaid")
	}
	incentive, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "incentive not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load incentive")
	}
	if incentive.Status == status {
		return incentive, nil
	}
	if err := s.ledger.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update incentive status")
	}
	incentive.Status = status
	s.recordAudit(ctx, actor, models.AuditActionIncentivePayout, "incentives", id)
	return incentive, nil
}

func (s *IncentiveService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, resource, resourceID string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
