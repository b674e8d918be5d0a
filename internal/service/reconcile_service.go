package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/admission-tracker-api/internal/models"
	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
)

type reconcileApplicationRepository interface {
	ListByStatus(ctx context.Context, status models.ApplicationStatus) ([]models.StudentApplication, error)
}

type reconcileIncentiveRepository interface {
	ListStudentIDs(ctx context.Context) (map[string]struct{}, error)
	Create(ctx context.Context, incentive *models.Incentive) error
}

type reconcileRuleRepository interface {
	FindActiveByCourse(ctx context.Context, course string) (*models.IncentiveRule, error)
	Create(ctx context.Context, rule *models.IncentiveRule) error
}

// ReconcileReport summarizes one backfill pass over approved applications.
type ReconcileReport struct {
	Scanned      int `json:"scanned"`
	Created      int `json:"created"`
	Skipped      int `json:"skipped"`
	RulesCreated int `json:"rules_created"`
}

// ReconcileService backfills missing ledger entries for approved
// applications. The pass is idempotent: students that already have an
// entry are skipped, so running it repeatedly changes nothing.
type ReconcileService struct {
	applications      reconcileApplicationRepository
	incentives        reconcileIncentiveRepository
	rules             reconcileRuleRepository
	audits            workflowAuditRepository
	defaultRuleAmount float64
	logger            *zap.Logger
}

// NewReconcileService constructs the reconciliation service.
func NewReconcileService(
	applications reconcileApplicationRepository,
	incentives reconcileIncentiveRepository,
	rules reconcileRuleRepository,
	audits workflowAuditRepository,
	defaultRuleAmount float64,
	logger *zap.Logger,
) *ReconcileService {
	if defaultRuleAmount <= 0 {
		defaultRuleAmount = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{
		applications:      applications,
		incentives:        incentives,
		rules:             rules,
		audits:            audits,
		defaultRuleAmount: defaultRuleAmount,
		logger:            logger,
	}
}

// Run scans every approved application and creates unpaid ledger entries
// for those that have none. Courses without an active rule get one created
// on the fly with a keyword-derived amount.
func (s *ReconcileService) Run(ctx context.Context, actor *models.JWTClaims) (*ReconcileReport, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin access required")
	}

	approved, err := s.applications.ListByStatus(ctx, models.StatusApproved)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approved applications")
	}
	existing, err := s.incentives.ListStudentIDs(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load incentive ledger")
	}

	report := &ReconcileReport{Scanned: len(approved)}
	for i := range approved {
		app := &approved[i]
		if _, ok := existing[app.ID]; ok {
			report.Skipped++
			continue
		}

		rule, err := s.rules.FindActiveByCourse(ctx, app.Course)
		if errors.Is(err, sql.ErrNoRows) {
			rule = &models.IncentiveRule{
				Course: app.Course,
				Amount: s.defaultAmountFor(app.Course),
				Active: true,
			}
			if err := s.rules.Create(ctx, rule); err != nil {
				s.logger.Warn("failed to auto-create incentive rule",
					zap.String("course", app.Course),
					zap.Error(err))
				report.Skipped++
				continue
			}
			report.RulesCreated++
			s.logger.Info("auto-created incentive rule during reconciliation",
				zap.String("course", rule.Course),
				zap.Float64("amount", rule.Amount))
		} else if err != nil {
			s.logger.Warn("failed to resolve incentive rule",
				zap.String("course", app.Course),
				zap.Error(err))
			report.Skipped++
			continue
		}

		incentive := &models.Incentive{
			AgentID:   app.AgentID,
			StudentID: app.ID,
			Course:    app.Course,
			Amount:    rule.Amount,
			Status:    models.IncentiveUnpaid,
		}
		if err := s.incentives.Create(ctx, incentive); err != nil {
			s.logger.Warn("failed to backfill incentive",
				zap.String("student_id", app.ID),
				zap.Error(err))
			report.Skipped++
			continue
		}
		existing[app.ID] = struct{}{}
		report.Created++
	}

	if s.audits != nil {
		if err := s.audits.CreateAuditLog(ctx, &models.AuditLog{
			UserID:   &actor.UserID,
			Action:   models.AuditActionReconcile,
			Resource: "incentives",
		}); err != nil {
			s.logger.Warn("failed to record reconciliation audit log", zap.Error(err))
		}
	}

	s.logger.Info("incentive reconciliation complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("rules_created", report.RulesCreated))
	return report, nil
}

// defaultAmountFor derives a starting amount for courses that never had a
// rule configured. Program keywords map to the historical payout tiers.
func (s *ReconcileService) defaultAmountFor(course string) float64 {
	lower := strings.ToLower(course)
	switch {
	case strings.Contains(lower, "mba"):
		return 2500
	case strings.Contains(lower, "nursing"):
		return 2000
	case strings.Contains(lower, "bsc"):
		return 1500
	default:
		return s.defaultRuleAmount
	}
}
