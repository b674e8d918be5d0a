package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-tracker-api/internal/models"
	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
)

type workflowApplicationRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentApplication, error)
	Update(ctx context.Context, app *models.StudentApplication) error
}

type workflowRuleRepository interface {
	FindActiveByCourse(ctx context.Context, course string) (*models.IncentiveRule, error)
}

type workflowIncentiveRepository interface {
	Create(ctx context.Context, incentive *models.Incentive) error
}

type workflowAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// NextStatus resolves the status an update request may move an application
// to, given the caller's role. Coordinator-requested final approval is
// rewritten to coordinator_approved: granting final approval is an
// admin-exclusive right, enforced here so every entry point shares the same
// rule. Admin final approval and rejection have dedicated operations and are
// not reachable through this function.
func NextStatus(current, requested models.ApplicationStatus, role models.UserRole) (models.ApplicationStatus, error) {
	if role != models.RoleCoordinator && role != models.RoleAdmin {
		return "", appErrors.Clone(appErrors.ErrForbidden, "only coordinators and admins can update status")
	}
	if !requested.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown application status")
	}
	if current.Terminal() {
		return "", appErrors.Clone(appErrors.ErrValidation, "application is already finalized")
	}
	if requested == models.StatusApproved {
		if role == models.RoleCoordinator {
			return models.StatusCoordinatorApproved, nil
		}
		return "", appErrors.Clone(appErrors.ErrValidation, "final approval is granted via the admin approve operation")
	}
	return requested, nil
}

// UpdateStatusRequest carries a coordinator/admin status transition.
type UpdateStatusRequest struct {
	Status        string `json:"status" form:"status" validate:"required"`
	Notes         string `json:"notes" form:"notes"`
	SignatureData string `json:"signature_data" form:"signature_data"`
	SignatureType string `json:"signature_type" form:"signature_type"`
}

// AdminDecisionRequest carries the admin approve/reject payload.
type AdminDecisionRequest struct {
	Notes string `json:"notes" form:"notes"`
}

// WorkflowService is the approval engine: it enforces legal status
// transitions, gates each transition by caller role, and awards incentives
// on final approval.
type WorkflowService struct {
	applications workflowApplicationRepository
	rules        workflowRuleRepository
	incentives   workflowIncentiveRepository
	audits       workflowAuditRepository
	cache        *CacheService
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewWorkflowService constructs the approval engine.
func NewWorkflowService(
	applications workflowApplicationRepository,
	rules workflowRuleRepository,
	incentives workflowIncentiveRepository,
	audits workflowAuditRepository,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{
		applications: applications,
		rules:        rules,
		incentives:   incentives,
		audits:       audits,
		cache:        cache,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
	}
}

// UpdateStatus applies a coordinator/admin requested transition to an
// application. Signature payloads are persisted as-is; they are only decoded
// at render time.
func (s *WorkflowService) UpdateStatus(ctx context.Context, actor *models.JWTClaims, id string, req UpdateStatusRequest) (*models.StudentApplication, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	app, err := s.applications.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	next, err := NextStatus(app.Status, models.ApplicationStatus(req.Status), actor.Role)
	if err != nil {
		return nil, err
	}

	previous := app.Status
	app.Status = next
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		app.CoordinatorNotes = &notes
	}
	if req.SignatureData != "" {
		sigType := req.SignatureType
		if sigType == "" {
			sigType = models.SignatureTypeDraw
		}
		app.SignatureData = &req.SignatureData
		app.SignatureType = &sigType
	}
	if next == models.StatusCoordinatorApproved {
		now := time.Now().UTC()
		app.CoordinatorApprovedAt = &now
		app.CoordinatorApprovedBy = &actor.UserID
	}

	if err := s.applications.Update(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application status")
	}

	s.recordAudit(ctx, actor, models.AuditActionStatusUpdate, app.ID, map[string]interface{}{
		"from": previous, "to": next,
	})
	s.metrics.RecordDecision(string(next))
	s.invalidateDashboard(ctx)

	return app, nil
}

// AdminApprove grants final approval. Legal only when the application is
// exactly in coordinator_approved. On success the matching active incentive
// rule, if any, sizes a new unpaid ledger entry for the owning agent; a
// missing rule is a silent no-op. Rule lookup and insert are separate store
// calls, so a concurrent approve can slip past the at-most-one check; the
// reconciliation pass is the compensating action.
func (s *WorkflowService) AdminApprove(ctx context.Context, actor *models.JWTClaims, id string, req AdminDecisionRequest) (*models.StudentApplication, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can grant final approval")
	}

	app, err := s.applications.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	if app.Status != models.StatusCoordinatorApproved {
		return nil, appErrors.Clone(appErrors.ErrValidation, "application must be coordinator approved before final approval")
	}

	now := time.Now().UTC()
	app.Status = models.StatusApproved
	app.AdminApprovedAt = &now
	app.AdminApprovedBy = &actor.UserID
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		app.AdminNotes = &notes
	}

	if err := s.applications.Update(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve application")
	}

	s.awardIncentive(ctx, app)

	s.recordAudit(ctx, actor, models.AuditActionAdminApprove, app.ID, map[string]interface{}{
		"status": app.Status,
	})
	s.metrics.RecordDecision(string(app.Status))
	s.invalidateDashboard(ctx)

	return app, nil
}

// AdminReject rejects an application from any stage. Rejecting an already
// rejected application is idempotent in effect. A rejection note is
// mandatory.
func (s *WorkflowService) AdminReject(ctx context.Context, actor *models.JWTClaims, id string, req AdminDecisionRequest) (*models.StudentApplication, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can reject applications")
	}
	notes := strings.TrimSpace(req.Notes)
	if notes == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection requires a note")
	}

	app, err := s.applications.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	now := time.Now().UTC()
	app.Status = models.StatusRejected
	app.AdminRejectedAt = &now
	app.AdminRejectedBy = &actor.UserID
	app.AdminNotes = &notes

	if err := s.applications.Update(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject application")
	}

	s.recordAudit(ctx, actor, models.AuditActionAdminReject, app.ID, map[string]interface{}{
		"status": app.Status,
	})
	s.metrics.RecordDecision(string(app.Status))
	s.invalidateDashboard(ctx)

	return app, nil
}

// awardIncentive creates the payout ledger entry for a freshly approved
// application. The approval itself is already committed: failures here are
// logged and left for reconciliation, never surfaced to the caller.
func (s *WorkflowService) awardIncentive(ctx context.Context, app *models.StudentApplication) {
	rule, err := s.rules.FindActiveByCourse(ctx, app.Course)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("no active incentive rule for course, skipping payout",
				zap.String("student_id", app.ID), zap.String("course", app.Course))
			return
		}
		s.logger.Warn("incentive rule lookup failed, payout deferred to reconciliation",
			zap.String("student_id", app.ID), zap.Error(err))
		return
	}

	incentive := &models.Incentive{
		AgentID:   app.AgentID,
		StudentID: app.ID,
		Course:    app.Course,
		Amount:    rule.Amount,
		Status:    models.IncentiveUnpaid,
	}
	if err := s.incentives.Create(ctx, incentive); err != nil {
		s.logger.Warn("incentive creation failed, payout deferred to reconciliation",
			zap.String("student_id", app.ID), zap.Error(err))
		return
	}
	s.metrics.RecordIncentiveAwarded()
}

func (s *WorkflowService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, payload map[string]interface{}) {
	if s.audits == nil {
		return
	}
	values, _ := json.Marshal(payload)
	if err := s.audits.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "student_applications",
		ResourceID: &resourceID,
		NewValues:  values,
	}); err != nil {
		s.logger.Warn("failed to record workflow audit log", zap.Error(err))
	}
}

func (s *WorkflowService) invalidateDashboard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "dashboard:*"); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}
