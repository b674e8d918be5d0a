package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/admission-tracker-api/internal/dto"
	"github.com/noah-isme/admission-tracker-api/internal/models"
	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
)

const adminDashboardCacheKey = "dashboard:admin"

type dashboardApplicationRepository interface {
	CountByStatus(ctx context.Context) (map[models.ApplicationStatus]int, error)
}

type dashboardUserRepository interface {
	CountByRole(ctx context.Context, role models.UserRole) (int, error)
}

type dashboardIncentiveRepository interface {
	TotalsByStatus(ctx context.Context) (map[models.IncentiveStatus]float64, error)
}

// DashboardService composes the admin overview of the admission pipeline.
type DashboardService struct {
	applications dashboardApplicationRepository
	users        dashboardUserRepository
	incentives   dashboardIncentiveRepository
	cache        *CacheService
	cacheTTL     time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewDashboardService constructs the dashboard service.
func NewDashboardService(
	applications dashboardApplicationRepository,
	users dashboardUserRepository,
	incentives dashboardIncentiveRepository,
	cache *CacheService,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *DashboardService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		applications: applications,
		users:        users,
		incentives:   incentives,
		cache:        cache,
		cacheTTL:     cacheTTL,
		logger:       logger,
		now:          time.Now,
	}
}

// Admin returns the admin dashboard summary and reports whether it was
// served from cache. Workflow decisions invalidate the cached copy.
func (s *DashboardService) Admin(ctx context.Context, actor *models.JWTClaims) (*dto.AdminDashboardResponse, bool, error) {
	if actor.Role != models.RoleAdmin {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "admin access required")
	}

	if s.cache != nil {
		var cached dto.AdminDashboardResponse
		hit, err := s.cache.Get(ctx, adminDashboardCacheKey, &cached)
		if err == nil && hit {
			return &cached, true, nil
		}
	}

	summary, err := s.compose(ctx)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, adminDashboardCacheKey, summary, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return summary, false, nil
}

func (s *DashboardService) compose(ctx context.Context) (*dto.AdminDashboardResponse, error) {
	statusCounts, err := s.applications.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count applications")
	}
	activeAgents, err := s.users.CountByRole(ctx, models.RoleAgent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count agents")
	}
	totals, err := s.incentives.TotalsByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to total incentives")
	}

	total := 0
	for _, count := range statusCounts {
		total += count
	}
	return &dto.AdminDashboardResponse{
		TotalAdmissions: total,
		ActiveAgents:    activeAgents,
		StatusBreakdown: dto.StatusBreakdown{
			Pending:             statusCounts[models.StatusPending],
			Verified:            statusCounts[models.StatusVerified],
			CoordinatorApproved: statusCounts[models.StatusCoordinatorApproved],
			Approved:            statusCounts[models.StatusApproved],
			Rejected:            statusCounts[models.StatusRejected],
		},
		Incentives: dto.IncentiveTotalsSection{
			PaidTotal:   totals[models.IncentivePaid],
			UnpaidTotal: totals[models.IncentiveUnpaid],
		},
		GeneratedAt: s.now().UTC(),
	}, nil
}
