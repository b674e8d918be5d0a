package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-tracker-api/internal/models"
	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
)

type mockDashboardAppRepo struct {
	counts map[models.ApplicationStatus]int
	calls  int
}

func (m *mockDashboardAppRepo) CountByStatus(ctx context.Context) (map[models.ApplicationStatus]int, error) {
	m.calls++
	return m.counts, nil
}

type mockDashboardUserRepo struct {
	agents int
}

func (m *mockDashboardUserRepo) CountByRole(ctx context.Context, role models.UserRole) (int, error) {
	return m.agents, nil
}

type mockDashboardIncentiveRepo struct {
	totals map[models.IncentiveStatus]float64
}

func (m *mockDashboardIncentiveRepo) TotalsByStatus(ctx context.Context) (map[models.IncentiveStatus]float64, error) {
	return m.totals, nil
}

func TestAdminDashboardComposition(t *testing.T) {
	apps := &mockDashboardAppRepo{counts: map[models.ApplicationStatus]int{
		models.StatusPending:             4,
		models.StatusVerified:            3,
		models.StatusCoordinatorApproved: 2,
		models.StatusApproved:            5,
		models.StatusRejected:            1,
	}}
	users := &mockDashboardUserRepo{agents: 7}
	incentives := &mockDashboardIncentiveRepo{totals: map[models.IncentiveStatus]float64{
		models.IncentivePaid:   12500,
		models.IncentiveUnpaid: 5000,
	}}
	svc := NewDashboardService(apps, users, incentives, nil, time.Minute, nil)
	svc.now = func() time.Time { return time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC) }

	resp, cached, err := svc.Admin(context.Background(), adminClaims())
	require.NoError(t, err)

	assert.False(t, cached)
	assert.Equal(t, 15, resp.TotalAdmissions)
	assert.Equal(t, 7, resp.ActiveAgents)
	assert.Equal(t, 4, resp.StatusBreakdown.Pending)
	assert.Equal(t, 2, resp.StatusBreakdown.CoordinatorApproved)
	assert.Equal(t, 5, resp.StatusBreakdown.Approved)
	assert.Equal(t, 12500.0, resp.Incentives.PaidTotal)
	assert.Equal(t, 5000.0, resp.Incentives.UnpaidTotal)
	assert.Equal(t, time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC), resp.GeneratedAt)
}

func TestAdminDashboardAdminOnly(t *testing.T) {
	svc := NewDashboardService(&mockDashboardAppRepo{}, &mockDashboardUserRepo{}, &mockDashboardIncentiveRepo{}, nil, 0, nil)

	for _, actor := range []*models.JWTClaims{agentClaims(), coordinatorClaims()} {
		_, _, err := svc.Admin(context.Background(), actor)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	}
}

func TestAdminDashboardRecomputesWithoutCache(t *testing.T) {
	apps := &mockDashboardAppRepo{counts: map[models.ApplicationStatus]int{}}
	svc := NewDashboardService(apps, &mockDashboardUserRepo{}, &mockDashboardIncentiveRepo{}, nil, 0, nil)

	_, _, err := svc.Admin(context.Background(), adminClaims())
	require.NoError(t, err)
	_, _, err = svc.Admin(context.Background(), adminClaims())
	require.NoError(t, err)
	assert.Equal(t, 2, apps.calls)
}
