package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-tracker-api/internal/models"
	"github.com/noah-isme/admission-tracker-api/internal/service"
)

type fakeDashboardStore struct {
	counts map[models.ApplicationStatus]int
	agents int
	totals map[models.IncentiveStatus]float64
}

func (f *fakeDashboardStore) CountByStatus(ctx context.Context) (map[models.ApplicationStatus]int, error) {
	return f.counts, nil
}

func (f *fakeDashboardStore) CountByRole(ctx context.Context, role models.UserRole) (int, error) {
	return f.agents, nil
}

func (f *fakeDashboardStore) TotalsByStatus(ctx context.Context) (map[models.IncentiveStatus]float64, error) {
	return f.totals, nil
}

func TestDashboardHandlerAdmin(t *testing.T) {
	store := &fakeDashboardStore{
		counts: map[models.ApplicationStatus]int{
			models.StatusPending:  4,
			models.StatusApproved: 6,
			models.StatusRejected: 2,
		},
		agents: 3,
		totals: map[models.IncentiveStatus]float64{
			models.IncentivePaid:   12500,
			models.IncentiveUnpaid: 5000,
		},
	}
	handler := NewDashboardHandler(service.NewDashboardService(store, store, store, nil, 0, nil))

	c, rec := testContext(t, adminTestClaims(), http.MethodGet, "/admin/dashboard", nil)

	handler.Admin(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data map[string]interface{} `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 12.0, envelope.Data["total_admissions"])
	assert.Equal(t, 3.0, envelope.Data["active_agents"])

	breakdown, ok := envelope.Data["status_breakdown"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 6.0, breakdown["approved"])

	incentives, ok := envelope.Data["incentives"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 12500.0, incentives["paid_total"])
	assert.Equal(t, 5000.0, incentives["unpaid_total"])

	// No cache wired, so the response is always computed fresh.
	assert.Equal(t, false, envelope.Meta["cache"])
}

func TestDashboardHandlerForbiddenForAgent(t *testing.T) {
	store := &fakeDashboardStore{}
	handler := NewDashboardHandler(service.NewDashboardService(store, store, store, nil, 0, nil))

	c, rec := testContext(t, agentTestClaims(), http.MethodGet, "/admin/dashboard", nil)

	handler.Admin(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
