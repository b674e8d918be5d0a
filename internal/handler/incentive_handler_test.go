package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-tracker-api/internal/models"
	"github.com/noah-isme/admission-tracker-api/internal/service"
)

type fakeRuleStore struct {
	rules map[string]*models.IncentiveRule
	seq   int
}

func newFakeRuleStore() *fakeRuleStore {
	return &fakeRuleStore{rules: make(map[string]*models.IncentiveRule)}
}

func (f *fakeRuleStore) List(ctx context.Context) ([]models.IncentiveRule, error) {
	var out []models.IncentiveRule
	for _, rule := range f.rules {
		out = append(out, *rule)
	}
	return out, nil
}

func (f *fakeRuleStore) FindByID(ctx context.Context, id string) (*models.IncentiveRule, error) {
	rule, ok := f.rules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rule, nil
}

func (f *fakeRuleStore) FindActiveByCourse(ctx context.Context, course string) (*models.IncentiveRule, error) {
	for _, rule := range f.rules {
		if rule.Course == course && rule.Active {
			return rule, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRuleStore) ExistsActiveByCourse(ctx context.Context, course string, excludeID string) (bool, error) {
	for _, rule := range f.rules {
		if rule.Course == course && rule.Active && rule.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRuleStore) Create(ctx context.Context, rule *models.IncentiveRule) error {
	f.seq++
	rule.ID = "rule-" + strconv.Itoa(f.seq)
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeRuleStore) Update(ctx context.Context, rule *models.IncentiveRule) error {
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeRuleStore) Deactivate(ctx context.Context, id string) error {
	rule, ok := f.rules[id]
	if !ok {
		return sql.ErrNoRows
	}
	rule.Active = false
	return nil
}

type fakeLedgerStore struct {
	incentives map[string]*models.Incentive
	summary    models.IncentiveSummary
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{incentives: make(map[string]*models.Incentive)}
}

func (f *fakeLedgerStore) List(ctx context.Context, filter models.IncentiveFilter) ([]models.Incentive, int, error) {
	var out []models.Incentive
	for _, inc := range f.incentives {
		if filter.AgentID != "" && inc.AgentID != filter.AgentID {
			continue
		}
		out = append(out, *inc)
	}
	return out, len(out), nil
}

func (f *fakeLedgerStore) FindByID(ctx context.Context, id string) (*models.Incentive, error) {
	inc, ok := f.incentives[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return inc, nil
}

func (f *fakeLedgerStore) UpdateStatus(ctx context.Context, id string, status models.IncentiveStatus) error {
	inc, ok := f.incentives[id]
	if !ok {
		return sql.ErrNoRows
	}
	inc.Status = status
	return nil
}

func (f *fakeLedgerStore) Totals(ctx context.Context, agentID string) (*models.IncentiveSummary, error) {
	summary := f.summary
	return &summary, nil
}

type fakeReconcileStore struct {
	approved   []models.StudentApplication
	rules      *fakeRuleStore
	studentIDs map[string]struct{}
	created    []models.Incentive
}

func (f *fakeReconcileStore) ListByStatus(ctx context.Context, status models.ApplicationStatus) ([]models.StudentApplication, error) {
	return f.approved, nil
}

func (f *fakeReconcileStore) ListStudentIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{}, len(f.studentIDs))
	for id := range f.studentIDs {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (f *fakeReconcileStore) Create(ctx context.Context, incentive *models.Incentive) error {
	f.created = append(f.created, *incentive)
	f.studentIDs[incentive.StudentID] = struct{}{}
	return nil
}

func newIncentiveHandler(rules *fakeRuleStore, ledger *fakeLedgerStore, reconcile *fakeReconcileStore) *IncentiveHandler {
	audits := &fakeAdmissionStore{apps: map[string]*models.StudentApplication{}, rules: map[string]*models.IncentiveRule{}}
	incentives := service.NewIncentiveService(rules, ledger, audits, nil, nil)
	var reconcileSvc *service.ReconcileService
	if reconcile != nil {
		reconcileSvc = service.NewReconcileService(reconcile, reconcile, reconcile.rules, audits, 0, nil)
	}
	return NewIncentiveHandler(incentives, reconcileSvc)
}

func TestCreateRuleHandler(t *testing.T) {
	rules := newFakeRuleStore()
	handler := newIncentiveHandler(rules, newFakeLedgerStore(), nil)

	c, rec := testContext(t, adminTestClaims(), http.MethodPost, "/incentive-rules", gin.H{"course": "MBA Finance", "amount": 2500})

	handler.CreateRule(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "MBA Finance", envelope.Data["course"])
	assert.Equal(t, 2500.0, envelope.Data["amount"])

	// A second active rule for the same course conflicts.
	c, rec = testContext(t, adminTestClaims(), http.MethodPost, "/incentive-rules", gin.H{"course": "MBA Finance", "amount": 3000})
	handler.CreateRule(c)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSetStatusHandlerRequiresStatus(t *testing.T) {
	ledger := newFakeLedgerStore()
	ledger.incentives["i1"] = &models.Incentive{ID: "i1", AgentID: "AG-7", Status: models.IncentiveUnpaid}
	handler := newIncentiveHandler(newFakeRuleStore(), ledger, nil)

	c, rec := testContext(t, adminTestClaims(), http.MethodPut, "/incentives/i1/status", gin.H{})
	c.Params = gin.Params{{Key: "id", Value: "i1"}}

	handler.SetStatus(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = testContext(t, adminTestClaims(), http.MethodPut, "/incentives/i1/status", gin.H{"status": "paid"})
	c.Params = gin.Params{{Key: "id", Value: "i1"}}

	handler.SetStatus(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.IncentivePaid, ledger.incentives["i1"].Status)
}

func TestLedgerHandlerShape(t *testing.T) {
	ledger := newFakeLedgerStore()
	ledger.incentives["i1"] = &models.Incentive{ID: "i1", AgentID: "AG-7", Course: "MBA", Amount: 2500, Status: models.IncentivePaid}
	ledger.summary = models.IncentiveSummary{TotalEarned: 2500, TotalPending: 0}
	handler := newIncentiveHandler(newFakeRuleStore(), ledger, nil)

	c, rec := testContext(t, agentTestClaims(), http.MethodGet, "/incentives", nil)

	handler.Ledger(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data       map[string]interface{} `json:"data"`
		Pagination map[string]interface{} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	entries, ok := envelope.Data["incentives"].([]interface{})
	require.True(t, ok)
	require.Len(t, entries, 1)
	summary, ok := envelope.Data["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 2500.0, summary["total_earned"])
	assert.Equal(t, 1.0, envelope.Pagination["total_count"])
}

func TestReconcileHandlerReport(t *testing.T) {
	rules := newFakeRuleStore()
	reconcile := &fakeReconcileStore{
		approved: []models.StudentApplication{
			{ID: "s1", AgentID: "AG-7", Course: "MBA Finance", Status: models.StatusApproved},
			{ID: "s2", AgentID: "AG-7", Course: "MBA Finance", Status: models.StatusApproved},
		},
		rules:      rules,
		studentIDs: map[string]struct{}{"s1": {}},
	}
	handler := newIncentiveHandler(rules, newFakeLedgerStore(), reconcile)

	c, rec := testContext(t, adminTestClaims(), http.MethodPost, "/admin/reconcile-incentives", nil)

	handler.Reconcile(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 2.0, envelope.Data["scanned"])
	assert.Equal(t, 1.0, envelope.Data["created"])
	assert.Equal(t, 1.0, envelope.Data["skipped"])
	require.Len(t, reconcile.created, 1)
	assert.Equal(t, "s2", reconcile.created[0].StudentID)
}

func TestReconcileHandlerForbiddenForAgent(t *testing.T) {
	rules := newFakeRuleStore()
	handler := newIncentiveHandler(rules, newFakeLedgerStore(), &fakeReconcileStore{rules: rules, studentIDs: map[string]struct{}{}})

	c, rec := testContext(t, agentTestClaims(), http.MethodPost, "/admin/reconcile-incentives", nil)

	handler.Reconcile(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
