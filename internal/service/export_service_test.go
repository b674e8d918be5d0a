package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-tracker-api/internal/models"
	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
	"github.com/noah-isme/admission-tracker-api/pkg/export"
)

type mockExportAppRepo struct {
	apps  map[string]*models.StudentApplication
	pages [][]models.StudentApplication
	total int
	calls int
}

func (m *mockExportAppRepo) FindByID(ctx context.Context, id string) (*models.StudentApplication, error) {
	app, ok := m.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return app, nil
}

func (m *mockExportAppRepo) List(ctx context.Context, filter models.ApplicationFilter) ([]models.StudentApplication, int, error) {
	m.calls++
	if filter.Page < 1 || filter.Page > len(m.pages) {
		return nil, m.total, nil
	}
	return m.pages[filter.Page-1], m.total, nil
}

type mockExportIncentiveRepo struct {
	byStudent map[string]*models.Incentive
}

func (m *mockExportIncentiveRepo) FindByStudentID(ctx context.Context, studentID string) (*models.Incentive, error) {
	entry, ok := m.byStudent[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return entry, nil
}

type mockExportUserRepo struct {
	byKey map[string]*models.User
}

func (m *mockExportUserRepo) FindByAgentKey(ctx context.Context, key string) (*models.User, error) {
	user, ok := m.byKey[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

type capturingPDFRenderer struct {
	data  export.ReceiptData
	table export.Dataset
	title string
}

func (r *capturingPDFRenderer) RenderReceipt(data export.ReceiptData) ([]byte, error) {
	r.data = data
	return []byte("%PDF-fake"), nil
}

func (r *capturingPDFRenderer) RenderTable(data export.Dataset, title string) ([]byte, error) {
	r.table = data
	r.title = title
	return []byte("%PDF-fake"), nil
}

func approvedApplication() *models.StudentApplication {
	approvedAt := time.Date(2026, time.August, 20, 14, 30, 0, 0, time.UTC)
	return &models.StudentApplication{
		ID:              "app-1",
		TokenNumber:     "AGI26080001",
		AgentID:         "AG-7",
		FirstName:       "Asha",
		LastName:        "Rao",
		Email:           "asha@example.com",
		Phone:           "9876543210",
		Course:          "MBA Finance",
		Status:          models.StatusApproved,
		AdminApprovedAt: &approvedAt,
	}
}

func TestReceiptRendersApprovedApplication(t *testing.T) {
	apps := &mockExportAppRepo{apps: map[string]*models.StudentApplication{"app-1": approvedApplication()}}
	incentives := &mockExportIncentiveRepo{byStudent: map[string]*models.Incentive{
		"app-1": {ID: "i1", StudentID: "app-1", Amount: 2500},
	}}
	users := &mockExportUserRepo{byKey: map[string]*models.User{
		"AG-7": {ID: "u1", Username: "ravi.agent"},
	}}
	renderer := &capturingPDFRenderer{}
	svc := NewExportService(apps, incentives, users, renderer, nil, nil)

	pdfBytes, filename, err := svc.Receipt(context.Background(), agentClaims(), "app-1")
	require.NoError(t, err)

	assert.Equal(t, "receipt_AGI26080001.pdf", filename)
	assert.NotEmpty(t, pdfBytes)
	assert.Equal(t, "AGI26080001", renderer.data.TokenNumber)
	assert.Equal(t, "Asha Rao", renderer.data.StudentName)
	assert.Equal(t, "ravi.agent", renderer.data.AgentName)
	assert.Equal(t, "2500.00", renderer.data.IncentiveAmount)
	assert.Equal(t, "20 Aug 2026 14:30 UTC", renderer.data.ApprovedAt)
}

func TestReceiptOnlyForApproved(t *testing.T) {
	app := approvedApplication()
	app.Status = models.StatusCoordinatorApproved
	apps := &mockExportAppRepo{apps: map[string]*models.StudentApplication{"app-1": app}}
	svc := NewExportService(apps, &mockExportIncentiveRepo{}, &mockExportUserRepo{}, &capturingPDFRenderer{}, nil, nil)

	_, _, err := svc.Receipt(context.Background(), adminClaims(), "app-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReceiptEnforcesAgentOwnership(t *testing.T) {
	app := approvedApplication()
	app.AgentID = "AG-9"
	apps := &mockExportAppRepo{apps: map[string]*models.StudentApplication{"app-1": app}}
	svc := NewExportService(apps, &mockExportIncentiveRepo{}, &mockExportUserRepo{}, &capturingPDFRenderer{}, nil, nil)

	_, _, err := svc.Receipt(context.Background(), agentClaims(), "app-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReceiptMissingIncentiveAndAgentTolerated(t *testing.T) {
	apps := &mockExportAppRepo{apps: map[string]*models.StudentApplication{"app-1": approvedApplication()}}
	renderer := &capturingPDFRenderer{}
	svc := NewExportService(apps, &mockExportIncentiveRepo{}, &mockExportUserRepo{}, renderer, nil, nil)

	_, _, err := svc.Receipt(context.Background(), adminClaims(), "app-1")
	require.NoError(t, err)
	assert.Empty(t, renderer.data.AgentName)
	assert.Empty(t, renderer.data.IncentiveAmount)
}

func TestApplicationsCSVPagination(t *testing.T) {
	first := make([]models.StudentApplication, 100)
	for i := range first {
		first[i] = models.StudentApplication{TokenNumber: "AGI26080001", Status: models.StatusPending}
	}
	second := []models.StudentApplication{
		{TokenNumber: "AGI26080101", FirstName: "Asha", LastName: "Rao", Status: models.StatusApproved},
	}
	apps := &mockExportAppRepo{pages: [][]models.StudentApplication{first, second}, total: 101}
	svc := NewExportService(apps, &mockExportIncentiveRepo{}, &mockExportUserRepo{}, nil, nil, nil)

	csvBytes, filename, err := svc.ApplicationsCSV(context.Background(), adminClaims(), models.ApplicationFilter{})
	require.NoError(t, err)

	assert.Equal(t, 2, apps.calls)
	assert.True(t, strings.HasPrefix(filename, "admissions_"))
	lines := strings.Split(strings.TrimSpace(string(csvBytes)), "\n")
	assert.Len(t, lines, 102)
	assert.Contains(t, lines[0], "Token Number")
	assert.Contains(t, lines[101], "Asha Rao")
}

func TestApplicationsPDF(t *testing.T) {
	apps := &mockExportAppRepo{
		pages: [][]models.StudentApplication{{
			{TokenNumber: "AGI26080001", FirstName: "Asha", LastName: "Rao", Course: "MBA Finance", Status: models.StatusApproved},
		}},
		total: 1,
	}
	renderer := &capturingPDFRenderer{}
	svc := NewExportService(apps, &mockExportIncentiveRepo{}, &mockExportUserRepo{}, renderer, nil, nil)

	pdfBytes, filename, err := svc.ApplicationsPDF(context.Background(), adminClaims(), models.ApplicationFilter{})
	require.NoError(t, err)

	assert.NotEmpty(t, pdfBytes)
	assert.True(t, strings.HasPrefix(filename, "admissions_"))
	assert.True(t, strings.HasSuffix(filename, ".pdf"))
	assert.Equal(t, "Admissions Export", renderer.title)
	require.Len(t, renderer.table.Rows, 1)
	assert.Equal(t, "AGI26080001", renderer.table.Rows[0][0])
	assert.Equal(t, "Asha Rao", renderer.table.Rows[0][1])
}

func TestApplicationsExportAdminOnly(t *testing.T) {
	svc := NewExportService(&mockExportAppRepo{}, &mockExportIncentiveRepo{}, &mockExportUserRepo{}, nil, nil, nil)

	for _, actor := range []*models.JWTClaims{agentClaims(), coordinatorClaims()} {
		_, _, err := svc.ApplicationsCSV(context.Background(), actor, models.ApplicationFilter{})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

		_, _, err = svc.ApplicationsPDF(context.Background(), actor, models.ApplicationFilter{})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	}
}
