package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/admission-tracker-api/internal/models"
	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
	"github.com/noah-isme/admission-tracker-api/pkg/export"
)

type exportApplicationRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentApplication, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.StudentApplication, int, error)
}

type exportIncentiveRepository interface {
	FindByStudentID(ctx context.Context, studentID string) (*models.Incentive, error)
}

type exportUserRepository interface {
	FindByAgentKey(ctx context.Context, key string) (*models.User, error)
}

type pdfRenderer interface {
	RenderReceipt(data export.ReceiptData) ([]byte, error)
	RenderTable(data export.Dataset, title string) ([]byte, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportService renders admission receipts and CSV extracts from final
// records.
type ExportService struct {
	applications exportApplicationRepository
	incentives   exportIncentiveRepository
	users        exportUserRepository
	pdf          pdfRenderer
	csv          csvRenderer
	logger       *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(
	applications exportApplicationRepository,
	incentives exportIncentiveRepository,
	users exportUserRepository,
	pdf pdfRenderer,
	csv csvRenderer,
	logger *zap.Logger,
) *ExportService {
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		applications: applications,
		incentives:   incentives,
		users:        users,
		pdf:          pdf,
		csv:          csv,
		logger:       logger,
	}
}

// Receipt renders the admission receipt PDF for one approved application.
// Receipts exist only for final approvals.
func (s *ExportService) Receipt(ctx context.Context, actor *models.JWTClaims, applicationID string) ([]byte, string, error) {
	app, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if actor.Role == models.RoleAgent && app.AgentID != actor.GroupKey() {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}
	if app.Status != models.StatusApproved {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "receipts are only available for approved applications")
	}

	data := export.ReceiptData{
		TokenNumber: app.TokenNumber,
		StudentName: app.FullName(),
		Course:      app.Course,
		Rows: []export.ReceiptRow{
			{Label: "Email", Value: app.Email},
			{Label: "Phone", Value: app.Phone},
		},
	}
	if app.AdminApprovedAt != nil {
		data.ApprovedAt = app.AdminApprovedAt.Format("02 Jan 2006 15:04 MST")
	}
	if agent, err := s.users.FindByAgentKey(ctx, app.AgentID); err == nil {
		data.AgentName = agent.Username
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("failed to resolve agent for receipt",
			zap.String("agent_key", app.AgentID),
			zap.Error(err))
	}
	if incentive, err := s.incentives.FindByStudentID(ctx, app.ID); err == nil {
		data.IncentiveAmount = strconv.FormatFloat(incentive.Amount, 'f', 2, 64)
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("failed to resolve incentive for receipt",
			zap.String("student_id", app.ID),
			zap.Error(err))
	}

	pdfBytes, err := s.pdf.RenderReceipt(data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	filename := fmt.Sprintf("receipt_%s.pdf", app.TokenNumber)
	return pdfBytes, filename, nil
}

// ApplicationsCSV exports applications matching the filter as CSV bytes.
func (s *ExportService) ApplicationsCSV(ctx context.Context, actor *models.JWTClaims, filter models.ApplicationFilter) ([]byte, string, error) {
	if actor.Role != models.RoleAdmin {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "admin access required")
	}
	dataset, err := s.collectApplications(ctx, filter)
	if err != nil {
		return nil, "", err
	}

	csvBytes, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	filename := fmt.Sprintf("admissions_%s.csv", time.Now().UTC().Format("20060102_150405"))
	return csvBytes, filename, nil
}

// ApplicationsPDF exports the same extract as a printable table.
func (s *ExportService) ApplicationsPDF(ctx context.Context, actor *models.JWTClaims, filter models.ApplicationFilter) ([]byte, string, error) {
	if actor.Role != models.RoleAdmin {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "admin access required")
	}
	dataset, err := s.collectApplications(ctx, filter)
	if err != nil {
		return nil, "", err
	}

	pdfBytes, err := s.pdf.RenderTable(dataset, "Admissions Export")
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	filename := fmt.Sprintf("admissions_%s.pdf", time.Now().UTC().Format("20060102_150405"))
	return pdfBytes, filename, nil
}

func (s *ExportService) collectApplications(ctx context.Context, filter models.ApplicationFilter) (export.Dataset, error) {
	dataset := export.Dataset{
		Headers: []string{"Token Number", "Student", "Email", "Phone", "Course", "Agent", "Status", "Submitted At"},
	}
	// The repository caps page size, so walk the result set page by page.
	filter.PageSize = 100
	for page := 1; ; page++ {
		filter.Page = page
		applications, total, err := s.applications.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
		}
		for i := range applications {
			app := &applications[i]
			dataset.Rows = append(dataset.Rows, []string{
				app.TokenNumber,
				app.FullName(),
				app.Email,
				app.Phone,
				app.Course,
				app.AgentID,
				string(app.Status),
				app.CreatedAt.Format(time.RFC3339),
			})
		}
		if len(applications) == 0 || len(dataset.Rows) >= total {
			break
		}
	}
	return dataset, nil
}
