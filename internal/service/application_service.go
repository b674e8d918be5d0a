package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-tracker-api/internal/models"
	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
	"github.com/noah-isme/admission-tracker-api/pkg/storage"
)

type applicationRepository interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.StudentApplication, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentApplication, error)
	Create(ctx context.Context, app *models.StudentApplication) error
	SetDocumentPath(ctx context.Context, id, documentType, path string) error
}

// SubmitApplicationRequest holds the payload for a new student application.
type SubmitApplicationRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required"`
	Course    string `json:"course" validate:"required"`
}

// DocumentLink is a time-limited download reference for a stored document.
type DocumentLink struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

var allowedDocumentExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".pdf":  {},
}

// ApplicationService handles submission and role-scoped reads of student
// applications, plus document attachment.
type ApplicationService struct {
	repo      applicationRepository
	tokens    *TokenNumberGenerator
	audits    workflowAuditRepository
	storage   *storage.LocalStorage
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger
}

// NewApplicationService constructs the application service.
func NewApplicationService(
	repo applicationRepository,
	tokens *TokenNumberGenerator,
	audits workflowAuditRepository,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	validate *validator.Validate,
	logger *zap.Logger,
) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		repo:      repo,
		tokens:    tokens,
		audits:    audits,
		storage:   store,
		signer:    signer,
		validator: validate,
		logger:    logger,
	}
}

// Submit registers a new application owned by the calling agent. The
// application starts in pending and is keyed by the agent's grouping key.
func (s *ApplicationService) Submit(ctx context.Context, actor *models.JWTClaims, req SubmitApplicationRequest) (*models.StudentApplication, error) {
	if actor.Role != models.RoleAgent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only agents can submit applications")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}

	tokenNumber, err := s.tokens.Next(ctx)
	if err != nil {
		return nil, err
	}

	app := &models.StudentApplication{
		TokenNumber: tokenNumber,
		AgentID:     actor.GroupKey(),
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       strings.ToLower(req.Email),
		Phone:       req.Phone,
		Course:      req.Course,
		Documents:   models.DocumentMap{},
		Status:      models.StatusPending,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	if s.audits != nil {
		if err := s.audits.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionApplicationSubmit,
			Resource:   "student_applications",
			ResourceID: &app.ID,
		}); err != nil {
			s.logger.Warn("failed to record application submit audit log", zap.Error(err))
		}
	}

	return app, nil
}

// List returns applications visible to the caller. Agents only ever see
// records owned by their own grouping key regardless of the filter they
// pass.
func (s *ApplicationService) List(ctx context.Context, actor *models.JWTClaims, filter models.ApplicationFilter) ([]models.StudentApplication, *models.Pagination, error) {
	if actor.Role == models.RoleAgent {
		filter.AgentID = actor.GroupKey()
	}
	applications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return applications, pagination, nil
}

// Get returns one application, enforcing agent ownership.
func (s *ApplicationService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.StudentApplication, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if actor.Role == models.RoleAgent && app.AgentID != actor.GroupKey() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}
	return app, nil
}

// AttachDocument stores an uploaded file and records its path on the
// application. The database only ever holds the path string.
func (s *ApplicationService) AttachDocument(ctx context.Context, actor *models.JWTClaims, id, documentType, filename string, r io.Reader) (string, error) {
	if documentType == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "document type is required")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedDocumentExts[ext]; !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, "only JPG, PNG, and PDF files are allowed")
	}

	app, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", err
	}

	relPath := filepath.Join(app.ID, fmt.Sprintf("%s_%s", documentType, filepath.Base(filename)))
	if _, err := s.storage.SaveStream(relPath, r); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}
	if err := s.repo.SetDocumentPath(ctx, app.ID, documentType, relPath); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document path")
	}
	return relPath, nil
}

// DocumentLink issues a signed, expiring download token for one stored
// document.
func (s *ApplicationService) DocumentLink(ctx context.Context, actor *models.JWTClaims, id, documentType string) (*DocumentLink, error) {
	app, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	relPath, ok := app.Documents[documentType]
	if !ok || relPath == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	token, expiresAt, err := s.signer.Generate(app.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign document link")
	}
	return &DocumentLink{Token: token, ExpiresAt: expiresAt}, nil
}

// OpenDocument validates a signed token and opens the referenced file.
func (s *ApplicationService) OpenDocument(token string) (io.ReadCloser, string, error) {
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "document file not found")
	}
	return file, filepath.Base(relPath), nil
}
