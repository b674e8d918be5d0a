package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-tracker-api/internal/models"
	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
	"github.com/noah-isme/admission-tracker-api/pkg/storage"
)

type mockApplicationRepo struct {
	apps     map[string]*models.StudentApplication
	created  []models.StudentApplication
	lastList models.ApplicationFilter
	docPaths map[string]string
}

func newMockApplicationRepo() *mockApplicationRepo {
	return &mockApplicationRepo{
		apps:     make(map[string]*models.StudentApplication),
		docPaths: make(map[string]string),
	}
}

func (m *mockApplicationRepo) List(ctx context.Context, filter models.ApplicationFilter) ([]models.StudentApplication, int, error) {
	m.lastList = filter
	var out []models.StudentApplication
	for _, app := range m.apps {
		if filter.AgentID != "" && app.AgentID != filter.AgentID {
			continue
		}
		out = append(out, *app)
	}
	return out, len(out), nil
}

func (m *mockApplicationRepo) FindByID(ctx context.Context, id string) (*models.StudentApplication, error) {
	app, ok := m.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *app
	return &copied, nil
}

func (m *mockApplicationRepo) Create(ctx context.Context, app *models.StudentApplication) error {
	app.ID = "app-" + app.TokenNumber
	copied := *app
	m.apps[app.ID] = &copied
	m.created = append(m.created, copied)
	return nil
}

func (m *mockApplicationRepo) SetDocumentPath(ctx context.Context, id, documentType, path string) error {
	m.docPaths[id+"/"+documentType] = path
	return nil
}

func newApplicationFixture(t *testing.T) (*ApplicationService, *mockApplicationRepo) {
	t.Helper()
	repo := newMockApplicationRepo()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", 15*time.Minute)
	tokens := NewTokenNumberGenerator(&mockTokenNumberRepo{})
	svc := NewApplicationService(repo, tokens, &mockAuditRepo{}, store, signer, nil, nil)
	return svc, repo
}

func TestSubmitApplication(t *testing.T) {
	svc, repo := newApplicationFixture(t)

	app, err := svc.Submit(context.Background(), agentClaims(), SubmitApplicationRequest{
		FirstName: "Asha",
		LastName:  "Rao",
		Email:     "Asha.Rao@Example.COM",
		Phone:     "9876543210",
		Course:    "MBA Finance",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, app.Status)
	assert.Equal(t, "AG-7", app.AgentID)
	assert.Equal(t, "asha.rao@example.com", app.Email)
	assert.Regexp(t, `^AGI\d{8}$`, app.TokenNumber)
	assert.NotNil(t, app.Documents)
	require.Len(t, repo.created, 1)
}

func TestSubmitApplicationNonAgentForbidden(t *testing.T) {
	svc, _ := newApplicationFixture(t)

	for _, actor := range []*models.JWTClaims{coordinatorClaims(), adminClaims()} {
		_, err := svc.Submit(context.Background(), actor, SubmitApplicationRequest{
			FirstName: "Asha", LastName: "Rao", Email: "a@b.com", Phone: "1", Course: "MBA",
		})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	}
}

func TestSubmitApplicationValidation(t *testing.T) {
	svc, _ := newApplicationFixture(t)

	_, err := svc.Submit(context.Background(), agentClaims(), SubmitApplicationRequest{
		FirstName: "Asha",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListScopesAgentsToOwnRecords(t *testing.T) {
	svc, repo := newApplicationFixture(t)
	repo.apps["a1"] = &models.StudentApplication{ID: "a1", AgentID: "AG-7"}
	repo.apps["a2"] = &models.StudentApplication{ID: "a2", AgentID: "AG-9"}

	apps, pagination, err := svc.List(context.Background(), agentClaims(), models.ApplicationFilter{AgentID: "AG-9"})
	require.NoError(t, err)

	require.Len(t, apps, 1)
	assert.Equal(t, "a1", apps[0].ID)
	assert.Equal(t, "AG-7", repo.lastList.AgentID)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestGetEnforcesAgentOwnership(t *testing.T) {
	svc, repo := newApplicationFixture(t)
	repo.apps["a1"] = &models.StudentApplication{ID: "a1", AgentID: "AG-9"}

	_, err := svc.Get(context.Background(), agentClaims(), "a1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	app, err := svc.Get(context.Background(), adminClaims(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", app.ID)
}

func TestAttachDocumentRejectsBadExtension(t *testing.T) {
	svc, repo := newApplicationFixture(t)
	repo.apps["a1"] = &models.StudentApplication{ID: "a1", AgentID: "AG-7"}

	_, err := svc.AttachDocument(context.Background(), agentClaims(), "a1", "id_proof", "malware.exe", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.AttachDocument(context.Background(), agentClaims(), "a1", "", "scan.pdf", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttachDocumentStoresFileAndPath(t *testing.T) {
	svc, repo := newApplicationFixture(t)
	repo.apps["a1"] = &models.StudentApplication{ID: "a1", AgentID: "AG-7"}

	relPath, err := svc.AttachDocument(context.Background(), agentClaims(), "a1", "id_proof", "scan.pdf", strings.NewReader("%PDF-1.4 test"))
	require.NoError(t, err)
	assert.Equal(t, "a1/id_proof_scan.pdf", relPath)
	assert.Equal(t, relPath, repo.docPaths["a1/id_proof"])
}

func TestDocumentLinkRoundTrip(t *testing.T) {
	svc, repo := newApplicationFixture(t)
	repo.apps["a1"] = &models.StudentApplication{ID: "a1", AgentID: "AG-7"}

	relPath, err := svc.AttachDocument(context.Background(), agentClaims(), "a1", "id_proof", "scan.pdf", strings.NewReader("payload"))
	require.NoError(t, err)
	repo.apps["a1"].Documents = models.DocumentMap{"id_proof": relPath}

	link, err := svc.DocumentLink(context.Background(), agentClaims(), "a1", "id_proof")
	require.NoError(t, err)
	assert.NotEmpty(t, link.Token)
	assert.True(t, link.ExpiresAt.After(time.Now()))

	file, filename, err := svc.OpenDocument(link.Token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "id_proof_scan.pdf", filename)
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
}

func TestOpenDocumentRejectsTamperedToken(t *testing.T) {
	svc, _ := newApplicationFixture(t)

	_, _, err := svc.OpenDocument("not-a-valid-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestDocumentLinkMissingDocument(t *testing.T) {
	svc, repo := newApplicationFixture(t)
	repo.apps["a1"] = &models.StudentApplication{ID: "a1", AgentID: "AG-7", Documents: models.DocumentMap{}}

	_, err := svc.DocumentLink(context.Background(), agentClaims(), "a1", "id_proof")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
