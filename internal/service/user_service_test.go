package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/admission-tracker-api/internal/models"
	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
)

type mockUserRepo struct {
	users       map[string]*models.User
	deactivated []string
	auditLogs   []models.AuditLog
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*models.User)}
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, user := range m.users {
		out = append(out, *user)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	if user, ok := m.users[id]; ok {
		user.Active = false
	}
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, *log)
	return nil
}

func TestCreateUser(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(repo, nil, nil)

	agentID := "AG-12"
	user, err := svc.Create(context.Background(), CreateUserRequest{
		Username: "priya.agent",
		Email:    "Priya@Example.com",
		FullName: "Priya Sharma",
		Role:     models.RoleAgent,
		AgentID:  &agentID,
		Password: "secret123",
	}, "admin-1", models.LoginRequest{})
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "priya@example.com", user.Email)
	assert.True(t, user.Active)
	require.NotNil(t, user.AgentID)
	assert.Equal(t, "AG-12", *user.AgentID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret123")))
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.auditLogs[0].Action)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo := newMockUserRepo()
	repo.users["u1"] = &models.User{ID: "u1", Email: "priya@example.com"}
	svc := NewUserService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Username: "priya",
		Email:    "priya@example.com",
		FullName: "Priya Sharma",
		Role:     models.RoleAgent,
		Password: "secret123",
	}, "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	svc := NewUserService(newMockUserRepo(), nil, nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Username: "x",
		Email:    "x@example.com",
		FullName: "X",
		Role:     models.UserRole("superuser"),
		Password: "secret123",
	}, "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDeactivateUser(t *testing.T) {
	repo := newMockUserRepo()
	repo.users["u1"] = &models.User{ID: "u1", Email: "priya@example.com", Active: true}
	svc := NewUserService(repo, nil, nil)

	require.NoError(t, svc.Deactivate(context.Background(), "u1", "admin-1", models.LoginRequest{}))
	assert.False(t, repo.users["u1"].Active)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserDeactivate, repo.auditLogs[0].Action)

	err := svc.Deactivate(context.Background(), "missing", "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestListUsersDefaultsPagination(t *testing.T) {
	repo := newMockUserRepo()
	repo.users["u1"] = &models.User{ID: "u1"}
	svc := NewUserService(repo, nil, nil)

	users, pagination, err := svc.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}
