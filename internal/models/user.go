package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAgent       UserRole = "agent"
	RoleCoordinator UserRole = "coordinator"
	RoleAdmin       UserRole = "admin"
)

// User represents an application user stored in the users table. Role is
// immutable after creation; there is no role-change operation.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	AgentID      *string    `db:"agent_id" json:"agent_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// GroupKey returns the key that owns agent-submitted applications. Legacy
// agent accounts were created without a distinct agent_id, so the account id
// doubles as the grouping key for them.
func (u *User) GroupKey() string {
	if u.AgentID != nil && *u.AgentID != "" {
		return *u.AgentID
	}
	return u.ID
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
