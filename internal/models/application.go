package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ApplicationStatus is the closed set of admission workflow states.
type ApplicationStatus string

const (
	StatusPending ApplicationStatus = "pending"
	// StatusVerified exists in the schema for forward compatibility; no
	// workflow operation produces it.
	StatusVerified            ApplicationStatus = "verified"
	StatusCoordinatorApproved ApplicationStatus = "coordinator_approved"
	StatusApproved            ApplicationStatus = "approved"
	StatusRejected            ApplicationStatus = "rejected"
)

// Valid reports whether s is one of the known workflow states.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusCoordinatorApproved, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further coordinator transition is possible.
func (s ApplicationStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// SignatureType values accepted for coordinator e-signatures.
const (
	SignatureTypeDraw   = "draw"
	SignatureTypeUpload = "upload"
)

// DocumentMap maps a document type to its storage path. Stored as JSONB.
type DocumentMap map[string]string

// Value implements driver.Valuer.
func (m DocumentMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *DocumentMap) Scan(src interface{}) error {
	if src == nil {
		*m = DocumentMap{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported document map source %T", src)
	}
	if len(raw) == 0 {
		*m = DocumentMap{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// StudentApplication is one submitted applicant record with its workflow
// status and approval audit trail.
type StudentApplication struct {
	ID          string            `db:"id" json:"id"`
	TokenNumber string            `db:"token_number" json:"token_number"`
	AgentID     string            `db:"agent_id" json:"agent_id"`
	FirstName   string            `db:"first_name" json:"first_name"`
	LastName    string            `db:"last_name" json:"last_name"`
	Email       string            `db:"email" json:"email"`
	Phone       string            `db:"phone" json:"phone"`
	Course      string            `db:"course" json:"course"`
	Documents   DocumentMap       `db:"documents" json:"documents"`
	Status      ApplicationStatus `db:"status" json:"status"`

	CoordinatorNotes      *string    `db:"coordinator_notes" json:"coordinator_notes,omitempty"`
	SignatureData         *string    `db:"signature_data" json:"signature_data,omitempty"`
	SignatureType         *string    `db:"signature_type" json:"signature_type,omitempty"`
	CoordinatorApprovedAt *time.Time `db:"coordinator_approved_at" json:"coordinator_approved_at,omitempty"`
	CoordinatorApprovedBy *string    `db:"coordinator_approved_by" json:"coordinator_approved_by,omitempty"`
	AdminApprovedAt       *time.Time `db:"admin_approved_at" json:"admin_approved_at,omitempty"`
	AdminApprovedBy       *string    `db:"admin_approved_by" json:"admin_approved_by,omitempty"`
	AdminRejectedAt       *time.Time `db:"admin_rejected_at" json:"admin_rejected_at,omitempty"`
	AdminRejectedBy       *string    `db:"admin_rejected_by" json:"admin_rejected_by,omitempty"`
	AdminNotes            *string    `db:"admin_notes" json:"admin_notes,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins the applicant name fields for display and export.
func (a *StudentApplication) FullName() string {
	return a.FirstName + " " + a.LastName
}

// ApplicationFilter encapsulates allowed search parameters for listing
// applications.
type ApplicationFilter struct {
	AgentID   string
	Status    *ApplicationStatus
	Course    string
	Search    string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
