package models

import "time"

// IncentiveStatus is the two-value payout state of a ledger entry.
type IncentiveStatus string

const (
	IncentiveUnpaid IncentiveStatus = "unpaid"
	IncentivePaid   IncentiveStatus = "paid"
)

// Valid reports whether s is a known payout state.
func (s IncentiveStatus) Valid() bool {
	return s == IncentiveUnpaid || s == IncentivePaid
}

// IncentiveRule maps a course name to a payout amount. At most one active
// rule may exist per course; course matching is exact and case-sensitive.
// Deletion is soft via the active flag.
type IncentiveRule struct {
	ID        string    `db:"id" json:"id"`
	Course    string    `db:"course" json:"course"`
	Amount    float64   `db:"amount" json:"amount"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Incentive is one payout owed to an agent for one admitted student. Amount
// is copied from the rule at award time; later rule edits never touch it.
type Incentive struct {
	ID        string          `db:"id" json:"id"`
	AgentID   string          `db:"agent_id" json:"agent_id"`
	StudentID string          `db:"student_id" json:"student_id"`
	Course    string          `db:"course" json:"course"`
	Amount    float64         `db:"amount" json:"amount"`
	Status    IncentiveStatus `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// IncentiveFilter captures search parameters for the ledger.
type IncentiveFilter struct {
	AgentID  string
	Status   *IncentiveStatus
	Course   string
	Page     int
	PageSize int
}

// IncentiveSummary totals a ledger slice by payout state.
type IncentiveSummary struct {
	TotalEarned  float64 `db:"total_earned" json:"total_earned"`
	TotalPending float64 `db:"total_pending" json:"total_pending"`
}
