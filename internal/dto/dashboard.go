package dto

import "time"

// AdminDashboardResponse aggregates the admission pipeline at a glance.
type AdminDashboardResponse struct {
	TotalAdmissions int                     `json:"total_admissions"`
	ActiveAgents    int                     `json:"active_agents"`
	StatusBreakdown StatusBreakdown         `json:"status_breakdown"`
	Incentives      IncentiveTotalsSection  `json:"incentives"`
	GeneratedAt     time.Time               `json:"generated_at"`
}

// StatusBreakdown counts applications per workflow stage. Every stage is
// present even when its count is zero.
type StatusBreakdown struct {
	Pending             int `json:"pending"`
	Verified            int `json:"verified"`
	CoordinatorApproved int `json:"coordinator_approved"`
	Approved            int `json:"approved"`
	Rejected            int `json:"rejected"`
}

// IncentiveTotalsSection sums the payout ledger by state.
type IncentiveTotalsSection struct {
	PaidTotal   float64 `json:"paid_total"`
	UnpaidTotal float64 `json:"unpaid_total"`
}
