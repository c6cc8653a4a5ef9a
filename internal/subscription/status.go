package subscription

import (
	"strings"
	"time"
)

// Subscription statuses stored on a company.
const (
	StatusTrialing   = "trialing"
	StatusActive     = "active"
	StatusPastDue    = "past_due"
	StatusCanceled   = "canceled"
	StatusIncomplete = "incomplete"
)

// Normalize maps a stored or vendor status onto the closed status set. Unknown values become incomplete.
func Normalize(status string) string {
	switch s := strings.ToLower(strings.TrimSpace(status)); s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCanceled, StatusIncomplete:
		return s
	default:
		return StatusIncomplete
	}
}

// IsActive reports whether a company may use paid features: active or trialing, and not past period end.
func IsActive(status string, periodEnd *time.Time, now time.Time) bool {
	switch Normalize(status) {
	case StatusActive, StatusTrialing:
	default:
		return false
	}
	return periodEnd == nil || periodEnd.After(now)
}

// Status is the response of GET /api/subscription/status.
type Status struct {
	Status           string     `json:"status"`
	Plan             string     `json:"plan,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	IsActive         bool       `json:"is_active"`
}
