package slots

import (
	"time"

	"github.com/extrabeam/backend/pkg/apperr"
)

// MaxSlotDuration bounds a single slot; longer spans are modelled as several slots.
const MaxSlotDuration = 24 * time.Hour

// ValidateRange checks that a slot interval is well-formed.
func ValidateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return apperr.Invalid("starts_at and ends_at are required")
	}
	if !end.After(start) {
		return apperr.Invalid("ends_at must be after starts_at")
	}
	if end.Sub(start) > MaxSlotDuration {
		return apperr.Invalid("a slot cannot exceed 24 hours")
	}
	return nil
}
