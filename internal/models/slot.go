package models

import (
	"time"

	"github.com/google/uuid"
)

// Slot is a concrete time interval of a company, optionally booked by a mission.
type Slot struct {
	ID        uuid.UUID  `json:"id"`
	CompanyID uuid.UUID  `json:"company_id"`
	MissionID *uuid.UUID `json:"mission_id,omitempty"`
	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    time.Time  `json:"ends_at"`
	Note      string     `json:"note,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Duration returns the slot length; zero for inverted intervals.
func (s Slot) Duration() time.Duration {
	if !s.EndsAt.After(s.StartsAt) {
		return 0
	}
	return s.EndsAt.Sub(s.StartsAt)
}
