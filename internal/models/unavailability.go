package models

import (
	"time"

	"github.com/google/uuid"
)

// Recurrence is how an unavailability repeats.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Valid reports whether r is a known recurrence.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Unavailability blocks a company's calendar, once or on a recurring rule.
// Exceptions are calendar dates (midnight UTC) on which an occurrence is skipped.
type Unavailability struct {
	ID              uuid.UUID   `json:"id"`
	CompanyID       uuid.UUID   `json:"company_id"`
	StartsAt        time.Time   `json:"starts_at"`
	EndsAt          time.Time   `json:"ends_at"`
	Recurrence      Recurrence  `json:"recurrence"`
	Weekdays        []int       `json:"weekdays,omitempty"` // 0 = Sunday, weekly only
	RecurrenceUntil *time.Time  `json:"recurrence_until,omitempty"`
	Exceptions      []time.Time `json:"exceptions,omitempty"`
	Reason          string      `json:"reason,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Occurrence is one expanded instance of an unavailability.
type Occurrence struct {
	UnavailabilityID uuid.UUID `json:"unavailability_id"`
	StartsAt         time.Time `json:"starts_at"`
	EndsAt           time.Time `json:"ends_at"`
	Reason           string    `json:"reason,omitempty"`
}
