package models

import (
	"time"

	"github.com/google/uuid"
)

// MissionStatus is the lifecycle state of a mission.
type MissionStatus string

const (
	MissionProposed       MissionStatus = "proposed"
	MissionValidated      MissionStatus = "validated"
	MissionPendingPayment MissionStatus = "pending_payment"
	MissionPaid           MissionStatus = "paid"
	MissionCompleted      MissionStatus = "completed"
	MissionRefused        MissionStatus = "refused"
	MissionRealized       MissionStatus = "realized"
)

// Valid reports whether s is a known mission status.
func (s MissionStatus) Valid() bool {
	switch s {
	case MissionProposed, MissionValidated, MissionPendingPayment, MissionPaid,
		MissionCompleted, MissionRefused, MissionRealized:
		return true
	}
	return false
}

// Mission is a staffing request from a client to a company.
type Mission struct {
	ID              uuid.UUID     `json:"id"`
	CompanyID       uuid.UUID     `json:"company_id"`
	ClientID        uuid.UUID     `json:"client_id"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	Location        string        `json:"location,omitempty"`
	HourlyRateCents int64         `json:"hourly_rate_cents"`
	Status          MissionStatus `json:"status"`
	Slots           []Slot        `json:"slots,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// MissionTemplate is a client's saved prefill for repeat missions.
type MissionTemplate struct {
	ID              uuid.UUID  `json:"id"`
	ClientID        uuid.UUID  `json:"client_id"`
	CompanyID       *uuid.UUID `json:"company_id,omitempty"`
	Name            string     `json:"name"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Location        string     `json:"location,omitempty"`
	HourlyRateCents int64      `json:"hourly_rate_cents"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
