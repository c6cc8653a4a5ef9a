package models

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus is the lifecycle of a facture.
type InvoiceStatus string

const (
	InvoiceDraft    InvoiceStatus = "draft"
	InvoiceSent     InvoiceStatus = "sent"
	InvoicePaid     InvoiceStatus = "paid"
	InvoiceCanceled InvoiceStatus = "canceled"
)

// Invoice is a facture issued by a company, optionally derived from a mission.
// Amounts are in cents; VATRate is a percentage.
type Invoice struct {
	ID              uuid.UUID     `json:"id"`
	CompanyID       uuid.UUID     `json:"company_id"`
	ClientID        *uuid.UUID    `json:"client_id,omitempty"`
	MissionID       *uuid.UUID    `json:"mission_id,omitempty"`
	Number          string        `json:"number"`
	Label           string        `json:"label"`
	Minutes         int           `json:"minutes"`
	HourlyRateCents int64         `json:"hourly_rate_cents"`
	AmountHTCents   int64         `json:"amount_ht_cents"`
	VATRate         int           `json:"vat_rate"`
	AmountTTCCents  int64         `json:"amount_ttc_cents"`
	Currency        string        `json:"currency"`
	Status          InvoiceStatus `json:"status"`
	PaymentURL      string        `json:"payment_url,omitempty"`
	StripeSessionID string        `json:"-"`
	DueDate         *time.Time    `json:"due_date,omitempty"`
	PaidAt          *time.Time    `json:"paid_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Contact is a client's bookmark of a company.
type Contact struct {
	ID          uuid.UUID `json:"id"`
	ClientID    uuid.UUID `json:"client_id"`
	CompanyID   uuid.UUID `json:"company_id"`
	CompanySlug string    `json:"company_slug"`
	CompanyName string    `json:"company_name"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
