package models

import (
	"time"

	"github.com/google/uuid"
)

// Email types sent by the notification dispatcher.
const (
	EmailTypeMissionProposed       = "mission_proposed"
	EmailTypeMissionStatusChanged  = "mission_status_changed"
	EmailTypeInvoiceSent           = "invoice_sent"
	EmailTypeInvoicePaid           = "invoice_paid"
	EmailTypeSubscriptionActivated = "subscription_activated"
	EmailTypeSubscriptionPastDue   = "subscription_past_due"
	EmailTypeSubscriptionCanceled  = "subscription_canceled"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusPending = "pending"
	EmailLogStatusSent    = "sent"
	EmailLogStatusFailed  = "failed"
)

// EmailLog records sent notification emails.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	CompanyID      *uuid.UUID `json:"company_id,omitempty"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	ProviderID     string     `json:"provider_id,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
