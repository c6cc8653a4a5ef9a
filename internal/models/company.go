package models

import (
	"time"

	"github.com/google/uuid"
)

// Company is the freelance-side account ("entreprise") with its CV profile and
// the denormalized subscription state mirrored from the payment vendor.
type Company struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	Slug            string    `json:"slug"`
	Name            string    `json:"name"`
	Headline        string    `json:"headline,omitempty"`
	Bio             string    `json:"bio,omitempty"`
	Skills          []string  `json:"skills"`
	HourlyRateCents int64     `json:"hourly_rate_cents"`
	City            string    `json:"city,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Siret           string    `json:"siret,omitempty"`
	AvatarKey       string    `json:"-"`
	CVKey           string    `json:"-"`
	AvatarURL       string    `json:"avatar_url,omitempty"`
	CVURL           string    `json:"cv_url,omitempty"`

	SubscriptionStatus    string     `json:"subscription_status"`
	SubscriptionPlan      string     `json:"subscription_plan,omitempty"`
	SubscriptionPeriodEnd *time.Time `json:"subscription_period_end,omitempty"`
	StripeCustomerID      string     `json:"-"`
	StripeSubscriptionID  string     `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubscriptionState is the set of columns overwritten on each reconciliation.
type SubscriptionState struct {
	Status         string
	Plan           string
	PeriodEnd      *time.Time
	CustomerID     string
	SubscriptionID string
}
