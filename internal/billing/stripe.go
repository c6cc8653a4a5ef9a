// Package billing wraps the payment vendor: customers, checkout sessions, the customer portal,
// subscription lookups and webhook signature checks.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned when no secret key is set.
var ErrNotConfigured = errors.New("billing not configured")

// Subscription is the vendor subscription reduced to the fields mirrored on a company.
type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	PriceID    string
	PeriodEnd  *time.Time
	Metadata   map[string]string
}

// CheckoutSession is a vendor-hosted checkout page.
type CheckoutSession struct {
	ID  string
	URL string
}

// SubscriptionCheckout describes a subscription checkout for a known customer.
type SubscriptionCheckout struct {
	CustomerID string
	PriceID    string
	TrialDays  int
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// PaymentCheckout describes a one-off payment of an invoice.
type PaymentCheckout struct {
	Description   string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// Gateway is the set of vendor calls the application makes.
type Gateway interface {
	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error)
	CreateSubscriptionCheckout(ctx context.Context, in SubscriptionCheckout) (*CheckoutSession, error)
	CreatePaymentCheckout(ctx context.Context, in PaymentCheckout) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
}

// Stripe implements Gateway with stripe-go.
type Stripe struct {
	api    *client.API
	logger *zap.Logger
}

// NewStripe creates a gateway. An empty key yields a gateway whose calls fail with ErrNotConfigured.
func NewStripe(secretKey string, logger *zap.Logger) *Stripe {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stripe{logger: logger}
	if secretKey != "" {
		s.api = client.New(secretKey, nil)
	} else {
		logger.Warn("stripe secret key not set, billing disabled")
	}
	return s
}

// Configured reports whether a secret key was provided.
func (s *Stripe) Configured() bool { return s.api != nil }

// CreateCustomer creates a vendor customer and returns its id.
func (s *Stripe) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	if s.api == nil {
		return "", ErrNotConfigured
	}
	params := &stripe.CustomerParams{
		Name:     stripe.String(name),
		Metadata: metadata,
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx
	cust, err := s.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	s.logger.Info("stripe customer created", zap.String("customer_id", cust.ID))
	return cust.ID, nil
}

// CreateSubscriptionCheckout opens a subscription-mode checkout for one price.
func (s *Stripe) CreateSubscriptionCheckout(ctx context.Context, in SubscriptionCheckout) (*CheckoutSession, error) {
	if s.api == nil {
		return nil, ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(in.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:          stripe.String(in.SuccessURL),
		CancelURL:           stripe.String(in.CancelURL),
		AllowPromotionCodes: stripe.Bool(true),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: in.Metadata,
		},
	}
	if in.TrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(int64(in.TrialDays))
	}
	if id := in.Metadata["company_id"]; id != "" {
		params.ClientReferenceID = stripe.String(id)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePaymentCheckout opens a payment-mode checkout for a fixed amount.
func (s *Stripe) CreatePaymentCheckout(ctx context.Context, in PaymentCheckout) (*CheckoutSession, error) {
	if s.api == nil {
		return nil, ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(in.Currency),
					UnitAmount: stripe.Int64(in.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(in.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: in.Metadata,
		},
	}
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePortalSession returns a customer portal URL.
func (s *Stripe) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if s.api == nil {
		return "", ErrNotConfigured
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := s.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}

// GetSubscription fetches the current subscription object.
func (s *Stripe) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	if s.api == nil {
		return nil, ErrNotConfigured
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := s.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", id, err)
	}
	return FromStripeSubscription(sub), nil
}

// FromStripeSubscription reduces a stripe-go subscription.
func FromStripeSubscription(sub *stripe.Subscription) *Subscription {
	if sub == nil {
		return nil
	}
	out := &Subscription{
		ID:       sub.ID,
		Status:   string(sub.Status),
		Metadata: sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil {
				out.PriceID = item.Price.ID
				break
			}
		}
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		out.PeriodEnd = &t
	}
	return out
}
