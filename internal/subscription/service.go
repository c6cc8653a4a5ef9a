package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"github.com/extrabeam/backend/internal/billing"
	"github.com/extrabeam/backend/internal/companies"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/queue"
)

// EventStatusChanged is the realtime event pushed to a company after reconciliation.
const EventStatusChanged = "subscription_status"

// CompanyStore is the company persistence used by the service.
type CompanyStore interface {
	companies.Finder
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Company, error)
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) (string, error)
	UpdateSubscription(ctx context.Context, id uuid.UUID, s models.SubscriptionState) error
}

// Publisher pushes an event to the dashboards of a company.
type Publisher interface {
	PublishToCompany(ctx context.Context, companyID uuid.UUID, eventType string, payload interface{}) error
}

// Notifier is told when a company's subscription enters a notable state.
type Notifier interface {
	SubscriptionChanged(ctx context.Context, co *models.Company, status string)
}

// UnresolvedRecorder keeps events that matched no company.
type UnresolvedRecorder interface {
	RecordUnresolved(ctx context.Context, ev queue.UnresolvedEvent) error
}

// Options configures the service. Cache, Events, Notifier and Unresolved are optional.
type Options struct {
	Prices     map[string]string // plan -> vendor price id
	TrialDays  int
	SiteURL    string
	Cache      StatusCache
	Events     Publisher
	Notifier   Notifier
	Unresolved UnresolvedRecorder
}

// Service creates checkouts and keeps company subscription columns in line with the vendor.
type Service struct {
	companies CompanyStore
	gateway   billing.Gateway
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a subscription service.
func NewService(store CompanyStore, gateway billing.Gateway, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{companies: store, gateway: gateway, opts: opts, logger: logger, now: time.Now}
}

// Caller identifies the authenticated user of a request.
type Caller struct {
	ID   uuid.UUID
	Role string
}

// CheckoutRequest starts a subscription for a company.
type CheckoutRequest struct {
	Slug         string
	Plan         string
	ReferralCode string
}

// Checkout returns the URL of a vendor checkout page for the plan. The vendor customer is created on
// first use and stored on the company, so retries reuse it.
func (s *Service) Checkout(ctx context.Context, caller Caller, req CheckoutRequest) (string, error) {
	co, err := companies.Authorize(ctx, s.companies, req.Slug, caller.ID, caller.Role)
	if err != nil {
		return "", err
	}
	priceID := s.opts.Prices[req.Plan]
	if priceID == "" {
		return "", apperr.Invalid("unknown plan")
	}
	customerID, err := s.ensureCustomer(ctx, co)
	if err != nil {
		return "", err
	}
	metadata := map[string]string{
		"company_id": co.ID.String(),
		"plan":       req.Plan,
	}
	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		metadata["referral_code"] = code
	}
	base := s.dashboardURL(co.Slug)
	sess, err := s.gateway.CreateSubscriptionCheckout(ctx, billing.SubscriptionCheckout{
		CustomerID: customerID,
		PriceID:    priceID,
		TrialDays:  s.opts.TrialDays,
		SuccessURL: base + "?checkout=success",
		CancelURL:  base + "?checkout=cancel",
		Metadata:   metadata,
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("subscription checkout created",
		zap.String("company_id", co.ID.String()), zap.String("plan", req.Plan), zap.String("session_id", sess.ID))
	return sess.URL, nil
}

func (s *Service) ensureCustomer(ctx context.Context, co *models.Company) (string, error) {
	if co.StripeCustomerID != "" {
		return co.StripeCustomerID, nil
	}
	created, err := s.gateway.CreateCustomer(ctx, "", co.Name, map[string]string{
		"company_id": co.ID.String(),
		"slug":       co.Slug,
	})
	if err != nil {
		return "", err
	}
	stored, err := s.companies.SetStripeCustomerID(ctx, co.ID, created)
	if err != nil {
		return "", err
	}
	if stored != created {
		s.logger.Warn("concurrent customer creation, keeping stored customer",
			zap.String("company_id", co.ID.String()), zap.String("stored", stored), zap.String("discarded", created))
	}
	co.StripeCustomerID = stored
	return stored, nil
}

// Status returns the normalized subscription state of a company the caller manages.
func (s *Service) Status(ctx context.Context, caller Caller, slug string) (*Status, error) {
	co, err := companies.Authorize(ctx, s.companies, slug, caller.ID, caller.Role)
	if err != nil {
		return nil, err
	}
	if s.opts.Cache != nil {
		if st, ok := s.opts.Cache.Get(ctx, co.ID); ok {
			st.IsActive = IsActive(st.Status, st.CurrentPeriodEnd, s.now())
			return st, nil
		}
	}
	st := StatusOf(co, s.now())
	if s.opts.Cache != nil {
		s.opts.Cache.Set(ctx, co.ID, st)
	}
	return &st, nil
}

// StatusOf computes the status view of a company.
func StatusOf(co *models.Company, now time.Time) Status {
	status := Normalize(co.SubscriptionStatus)
	return Status{
		Status:           status,
		Plan:             co.SubscriptionPlan,
		CurrentPeriodEnd: co.SubscriptionPeriodEnd,
		IsActive:         IsActive(status, co.SubscriptionPeriodEnd, now),
	}
}

// Portal returns a vendor customer-portal URL for the company.
func (s *Service) Portal(ctx context.Context, caller Caller, slug string) (string, error) {
	co, err := companies.Authorize(ctx, s.companies, slug, caller.ID, caller.Role)
	if err != nil {
		return "", err
	}
	if co.StripeCustomerID == "" {
		return "", apperr.Invalid("no billing account yet, start a subscription first")
	}
	return s.gateway.CreatePortalSession(ctx, co.StripeCustomerID, s.dashboardURL(co.Slug))
}

func (s *Service) dashboardURL(slug string) string {
	return strings.TrimRight(s.opts.SiteURL, "/") + "/dashboard/" + slug + "/abonnement"
}

// eventRef is what an event tells us about the company and subscription it concerns.
type eventRef struct {
	companyID      string
	customerID     string
	subscriptionID string
	plan           string
}

// HandleEvent reconciles the company concerned by a verified vendor event. Events of other kinds are
// ignored. An event whose metadata company id and customer id both match nothing is a not-found error;
// one without a company id that cannot be matched is recorded and dropped.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	ref, ok, err := parseEvent(event)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	if !ok {
		s.logger.Debug("ignoring billing event", zap.String("event_id", event.ID), zap.String("type", string(event.Type)))
		return nil
	}
	co, err := s.resolveCompany(ctx, ref)
	if err != nil {
		return err
	}
	if co == nil {
		s.logger.Warn("billing event matched no company",
			zap.String("event_id", event.ID), zap.String("type", string(event.Type)), zap.String("customer_id", ref.customerID))
		s.recordUnresolved(ctx, event, ref, "no company for metadata or customer")
		return nil
	}
	return s.reconcile(ctx, event, co, ref)
}

func parseEvent(event stripe.Event) (eventRef, bool, error) {
	if event.Data == nil {
		return eventRef{}, false, nil
	}
	t := string(event.Type)
	switch {
	case t == "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return eventRef{}, false, err
		}
		if sess.Mode != stripe.CheckoutSessionModeSubscription {
			return eventRef{}, false, nil
		}
		ref := eventRef{companyID: sess.Metadata["company_id"], plan: sess.Metadata["plan"]}
		if ref.companyID == "" {
			ref.companyID = sess.ClientReferenceID
		}
		if sess.Customer != nil {
			ref.customerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			ref.subscriptionID = sess.Subscription.ID
		}
		return ref, true, nil
	case strings.HasPrefix(t, "customer.subscription."):
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return eventRef{}, false, err
		}
		ref := eventRef{companyID: sub.Metadata["company_id"], plan: sub.Metadata["plan"], subscriptionID: sub.ID}
		if sub.Customer != nil {
			ref.customerID = sub.Customer.ID
		}
		return ref, true, nil
	case strings.HasPrefix(t, "invoice.payment_"):
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return eventRef{}, false, err
		}
		var ref eventRef
		if inv.Customer != nil {
			ref.customerID = inv.Customer.ID
		}
		if inv.Subscription != nil {
			ref.subscriptionID = inv.Subscription.ID
		}
		if ref.subscriptionID == "" {
			return eventRef{}, false, nil
		}
		return ref, true, nil
	}
	return eventRef{}, false, nil
}

// resolveCompany finds the company by metadata id, then by vendor customer id. An explicit metadata id
// that matches nothing is not found unless the customer id resolves.
func (s *Service) resolveCompany(ctx context.Context, ref eventRef) (*models.Company, error) {
	if ref.companyID != "" {
		if id, err := uuid.Parse(ref.companyID); err == nil {
			co, err := s.companies.GetByID(ctx, id)
			if err == nil {
				return co, nil
			}
			if !apperr.IsNotFound(err) {
				return nil, err
			}
		}
	}
	if ref.customerID != "" {
		co, err := s.companies.GetByStripeCustomerID(ctx, ref.customerID)
		if err == nil {
			return co, nil
		}
		if !apperr.IsNotFound(err) {
			return nil, err
		}
	}
	if ref.companyID != "" {
		return nil, apperr.NotFound("company not found")
	}
	return nil, nil
}

func (s *Service) reconcile(ctx context.Context, event stripe.Event, co *models.Company, ref eventRef) error {
	subID := ref.subscriptionID
	if subID == "" {
		subID = co.StripeSubscriptionID
	}
	if subID == "" {
		s.logger.Warn("billing event carries no subscription", zap.String("event_id", event.ID), zap.String("company_id", co.ID.String()))
		s.recordUnresolved(ctx, event, ref, "no subscription id")
		return nil
	}
	// The event payload may be stale or duplicated; the vendor's current object is authoritative.
	sub, err := s.gateway.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	status := Normalize(sub.Status)
	if co.StripeSubscriptionID != "" && sub.ID != co.StripeSubscriptionID && status == StatusCanceled {
		s.logger.Info("ignoring cancellation of a replaced subscription",
			zap.String("company_id", co.ID.String()), zap.String("subscription_id", sub.ID))
		return nil
	}

	state := models.SubscriptionState{
		Status:         status,
		Plan:           s.planFor(sub, ref),
		PeriodEnd:      sub.PeriodEnd,
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
	}
	if state.CustomerID == "" {
		state.CustomerID = ref.customerID
	}
	if err := s.companies.UpdateSubscription(ctx, co.ID, state); err != nil {
		return err
	}
	previous := Normalize(co.SubscriptionStatus)
	s.logger.Info("subscription reconciled",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("company_id", co.ID.String()),
		zap.String("from", previous),
		zap.String("to", status))

	if s.opts.Cache != nil {
		s.opts.Cache.Invalidate(ctx, co.ID)
	}
	co.SubscriptionStatus = state.Status
	co.SubscriptionPlan = state.Plan
	co.SubscriptionPeriodEnd = state.PeriodEnd
	co.StripeSubscriptionID = state.SubscriptionID
	if s.opts.Events != nil {
		if err := s.opts.Events.PublishToCompany(ctx, co.ID, EventStatusChanged, StatusOf(co, s.now())); err != nil {
			s.logger.Warn("publish subscription status failed", zap.String("company_id", co.ID.String()), zap.Error(err))
		}
	}
	if s.opts.Notifier != nil && notable(previous, status) {
		s.opts.Notifier.SubscriptionChanged(ctx, co, status)
	}
	return nil
}

func (s *Service) planFor(sub *billing.Subscription, ref eventRef) string {
	for plan, price := range s.opts.Prices {
		if price != "" && price == sub.PriceID {
			return plan
		}
	}
	if ref.plan != "" {
		return ref.plan
	}
	return sub.Metadata["plan"]
}

// notable reports whether moving from previous to next deserves a notification.
func notable(previous, next string) bool {
	if previous == next {
		return false
	}
	switch next {
	case StatusActive:
		return previous != StatusTrialing
	case StatusTrialing:
		return previous != StatusActive
	case StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

func (s *Service) recordUnresolved(ctx context.Context, event stripe.Event, ref eventRef, reason string) {
	if s.opts.Unresolved == nil {
		return
	}
	err := s.opts.Unresolved.RecordUnresolved(ctx, queue.UnresolvedEvent{
		EventID:    event.ID,
		EventType:  string(event.Type),
		CustomerID: ref.customerID,
		Reason:     reason,
		At:         s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("record unresolved event failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}
