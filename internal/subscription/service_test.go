package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/extrabeam/backend/internal/billing"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/queue"
)

type memCompanies struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Company
}

func newMemCompanies(cos ...models.Company) *memCompanies {
	m := &memCompanies{rows: map[uuid.UUID]models.Company{}}
	for _, co := range cos {
		m.rows[co.ID] = co
	}
	return m
}

func (m *memCompanies) get(id uuid.UUID) models.Company {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func (m *memCompanies) GetByID(_ context.Context, id uuid.UUID) (*models.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	co, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("company not found")
	}
	return &co, nil
}

func (m *memCompanies) GetBySlug(_ context.Context, slug string) (*models.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, co := range m.rows {
		if co.Slug == slug {
			co := co
			return &co, nil
		}
	}
	return nil, apperr.NotFound("company not found")
}

func (m *memCompanies) GetByStripeCustomerID(_ context.Context, customerID string) (*models.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, co := range m.rows {
		if co.StripeCustomerID == customerID {
			co := co
			return &co, nil
		}
	}
	return nil, apperr.NotFound("company not found")
}

func (m *memCompanies) SetStripeCustomerID(_ context.Context, id uuid.UUID, customerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	co := m.rows[id]
	if co.StripeCustomerID == "" {
		co.StripeCustomerID = customerID
		m.rows[id] = co
	}
	return co.StripeCustomerID, nil
}

func (m *memCompanies) UpdateSubscription(_ context.Context, id uuid.UUID, s models.SubscriptionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	co, ok := m.rows[id]
	if !ok {
		return apperr.NotFound("company not found")
	}
	co.SubscriptionStatus = s.Status
	co.SubscriptionPlan = s.Plan
	co.SubscriptionPeriodEnd = s.PeriodEnd
	if s.CustomerID != "" {
		co.StripeCustomerID = s.CustomerID
	}
	if s.SubscriptionID != "" {
		co.StripeSubscriptionID = s.SubscriptionID
	}
	m.rows[id] = co
	return nil
}

type fakeGateway struct {
	customers     int
	subscriptions map[string]*billing.Subscription
	lastCheckout  billing.SubscriptionCheckout
}

func (g *fakeGateway) CreateCustomer(context.Context, string, string, map[string]string) (string, error) {
	g.customers++
	return fmt.Sprintf("cus_%d", g.customers), nil
}

func (g *fakeGateway) CreateSubscriptionCheckout(_ context.Context, in billing.SubscriptionCheckout) (*billing.CheckoutSession, error) {
	g.lastCheckout = in
	return &billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.test/cs_1"}, nil
}

func (g *fakeGateway) CreatePaymentCheckout(context.Context, billing.PaymentCheckout) (*billing.CheckoutSession, error) {
	return nil, errors.New("not used")
}

func (g *fakeGateway) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	return "https://portal.test/" + customerID, nil
}

func (g *fakeGateway) GetSubscription(_ context.Context, id string) (*billing.Subscription, error) {
	sub, ok := g.subscriptions[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	cp := *sub
	return &cp, nil
}

type recorder struct {
	published  []string
	notified   []string
	unresolved []queue.UnresolvedEvent
}

func (r *recorder) PublishToCompany(_ context.Context, _ uuid.UUID, eventType string, _ interface{}) error {
	r.published = append(r.published, eventType)
	return nil
}

func (r *recorder) SubscriptionChanged(_ context.Context, _ *models.Company, status string) {
	r.notified = append(r.notified, status)
}

func (r *recorder) RecordUnresolved(_ context.Context, ev queue.UnresolvedEvent) error {
	r.unresolved = append(r.unresolved, ev)
	return nil
}

type memCache map[uuid.UUID]Status

func (m memCache) Get(_ context.Context, id uuid.UUID) (*Status, bool) {
	st, ok := m[id]
	return &st, ok
}

func (m memCache) Set(_ context.Context, id uuid.UUID, st Status) { m[id] = st }

func (m memCache) Invalidate(_ context.Context, id uuid.UUID) { delete(m, id) }

var periodEnd = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	store   *memCompanies
	gateway *fakeGateway
	rec     *recorder
	cache   memCache
	company models.Company
	owner   uuid.UUID
}

func newFixture() *fixture {
	owner := uuid.New()
	co := models.Company{ID: uuid.New(), OwnerID: owner, Slug: "atelier", Name: "Atelier", SubscriptionStatus: StatusIncomplete}
	f := &fixture{
		store: newMemCompanies(co),
		gateway: &fakeGateway{subscriptions: map[string]*billing.Subscription{
			"sub_1": {ID: "sub_1", CustomerID: "cus_1", Status: "active", PriceID: "price_m", PeriodEnd: &periodEnd},
		}},
		rec:     &recorder{},
		cache:   memCache{},
		company: co,
		owner:   owner,
	}
	f.svc = NewService(f.store, f.gateway, Options{
		Prices:     map[string]string{"monthly": "price_m", "yearly": "price_y"},
		SiteURL:    "https://extrabeam.test/",
		Cache:      f.cache,
		Events:     f.rec,
		Notifier:   f.rec,
		Unresolved: f.rec,
	}, nil)
	f.svc.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func mustEvent(t *testing.T, id, typ, object string) stripe.Event {
	t.Helper()
	raw := fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"data":{"object":%s}}`, id, typ, object)
	var ev stripe.Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return ev
}

func checkoutCompleted(t *testing.T, companyID uuid.UUID) stripe.Event {
	obj := fmt.Sprintf(`{"id":"cs_1","object":"checkout.session","mode":"subscription","customer":"cus_1","subscription":"sub_1","metadata":{"company_id":%q,"plan":"monthly"}}`, companyID)
	return mustEvent(t, "evt_checkout", "checkout.session.completed", obj)
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"active":             StatusActive,
		" Trialing ":         StatusTrialing,
		"past_due":           StatusPastDue,
		"canceled":           StatusCanceled,
		"unpaid":             StatusIncomplete,
		"incomplete_expired": StatusIncomplete,
		"":                   StatusIncomplete,
		"paused":             StatusIncomplete,
		"garbage":            StatusIncomplete,
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsActive(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	cases := []struct {
		status string
		end    *time.Time
		want   bool
	}{
		{"active", nil, true},
		{"active", &future, true},
		{"active", &past, false},
		{"active", &now, false},
		{"trialing", &future, true},
		{"past_due", &future, false},
		{"canceled", nil, false},
		{"incomplete", nil, false},
		{"bogus", &future, false},
	}
	for _, tc := range cases {
		if got := IsActive(tc.status, tc.end, now); got != tc.want {
			t.Fatalf("IsActive(%q, %v) = %v, want %v", tc.status, tc.end, got, tc.want)
		}
	}
}

func TestCheckoutCreatesCustomerOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	caller := Caller{ID: f.owner, Role: "entreprise"}

	for i := 0; i < 3; i++ {
		url, err := f.svc.Checkout(ctx, caller, CheckoutRequest{Slug: "atelier", Plan: "monthly", ReferralCode: "AMI10"})
		if err != nil {
			t.Fatalf("Checkout #%d error = %v", i, err)
		}
		if url != "https://checkout.test/cs_1" {
			t.Fatalf("url = %q", url)
		}
	}
	if f.gateway.customers != 1 {
		t.Fatalf("customers created = %d, want 1", f.gateway.customers)
	}
	if got := f.store.get(f.company.ID).StripeCustomerID; got != "cus_1" {
		t.Fatalf("stored customer = %q", got)
	}
	in := f.gateway.lastCheckout
	if in.CustomerID != "cus_1" || in.PriceID != "price_m" {
		t.Fatalf("checkout input = %+v", in)
	}
	if in.Metadata["company_id"] != f.company.ID.String() || in.Metadata["referral_code"] != "AMI10" || in.Metadata["plan"] != "monthly" {
		t.Fatalf("metadata = %v", in.Metadata)
	}
	if in.SuccessURL != "https://extrabeam.test/dashboard/atelier/abonnement?checkout=success" {
		t.Fatalf("success url = %q", in.SuccessURL)
	}
}

func TestCheckoutRejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, Caller{ID: uuid.New(), Role: "entreprise"}, CheckoutRequest{Slug: "atelier", Plan: "monthly"})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger: err = %v, want forbidden", err)
	}
	_, err = f.svc.Checkout(ctx, Caller{ID: f.owner, Role: "entreprise"}, CheckoutRequest{Slug: "atelier", Plan: "weekly"})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("unknown plan: err = %v, want invalid", err)
	}
	_, err = f.svc.Checkout(ctx, Caller{ID: f.owner, Role: "entreprise"}, CheckoutRequest{Slug: "nope", Plan: "monthly"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown company: err = %v, want not found", err)
	}
	if f.gateway.customers != 0 {
		t.Fatalf("no customer should be created on rejected checkouts")
	}
}

func TestCheckoutCompletedIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ev := checkoutCompleted(t, f.company.ID)

	if err := f.svc.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	first := f.store.get(f.company.ID)
	if err := f.svc.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	second := f.store.get(f.company.ID)

	if first.SubscriptionStatus != StatusActive || first.SubscriptionPlan != "monthly" || !first.SubscriptionPeriodEnd.Equal(periodEnd) {
		t.Fatalf("unexpected state after first delivery: %+v", first)
	}
	if second.SubscriptionStatus != first.SubscriptionStatus ||
		second.SubscriptionPlan != first.SubscriptionPlan ||
		!second.SubscriptionPeriodEnd.Equal(*first.SubscriptionPeriodEnd) ||
		second.StripeSubscriptionID != first.StripeSubscriptionID {
		t.Fatalf("redelivery changed state: %+v vs %+v", second, first)
	}
	if len(f.rec.notified) != 1 || f.rec.notified[0] != StatusActive {
		t.Fatalf("notifications = %v, want a single activation", f.rec.notified)
	}
	if len(f.rec.published) != 2 {
		t.Fatalf("published = %v, want one event per delivery", f.rec.published)
	}
}

func TestStaleEventUsesCurrentVendorState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if err := f.svc.HandleEvent(ctx, checkoutCompleted(t, f.company.ID)); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	// A late "past_due" payload for the same subscription; the vendor now says active.
	stale := mustEvent(t, "evt_old", "customer.subscription.updated",
		`{"id":"sub_1","object":"subscription","status":"past_due","customer":"cus_1"}`)
	if err := f.svc.HandleEvent(ctx, stale); err != nil {
		t.Fatalf("stale event: %v", err)
	}
	if got := f.store.get(f.company.ID).SubscriptionStatus; got != StatusActive {
		t.Fatalf("status = %q, want active", got)
	}
}

func TestCancellationOfReplacedSubscriptionIgnored(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if err := f.svc.HandleEvent(ctx, checkoutCompleted(t, f.company.ID)); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	f.gateway.subscriptions["sub_old"] = &billing.Subscription{ID: "sub_old", CustomerID: "cus_1", Status: "canceled"}
	ev := mustEvent(t, "evt_del", "customer.subscription.deleted",
		`{"id":"sub_old","object":"subscription","status":"canceled","customer":"cus_1"}`)
	if err := f.svc.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("delete event: %v", err)
	}
	co := f.store.get(f.company.ID)
	if co.SubscriptionStatus != StatusActive || co.StripeSubscriptionID != "sub_1" {
		t.Fatalf("replaced subscription cancellation leaked: %+v", co)
	}
}

func TestCancellationNotifies(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if err := f.svc.HandleEvent(ctx, checkoutCompleted(t, f.company.ID)); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	f.gateway.subscriptions["sub_1"].Status = "canceled"
	ev := mustEvent(t, "evt_del", "customer.subscription.deleted",
		`{"id":"sub_1","object":"subscription","status":"canceled","customer":"cus_1"}`)
	if err := f.svc.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("delete event: %v", err)
	}
	if got := f.store.get(f.company.ID).SubscriptionStatus; got != StatusCanceled {
		t.Fatalf("status = %q, want canceled", got)
	}
	if len(f.rec.notified) != 2 || f.rec.notified[1] != StatusCanceled {
		t.Fatalf("notifications = %v", f.rec.notified)
	}
}

func TestInvoiceEventResolvesByCustomer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.store.SetStripeCustomerID(ctx, f.company.ID, "cus_1"); err != nil {
		t.Fatal(err)
	}
	ev := mustEvent(t, "evt_inv", "invoice.payment_succeeded",
		`{"id":"in_1","object":"invoice","customer":"cus_1","subscription":"sub_1"}`)
	if err := f.svc.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("invoice event: %v", err)
	}
	co := f.store.get(f.company.ID)
	if co.SubscriptionStatus != StatusActive || co.SubscriptionPlan != "monthly" {
		t.Fatalf("state = %+v", co)
	}
}

func TestUnresolvableEventIsRecorded(t *testing.T) {
	f := newFixture()
	ev := mustEvent(t, "evt_x", "customer.subscription.updated",
		`{"id":"sub_1","object":"subscription","status":"active","customer":"cus_unknown"}`)
	if err := f.svc.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("unresolvable event should not fail: %v", err)
	}
	if len(f.rec.unresolved) != 1 || f.rec.unresolved[0].EventID != "evt_x" || f.rec.unresolved[0].CustomerID != "cus_unknown" {
		t.Fatalf("unresolved = %+v", f.rec.unresolved)
	}
	if got := f.store.get(f.company.ID).SubscriptionStatus; got != StatusIncomplete {
		t.Fatalf("company must be untouched, status = %q", got)
	}
}

func TestExplicitUnknownCompanyIsNotFound(t *testing.T) {
	f := newFixture()
	err := f.svc.HandleEvent(context.Background(), checkoutCompleted(t, uuid.New()))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestUnknownMetadataFallsBackToCustomer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.store.SetStripeCustomerID(ctx, f.company.ID, "cus_1"); err != nil {
		t.Fatal(err)
	}
	for _, meta := range []string{"not-a-uuid", uuid.New().String()} {
		obj := fmt.Sprintf(`{"id":"cs_1","object":"checkout.session","mode":"subscription","customer":"cus_1","subscription":"sub_1","metadata":{"company_id":%q,"plan":"monthly"}}`, meta)
		if err := f.svc.HandleEvent(ctx, mustEvent(t, "evt_checkout", "checkout.session.completed", obj)); err != nil {
			t.Fatalf("metadata %q: %v", meta, err)
		}
		co, err := f.store.GetByID(ctx, f.company.ID)
		if err != nil {
			t.Fatal(err)
		}
		if co.SubscriptionStatus != StatusActive || co.StripeSubscriptionID != "sub_1" {
			t.Fatalf("metadata %q: company not reconciled: %+v", meta, co)
		}
	}
}

func TestIgnoredEvents(t *testing.T) {
	f := newFixture()
	payment := fmt.Sprintf(`{"id":"cs_2","object":"checkout.session","mode":"payment","metadata":{"company_id":%q}}`, f.company.ID)
	for _, ev := range []stripe.Event{
		mustEvent(t, "evt_p", "checkout.session.completed", payment),
		mustEvent(t, "evt_c", "customer.created", `{"id":"cus_9","object":"customer"}`),
	} {
		if err := f.svc.HandleEvent(context.Background(), ev); err != nil {
			t.Fatalf("%s: %v", ev.Type, err)
		}
	}
	if len(f.rec.published) != 0 || len(f.rec.unresolved) != 0 {
		t.Fatalf("ignored events must have no effect")
	}
}

func TestStatusCachedAndInvalidated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	caller := Caller{ID: f.owner, Role: "entreprise"}

	st, err := f.svc.Status(ctx, caller, "atelier")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != StatusIncomplete || st.IsActive {
		t.Fatalf("initial status = %+v", st)
	}
	if _, ok := f.cache[f.company.ID]; !ok {
		t.Fatalf("status should be cached")
	}
	if err := f.svc.HandleEvent(ctx, checkoutCompleted(t, f.company.ID)); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.cache[f.company.ID]; ok {
		t.Fatalf("reconciliation should invalidate the cache")
	}
	st, err = f.svc.Status(ctx, caller, "atelier")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != StatusActive || !st.IsActive || st.Plan != "monthly" {
		t.Fatalf("status after checkout = %+v", st)
	}
	if _, err := f.svc.Status(ctx, Caller{ID: uuid.New(), Role: "client"}, "atelier"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger status: err = %v", err)
	}
}

func TestPortalRequiresCustomer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	caller := Caller{ID: f.owner, Role: "entreprise"}
	if _, err := f.svc.Portal(ctx, caller, "atelier"); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want invalid", err)
	}
	if _, err := f.store.SetStripeCustomerID(ctx, f.company.ID, "cus_1"); err != nil {
		t.Fatal(err)
	}
	url, err := f.svc.Portal(ctx, caller, "atelier")
	if err != nil || url != "https://portal.test/cus_1" {
		t.Fatalf("portal = %q, %v", url, err)
	}
}
