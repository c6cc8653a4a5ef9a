package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func TestVerifyWebhook(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","object":"subscription"}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	event, err := VerifyWebhook(signed.Payload, signed.Header, "whsec_test")
	if err != nil {
		t.Fatalf("VerifyWebhook error = %v", err)
	}
	if event.Type != "customer.subscription.updated" || event.ID != "evt_1" {
		t.Fatalf("unexpected event %s %s", event.ID, event.Type)
	}

	if _, err := VerifyWebhook(signed.Payload, signed.Header, "whsec_other"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("wrong secret: err = %v, want ErrInvalidSignature", err)
	}
	if _, err := VerifyWebhook(payload, "", "whsec_test"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("missing header: err = %v, want ErrInvalidSignature", err)
	}
	if _, err := VerifyWebhook(payload, signed.Header, ""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("no secret: err = %v, want ErrNotConfigured", err)
	}
}

func TestFromStripeSubscription(t *testing.T) {
	sub := &stripe.Subscription{
		ID:               "sub_1",
		Status:           stripe.SubscriptionStatusTrialing,
		Customer:         &stripe.Customer{ID: "cus_1"},
		CurrentPeriodEnd: 1893456000,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{Price: &stripe.Price{ID: "price_m"}}},
		},
		Metadata: map[string]string{"company_id": "c1"},
	}
	got := FromStripeSubscription(sub)
	if got.ID != "sub_1" || got.CustomerID != "cus_1" || got.Status != "trialing" || got.PriceID != "price_m" {
		t.Fatalf("unexpected %+v", got)
	}
	if got.PeriodEnd == nil || !got.PeriodEnd.Equal(time.Unix(1893456000, 0)) {
		t.Fatalf("period end = %v", got.PeriodEnd)
	}
	if FromStripeSubscription(nil) != nil {
		t.Fatalf("nil in, nil out")
	}
}

func TestUnconfiguredGateway(t *testing.T) {
	g := NewStripe("", nil)
	if g.Configured() {
		t.Fatalf("gateway without key must report unconfigured")
	}
	if _, err := g.CreateCustomer(context.Background(), "a@b.c", "A", nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("CreateCustomer err = %v", err)
	}
	if _, err := g.GetSubscription(context.Background(), "sub_1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("GetSubscription err = %v", err)
	}
}
