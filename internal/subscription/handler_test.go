package subscription

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/extrabeam/backend/internal/companies"
	"github.com/extrabeam/backend/internal/middleware"
	"github.com/extrabeam/backend/internal/models"
)

const testSecret = "whsec_test"

func init() {
	gin.SetMode(gin.TestMode)
}

func webhookRouter(f *fixture) *gin.Engine {
	h := NewHandler(f.svc, testSecret, nil)
	r := gin.New()
	r.POST("/api/subscription/webhook", h.Webhook)
	return r
}

func signed(payload []byte, secret string) (*bytes.Reader, string) {
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return bytes.NewReader(sp.Payload), sp.Header
}

func postWebhook(r *gin.Engine, body *bytes.Reader, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/subscription/webhook", body)
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func eventPayload(companyID uuid.UUID) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session","mode":"subscription","customer":"cus_1","subscription":"sub_1","metadata":{"company_id":%q,"plan":"monthly"}}}}`, companyID))
}

func TestWebhookSignedDelivery(t *testing.T) {
	f := newFixture()
	r := webhookRouter(f)

	body, header := signed(eventPayload(f.company.ID), testSecret)
	resp := postWebhook(r, body, header)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out map[string]bool
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil || !out["received"] {
		t.Fatalf("body = %s", resp.Body.String())
	}
	if got := f.store.get(f.company.ID).SubscriptionStatus; got != StatusActive {
		t.Fatalf("status = %q, want active", got)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture()
	r := webhookRouter(f)

	body, header := signed(eventPayload(f.company.ID), "whsec_wrong")
	if resp := postWebhook(r, body, header); resp.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: expected 401, got %d", resp.Code)
	}
	if resp := postWebhook(r, bytes.NewReader(eventPayload(f.company.ID)), ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned: expected 401, got %d", resp.Code)
	}
	if got := f.store.get(f.company.ID).SubscriptionStatus; got != StatusIncomplete {
		t.Fatalf("rejected deliveries must not change state, got %q", got)
	}
}

func TestWebhookUnknownCompany(t *testing.T) {
	f := newFixture()
	r := webhookRouter(f)
	body, header := signed(eventPayload(uuid.New()), testSecret)
	if resp := postWebhook(r, body, header); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestWebhookVendorFailureIs500(t *testing.T) {
	f := newFixture()
	delete(f.gateway.subscriptions, "sub_1")
	r := webhookRouter(f)
	body, header := signed(eventPayload(f.company.ID), testSecret)
	resp := postWebhook(r, body, header)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "no such subscription") {
		t.Fatalf("vendor error leaked to client: %s", resp.Body.String())
	}
}

func TestWebhookOutcomes(t *testing.T) {
	f := newFixture()
	r := webhookRouter(f)
	cases := map[string][]byte{
		"known company":    eventPayload(f.company.ID),
		"unknown company":  eventPayload(uuid.New()),
		"not json":         []byte("not json"),
		"empty object":     []byte(`{}`),
		"bad data shape":   []byte(`{"id":"evt_2","object":"event","type":"checkout.session.completed","data":{"object":{"mode":5}}}`),
		"unhandled type":   []byte(`{"id":"evt_3","object":"event","type":"charge.refunded","data":{"object":{}}}`),
		"subscription gap": []byte(`{"id":"evt_4","object":"event","type":"customer.subscription.updated","data":{"object":{"id":"sub_missing","customer":"cus_1"}}}`),
	}
	allowed := map[int]bool{http.StatusOK: true, http.StatusUnauthorized: true, http.StatusNotFound: true, http.StatusInternalServerError: true}
	for name, payload := range cases {
		for _, secret := range []string{testSecret, "whsec_other"} {
			body, header := signed(payload, secret)
			resp := postWebhook(r, body, header)
			if !allowed[resp.Code] {
				t.Fatalf("%s (secret %s): unexpected status %d", name, secret, resp.Code)
			}
			if secret != testSecret && resp.Code != http.StatusUnauthorized {
				t.Fatalf("%s: wrong secret should be 401, got %d", name, resp.Code)
			}
			if resp.Code == http.StatusOK && !strings.Contains(resp.Body.String(), `"received":true`) {
				t.Fatalf("%s: 200 without received flag: %s", name, resp.Body.String())
			}
		}
	}
}

func TestCheckoutEndpoint(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, testSecret, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, f.owner)
		c.Set(middleware.ContextUserRole, "entreprise")
	})
	r.POST("/api/subscription/checkout", h.Checkout)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/subscription/checkout", strings.NewReader(`{"slug":"atelier","plan":"monthly"}`)))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "https://checkout.test/cs_1") {
		t.Fatalf("expected checkout url, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/subscription/checkout", strings.NewReader(`{"slug":"atelier","plan":"lifetime"}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("bad plan: expected 400, got %d", resp.Code)
	}
}

func TestRequireActive(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)
	cases := []struct {
		name string
		co   models.Company
		want int
	}{
		{"active", models.Company{SubscriptionStatus: "active", SubscriptionPeriodEnd: &future}, http.StatusOK},
		{"trialing", models.Company{SubscriptionStatus: "trialing"}, http.StatusOK},
		{"past due", models.Company{SubscriptionStatus: "past_due", SubscriptionPeriodEnd: &future}, http.StatusForbidden},
		{"incomplete", models.Company{SubscriptionStatus: "incomplete"}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			co := tc.co
			r := gin.New()
			r.GET("/x", func(c *gin.Context) { c.Set(companies.ContextCompany, &co) }, RequireActive(), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/x", nil))
			if resp.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.Code)
			}
		})
	}
}
