package subscription

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/extrabeam/backend/internal/billing"
	"github.com/extrabeam/backend/internal/companies"
	"github.com/extrabeam/backend/internal/middleware"
	"github.com/extrabeam/backend/pkg/response"
)

// Handler exposes the subscription endpoints.
type Handler struct {
	svc           *Service
	webhookSecret string
	logger        *zap.Logger
}

// NewHandler creates a subscription handler.
func NewHandler(svc *Service, webhookSecret string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, webhookSecret: webhookSecret, logger: logger}
}

// CheckoutBody is the body for POST /api/subscription/checkout.
type CheckoutBody struct {
	Slug         string `json:"slug" binding:"required"`
	Plan         string `json:"plan" binding:"required,oneof=monthly yearly"`
	ReferralCode string `json:"referral_code" binding:"max=64"`
}

// PortalBody is the body for POST /api/subscription/portal.
type PortalBody struct {
	Slug string `json:"slug" binding:"required"`
}

func caller(c *gin.Context) Caller {
	id, role := middleware.CurrentUser(c)
	return Caller{ID: id, Role: role}
}

// Checkout handles POST /api/subscription/checkout.
func (h *Handler) Checkout(c *gin.Context) {
	var body CheckoutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	url, err := h.svc.Checkout(c.Request.Context(), caller(c), CheckoutRequest{
		Slug:         body.Slug,
		Plan:         body.Plan,
		ReferralCode: body.ReferralCode,
	})
	if err != nil {
		h.fail(c, err, "failed to create checkout session")
		return
	}
	response.OK(c, gin.H{"url": url})
}

// Status handles GET /api/subscription/status?slug=.
func (h *Handler) Status(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context(), caller(c), c.Query("slug"))
	if err != nil {
		h.fail(c, err, "failed to load subscription")
		return
	}
	response.OK(c, st)
}

// Portal handles POST /api/subscription/portal.
func (h *Handler) Portal(c *gin.Context) {
	var body PortalBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "slug required")
		return
	}
	url, err := h.svc.Portal(c.Request.Context(), caller(c), body.Slug)
	if err != nil {
		h.fail(c, err, "failed to create portal session")
		return
	}
	response.OK(c, gin.H{"url": url})
}

// Webhook handles POST /api/subscription/webhook. The body must be read raw for the signature check.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, billing.MaxWebhookBody))
	if err != nil {
		response.BadRequest(c, "invalid payload")
		return
	}
	event, err := billing.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		if errors.Is(err, billing.ErrNotConfigured) {
			h.logger.Error("subscription webhook secret missing")
			response.ServiceUnavailable(c, "webhook not configured")
			return
		}
		h.logger.Warn("subscription webhook signature failed", zap.Error(err))
		response.Unauthorized(c, "signature verification failed")
		return
	}
	if err := h.svc.HandleEvent(c.Request.Context(), event); err != nil {
		if response.StatusFor(err) == http.StatusInternalServerError {
			h.logger.Error("subscription webhook failed", zap.String("event_id", event.ID), zap.String("type", string(event.Type)), zap.Error(err))
		}
		response.Error(c, err, "failed to process event")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	if errors.Is(err, billing.ErrNotConfigured) {
		response.ServiceUnavailable(c, "billing not configured")
		return
	}
	if response.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(fallback, zap.Error(err))
	}
	response.Error(c, err, fallback)
}

// RequireActive aborts unless the company set by companies.RequireManager has an active subscription.
func RequireActive() gin.HandlerFunc {
	return func(c *gin.Context) {
		co := companies.FromContext(c)
		if co == nil {
			response.Internal(c, "company not loaded")
			c.Abort()
			return
		}
		if !IsActive(co.SubscriptionStatus, co.SubscriptionPeriodEnd, time.Now()) {
			response.Forbidden(c, "an active subscription is required")
			c.Abort()
			return
		}
		c.Next()
	}
}
