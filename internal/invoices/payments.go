package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"github.com/extrabeam/backend/internal/billing"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/response"
)

// Webhook handles POST /api/payments/webhook.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, billing.MaxWebhookBody))
	if err != nil {
		response.BadRequest(c, "invalid payload")
		return
	}
	event, err := billing.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"), h.opts.WebhookSecret)
	if err != nil {
		if errors.Is(err, billing.ErrNotConfigured) {
			h.logger.Error("payments webhook secret missing")
			response.ServiceUnavailable(c, "webhook not configured")
			return
		}
		h.logger.Warn("payments webhook signature failed", zap.Error(err))
		response.Unauthorized(c, "signature verification failed")
		return
	}
	if err := h.HandleEvent(c.Request.Context(), event); err != nil {
		h.fail(c, err, "failed to process payment event")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// HandleEvent marks the invoice of a paid checkout session as paid. Other events, sessions
// without an invoice and unpaid sessions are acknowledged and ignored.
func (h *Handler) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch string(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
	default:
		return nil
	}
	if event.Data == nil {
		return apperr.Invalid("event without data")
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return apperr.Invalid("malformed checkout session")
	}
	if sess.Mode != stripe.CheckoutSessionModePayment {
		return nil
	}
	raw := sess.Metadata["invoice_id"]
	if raw == "" {
		h.logger.Info("payment session without invoice", zap.String("event_id", event.ID), zap.String("session_id", sess.ID))
		return nil
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		h.logger.Info("payment session not paid yet", zap.String("event_id", event.ID), zap.String("invoice_id", raw),
			zap.String("payment_status", string(sess.PaymentStatus)))
		return nil
	}
	invoiceID, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("payment session with malformed invoice id", zap.String("event_id", event.ID), zap.String("invoice_id", raw))
		return nil
	}
	inv, err := h.store.MarkPaid(ctx, invoiceID, h.now().UTC())
	if err != nil {
		if apperr.IsNotFound(err) {
			h.logger.Warn("paid invoice not found", zap.String("event_id", event.ID), zap.String("invoice_id", raw))
			return nil
		}
		return fmt.Errorf("mark invoice paid: %w", err)
	}
	h.logger.Info("invoice paid", zap.String("invoice_id", inv.ID.String()), zap.String("number", inv.Number),
		zap.String("event_id", event.ID))

	co, err := h.companies.GetByID(ctx, inv.CompanyID)
	if err != nil {
		h.logger.Warn("load company of paid invoice failed", zap.String("invoice_id", inv.ID.String()), zap.Error(err))
		return nil
	}
	if h.opts.Events != nil {
		payload := gin.H{"invoice_id": inv.ID, "number": inv.Number, "mission_id": inv.MissionID}
		if err := h.opts.Events.PublishToCompany(ctx, co.ID, EventInvoicePaid, payload); err != nil {
			h.logger.Warn("publish invoice_paid failed", zap.Error(err))
		}
	}
	if h.opts.Notifier != nil {
		h.opts.Notifier.InvoicePaid(ctx, inv, co)
	}
	return nil
}
