package invoices

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/extrabeam/backend/internal/billing"
	"github.com/extrabeam/backend/internal/companies"
	"github.com/extrabeam/backend/internal/middleware"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/response"
)

// EventInvoicePaid is published on the company channel when a payment lands.
const EventInvoicePaid = "invoice_paid"

// Store is the invoice persistence the handler needs.
type Store interface {
	Create(ctx context.Context, inv *models.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.Invoice, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Invoice, error)
	Update(ctx context.Context, inv *models.Invoice) error
	SetPaymentLink(ctx context.Context, id uuid.UUID, url, sessionID string) error
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*models.Invoice, error)
}

// MissionStore reads missions and their slots.
type MissionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Mission, error)
	ListSlots(ctx context.Context, missionID uuid.UUID) ([]models.Slot, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.MissionStatus) error
}

// PaymentGateway creates one-off payment sessions.
type PaymentGateway interface {
	CreatePaymentCheckout(ctx context.Context, in billing.PaymentCheckout) (*billing.CheckoutSession, error)
}

// UserFinder looks up the billed client.
type UserFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Notifier is told about invoices sent and paid.
type Notifier interface {
	InvoiceSent(ctx context.Context, inv *models.Invoice, co *models.Company)
	InvoicePaid(ctx context.Context, inv *models.Invoice, co *models.Company)
}

// Publisher pushes realtime events to a company's dashboard.
type Publisher interface {
	PublishToCompany(ctx context.Context, companyID uuid.UUID, eventType string, payload interface{}) error
}

// Options configures the handler. Zero values disable the optional collaborators.
type Options struct {
	SiteURL       string
	Currency      string
	WebhookSecret string
	Users         UserFinder
	Notifier      Notifier
	Events        Publisher
}

// Handler handles invoice and payment endpoints.
type Handler struct {
	store     Store
	missions  MissionStore
	companies companies.Finder
	payments  PaymentGateway
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// NewHandler creates an invoices handler.
func NewHandler(store Store, missionStore MissionStore, finder companies.Finder, payments PaymentGateway, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Currency == "" {
		opts.Currency = "eur"
	}
	opts.SiteURL = strings.TrimRight(opts.SiteURL, "/")
	return &Handler{
		store:     store,
		missions:  missionStore,
		companies: finder,
		payments:  payments,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateRequest is the body for POST /api/companies/:slug/invoices. With mission_id the
// client, minutes and rate come from the mission; otherwise minutes or amount_ht_cents is required.
type CreateRequest struct {
	MissionID       string     `json:"mission_id"`
	ClientID        string     `json:"client_id"`
	Label           string     `json:"label" binding:"max=255"`
	Minutes         *int       `json:"minutes" binding:"omitempty,min=0"`
	HourlyRateCents *int64     `json:"hourly_rate_cents" binding:"omitempty,min=0"`
	AmountHTCents   *int64     `json:"amount_ht_cents" binding:"omitempty,min=0"`
	VATRate         int        `json:"vat_rate" binding:"min=0,max=100"`
	DueDate         *time.Time `json:"due_date"`
}

// UpdateRequest is the body for PATCH /api/invoices/:id.
type UpdateRequest struct {
	Status    *string    `json:"status" binding:"omitempty,oneof=sent canceled"`
	Label     *string    `json:"label" binding:"omitempty,max=255"`
	VATRate   *int       `json:"vat_rate" binding:"omitempty,min=0,max=100"`
	DueDate   *time.Time `json:"due_date"`
	Recompute bool       `json:"recompute"`
}

// Create handles POST /api/companies/:slug/invoices. Requires RequireManager and an active subscription.
func (h *Handler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	co := companies.FromContext(c)
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	inv := &models.Invoice{
		CompanyID: co.ID,
		Label:     strings.TrimSpace(req.Label),
		VATRate:   req.VATRate,
		Currency:  h.opts.Currency,
		Status:    models.InvoiceDraft,
		DueDate:   req.DueDate,
	}
	var err error
	if req.MissionID != "" {
		err = h.fromMission(ctx, co, inv, req.MissionID)
	} else {
		err = manual(co, inv, req)
	}
	if err != nil {
		response.Error(c, err, "failed to prepare invoice")
		return
	}
	Recalculate(inv)
	if err := h.store.Create(ctx, inv); err != nil {
		h.logger.Error("create invoice failed", zap.String("company_id", co.ID.String()), zap.Error(err))
		response.Error(c, err, "failed to create invoice")
		return
	}
	h.logger.Info("invoice created", zap.String("invoice_id", inv.ID.String()), zap.String("number", inv.Number))
	response.Created(c, inv)
}

func (h *Handler) fromMission(ctx context.Context, co *models.Company, inv *models.Invoice, rawID string) error {
	missionID, err := uuid.Parse(rawID)
	if err != nil {
		return apperr.Invalid("invalid mission_id")
	}
	m, err := h.missions.GetByID(ctx, missionID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return apperr.Invalid("mission not found")
		}
		return err
	}
	if m.CompanyID != co.ID {
		return apperr.Invalid("mission belongs to another company")
	}
	if m.Status == models.MissionProposed || m.Status == models.MissionRefused {
		return apperr.Invalid("mission must be validated before invoicing")
	}
	slots, err := h.missions.ListSlots(ctx, m.ID)
	if err != nil {
		return err
	}
	clientID := m.ClientID
	inv.MissionID = &m.ID
	inv.ClientID = &clientID
	inv.Minutes = MinutesOf(slots)
	inv.HourlyRateCents = m.HourlyRateCents
	if inv.Label == "" {
		inv.Label = m.Title
	}
	return nil
}

func manual(co *models.Company, inv *models.Invoice, req CreateRequest) error {
	if inv.Label == "" {
		return apperr.Invalid("label is required")
	}
	if req.ClientID != "" {
		id, err := uuid.Parse(req.ClientID)
		if err != nil {
			return apperr.Invalid("invalid client_id")
		}
		inv.ClientID = &id
	}
	switch {
	case req.Minutes != nil:
		inv.Minutes = *req.Minutes
		inv.HourlyRateCents = co.HourlyRateCents
		if req.HourlyRateCents != nil {
			inv.HourlyRateCents = *req.HourlyRateCents
		}
		if inv.HourlyRateCents <= 0 {
			return apperr.Invalid("hourly_rate_cents is required with minutes")
		}
	case req.AmountHTCents != nil:
		inv.AmountHTCents = *req.AmountHTCents
	default:
		return apperr.Invalid("minutes or amount_ht_cents is required")
	}
	return nil
}

// ListCompany handles GET /api/companies/:slug/invoices. Requires RequireManager.
func (h *Handler) ListCompany(c *gin.Context) {
	co := companies.FromContext(c)
	list, err := h.store.ListByCompany(c.Request.Context(), co.ID)
	if err != nil {
		response.Error(c, err, "failed to load invoices")
		return
	}
	response.OK(c, list)
}

// ListMine handles GET /api/invoices for the calling client.
func (h *Handler) ListMine(c *gin.Context) {
	userID, _ := middleware.CurrentUser(c)
	list, err := h.store.ListByClient(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err, "failed to load invoices")
		return
	}
	response.OK(c, list)
}

// load returns the invoice and its company. Managers always see it; the billed client only
// once it left draft.
func (h *Handler) load(c *gin.Context, manage bool) (*models.Invoice, *models.Company, error) {
	ctx := c.Request.Context()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, nil, apperr.Invalid("invalid invoice id")
	}
	inv, err := h.store.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	co, err := h.companies.GetByID(ctx, inv.CompanyID)
	if err != nil {
		return nil, nil, err
	}
	userID, role := middleware.CurrentUser(c)
	if companies.CanManage(co, userID, role) {
		return inv, co, nil
	}
	if !manage && inv.ClientID != nil && *inv.ClientID == userID && inv.Status != models.InvoiceDraft {
		return inv, co, nil
	}
	return nil, nil, apperr.Forbidden("not authorized for this invoice")
}

// Get handles GET /api/invoices/:id.
func (h *Handler) Get(c *gin.Context) {
	inv, _, err := h.load(c, false)
	if err != nil {
		response.Error(c, err, "failed to load invoice")
		return
	}
	response.OK(c, inv)
}

// Update handles PATCH /api/invoices/:id. Manager only.
func (h *Handler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	inv, co, err := h.load(c, true)
	if err != nil {
		response.Error(c, err, "failed to load invoice")
		return
	}
	if inv.Status == models.InvoicePaid || inv.Status == models.InvoiceCanceled {
		response.Conflict(c, "invoice is "+string(inv.Status)+" and can no longer change")
		return
	}
	sending := false
	if req.Status != nil {
		next := models.InvoiceStatus(*req.Status)
		sending = next == models.InvoiceSent && inv.Status == models.InvoiceDraft
		inv.Status = next
	}
	if req.Label != nil {
		if strings.TrimSpace(*req.Label) == "" {
			response.BadRequest(c, "label must not be empty")
			return
		}
		inv.Label = strings.TrimSpace(*req.Label)
	}
	if req.VATRate != nil {
		inv.VATRate = *req.VATRate
	}
	if req.DueDate != nil {
		inv.DueDate = req.DueDate
	}
	if req.Recompute {
		if err := h.recompute(ctx, inv); err != nil {
			response.Error(c, err, "failed to recompute invoice")
			return
		}
	}
	Recalculate(inv)
	if err := h.store.Update(ctx, inv); err != nil {
		response.Error(c, err, "failed to update invoice")
		return
	}
	if sending && h.opts.Notifier != nil {
		h.opts.Notifier.InvoiceSent(ctx, inv, co)
	}
	response.OK(c, inv)
}

func (h *Handler) recompute(ctx context.Context, inv *models.Invoice) error {
	if inv.MissionID == nil {
		return apperr.Invalid("only mission invoices can be recomputed")
	}
	m, err := h.missions.GetByID(ctx, *inv.MissionID)
	if err != nil {
		return err
	}
	slots, err := h.missions.ListSlots(ctx, m.ID)
	if err != nil {
		return err
	}
	inv.Minutes = MinutesOf(slots)
	inv.HourlyRateCents = m.HourlyRateCents
	return nil
}

// PaymentLink handles POST /api/invoices/:id/payment-link. Manager only.
func (h *Handler) PaymentLink(c *gin.Context) {
	ctx := c.Request.Context()
	inv, co, err := h.load(c, true)
	if err != nil {
		response.Error(c, err, "failed to load invoice")
		return
	}
	switch {
	case inv.Status == models.InvoicePaid || inv.Status == models.InvoiceCanceled:
		response.Conflict(c, "invoice is "+string(inv.Status))
		return
	case inv.AmountTTCCents <= 0:
		response.BadRequest(c, "invoice amount must be positive")
		return
	}
	in := billing.PaymentCheckout{
		Description: co.Name + " " + inv.Number + " " + inv.Label,
		AmountCents: inv.AmountTTCCents,
		Currency:    inv.Currency,
		SuccessURL:  h.opts.SiteURL + "/factures/" + inv.ID.String() + "?payment=success",
		CancelURL:   h.opts.SiteURL + "/factures/" + inv.ID.String() + "?payment=cancel",
		Metadata: map[string]string{
			"invoice_id": inv.ID.String(),
			"company_id": co.ID.String(),
		},
	}
	if inv.ClientID != nil && h.opts.Users != nil {
		if u, err := h.opts.Users.GetByID(ctx, *inv.ClientID); err == nil {
			in.CustomerEmail = u.Email
		}
	}
	sess, err := h.payments.CreatePaymentCheckout(ctx, in)
	if err != nil {
		if errors.Is(err, billing.ErrNotConfigured) {
			response.ServiceUnavailable(c, "payments not configured")
			return
		}
		h.logger.Error("create payment checkout failed", zap.String("invoice_id", inv.ID.String()), zap.Error(err))
		response.Internal(c, "failed to create payment link")
		return
	}
	if err := h.store.SetPaymentLink(ctx, inv.ID, sess.URL, sess.ID); err != nil {
		response.Error(c, err, "failed to store payment link")
		return
	}
	if inv.MissionID != nil {
		if err := h.awaitPayment(ctx, *inv.MissionID); err != nil {
			h.logger.Warn("mission pending_payment failed", zap.String("mission_id", inv.MissionID.String()), zap.Error(err))
		}
	}
	inv.PaymentURL = sess.URL
	response.OK(c, gin.H{"url": sess.URL, "invoice": inv})
}

func (h *Handler) awaitPayment(ctx context.Context, missionID uuid.UUID) error {
	m, err := h.missions.GetByID(ctx, missionID)
	if err != nil {
		return err
	}
	if m.Status == models.MissionPaid || m.Status == models.MissionPendingPayment {
		return nil
	}
	return h.missions.SetStatus(ctx, missionID, models.MissionPendingPayment)
}

func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	if response.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(fallback, zap.Error(err))
	}
	response.Error(c, err, fallback)
}
