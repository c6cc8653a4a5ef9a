package unavailabilities

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/extrabeam/backend/internal/companies"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/internal/slots"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/response"
)

// maxRecurringDuration bounds each occurrence of a repeating rule.
const maxRecurringDuration = 24 * time.Hour

// Store is the persistence the handler needs.
type Store interface {
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]models.Unavailability, error)
	ListForWindow(ctx context.Context, companyID uuid.UUID, w slots.Window) ([]models.Unavailability, error)
	Get(ctx context.Context, companyID, id uuid.UUID) (*models.Unavailability, error)
	Create(ctx context.Context, u *models.Unavailability) error
	Update(ctx context.Context, u *models.Unavailability) error
	AddException(ctx context.Context, companyID, id uuid.UUID, date time.Time) (*models.Unavailability, error)
	Delete(ctx context.Context, companyID, id uuid.UUID) error
}

// SlotLister lists booked slots for the availability view.
type SlotLister interface {
	ListRange(ctx context.Context, companyID uuid.UUID, w slots.Window) ([]models.Slot, error)
}

// Handler handles unavailability and availability endpoints.
type Handler struct {
	store     Store
	slots     SlotLister
	companies companies.Finder
	logger    *zap.Logger
	now       func() time.Time
}

// NewHandler creates an unavailabilities handler.
func NewHandler(store Store, slotLister SlotLister, finder companies.Finder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, slots: slotLister, companies: finder, logger: logger, now: time.Now}
}

// RuleRequest is the body for POST and PATCH. On PATCH, omitted fields keep their value.
type RuleRequest struct {
	StartsAt        *time.Time `json:"starts_at"`
	EndsAt          *time.Time `json:"ends_at"`
	Recurrence      *string    `json:"recurrence"`
	Weekdays        []int      `json:"weekdays" binding:"omitempty,max=7,dive,min=0,max=6"`
	RecurrenceUntil *string    `json:"recurrence_until"` // YYYY-MM-DD, "" clears
	Reason          *string    `json:"reason" binding:"omitempty,max=255"`
}

// ExceptionRequest is the body for POST .../:id/exceptions.
type ExceptionRequest struct {
	Date string `json:"date" binding:"required"` // YYYY-MM-DD
}

// Availability is the public calendar view of a company.
type Availability struct {
	From        time.Time           `json:"from"`
	To          time.Time           `json:"to"`
	Unavailable []models.Occurrence `json:"unavailable"`
	Slots       []models.Slot       `json:"slots"`
}

// List handles GET /api/companies/:slug/unavailabilities. Requires RequireManager.
func (h *Handler) List(c *gin.Context) {
	co := companies.FromContext(c)
	list, err := h.store.ListByCompany(c.Request.Context(), co.ID)
	if err != nil {
		response.Error(c, err, "failed to load unavailabilities")
		return
	}
	response.OK(c, list)
}

// Create handles POST /api/companies/:slug/unavailabilities. Requires RequireManager.
func (h *Handler) Create(c *gin.Context) {
	co := companies.FromContext(c)
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	u := &models.Unavailability{CompanyID: co.ID, Recurrence: models.RecurrenceNone}
	if err := apply(u, req); err != nil {
		response.Error(c, err, "invalid unavailability")
		return
	}
	if err := h.store.Create(c.Request.Context(), u); err != nil {
		h.logger.Error("create unavailability failed", zap.String("company_id", co.ID.String()), zap.Error(err))
		response.Internal(c, "failed to create unavailability")
		return
	}
	response.Created(c, u)
}

// Update handles PATCH /api/companies/:slug/unavailabilities/:id. Requires RequireManager.
func (h *Handler) Update(c *gin.Context) {
	co := companies.FromContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return
	}
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	u, err := h.store.Get(c.Request.Context(), co.ID, id)
	if err != nil {
		response.Error(c, err, "failed to load unavailability")
		return
	}
	if err := apply(u, req); err != nil {
		response.Error(c, err, "invalid unavailability")
		return
	}
	if err := h.store.Update(c.Request.Context(), u); err != nil {
		response.Error(c, err, "failed to update unavailability")
		return
	}
	response.OK(c, u)
}

// AddException handles POST /api/companies/:slug/unavailabilities/:id/exceptions. Requires RequireManager.
func (h *Handler) AddException(c *gin.Context) {
	co := companies.FromContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return
	}
	var req ExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "date required")
		return
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(req.Date))
	if err != nil {
		response.BadRequest(c, "date must be YYYY-MM-DD")
		return
	}
	u, err := h.store.AddException(c.Request.Context(), co.ID, id, date)
	if err != nil {
		response.Error(c, err, "failed to add exception")
		return
	}
	response.OK(c, u)
}

// Delete handles DELETE /api/companies/:slug/unavailabilities/:id. Requires RequireManager.
func (h *Handler) Delete(c *gin.Context) {
	co := companies.FromContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return
	}
	if err := h.store.Delete(c.Request.Context(), co.ID, id); err != nil {
		response.Error(c, err, "failed to delete unavailability")
		return
	}
	response.NoContent(c)
}

// Availability handles GET /api/companies/:slug/availability?from&to. Public.
func (h *Handler) Availability(c *gin.Context) {
	ctx := c.Request.Context()
	co, err := companies.Resolve(ctx, h.companies, c.Param("slug"))
	if err != nil {
		response.Error(c, err, "failed to load company")
		return
	}
	w, err := slots.ParseWindow(c.Query("from"), c.Query("to"), h.now())
	if err != nil {
		response.Error(c, err, "invalid window")
		return
	}
	rules, err := h.store.ListForWindow(ctx, co.ID, w)
	if err != nil {
		h.logger.Error("load unavailabilities failed", zap.String("company_id", co.ID.String()), zap.Error(err))
		response.Internal(c, "failed to load availability")
		return
	}
	booked, err := h.slots.ListRange(ctx, co.ID, w)
	if err != nil {
		h.logger.Error("load slots failed", zap.String("company_id", co.ID.String()), zap.Error(err))
		response.Internal(c, "failed to load availability")
		return
	}
	sort.SliceStable(booked, func(i, j int) bool { return booked[i].StartsAt.Before(booked[j].StartsAt) })
	response.OK(c, Availability{
		From:        w.From,
		To:          w.To,
		Unavailable: ExpandRecurrences(rules, w),
		Slots:       booked,
	})
}

// apply merges req into u and validates the rule.
func apply(u *models.Unavailability, req RuleRequest) error {
	if req.StartsAt != nil {
		u.StartsAt = req.StartsAt.UTC()
	}
	if req.EndsAt != nil {
		u.EndsAt = req.EndsAt.UTC()
	}
	if req.Recurrence != nil {
		u.Recurrence = models.Recurrence(strings.ToLower(strings.TrimSpace(*req.Recurrence)))
	}
	if req.Weekdays != nil {
		u.Weekdays = dedupeWeekdays(req.Weekdays)
	}
	if req.RecurrenceUntil != nil {
		if strings.TrimSpace(*req.RecurrenceUntil) == "" {
			u.RecurrenceUntil = nil
		} else {
			until, err := time.Parse("2006-01-02", strings.TrimSpace(*req.RecurrenceUntil))
			if err != nil {
				return apperr.Invalid("recurrence_until must be YYYY-MM-DD")
			}
			u.RecurrenceUntil = &until
		}
	}
	if req.Reason != nil {
		u.Reason = strings.TrimSpace(*req.Reason)
	}

	if u.StartsAt.IsZero() || u.EndsAt.IsZero() {
		return apperr.Invalid("starts_at and ends_at are required")
	}
	if !u.EndsAt.After(u.StartsAt) {
		return apperr.Invalid("ends_at must be after starts_at")
	}
	if !u.Recurrence.Valid() {
		return apperr.Invalid("recurrence must be none, daily, weekly or monthly")
	}
	if u.Recurrence != models.RecurrenceNone && u.EndsAt.Sub(u.StartsAt) > maxRecurringDuration {
		return apperr.Invalid("a repeating unavailability cannot last more than 24 hours")
	}
	if u.Recurrence == models.RecurrenceWeekly && len(u.Weekdays) == 0 {
		u.Weekdays = []int{int(u.StartsAt.Weekday())}
	}
	if u.Recurrence != models.RecurrenceWeekly {
		u.Weekdays = []int{}
	}
	if u.RecurrenceUntil != nil && endOfDay(*u.RecurrenceUntil).Before(u.StartsAt) {
		return apperr.Invalid("recurrence_until is before starts_at")
	}
	return nil
}

func dedupeWeekdays(in []int) []int {
	var seen [7]bool
	out := make([]int, 0, len(in))
	for _, d := range in {
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
