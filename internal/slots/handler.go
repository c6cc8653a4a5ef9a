package slots

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/extrabeam/backend/internal/companies"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/response"
)

// Store is the slot persistence the handler needs.
type Store interface {
	ListRange(ctx context.Context, companyID uuid.UUID, w Window) ([]models.Slot, error)
	Get(ctx context.Context, companyID, id uuid.UUID) (*models.Slot, error)
	Create(ctx context.Context, s *models.Slot) error
	Update(ctx context.Context, s *models.Slot) error
	Delete(ctx context.Context, companyID, id uuid.UUID) error
}

// MissionLookup loads missions to check slot links.
type MissionLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Mission, error)
}

// Handler handles slot endpoints.
type Handler struct {
	store     Store
	missions  MissionLookup
	companies companies.Finder
	logger    *zap.Logger
	now       func() time.Time
}

// NewHandler creates a slots handler.
func NewHandler(store Store, missions MissionLookup, finder companies.Finder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, missions: missions, companies: finder, logger: logger, now: time.Now}
}

// SlotRequest is the body for POST and PATCH. On PATCH, omitted fields keep their value;
// an empty mission_id unlinks the mission.
type SlotRequest struct {
	StartsAt  *time.Time `json:"starts_at"`
	EndsAt    *time.Time `json:"ends_at"`
	MissionID *string    `json:"mission_id"`
	Note      *string    `json:"note" binding:"omitempty,max=500"`
}

// List handles GET /api/companies/:slug/slots?from&to. Public.
func (h *Handler) List(c *gin.Context) {
	co, err := companies.Resolve(c.Request.Context(), h.companies, c.Param("slug"))
	if err != nil {
		response.Error(c, err, "failed to load company")
		return
	}
	w, err := ParseWindow(c.Query("from"), c.Query("to"), h.now())
	if err != nil {
		response.Error(c, err, "invalid window")
		return
	}
	list, err := h.store.ListRange(c.Request.Context(), co.ID, w)
	if err != nil {
		h.logger.Error("list slots failed", zap.String("company_id", co.ID.String()), zap.Error(err))
		response.Internal(c, "failed to load slots")
		return
	}
	response.OK(c, list)
}

// Create handles POST /api/companies/:slug/slots. Requires RequireManager.
func (h *Handler) Create(c *gin.Context) {
	co := companies.FromContext(c)
	var req SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s := &models.Slot{CompanyID: co.ID}
	if err := h.apply(c.Request.Context(), s, req); err != nil {
		response.Error(c, err, "invalid slot")
		return
	}
	if err := h.store.Create(c.Request.Context(), s); err != nil {
		h.logger.Error("create slot failed", zap.String("company_id", co.ID.String()), zap.Error(err))
		response.Internal(c, "failed to create slot")
		return
	}
	response.Created(c, s)
}

// Update handles PATCH /api/companies/:slug/slots/:id. Requires RequireManager.
func (h *Handler) Update(c *gin.Context) {
	co := companies.FromContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid slot id")
		return
	}
	var req SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := h.store.Get(c.Request.Context(), co.ID, id)
	if err != nil {
		response.Error(c, err, "failed to load slot")
		return
	}
	if err := h.apply(c.Request.Context(), s, req); err != nil {
		response.Error(c, err, "invalid slot")
		return
	}
	if err := h.store.Update(c.Request.Context(), s); err != nil {
		response.Error(c, err, "failed to update slot")
		return
	}
	response.OK(c, s)
}

// Delete handles DELETE /api/companies/:slug/slots/:id. Requires RequireManager.
func (h *Handler) Delete(c *gin.Context) {
	co := companies.FromContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid slot id")
		return
	}
	if err := h.store.Delete(c.Request.Context(), co.ID, id); err != nil {
		response.Error(c, err, "failed to delete slot")
		return
	}
	response.NoContent(c)
}

// apply merges req into s and validates the result.
func (h *Handler) apply(ctx context.Context, s *models.Slot, req SlotRequest) error {
	if req.StartsAt != nil {
		s.StartsAt = req.StartsAt.UTC()
	}
	if req.EndsAt != nil {
		s.EndsAt = req.EndsAt.UTC()
	}
	if req.Note != nil {
		s.Note = strings.TrimSpace(*req.Note)
	}
	if err := ValidateRange(s.StartsAt, s.EndsAt); err != nil {
		return err
	}
	if req.MissionID == nil {
		return nil
	}
	if strings.TrimSpace(*req.MissionID) == "" {
		s.MissionID = nil
		return nil
	}
	missionID, err := uuid.Parse(*req.MissionID)
	if err != nil {
		return apperr.Invalid("invalid mission_id")
	}
	m, err := h.missions.GetByID(ctx, missionID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return apperr.Invalid("mission does not exist")
		}
		return err
	}
	if m.CompanyID != s.CompanyID {
		return apperr.Invalid("mission belongs to another company")
	}
	s.MissionID = &m.ID
	return nil
}
