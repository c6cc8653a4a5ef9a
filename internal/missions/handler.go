package missions

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/extrabeam/backend/internal/companies"
	"github.com/extrabeam/backend/internal/middleware"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/internal/slots"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/response"
)

// Store is the mission persistence the handler needs.
type Store interface {
	Create(ctx context.Context, m *models.Mission, slots []NewSlot) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Mission, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Mission, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.Mission, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.MissionStatus) error
	DeleteProposed(ctx context.Context, id uuid.UUID) error
	ListTemplates(ctx context.Context, clientID uuid.UUID) ([]*models.MissionTemplate, error)
	CreateTemplate(ctx context.Context, t *models.MissionTemplate) error
	DeleteTemplate(ctx context.Context, id, clientID uuid.UUID) error
}

// CompanyFinder looks up the company side of a mission.
type CompanyFinder interface {
	companies.Finder
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Company, error)
}

// Notifier is told about mission events.
type Notifier interface {
	MissionProposed(ctx context.Context, m *models.Mission, co *models.Company)
	MissionStatusChanged(ctx context.Context, m *models.Mission, co *models.Company, changedBy string)
}

// Handler handles mission and template endpoints.
type Handler struct {
	store     Store
	companies CompanyFinder
	notifier  Notifier
	logger    *zap.Logger
}

// NewHandler creates a missions handler. notifier may be nil.
func NewHandler(store Store, finder CompanyFinder, notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, companies: finder, notifier: notifier, logger: logger}
}

// SlotInput is a requested time range.
type SlotInput struct {
	StartsAt time.Time `json:"starts_at" binding:"required"`
	EndsAt   time.Time `json:"ends_at" binding:"required"`
	Note     string    `json:"note" binding:"max=500"`
}

// CreateMissionRequest is the body for POST /api/companies/:slug/missions.
type CreateMissionRequest struct {
	Title           string      `json:"title" binding:"required,max=255"`
	Description     string      `json:"description"`
	Location        string      `json:"location" binding:"max=255"`
	HourlyRateCents *int64      `json:"hourly_rate_cents" binding:"omitempty,min=0"`
	Slots           []SlotInput `json:"slots" binding:"max=100,dive"`
}

// StatusRequest is the body for PATCH /api/missions/:id/status.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// TemplateRequest is the body for POST /api/mission-templates.
type TemplateRequest struct {
	Name            string `json:"name" binding:"required,max=255"`
	Company         string `json:"company"` // optional slug or id
	Title           string `json:"title" binding:"required,max=255"`
	Description     string `json:"description"`
	Location        string `json:"location" binding:"max=255"`
	HourlyRateCents int64  `json:"hourly_rate_cents" binding:"min=0"`
}

// Create handles POST /api/companies/:slug/missions. Client only.
func (h *Handler) Create(c *gin.Context) {
	clientID, _ := middleware.CurrentUser(c)
	var req CreateMissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	co, err := companies.Resolve(c.Request.Context(), h.companies, c.Param("slug"))
	if err != nil {
		response.Error(c, err, "failed to load company")
		return
	}
	newSlots := make([]NewSlot, 0, len(req.Slots))
	for _, s := range req.Slots {
		if err := slots.ValidateRange(s.StartsAt, s.EndsAt); err != nil {
			response.Error(c, err, "invalid slot")
			return
		}
		newSlots = append(newSlots, NewSlot{StartsAt: s.StartsAt, EndsAt: s.EndsAt, Note: strings.TrimSpace(s.Note)})
	}
	m := &models.Mission{
		CompanyID:       co.ID,
		ClientID:        clientID,
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		Location:        strings.TrimSpace(req.Location),
		HourlyRateCents: co.HourlyRateCents,
	}
	if req.HourlyRateCents != nil {
		m.HourlyRateCents = *req.HourlyRateCents
	}
	if err := h.store.Create(c.Request.Context(), m, newSlots); err != nil {
		h.logger.Error("create mission failed", zap.String("company_id", co.ID.String()), zap.Error(err))
		response.Error(c, err, "failed to create mission")
		return
	}
	h.logger.Info("mission proposed", zap.String("mission_id", m.ID.String()), zap.String("company_id", co.ID.String()), zap.Int("slots", len(m.Slots)))
	if h.notifier != nil {
		h.notifier.MissionProposed(c.Request.Context(), m, co)
	}
	response.Created(c, m)
}

// List handles GET /api/missions. Clients see missions they proposed; companies see missions addressed
// to them. ?company= selects a company for admins.
func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()
	userID, role := middleware.CurrentUser(c)
	var (
		list []*models.Mission
		err  error
	)
	switch {
	case role == string(models.RoleClient):
		list, err = h.store.ListByClient(ctx, userID)
	case c.Query("company") != "":
		var co *models.Company
		co, err = companies.Authorize(ctx, h.companies, c.Query("company"), userID, role)
		if err == nil {
			list, err = h.store.ListByCompany(ctx, co.ID)
		}
	default:
		var co *models.Company
		co, err = h.companies.GetByOwner(ctx, userID)
		if apperr.IsNotFound(err) {
			response.OK(c, []*models.Mission{})
			return
		}
		if err == nil {
			list, err = h.store.ListByCompany(ctx, co.ID)
		}
	}
	if err != nil {
		response.Error(c, err, "failed to load missions")
		return
	}
	response.OK(c, list)
}

// access loads the mission and determines which side the caller acts for.
func (h *Handler) access(c *gin.Context) (*models.Mission, *models.Company, Actor, error) {
	ctx := c.Request.Context()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, nil, "", apperr.Invalid("invalid mission id")
	}
	m, err := h.store.GetByID(ctx, id)
	if err != nil {
		return nil, nil, "", err
	}
	co, err := h.companies.GetByID(ctx, m.CompanyID)
	if err != nil {
		return nil, nil, "", err
	}
	userID, role := middleware.CurrentUser(c)
	switch {
	case userID == m.ClientID:
		return m, co, ActorClient, nil
	case companies.CanManage(co, userID, role):
		return m, co, ActorCompany, nil
	}
	return nil, nil, "", apperr.Forbidden("not authorized for this mission")
}

// Get handles GET /api/missions/:id.
func (h *Handler) Get(c *gin.Context) {
	m, _, _, err := h.access(c)
	if err != nil {
		response.Error(c, err, "failed to load mission")
		return
	}
	response.OK(c, m)
}

// UpdateStatus handles PATCH /api/missions/:id/status.
func (h *Handler) UpdateStatus(c *gin.Context) {
	ctx := c.Request.Context()
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "status required")
		return
	}
	to := models.MissionStatus(strings.TrimSpace(req.Status))
	if !to.Valid() {
		response.BadRequest(c, "unknown status")
		return
	}
	m, co, actor, err := h.access(c)
	if err != nil {
		response.Error(c, err, "failed to load mission")
		return
	}
	if !CanTransition(actor, m.Status, to) {
		response.BadRequest(c, "cannot move mission from "+string(m.Status)+" to "+string(to))
		return
	}
	if err := h.store.UpdateStatus(ctx, m.ID, m.Status, to); err != nil {
		response.Error(c, err, "failed to update mission")
		return
	}
	h.logger.Info("mission status changed", zap.String("mission_id", m.ID.String()),
		zap.String("from", string(m.Status)), zap.String("to", string(to)), zap.String("by", string(actor)))
	m.Status = to
	if h.notifier != nil {
		h.notifier.MissionStatusChanged(ctx, m, co, string(actor))
	}
	response.OK(c, m)
}

// Delete handles DELETE /api/missions/:id. Only the proposing client, only while proposed.
func (h *Handler) Delete(c *gin.Context) {
	m, _, actor, err := h.access(c)
	if err != nil {
		response.Error(c, err, "failed to load mission")
		return
	}
	if actor != ActorClient {
		response.Forbidden(c, "only the proposing client can delete a mission")
		return
	}
	if err := h.store.DeleteProposed(c.Request.Context(), m.ID); err != nil {
		response.Error(c, err, "failed to delete mission")
		return
	}
	response.NoContent(c)
}

// ListTemplates handles GET /api/mission-templates.
func (h *Handler) ListTemplates(c *gin.Context) {
	clientID, _ := middleware.CurrentUser(c)
	list, err := h.store.ListTemplates(c.Request.Context(), clientID)
	if err != nil {
		response.Error(c, err, "failed to load templates")
		return
	}
	response.OK(c, list)
}

// CreateTemplate handles POST /api/mission-templates.
func (h *Handler) CreateTemplate(c *gin.Context) {
	clientID, _ := middleware.CurrentUser(c)
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	t := &models.MissionTemplate{
		ClientID:        clientID,
		Name:            strings.TrimSpace(req.Name),
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		Location:        strings.TrimSpace(req.Location),
		HourlyRateCents: req.HourlyRateCents,
	}
	if req.Company != "" {
		co, err := companies.Resolve(c.Request.Context(), h.companies, req.Company)
		if err != nil {
			response.Error(c, err, "failed to load company")
			return
		}
		t.CompanyID = &co.ID
	}
	if err := h.store.CreateTemplate(c.Request.Context(), t); err != nil {
		response.Error(c, err, "failed to save template")
		return
	}
	response.Created(c, t)
}

// DeleteTemplate handles DELETE /api/mission-templates/:id.
func (h *Handler) DeleteTemplate(c *gin.Context) {
	clientID, _ := middleware.CurrentUser(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid template id")
		return
	}
	if err := h.store.DeleteTemplate(c.Request.Context(), id, clientID); err != nil {
		response.Error(c, err, "failed to delete template")
		return
	}
	response.NoContent(c)
}
