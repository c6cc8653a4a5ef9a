package clients

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/extrabeam/backend/internal/middleware"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/response"
)

// Store is the persistence the handler needs.
type Store interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.ClientProfile, error)
	Upsert(ctx context.Context, p *models.ClientProfile) error
}

// Handler handles client profile endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a clients handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// ProfileRequest is the body for PUT /api/clients/me.
type ProfileRequest struct {
	CompanyName string `json:"company_name" binding:"required,max=255"`
	Siret       string `json:"siret" binding:"omitempty,len=14,numeric"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Phone       string `json:"phone"`
}

// GetMe handles GET /api/clients/me.
func (h *Handler) GetMe(c *gin.Context) {
	userID, _ := middleware.CurrentUser(c)
	p, err := h.store.GetByUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err, "failed to load profile")
		return
	}
	response.OK(c, p)
}

// PutMe handles PUT /api/clients/me.
func (h *Handler) PutMe(c *gin.Context) {
	userID, _ := middleware.CurrentUser(c)
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := &models.ClientProfile{
		UserID:      userID,
		CompanyName: strings.TrimSpace(req.CompanyName),
		Siret:       req.Siret,
		Address:     strings.TrimSpace(req.Address),
		City:        strings.TrimSpace(req.City),
		Phone:       strings.TrimSpace(req.Phone),
	}
	if err := h.store.Upsert(c.Request.Context(), p); err != nil {
		h.logger.Error("save client profile failed", zap.String("user_id", userID.String()), zap.Error(err))
		response.Internal(c, "failed to save profile")
		return
	}
	response.OK(c, p)
}
