package contacts

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/extrabeam/backend/internal/companies"
	"github.com/extrabeam/backend/internal/middleware"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/response"
)

// Store is the persistence the handler needs.
type Store interface {
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]models.Contact, error)
	Upsert(ctx context.Context, ct *models.Contact) error
	Delete(ctx context.Context, clientID, companyID uuid.UUID) error
}

// Handler handles contact endpoints. All routes are client-only.
type Handler struct {
	store     Store
	companies companies.Finder
	logger    *zap.Logger
}

// NewHandler creates a contacts handler.
func NewHandler(store Store, finder companies.Finder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, companies: finder, logger: logger}
}

// AddContactRequest is the body for POST /api/contacts.
type AddContactRequest struct {
	Company string `json:"company" binding:"required"` // slug or id
	Note    string `json:"note" binding:"max=1000"`
}

// List handles GET /api/contacts.
func (h *Handler) List(c *gin.Context) {
	clientID, _ := middleware.CurrentUser(c)
	list, err := h.store.ListByClient(c.Request.Context(), clientID)
	if err != nil {
		h.logger.Error("list contacts failed", zap.Error(err))
		response.Internal(c, "failed to load contacts")
		return
	}
	response.OK(c, list)
}

// Add handles POST /api/contacts.
func (h *Handler) Add(c *gin.Context) {
	clientID, _ := middleware.CurrentUser(c)
	var req AddContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	co, err := companies.Resolve(c.Request.Context(), h.companies, req.Company)
	if err != nil {
		response.Error(c, err, "failed to load company")
		return
	}
	ct := &models.Contact{ClientID: clientID, CompanyID: co.ID, CompanySlug: co.Slug, CompanyName: co.Name, Note: req.Note}
	if err := h.store.Upsert(c.Request.Context(), ct); err != nil {
		h.logger.Error("save contact failed", zap.Error(err))
		response.Internal(c, "failed to save contact")
		return
	}
	response.Created(c, ct)
}

// Remove handles DELETE /api/contacts/:companyId.
func (h *Handler) Remove(c *gin.Context) {
	clientID, _ := middleware.CurrentUser(c)
	companyID, err := uuid.Parse(c.Param("companyId"))
	if err != nil {
		response.BadRequest(c, "invalid company id")
		return
	}
	if err := h.store.Delete(c.Request.Context(), clientID, companyID); err != nil {
		response.Error(c, err, "failed to delete contact")
		return
	}
	response.NoContent(c)
}
