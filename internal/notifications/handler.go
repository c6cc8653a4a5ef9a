package notifications

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/extrabeam/backend/internal/companies"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/response"
)

// LogLister lists a company's email logs.
type LogLister interface {
	ListByCompany(ctx context.Context, companyID uuid.UUID, limit int) ([]*models.EmailLog, error)
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	logs LogLister
}

// NewHandler creates an email logs handler.
func NewHandler(logs LogLister) *Handler {
	return &Handler{logs: logs}
}

// ListByCompany handles GET /api/companies/:slug/emails?limit=. Call after companies.RequireManager.
func (h *Handler) ListByCompany(c *gin.Context) {
	co := companies.FromContext(c)
	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.logs.ListByCompany(c.Request.Context(), co.ID, limit)
	if err != nil {
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}
