package companies

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/extrabeam/backend/internal/middleware"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/response"
)

// ContextCompany is the gin context key for the company resolved by RequireManager.
const ContextCompany = "company"

// Finder looks companies up by id or slug.
type Finder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
	GetBySlug(ctx context.Context, slug string) (*models.Company, error)
}

// Resolve finds a company by UUID or, failing that, by slug.
func Resolve(ctx context.Context, finder Finder, slugOrID string) (*models.Company, error) {
	key := strings.TrimSpace(slugOrID)
	if key == "" {
		return nil, apperr.Invalid("company slug required")
	}
	if id, err := uuid.Parse(key); err == nil {
		return finder.GetByID(ctx, id)
	}
	return finder.GetBySlug(ctx, key)
}

// CanManage reports whether the user is the company owner or an admin.
func CanManage(co *models.Company, userID uuid.UUID, role string) bool {
	if co == nil {
		return false
	}
	return role == string(models.RoleAdmin) || (userID != uuid.Nil && co.OwnerID == userID)
}

// Authorize resolves the company and checks that the caller manages it.
func Authorize(ctx context.Context, finder Finder, slugOrID string, userID uuid.UUID, role string) (*models.Company, error) {
	co, err := Resolve(ctx, finder, slugOrID)
	if err != nil {
		return nil, err
	}
	if !CanManage(co, userID, role) {
		return nil, apperr.Forbidden("not authorized for this company")
	}
	return co, nil
}

// RequireManager resolves :slug and aborts unless the caller owns the company or is an admin.
// Call after JWT.
func RequireManager(finder Finder) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, role := middleware.CurrentUser(c)
		co, err := Authorize(c.Request.Context(), finder, c.Param("slug"), userID, role)
		if err != nil {
			response.Error(c, err, "failed to load company")
			c.Abort()
			return
		}
		c.Set(ContextCompany, co)
		c.Next()
	}
}

// FromContext returns the company set by RequireManager.
func FromContext(c *gin.Context) *models.Company {
	v, ok := c.Get(ContextCompany)
	if !ok {
		return nil
	}
	co, _ := v.(*models.Company)
	return co
}
