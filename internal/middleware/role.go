package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/extrabeam/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles. Admins always pass.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := map[string]struct{}{"admin": {}}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString(ContextUserRole)
		if role == "" {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
