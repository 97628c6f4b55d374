package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/pkg/response"
)

// RequireRole allows only admin users holding one of roles. Must run after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		role := models.Role(c.GetString(ContextUserRole))
		if role == "" {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if !allowed[role] {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
