package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/funnel/internal/auth"
	"github.com/aura-webinar/funnel/pkg/response"
)

const (
	// ContextUserID is the key for the admin user ID in gin context.
	ContextUserID = auth.ContextUserID
	// ContextUserRole is the key for the admin role in gin context.
	ContextUserRole = auth.ContextUserRole
	// ContextUserEmail is the key for the admin email in gin context.
	ContextUserEmail = auth.ContextUserEmail
)

// JWT returns a middleware that validates an admin JWT and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}
