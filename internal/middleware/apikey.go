package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/funnel/pkg/response"
)

// APIKeyHeader carries the shared secret of inbound lead webhooks.
const APIKeyHeader = "X-API-Key"

// APIKey guards a route with a shared secret. An empty expected key disables the check.
func APIKey(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			c.Next()
			return
		}
		got := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			response.Unauthorized(c, "invalid api key")
			c.Abort()
			return
		}
		c.Next()
	}
}
