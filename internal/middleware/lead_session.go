package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/internal/sessions"
	"github.com/aura-webinar/funnel/pkg/apperr"
	"github.com/aura-webinar/funnel/pkg/response"
)

const (
	// ContextLeadID is the key for the authenticated lead ID in gin context.
	ContextLeadID = "lead_id"
	// ContextWebinarID is the key for the webinar the lead session is scoped to.
	ContextWebinarID = "webinar_id"
	// ContextLeadSession is the key for the resolved *models.LeadSession.
	ContextLeadSession = "lead_session"

	// WebinarHeader scopes requests that carry no webinar_id in query or body.
	WebinarHeader = "X-Webinar-ID"
)

// SessionResolver resolves a browser key to a live binding within one webinar.
type SessionResolver interface {
	Resolve(ctx context.Context, browserKey string, webinarID uuid.UUID) (*models.LeadSession, error)
}

// LeadSession requires a live lead session for the request's webinar. The
// webinar comes from the webinar_id query parameter, the X-Webinar-ID header,
// or the JSON body. When read from the body it is cached by gin, so handlers
// behind this middleware must bind with ShouldBindBodyWith.
func LeadSession(resolver SessionResolver, cookie sessions.Cookie) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := cookie.BrowserKey(c)
		if key == "" {
			response.Unauthorized(c, "session required")
			c.Abort()
			return
		}
		raw := requestWebinarID(c)
		if raw == "" {
			response.BadRequest(c, "webinar_id is required")
			c.Abort()
			return
		}
		webinarID, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid webinar_id")
			c.Abort()
			return
		}
		sess, err := resolver.Resolve(c.Request.Context(), key, webinarID)
		if err != nil {
			if !apperr.Is(err, apperr.KindUnauthenticated) {
				_ = c.Error(err)
			}
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextLeadSession, sess)
		c.Set(ContextLeadID, sess.LeadID)
		c.Set(ContextWebinarID, sess.WebinarID)
		c.Next()
	}
}

func requestWebinarID(c *gin.Context) string {
	if v := c.Query("webinar_id"); v != "" {
		return v
	}
	if v := c.GetHeader(WebinarHeader); v != "" {
		return v
	}
	if c.Request.Method == http.MethodGet || c.Request.ContentLength == 0 {
		return ""
	}
	var body struct {
		WebinarID string `json:"webinar_id"`
	}
	if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
		return ""
	}
	return body.WebinarID
}

// LeadID returns the authenticated lead. Only valid behind LeadSession.
func LeadID(c *gin.Context) uuid.UUID {
	return c.MustGet(ContextLeadID).(uuid.UUID)
}

// WebinarID returns the webinar the lead session is scoped to. Only valid behind LeadSession.
func WebinarID(c *gin.Context) uuid.UUID {
	return c.MustGet(ContextWebinarID).(uuid.UUID)
}
