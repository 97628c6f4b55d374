package lessons

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/sessions"
	"github.com/aura-webinar/funnel/pkg/response"
)

// Handler handles the lesson content endpoint.
type Handler struct {
	svc    *Service
	cookie sessions.Cookie
	logger *zap.Logger
}

// NewHandler creates a lesson handler.
func NewHandler(svc *Service, cookie sessions.Cookie, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, cookie: cookie, logger: logger}
}

// Get handles GET /api/webinar/:slug/aula/:lessonSlug. The session is optional;
// without one every sequential lesson after the first reads as locked.
func (h *Handler) Get(c *gin.Context) {
	content, err := h.svc.Read(c.Request.Context(), c.Param("slug"), c.Param("lessonSlug"), h.cookie.BrowserKey(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, content)
}
