package leads

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/internal/sessions"
	"github.com/aura-webinar/funnel/pkg/response"
)

// AuthRequest is the body for POST /api/lead/auth.
type AuthRequest struct {
	Token       string `json:"token"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	WebinarID   string `json:"webinar_id"`
	WebinarSlug string `json:"webinar_slug"`
}

// RegisterRequest is the body for POST /api/lead/register.
type RegisterRequest struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	WebinarID   string `json:"webinar_id"`
	WebinarSlug string `json:"webinar_slug"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
}

// WebhookRequest is the body for POST /api/webhook/lead.
type WebhookRequest struct {
	RegisterRequest
	ExternalCampaignID string `json:"external_campaign_id"`
}

// LogoutRequest optionally scopes POST /api/lead/logout to one webinar.
type LogoutRequest struct {
	WebinarID string `json:"webinar_id"`
}

// SessionInfo describes the binding set by auth and register.
type SessionInfo struct {
	WebinarID uuid.UUID `json:"webinar_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Handler handles the lead identity endpoints.
type Handler struct {
	svc    *Service
	cookie sessions.Cookie
	logger *zap.Logger
}

// NewHandler creates a lead handler.
func NewHandler(svc *Service, cookie sessions.Cookie, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, cookie: cookie, logger: logger}
}

// Auth handles POST /api/lead/auth.
func (h *Handler) Auth(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	lead, sess, err := h.svc.Resolve(c.Request.Context(),
		Credentials{AccessToken: req.Token, Email: req.Email, Phone: req.Phone},
		WebinarRef{ID: req.WebinarID, Slug: req.WebinarSlug},
		h.cookie.BrowserKey(c))
	if errors.Is(err, ErrLeadNotFound) {
		response.LeadNotFound(c, "lead not found")
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	h.bind(c, sess)
	response.OK(c, gin.H{"lead": lead.Summary(), "session": SessionInfo{WebinarID: sess.WebinarID, ExpiresAt: sess.ExpiresAt}})
}

// Register handles POST /api/lead/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	lead, sess, err := h.svc.Register(c.Request.Context(), req.input(), h.cookie.BrowserKey(c))
	if errors.Is(err, ErrLeadExists) {
		response.AlreadyExists(c, "email already registered, sign in instead")
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	h.bind(c, sess)
	response.Created(c, gin.H{"lead": lead.Summary(), "session": SessionInfo{WebinarID: sess.WebinarID, ExpiresAt: sess.ExpiresAt}})
}

// Webhook handles POST /api/webhook/lead. The caller is an external system,
// so no cookie is set.
func (h *Handler) Webhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	in := req.input()
	res, err := h.svc.IngestFromWebhook(c.Request.Context(), IngestInput{
		Email:              in.Email,
		Name:               in.Name,
		Phone:              in.Phone,
		Webinar:            in.Webinar,
		UTM:                in.UTM,
		ExternalCampaignID: req.ExternalCampaignID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("webhook lead ingested",
		zap.String("lead_id", res.Lead.ID.String()),
		zap.String("webinar_id", res.Webinar.ID.String()),
		zap.Bool("created", res.Created))
	response.OK(c, gin.H{
		"lead":         res.Lead.Summary(),
		"access_token": res.AccessToken,
		"access_url":   res.AccessURL,
		"created":      res.Created,
		"webinar": gin.H{
			"id":   res.Webinar.ID,
			"name": res.Webinar.Name,
			"slug": res.Webinar.Slug,
		},
	})
}

// Me handles GET /api/lead/me?webinar_id=|webinar_slug=. A browser without a
// live binding gets a null lead rather than an error.
func (h *Handler) Me(c *gin.Context) {
	p, err := h.svc.Me(c.Request.Context(), h.cookie.BrowserKey(c),
		WebinarRef{ID: c.Query("webinar_id"), Slug: c.Query("webinar_slug")})
	if err != nil {
		response.Error(c, err)
		return
	}
	if p == nil {
		response.OK(c, gin.H{"lead": nil})
		return
	}
	response.OK(c, p)
}

// Logout handles POST /api/lead/logout. With a webinar_id only that binding is
// dropped and the cookie stays; without one every binding of the browser goes.
func (h *Handler) Logout(c *gin.Context) {
	var req LogoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	if req.WebinarID == "" {
		req.WebinarID = c.Query("webinar_id")
	}
	var scope *uuid.UUID
	if req.WebinarID != "" {
		id, err := uuid.Parse(req.WebinarID)
		if err != nil {
			response.BadRequest(c, "invalid webinar_id")
			return
		}
		scope = &id
	}
	if err := h.svc.Logout(c.Request.Context(), h.cookie.BrowserKey(c), scope); err != nil {
		response.Error(c, err)
		return
	}
	if scope == nil {
		h.cookie.Clear(c)
	}
	response.OK(c, gin.H{"logged_out": true})
}

func (h *Handler) bind(c *gin.Context, sess *models.LeadSession) {
	h.cookie.Set(c, sess.BrowserKey)
	c.Header(sessions.HeaderName, sess.BrowserKey)
}

func (r RegisterRequest) input() RegisterInput {
	return RegisterInput{
		Email:   r.Email,
		Name:    r.Name,
		Phone:   r.Phone,
		Webinar: WebinarRef{ID: r.WebinarID, Slug: r.WebinarSlug},
		UTM:     models.UTM{Source: r.UTMSource, Medium: r.UTMMedium, Campaign: r.UTMCampaign},
	}
}
