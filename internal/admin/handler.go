package admin

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/leads"
	"github.com/aura-webinar/funnel/internal/middleware"
	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/pkg/response"
)

// CreateLeadRequest is the body for POST /admin/webinars/:id/leads.
type CreateLeadRequest struct {
	Email       string `json:"email" binding:"required"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
}

// ReorderRequest is the body for POST /admin/webinars/:id/lessons/reorder.
type ReorderRequest struct {
	LessonIDs []uuid.UUID `json:"lesson_ids" binding:"required"`
}

// Handler handles the admin lead and lesson endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an admin handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// ListLeads handles GET /admin/webinars/:id/leads?limit=&offset=.
func (h *Handler) ListLeads(c *gin.Context) {
	webinarID, ok := parseID(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	list, err := h.svc.ListLeads(c.Request.Context(), webinarID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// GetLead handles GET /admin/webinars/:id/leads/:leadId.
func (h *Handler) GetLead(c *gin.Context) {
	webinarID, ok := parseID(c, "id")
	if !ok {
		return
	}
	leadID, ok := parseID(c, "leadId")
	if !ok {
		return
	}
	insight, err := h.svc.LeadInsight(c.Request.Context(), webinarID, leadID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, insight)
}

// CreateLead handles POST /admin/webinars/:id/leads.
func (h *Handler) CreateLead(c *gin.Context) {
	webinarID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	lead, err := h.svc.CreateLead(c.Request.Context(), webinarID, leads.RegisterInput{
		Email: req.Email,
		Name:  req.Name,
		Phone: req.Phone,
		UTM:   models.UTM{Source: req.UTMSource, Medium: req.UTMMedium, Campaign: req.UTMCampaign},
	})
	if errors.Is(err, leads.ErrLeadExists) {
		response.AlreadyExists(c, "email already registered for this webinar")
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	fields := []zap.Field{zap.String("lead_id", lead.ID.String()), zap.String("webinar_id", webinarID.String())}
	if uid, ok := c.Get(middleware.ContextUserID); ok {
		fields = append(fields, zap.Any("user_id", uid))
	}
	h.logger.Info("lead created by admin", fields...)
	response.Created(c, lead)
}

// ReorderLessons handles POST /admin/webinars/:id/lessons/reorder.
func (h *Handler) ReorderLessons(c *gin.Context) {
	webinarID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.svc.ReorderLessons(c.Request.Context(), webinarID, req.LessonIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"reordered": len(req.LessonIDs)})
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.BadRequest(c, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}
