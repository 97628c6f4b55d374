package events

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/middleware"
	"github.com/aura-webinar/funnel/pkg/response"
)

// EventRequest is the body for POST /api/lead/event.
type EventRequest struct {
	WebinarID string          `json:"webinar_id" binding:"required"`
	EventType string          `json:"event_type" binding:"required"`
	LessonID  string          `json:"lesson_id"`
	VideoTime *float64        `json:"video_time"`
	Data      json.RawMessage `json:"data"`
}

// Handler handles the event ledger endpoint.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Record handles POST /api/lead/event (lead session required).
func (h *Handler) Record(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	id, err := h.svc.Record(c.Request.Context(), RecordInput{
		LeadID:    middleware.LeadID(c),
		WebinarID: middleware.WebinarID(c),
		LessonID:  req.LessonID,
		EventType: req.EventType,
		VideoTime: req.VideoTime,
		Data:      req.Data,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"event_id": id})
}
