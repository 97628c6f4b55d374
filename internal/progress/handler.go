package progress

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/middleware"
	"github.com/aura-webinar/funnel/pkg/response"
)

// ProgressRequest is the body for POST /api/lead/progress.
type ProgressRequest struct {
	WebinarID      string   `json:"webinar_id" binding:"required"`
	LessonID       string   `json:"lesson_id" binding:"required"`
	WatchedSeconds *float64 `json:"watched_seconds"`
	PercentWatched *float64 `json:"percent_watched"`
}

// ProgressView is the merged snapshot returned to the player.
type ProgressView struct {
	WatchedSeconds int        `json:"watched_seconds"`
	PercentWatched float64    `json:"percent_watched"`
	IsCompleted    bool       `json:"is_completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Handler handles the progress endpoint.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a progress handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Submit handles POST /api/lead/progress (lead session required).
func (h *Handler) Submit(c *gin.Context) {
	var req ProgressRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.Submit(c.Request.Context(), SubmitInput{
		LeadID:         middleware.LeadID(c),
		WebinarID:      middleware.WebinarID(c),
		LessonID:       req.LessonID,
		WatchedSeconds: req.WatchedSeconds,
		PercentWatched: req.PercentWatched,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	p := res.Progress
	response.OK(c, gin.H{
		"progress": ProgressView{
			WatchedSeconds: p.WatchedSeconds,
			PercentWatched: p.PercentWatched,
			IsCompleted:    p.IsCompleted,
			CompletedAt:    p.CompletedAt,
		},
		"just_completed": res.JustCompleted,
	})
}
