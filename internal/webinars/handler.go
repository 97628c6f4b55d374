package webinars

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/pkg/apperr"
	"github.com/aura-webinar/funnel/pkg/response"
)

// Catalog is the read side the public webinar endpoint needs.
type Catalog interface {
	Finder
	ListLessons(ctx context.Context, webinarID uuid.UUID) ([]models.Lesson, error)
}

// Summary is the public landing payload for a published webinar.
type Summary struct {
	ID              uuid.UUID `json:"id"`
	Slug            string    `json:"slug"`
	Description     string    `json:"description,omitempty"`
	Branding        Branding  `json:"branding"`
	LessonCount     int       `json:"lesson_count"`
	FirstLessonSlug string    `json:"first_lesson_slug,omitempty"`
}

// Handler handles public webinar HTTP endpoints.
type Handler struct {
	catalog Catalog
	assets  AssetResolver
	logger  *zap.Logger
}

// NewHandler creates a webinar handler.
func NewHandler(catalog Catalog, assets AssetResolver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{catalog: catalog, assets: assets, logger: logger}
}

// GetBySlug handles GET /api/webinar/:slug.
func (h *Handler) GetBySlug(c *gin.Context) {
	ctx := c.Request.Context()
	w, err := Resolve(ctx, h.catalog, "", c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !w.IsPublished() {
		response.Error(c, apperr.NotFound("webinar not found", nil))
		return
	}
	lessons, err := h.catalog.ListLessons(ctx, w.ID)
	if err != nil {
		h.logger.Error("list lessons", zap.String("webinar_id", w.ID.String()), zap.Error(err))
		response.Error(c, apperr.Internal("list lessons", err))
		return
	}

	s := Summary{
		ID:          w.ID,
		Slug:        w.Slug,
		Description: w.Description,
		Branding:    BrandingOf(ctx, h.assets, w, h.logger),
	}
	for _, l := range lessons {
		if !l.IsActive {
			continue
		}
		if s.LessonCount == 0 {
			s.FirstLessonSlug = l.Slug
		}
		s.LessonCount++
	}
	response.OK(c, s)
}
