// Package lessons serves lesson content to the watch pages, gated per lead by
// the release policies of the webinar's lessons.
package lessons

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/metrics"
	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/internal/release"
	"github.com/aura-webinar/funnel/internal/webinars"
	"github.com/aura-webinar/funnel/pkg/apperr"
)

// DefaultOfferButtonText labels an offer configured without button text.
const DefaultOfferButtonText = "Quero Aproveitar"

// Catalog is the read-only webinar configuration.
type Catalog interface {
	GetBySlug(ctx context.Context, slug string) (*models.Webinar, error)
	ListLessons(ctx context.Context, webinarID uuid.UUID) ([]models.Lesson, error)
}

// ProgressLister returns every progress row of a lead.
type ProgressLister interface {
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]models.LeadProgress, error)
}

// SessionResolver resolves an optional browser key to a lead.
type SessionResolver interface {
	Resolve(ctx context.Context, browserKey string, webinarID uuid.UUID) (*models.LeadSession, error)
}

// Sibling is one entry of the lesson list, annotated with the caller's lock state.
type Sibling struct {
	ID           uuid.UUID  `json:"id"`
	Slug         string     `json:"slug"`
	Title        string     `json:"title"`
	Order        int        `json:"order"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	IsLocked     bool       `json:"is_locked"`
	AvailableAt  *time.Time `json:"available_at,omitempty"`
	IsCompleted  bool       `json:"is_completed"`
}

// OfferView is the in-video call to action.
type OfferView struct {
	URL        string `json:"url"`
	ButtonText string `json:"button_text"`
	ShowAt     *int   `json:"show_at,omitempty"`
}

// WebinarView is the webinar header of the lesson page.
type WebinarView struct {
	ID       uuid.UUID         `json:"id"`
	Slug     string            `json:"slug"`
	Branding webinars.Branding `json:"branding"`
}

// LeadProgressView is the caller's own progress on the lesson.
type LeadProgressView struct {
	WatchedSeconds int     `json:"watched_seconds"`
	PercentWatched float64 `json:"percent_watched"`
	IsCompleted    bool    `json:"is_completed"`
	OfferShown     bool    `json:"offer_shown"`
	OfferClicked   bool    `json:"offer_clicked"`
}

// Content is the lesson page payload.
type Content struct {
	ID            uuid.UUID         `json:"id"`
	Slug          string            `json:"slug"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	VideoURL      string            `json:"video_url"`
	YouTubeID     string            `json:"youtube_id,omitempty"`
	VideoDuration *int              `json:"video_duration,omitempty"`
	ThumbnailURL  string            `json:"thumbnail_url,omitempty"`
	Order         int               `json:"order"`
	Offer         *OfferView        `json:"offer,omitempty"`
	Webinar       WebinarView       `json:"webinar"`
	Lessons       []Sibling         `json:"lessons"`
	Prev          *Sibling          `json:"prev_lesson,omitempty"`
	Next          *Sibling          `json:"next_lesson,omitempty"`
	LeadID        *uuid.UUID        `json:"lead_id,omitempty"`
	Progress      *LeadProgressView `json:"progress,omitempty"`
}

// Service builds gated lesson payloads.
type Service struct {
	catalog  Catalog
	progress ProgressLister
	sessions SessionResolver
	assets   webinars.AssetResolver
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates a lesson service. assets may be nil.
func NewService(catalog Catalog, progress ProgressLister, sessions SessionResolver, assets webinars.AssetResolver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{catalog: catalog, progress: progress, sessions: sessions, assets: assets, now: time.Now, logger: logger}
}

// Read returns lessonSlug of the published webinar webinarSlug as seen by the
// lead bound to browserKey, or by an anonymous visitor when there is none.
func (s *Service) Read(ctx context.Context, webinarSlug, lessonSlug, browserKey string) (*Content, error) {
	w, err := s.catalog.GetBySlug(ctx, webinarSlug)
	if errors.Is(err, webinars.ErrWebinarNotFound) || (err == nil && !w.IsPublished()) {
		return nil, apperr.NotFound("webinar not found", err)
	}
	if err != nil {
		return nil, apperr.Internal("load webinar", err)
	}
	all, err := s.catalog.ListLessons(ctx, w.ID)
	if err != nil {
		s.logger.Error("list lessons", zap.String("webinar_id", w.ID.String()), zap.Error(err))
		return nil, apperr.Internal("list lessons", err)
	}

	leadID, err := s.caller(ctx, browserKey, w.ID)
	if err != nil {
		return nil, err
	}
	byLesson := map[uuid.UUID]*models.LeadProgress{}
	if leadID != nil {
		rows, err := s.progress.ListByLead(ctx, *leadID)
		if err != nil {
			s.logger.Error("list progress", zap.String("lead_id", leadID.String()), zap.Error(err))
			return nil, apperr.Internal("load progress", err)
		}
		for i := range rows {
			byLesson[rows[i].LessonID] = &rows[i]
		}
	}

	annotated := release.Annotate(all, byLesson, s.now())
	idx := -1
	siblings := make([]Sibling, len(annotated))
	for i, a := range annotated {
		siblings[i] = s.sibling(ctx, a, byLesson[a.Lesson.ID])
		if a.Lesson.Slug == lessonSlug {
			idx = i
		}
	}
	if idx < 0 {
		return nil, apperr.NotFound("lesson not found", nil)
	}
	if annotated[idx].Decision.IsLocked() {
		metrics.LockedLessonRequests.Inc()
		return nil, apperr.Forbidden("lesson is not available yet")
	}

	l := annotated[idx].Lesson
	c := &Content{
		ID:            l.ID,
		Slug:          l.Slug,
		Title:         l.Title,
		Description:   l.Description,
		VideoURL:      l.VideoURL,
		YouTubeID:     YouTubeID(l.VideoURL),
		VideoDuration: l.VideoDuration,
		ThumbnailURL:  siblings[idx].ThumbnailURL,
		Order:         l.Position,
		Webinar: WebinarView{
			ID:       w.ID,
			Slug:     w.Slug,
			Branding: webinars.BrandingOf(ctx, s.assets, w, s.logger),
		},
		Lessons: siblings,
		LeadID:  leadID,
	}
	if l.Offer != nil && l.Offer.URL != "" {
		c.Offer = &OfferView{URL: l.Offer.URL, ButtonText: l.Offer.ButtonText, ShowAt: l.Offer.ShowAt}
		if c.Offer.ButtonText == "" {
			c.Offer.ButtonText = DefaultOfferButtonText
		}
	}
	if idx > 0 {
		prev := siblings[idx-1]
		c.Prev = &prev
	}
	if idx < len(siblings)-1 {
		next := siblings[idx+1]
		c.Next = &next
	}
	if p := byLesson[l.ID]; p != nil {
		c.Progress = &LeadProgressView{
			WatchedSeconds: p.WatchedSeconds,
			PercentWatched: p.PercentWatched,
			IsCompleted:    p.IsCompleted,
			OfferShown:     p.OfferShown,
			OfferClicked:   p.OfferClicked,
		}
	}
	return c, nil
}

// caller resolves the optional session. A missing or expired binding reads as anonymous.
func (s *Service) caller(ctx context.Context, browserKey string, webinarID uuid.UUID) (*uuid.UUID, error) {
	if browserKey == "" || s.sessions == nil {
		return nil, nil
	}
	sess, err := s.sessions.Resolve(ctx, browserKey, webinarID)
	if apperr.Is(err, apperr.KindUnauthenticated) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id := sess.LeadID
	return &id, nil
}

func (s *Service) sibling(ctx context.Context, a release.Availability, p *models.LeadProgress) Sibling {
	sb := Sibling{
		ID:          a.Lesson.ID,
		Slug:        a.Lesson.Slug,
		Title:       a.Lesson.Title,
		Order:       a.Lesson.Position,
		IsLocked:    a.Decision.IsLocked(),
		AvailableAt: a.Decision.AvailableAt,
		IsCompleted: p != nil && p.IsCompleted,
	}
	sb.ThumbnailURL = a.Lesson.ThumbnailURL
	if s.assets != nil {
		u, err := s.assets.AssetURL(ctx, a.Lesson.ThumbnailURL)
		if err != nil {
			// An unresolvable thumbnail is left out; the raw key is not a URL.
			s.logger.Warn("resolve thumbnail url", zap.String("lesson_id", a.Lesson.ID.String()), zap.Error(err))
			u = ""
		}
		sb.ThumbnailURL = u
	}
	return sb
}
