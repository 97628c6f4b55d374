package progress

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/metrics"
	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/internal/notify"
	"github.com/aura-webinar/funnel/internal/webinars"
	"github.com/aura-webinar/funnel/pkg/apperr"
)

// Store applies merges atomically.
type Store interface {
	Apply(ctx context.Context, leadID, lessonID uuid.UUID, in Snapshot, threshold float64, quantum int, now time.Time) (*models.LeadProgress, bool, error)
}

// LessonGetter checks that a lesson belongs to the session's webinar.
type LessonGetter interface {
	GetLesson(ctx context.Context, webinarID, lessonID uuid.UUID) (*models.Lesson, error)
}

// Publisher forwards VIDEO_COMPLETED to the webinar's outbound webhook.
type Publisher interface {
	Publish(ctx context.Context, n notify.Notification)
}

// Config tunes the reconciler.
type Config struct {
	CompletionThreshold float64
	WatchTimeQuantum    int // seconds credited to the lead per accepted submission
}

// SubmitInput is one progress snapshot from an authenticated lead.
type SubmitInput struct {
	LeadID         uuid.UUID
	WebinarID      uuid.UUID
	LessonID       string
	WatchedSeconds *float64
	PercentWatched *float64
}

// Result is the merged record and whether this submission completed the lesson.
type Result struct {
	Progress      *models.LeadProgress
	JustCompleted bool
}

// Service validates and merges progress snapshots.
type Service struct {
	store     Store
	lessons   LessonGetter
	publisher Publisher
	cfg       Config
	now       func() time.Time
	logger    *zap.Logger
}

// NewService creates a progress service. publisher may be nil.
func NewService(store Store, lessons LessonGetter, publisher Publisher, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CompletionThreshold <= 0 {
		cfg.CompletionThreshold = DefaultCompletionThreshold
	}
	return &Service{store: store, lessons: lessons, publisher: publisher, cfg: cfg, now: time.Now, logger: logger}
}

// Submit merges one snapshot.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Result, error) {
	raw := strings.TrimSpace(in.LessonID)
	if raw == "" {
		return nil, apperr.Validation("lesson_id is required")
	}
	lessonID, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation("invalid lesson_id")
	}
	if in.WatchedSeconds == nil || in.PercentWatched == nil {
		return nil, apperr.Validation("watched_seconds and percent_watched are required")
	}
	watched, percent := *in.WatchedSeconds, *in.PercentWatched
	if !finiteNonNegative(watched) {
		return nil, apperr.Validation("watched_seconds must be a non-negative number")
	}
	if watched > math.MaxInt32 {
		return nil, apperr.Validation("watched_seconds is out of range")
	}
	if !finiteNonNegative(percent) {
		return nil, apperr.Validation("percent_watched must be a non-negative number")
	}
	snap := Snapshot{WatchedSeconds: int(math.Floor(watched)), PercentWatched: math.Min(percent, 100)}

	if _, err := s.lessons.GetLesson(ctx, in.WebinarID, lessonID); err != nil {
		if errors.Is(err, webinars.ErrLessonNotFound) {
			return nil, apperr.NotFound("lesson not found", err)
		}
		return nil, apperr.Internal("load lesson", err)
	}

	rec, justCompleted, err := s.store.Apply(ctx, in.LeadID, lessonID, snap, s.cfg.CompletionThreshold, s.cfg.WatchTimeQuantum, s.now())
	switch {
	case errors.Is(err, ErrLeadNotFound):
		return nil, apperr.NotFound("lead not found", err)
	case errors.Is(err, ErrLessonNotFound):
		return nil, apperr.NotFound("lesson not found", err)
	case err != nil:
		s.logger.Error("apply progress",
			zap.String("lead_id", in.LeadID.String()),
			zap.String("lesson_id", lessonID.String()),
			zap.Error(err))
		return nil, apperr.Internal("save progress", err)
	}
	metrics.RecordProgress(justCompleted)

	if justCompleted && s.publisher != nil {
		s.publisher.Publish(ctx, notify.Notification{
			EventType: models.EventVideoCompleted,
			WebinarID: in.WebinarID,
			LeadID:    in.LeadID,
			LessonID:  &lessonID,
			Data:      map[string]any{"percent_watched": rec.PercentWatched, "watched_seconds": rec.WatchedSeconds},
		})
	}
	return &Result{Progress: rec, JustCompleted: justCompleted}, nil
}

func finiteNonNegative(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}
