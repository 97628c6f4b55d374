// Package events is the append-only engagement ledger. Offer events also flip
// the lead's one-way offer flags on the lesson's progress row.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/metrics"
	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/internal/notify"
	"github.com/aura-webinar/funnel/internal/webinars"
	"github.com/aura-webinar/funnel/pkg/apperr"
)

// Store persists ledger rows.
type Store interface {
	Record(ctx context.Context, e *models.LeadEvent, now time.Time) error
}

// LessonGetter checks that a lesson belongs to the session's webinar.
type LessonGetter interface {
	GetLesson(ctx context.Context, webinarID, lessonID uuid.UUID) (*models.Lesson, error)
}

// Publisher forwards milestones to the webinar's outbound webhook.
type Publisher interface {
	Publish(ctx context.Context, n notify.Notification)
}

// RecordInput is one client-reported event.
type RecordInput struct {
	LeadID    uuid.UUID
	WebinarID uuid.UUID
	LessonID  string
	EventType string
	VideoTime *float64
	Data      json.RawMessage
	UserAgent string
	IPAddress string
}

// Service validates and records events.
type Service struct {
	store     Store
	lessons   LessonGetter
	publisher Publisher
	now       func() time.Time
	logger    *zap.Logger
}

// NewService creates an event service. publisher may be nil.
func NewService(store Store, lessons LessonGetter, publisher Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, lessons: lessons, publisher: publisher, now: time.Now, logger: logger}
}

// Record validates in and appends it to the ledger, returning the event id.
func (s *Service) Record(ctx context.Context, in RecordInput) (uuid.UUID, error) {
	eventType := models.EventType(strings.TrimSpace(in.EventType))
	if eventType == "" {
		return uuid.Nil, apperr.Validation("event_type is required")
	}
	if !eventType.Valid() {
		return uuid.Nil, apperr.Validation("unknown event_type " + string(eventType))
	}

	e := &models.LeadEvent{
		LeadID:    in.LeadID,
		EventType: eventType,
		UserAgent: truncate(in.UserAgent, 512),
		IPAddress: in.IPAddress,
	}
	if in.VideoTime != nil {
		v := *in.VideoTime
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return uuid.Nil, apperr.Validation("video_time must be a non-negative number")
		}
		if v > math.MaxInt32 {
			return uuid.Nil, apperr.Validation("video_time is out of range")
		}
		floored := int(math.Floor(v))
		e.VideoTime = &floored
	}
	if len(in.Data) > 0 && string(in.Data) != "null" {
		if !json.Valid(in.Data) {
			return uuid.Nil, apperr.Validation("data must be valid JSON")
		}
		e.Data = in.Data
	}
	if id := strings.TrimSpace(in.LessonID); id != "" {
		lessonID, err := uuid.Parse(id)
		if err != nil {
			return uuid.Nil, apperr.Validation("invalid lesson_id")
		}
		if _, err := s.lessons.GetLesson(ctx, in.WebinarID, lessonID); err != nil {
			if errors.Is(err, webinars.ErrLessonNotFound) {
				return uuid.Nil, apperr.NotFound("lesson not found", err)
			}
			return uuid.Nil, apperr.Internal("load lesson", err)
		}
		e.LessonID = &lessonID
	}

	if err := s.store.Record(ctx, e, s.now()); err != nil {
		if errors.Is(err, ErrUnknownReference) {
			return uuid.Nil, apperr.NotFound("lead not found", err)
		}
		s.logger.Error("record event",
			zap.String("lead_id", in.LeadID.String()),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
		return uuid.Nil, apperr.Internal("record event", err)
	}
	metrics.EventsRecorded.WithLabelValues(string(eventType)).Inc()

	if eventType == models.EventOfferClicked && s.publisher != nil {
		n := notify.Notification{
			EventType: eventType,
			WebinarID: in.WebinarID,
			LeadID:    in.LeadID,
			LessonID:  e.LessonID,
		}
		if len(e.Data) > 0 {
			n.Data = e.Data
		}
		s.publisher.Publish(ctx, n)
	}
	return e.ID, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return strings.ToValidUTF8(s[:n], "")
}
