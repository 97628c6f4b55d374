// Package notify forwards funnel milestones to a webinar's outbound event
// webhook. Publisher enqueues from the request path; Dispatcher delivers from
// the worker.
package notify

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/pkg/queue"
)

// Notification is one milestone worth telling the webinar owner about.
type Notification struct {
	EventType models.EventType
	WebinarID uuid.UUID
	LeadID    uuid.UUID
	LeadEmail string
	LeadName  string
	LessonID  *uuid.UUID
	Data      any
}

// WebinarGetter loads a webinar to find its webhook URL.
type WebinarGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
}

// Enqueuer is the queue side the publisher writes to.
type Enqueuer interface {
	EnqueueEventWebhook(ctx context.Context, payload queue.EventWebhookPayload) error
}

// Publisher turns notifications into queued webhook jobs.
type Publisher struct {
	webinars WebinarGetter
	queue    Enqueuer
	now      func() time.Time
	logger   *zap.Logger
}

// NewPublisher creates a publisher.
func NewPublisher(webinars WebinarGetter, q Enqueuer, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{webinars: webinars, queue: q, now: time.Now, logger: logger}
}

// Publish enqueues n when the webinar has an event webhook configured.
// Failures are logged and never reach the caller's request.
func (p *Publisher) Publish(ctx context.Context, n Notification) {
	w, err := p.webinars.GetByID(ctx, n.WebinarID)
	if err != nil {
		p.logger.Warn("notify: load webinar", zap.String("webinar_id", n.WebinarID.String()), zap.Error(err))
		return
	}
	if w.EventWebhookURL == "" {
		return
	}
	payload := queue.EventWebhookPayload{
		WebhookURL: w.EventWebhookURL,
		EventType:  string(n.EventType),
		WebinarID:  n.WebinarID,
		LeadID:     n.LeadID,
		LeadEmail:  n.LeadEmail,
		LeadName:   n.LeadName,
		LessonID:   n.LessonID,
		OccurredAt: p.now().UTC(),
	}
	if n.Data != nil {
		raw, err := json.Marshal(n.Data)
		if err != nil {
			p.logger.Warn("notify: encode data", zap.String("event_type", string(n.EventType)), zap.Error(err))
		} else {
			payload.Data = raw
		}
	}
	if err := p.queue.EnqueueEventWebhook(ctx, payload); err != nil {
		p.logger.Error("notify: enqueue",
			zap.String("event_type", string(n.EventType)),
			zap.String("lead_id", n.LeadID.String()),
			zap.Error(err))
	}
}
