package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/metrics"
	"github.com/aura-webinar/funnel/pkg/queue"
)

// Delivery headers sent with every outbound webhook.
const (
	HeaderEvent    = "X-Funnel-Event"
	HeaderDelivery = "X-Funnel-Delivery"
)

// BreakerConfig tunes the per-host circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32        // consecutive failures that open the breaker
	Timeout          time.Duration // how long an open breaker rejects before probing
	MaxRequests      uint32        // trial requests allowed while half-open
}

// DefaultBreakerConfig suits webhook receivers that fail in bursts.
var DefaultBreakerConfig = BreakerConfig{FailureThreshold: 5, Timeout: 60 * time.Second, MaxRequests: 1}

// Dispatcher POSTs queued event webhooks. Each receiving host gets its own
// circuit breaker so one dead endpoint does not stall the others.
type Dispatcher struct {
	client   *http.Client
	cfg      BreakerConfig
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher whose requests time out after timeout.
func NewDispatcher(timeout time.Duration, cfg BreakerConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		client:   &http.Client{Timeout: timeout},
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
		logger:   logger,
	}
}

type webhookLead struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email,omitempty"`
	Name  string    `json:"name,omitempty"`
}

type webhookBody struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	WebinarID  uuid.UUID       `json:"webinar_id"`
	Lead       webhookLead     `json:"lead"`
	LessonID   *uuid.UUID      `json:"lesson_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Process delivers one queued job. A returned error means the job should be retried.
func (d *Dispatcher) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEventWebhook {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var p queue.EventWebhookPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	target, err := url.Parse(p.WebhookURL)
	if err != nil || target.Host == "" {
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		d.logger.Warn("dropping webhook with invalid url", zap.String("job_id", job.ID), zap.String("url", p.WebhookURL))
		return nil
	}
	body, err := json.Marshal(webhookBody{
		ID:         job.ID,
		EventType:  p.EventType,
		WebinarID:  p.WebinarID,
		Lead:       webhookLead{ID: p.LeadID, Email: p.LeadEmail, Name: p.LeadName},
		LessonID:   p.LessonID,
		Data:       p.Data,
		OccurredAt: p.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	_, err = d.breaker(target.Host).Execute(func() (struct{}, error) {
		return struct{}{}, d.post(ctx, p.WebhookURL, job.ID, p.EventType, body)
	})
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("breaker open for %s: %w", target.Host, err)
		}
		return err
	}
	metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
	d.logger.Info("webhook delivered",
		zap.String("job_id", job.ID),
		zap.String("event_type", p.EventType),
		zap.String("host", target.Host))
	return nil
}

func (d *Dispatcher) post(ctx context.Context, target, deliveryID, eventType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set(HeaderDelivery, deliveryID)
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status: %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) breaker(host string) *gobreaker.CircuitBreaker[struct{}] {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.breakers[host]; ok {
		return cb
	}
	threshold := d.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        host,
		MaxRequests: d.cfg.MaxRequests,
		Timeout:     d.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.WebhookBreakerState.Set(float64(to))
			d.logger.Warn("webhook breaker state change",
				zap.String("host", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	d.breakers[host] = cb
	return cb
}

// BreakerState reports the breaker state for host, "closed" when none exists yet.
func (d *Dispatcher) BreakerState(host string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.breakers[host]; ok {
		return cb.State().String()
	}
	return gobreaker.StateClosed.String()
}
