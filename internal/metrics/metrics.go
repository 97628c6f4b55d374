// Package metrics exposes Prometheus collectors for the funnel API and worker.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "funnel_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_rate_limited_total",
			Help: "Requests rejected by the per-IP rate limiter",
		},
		[]string{"route"},
	)

	// Identity
	LeadResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_lead_resolutions_total",
			Help: "Identity resolutions by method and outcome",
		},
		[]string{"method", "outcome"}, // method: token, email, phone; outcome: found, not_found
	)

	LeadsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_leads_created_total",
			Help: "Leads created by source",
		},
		[]string{"source"}, // self-register, webhook, admin-manual
	)

	// Engagement
	ProgressSubmissions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "funnel_progress_submissions_total",
			Help: "Accepted progress snapshots",
		},
	)

	LessonCompletions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "funnel_lesson_completions_total",
			Help: "Progress rows that transitioned to completed",
		},
	)

	EventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_events_recorded_total",
			Help: "Lead events appended to the ledger",
		},
		[]string{"event_type"},
	)

	LockedLessonRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "funnel_locked_lesson_requests_total",
			Help: "Lesson reads rejected by the release gate",
		},
	)

	// Sessions
	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "funnel_session_cache_hits_total",
			Help: "Lead session lookups served from Redis",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "funnel_session_cache_misses_total",
			Help: "Lead session lookups that fell through to Postgres",
		},
	)

	SessionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "funnel_sessions_swept_total",
			Help: "Expired lead sessions deleted by the worker",
		},
	)

	// Outbound webhooks
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_webhook_deliveries_total",
			Help: "Outbound event webhook delivery attempts by outcome",
		},
		[]string{"outcome"}, // delivered, failed, rejected
	)

	WebhookBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "funnel_webhook_breaker_state",
			Help: "Outbound webhook circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// RecordAPIRequest records a finished HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordResolution records one identity resolution attempt.
func RecordResolution(method string, found bool) {
	outcome := "not_found"
	if found {
		outcome = "found"
	}
	LeadResolutions.WithLabelValues(method, outcome).Inc()
}

// RecordProgress records an accepted progress snapshot.
func RecordProgress(justCompleted bool) {
	ProgressSubmissions.Inc()
	if justCompleted {
		LessonCompletions.Inc()
	}
}
