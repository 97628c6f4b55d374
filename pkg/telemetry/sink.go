package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Sink receives what a view produces.
type Sink interface {
	Progress(ctx context.Context, lesson Lesson, snap Snapshot) error
	Event(ctx context.Context, lesson Lesson, e Event) error
}

// HTTPSink posts to the funnel API. It keeps the lead session cookie in a
// jar, so Authenticate must succeed before progress or events are accepted.
type HTTPSink struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSink creates a sink for the API at baseURL.
func NewHTTPSink(baseURL string, timeout time.Duration) (*HTTPSink, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &HTTPSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout, Jar: jar},
	}, nil
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// Authenticate resolves the lead by email (or token) and stores the session cookie.
func (s *HTTPSink) Authenticate(ctx context.Context, webinarSlug, email, token string) error {
	return s.post(ctx, "/api/lead/auth", map[string]any{
		"webinar_slug": webinarSlug,
		"email":        email,
		"token":        token,
	}, nil)
}

// Register creates a lead and stores the session cookie.
func (s *HTTPSink) Register(ctx context.Context, webinarSlug, email, name string) error {
	return s.post(ctx, "/api/lead/register", map[string]any{
		"webinar_slug": webinarSlug,
		"email":        email,
		"name":         name,
	}, nil)
}

// LessonInfo fetches the lesson page and returns what a view needs.
func (s *HTTPSink) LessonInfo(ctx context.Context, webinarSlug, lessonSlug string) (Lesson, float64, error) {
	var out struct {
		Data struct {
			ID            string `json:"id"`
			VideoDuration *int   `json:"video_duration"`
			Offer         *struct {
				ShowAt *int `json:"show_at"`
			} `json:"offer"`
			Webinar struct {
				ID string `json:"id"`
			} `json:"webinar"`
		} `json:"data"`
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/webinar/"+webinarSlug+"/aula/"+lessonSlug, nil)
	if err != nil {
		return Lesson{}, 0, err
	}
	if err := s.do(req, &out); err != nil {
		return Lesson{}, 0, err
	}
	l := Lesson{WebinarID: out.Data.Webinar.ID, LessonID: out.Data.ID}
	if out.Data.Offer != nil {
		l.HasOffer = true
		l.OfferShowAt = out.Data.Offer.ShowAt
	}
	var duration float64
	if out.Data.VideoDuration != nil {
		duration = float64(*out.Data.VideoDuration)
	}
	return l, duration, nil
}

// Progress posts a progress snapshot.
func (s *HTTPSink) Progress(ctx context.Context, lesson Lesson, snap Snapshot) error {
	return s.post(ctx, "/api/lead/progress", map[string]any{
		"webinar_id":      lesson.WebinarID,
		"lesson_id":       lesson.LessonID,
		"watched_seconds": snap.WatchedSeconds,
		"percent_watched": snap.PercentWatched,
	}, nil)
}

// Event posts a discrete event.
func (s *HTTPSink) Event(ctx context.Context, lesson Lesson, e Event) error {
	body := map[string]any{
		"webinar_id": lesson.WebinarID,
		"lesson_id":  lesson.LessonID,
		"event_type": string(e.Type),
		"video_time": e.VideoTime,
	}
	if len(e.Data) > 0 {
		body["data"] = e.Data
	}
	return s.post(ctx, "/api/lead/event", body, nil)
}

func (s *HTTPSink) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *HTTPSink) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &env)
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s: %w", req.URL.Path, err)
		}
	}
	return nil
}
