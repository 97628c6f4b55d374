package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/internal/sessions"
	"github.com/aura-webinar/funnel/pkg/apperr"
)

type stubResolver struct {
	browserKey string
	session    *models.LeadSession
}

func (s stubResolver) Resolve(_ context.Context, key string, webinarID uuid.UUID) (*models.LeadSession, error) {
	if key != s.browserKey || webinarID != s.session.WebinarID {
		return nil, apperr.Unauthenticated("session required")
	}
	return s.session, nil
}

func leadRouter(t *testing.T) (*gin.Engine, *models.LeadSession) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sess := &models.LeadSession{ID: uuid.New(), LeadID: uuid.New(), WebinarID: uuid.New(), ExpiresAt: time.Now().Add(time.Hour)}
	r := gin.New()
	guard := LeadSession(stubResolver{browserKey: "k1", session: sess}, sessions.Cookie{Name: "lead_sid"})
	r.POST("/progress", guard, func(c *gin.Context) {
		var body struct {
			WebinarID string `json:"webinar_id"`
			Percent   int    `json:"percent"`
		}
		require.NoError(t, c.ShouldBindBodyWith(&body, binding.JSON))
		c.JSON(http.StatusOK, gin.H{"lead": LeadID(c), "percent": body.Percent})
	})
	r.GET("/me", guard, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"lead": LeadID(c), "webinar": WebinarID(c)})
	})
	return r, sess
}

func TestLeadSessionFromBody(t *testing.T) {
	r, sess := leadRouter(t)
	body := `{"webinar_id":"` + sess.WebinarID.String() + `","percent":40}`
	req := httptest.NewRequest(http.MethodPost, "/progress", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "lead_sid", Value: "k1"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), sess.LeadID.String())
	assert.Contains(t, rec.Body.String(), `"percent":40`)
}

func TestLeadSessionFromQueryAndHeader(t *testing.T) {
	r, sess := leadRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/me?webinar_id="+sess.WebinarID.String(), nil)
	req.Header.Set(sessions.HeaderName, "k1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLeadSessionRejections(t *testing.T) {
	r, sess := leadRouter(t)
	cases := []struct {
		name   string
		key    string
		target string
		want   int
	}{
		{"no session", "", "/me?webinar_id=" + sess.WebinarID.String(), http.StatusUnauthorized},
		{"no webinar", "k1", "/me", http.StatusBadRequest},
		{"bad webinar", "k1", "/me?webinar_id=nope", http.StatusBadRequest},
		{"other webinar", "k1", "/me?webinar_id=" + uuid.NewString(), http.StatusUnauthorized},
		{"unknown key", "k2", "/me?webinar_id=" + sess.WebinarID.String(), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.key != "" {
				req.AddCookie(&http.Cookie{Name: "lead_sid", Value: tc.key})
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()
	r := gin.New()
	r.POST("/auth", RateLimit(rl), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodPost, "/auth", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "buckets are per IP")
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Allow("1.1.1.1")
	rl.cleanup(time.Now().Add(time.Second))
	assert.Empty(t, rl.limiters)
}

func TestAPIKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tc := range []struct {
		expected, sent string
		want           int
	}{
		{"", "", http.StatusOK},
		{"s3cret", "s3cret", http.StatusOK},
		{"s3cret", "", http.StatusUnauthorized},
		{"s3cret", "wrong", http.StatusUnauthorized},
	} {
		r := gin.New()
		r.POST("/hook", APIKey(tc.expected), func(c *gin.Context) { c.Status(http.StatusOK) })
		req := httptest.NewRequest(http.MethodPost, "/hook", nil)
		if tc.sent != "" {
			req.Header.Set(APIKeyHeader, tc.sent)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "expected=%q sent=%q", tc.expected, tc.sent)
	}
}

func TestCORSCredentialsOnlyForListedOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("https://watch.example.com"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://watch.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://watch.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
