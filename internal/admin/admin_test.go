package admin

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/funnel/internal/leads"
	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/internal/webinars"
	"github.com/aura-webinar/funnel/pkg/apperr"
	"github.com/aura-webinar/funnel/pkg/response"
)

type leadBook map[uuid.UUID]*models.Lead

func (b leadBook) GetByID(_ context.Context, id uuid.UUID) (*models.Lead, error) {
	if l, ok := b[id]; ok {
		return l, nil
	}
	return nil, leads.ErrLeadNotFound
}

func (b leadBook) ListByWebinar(_ context.Context, w uuid.UUID, limit, _ int) ([]models.Lead, error) {
	var out []models.Lead
	for _, l := range b {
		if l.WebinarID == w && len(out) < limit {
			out = append(out, *l)
		}
	}
	return out, nil
}

type progressRows map[uuid.UUID][]models.LeadProgress

func (p progressRows) ListByLead(_ context.Context, lead uuid.UUID) ([]models.LeadProgress, error) {
	return p[lead], nil
}

type eventLog struct {
	rows      []models.LeadEvent
	lastLimit int
}

func (e *eventLog) ListByLead(_ context.Context, _ uuid.UUID, limit int) ([]models.LeadEvent, error) {
	e.lastLimit = limit
	if len(e.rows) > limit {
		return e.rows[:limit], nil
	}
	return e.rows, nil
}

type creator struct {
	taken map[string]bool
	got   []leads.RegisterInput
}

func (c *creator) CreateManual(_ context.Context, in leads.RegisterInput) (*models.Lead, error) {
	c.got = append(c.got, in)
	if c.taken[in.Email] {
		return nil, apperr.Conflict("email already registered", leads.ErrLeadExists)
	}
	c.taken[in.Email] = true
	id, _ := uuid.Parse(in.Webinar.ID)
	return &models.Lead{ID: uuid.New(), WebinarID: id, Email: in.Email, Name: in.Name}, nil
}

type orderer struct {
	webinar  uuid.UUID
	lessons  []uuid.UUID
	reorders [][]uuid.UUID
}

func (o *orderer) GetByID(_ context.Context, id uuid.UUID) (*models.Webinar, error) {
	if id != o.webinar {
		return nil, webinars.ErrWebinarNotFound
	}
	return &models.Webinar{ID: id}, nil
}

func (o *orderer) ReorderLessons(_ context.Context, _ uuid.UUID, ids []uuid.UUID) error {
	if len(ids) != len(o.lessons) {
		return webinars.ErrReorderMismatch
	}
	o.reorders = append(o.reorders, ids)
	return nil
}

type fixture struct {
	svc     *Service
	router  *gin.Engine
	book    leadBook
	events  *eventLog
	creator *creator
	orderer *orderer
	webinar uuid.UUID
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	fx := &fixture{
		book:    leadBook{},
		events:  &eventLog{},
		creator: &creator{taken: map[string]bool{}},
		webinar: uuid.New(),
	}
	fx.orderer = &orderer{webinar: fx.webinar, lessons: []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}}
	fx.svc = NewService(fx.book, progressRows{}, fx.events, fx.creator, fx.orderer, nil)

	h := NewHandler(fx.svc, nil)
	fx.router = gin.New()
	g := fx.router.Group("/admin/webinars/:id")
	g.GET("/leads", h.ListLeads)
	g.GET("/leads/:leadId", h.GetLead)
	g.POST("/leads", h.CreateLead)
	g.POST("/lessons/reorder", h.ReorderLessons)
	return fx
}

func (fx *fixture) do(t *testing.T, method, path string, body any) (int, response.Body) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	var out response.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestLeadInsightScopesToWebinar(t *testing.T) {
	fx := newFixture()
	lead := &models.Lead{ID: uuid.New(), WebinarID: fx.webinar, Email: "ana@example.com", AccessToken: "tok"}
	stranger := &models.Lead{ID: uuid.New(), WebinarID: uuid.New(), Email: "bia@example.com"}
	fx.book[lead.ID], fx.book[stranger.ID] = lead, stranger
	for i := 0; i < 60; i++ {
		fx.events.rows = append(fx.events.rows, models.LeadEvent{ID: uuid.New(), LeadID: lead.ID, EventType: models.EventVideoPlay, CreatedAt: time.Now()})
	}

	got, err := fx.svc.LeadInsight(context.Background(), fx.webinar, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok", got.AccessToken)
	assert.Len(t, got.Events, RecentEventLimit)
	assert.Equal(t, RecentEventLimit, fx.events.lastLimit)
	assert.NotNil(t, got.Progress)

	_, err = fx.svc.LeadInsight(context.Background(), fx.webinar, stranger.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	code, _ := fx.do(t, http.MethodGet, "/admin/webinars/"+fx.webinar.String()+"/leads/"+stranger.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = fx.do(t, http.MethodGet, "/admin/webinars/"+fx.webinar.String()+"/leads/nope", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCreateLeadConflictIsFlagged(t *testing.T) {
	fx := newFixture()
	path := "/admin/webinars/" + fx.webinar.String() + "/leads"

	code, body := fx.do(t, http.MethodPost, path, CreateLeadRequest{Email: "ana@example.com", Name: "Ana"})
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, body.Success)
	require.Len(t, fx.creator.got, 1)
	assert.Equal(t, fx.webinar.String(), fx.creator.got[0].Webinar.ID)

	code, body = fx.do(t, http.MethodPost, path, CreateLeadRequest{Email: "ana@example.com"})
	assert.Equal(t, http.StatusConflict, code)
	assert.True(t, body.AlreadyExists)

	code, _ = fx.do(t, http.MethodPost, path, CreateLeadRequest{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReorderLessons(t *testing.T) {
	fx := newFixture()
	path := "/admin/webinars/" + fx.webinar.String() + "/lessons/reorder"
	ids := fx.orderer.lessons

	code, _ := fx.do(t, http.MethodPost, path, ReorderRequest{LessonIDs: []uuid.UUID{ids[2], ids[0], ids[1]}})
	require.Equal(t, http.StatusOK, code)
	require.Len(t, fx.orderer.reorders, 1)
	assert.Equal(t, ids[2], fx.orderer.reorders[0][0])

	code, _ = fx.do(t, http.MethodPost, path, ReorderRequest{LessonIDs: ids[:1]})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = fx.do(t, http.MethodPost, "/admin/webinars/"+uuid.NewString()+"/lessons/reorder", ReorderRequest{LessonIDs: ids})
	assert.Equal(t, http.StatusNotFound, code)
}
