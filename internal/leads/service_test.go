package leads

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/internal/notify"
	"github.com/aura-webinar/funnel/internal/webinars"
	"github.com/aura-webinar/funnel/pkg/apperr"
)

type touch struct {
	leadID uuid.UUID
	method Method
}

// memStore mirrors the uniqueness and stamping rules of Repository.
type memStore struct {
	mu      sync.Mutex
	leads   map[uuid.UUID]*models.Lead
	touches []touch
	sources []string
}

func newMemStore() *memStore { return &memStore{leads: make(map[uuid.UUID]*models.Lead)} }

func (m *memStore) find(match func(*models.Lead) bool) (*models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.Lead
	for _, l := range m.leads {
		if match(l) && (found == nil || l.CreatedAt.Before(found.CreatedAt)) {
			found = l
		}
	}
	if found == nil {
		return nil, ErrLeadNotFound
	}
	cp := *found
	return &cp, nil
}

func (m *memStore) FindByToken(_ context.Context, w uuid.UUID, token string) (*models.Lead, error) {
	return m.find(func(l *models.Lead) bool { return l.WebinarID == w && l.AccessToken == token })
}

func (m *memStore) FindByEmail(_ context.Context, w uuid.UUID, email string) (*models.Lead, error) {
	return m.find(func(l *models.Lead) bool { return l.WebinarID == w && l.Email == email })
}

func (m *memStore) FindByPhone(_ context.Context, w uuid.UUID, phone string) (*models.Lead, error) {
	return m.find(func(l *models.Lead) bool { return l.WebinarID == w && l.Phone == phone })
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Lead, error) {
	return m.find(func(l *models.Lead) bool { return l.ID == id })
}

func (m *memStore) TouchAccess(_ context.Context, id uuid.UUID, method Method, now time.Time) (*models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	if l.FirstAccessAt == nil {
		l.FirstAccessAt = &now
	}
	l.LastAccessAt = &now
	m.touches = append(m.touches, touch{id, method})
	cp := *l
	return &cp, nil
}

func (m *memStore) byEmail(w uuid.UUID, email string) *models.Lead {
	for _, l := range m.leads {
		if l.WebinarID == w && l.Email == email {
			return l
		}
	}
	return nil
}

func (m *memStore) Create(_ context.Context, in NewLead, now time.Time) (*models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byEmail(in.WebinarID, in.Email) != nil {
		return nil, ErrLeadExists
	}
	l := m.insert(in, now)
	cp := *l
	return &cp, nil
}

func (m *memStore) Upsert(_ context.Context, in NewLead, now time.Time) (*models.Lead, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l := m.byEmail(in.WebinarID, in.Email); l != nil {
		if in.Name != "" {
			l.Name = in.Name
		}
		if in.Phone != "" {
			l.Phone = in.Phone
		}
		if in.UTM.Source != "" {
			l.UTM.Source = in.UTM.Source
		}
		if in.ExternalCampaignID != "" {
			l.ExternalCampaignID = in.ExternalCampaignID
		}
		l.AccessToken = in.AccessToken
		cp := *l
		return &cp, false, nil
	}
	if in.Name == "" {
		in.Name = localPart(in.Email)
	}
	l := m.insert(in, now)
	cp := *l
	return &cp, true, nil
}

func (m *memStore) insert(in NewLead, now time.Time) *models.Lead {
	l := &models.Lead{
		ID:                 uuid.New(),
		WebinarID:          in.WebinarID,
		Email:              in.Email,
		Name:               in.Name,
		Phone:              in.Phone,
		AccessToken:        in.AccessToken,
		UTM:                in.UTM,
		ExternalCampaignID: in.ExternalCampaignID,
		CreatedAt:          now,
	}
	if in.StampAccess {
		l.FirstAccessAt, l.LastAccessAt = &now, &now
	}
	m.leads[l.ID] = l
	m.sources = append(m.sources, in.Source)
	return l
}

type catalog map[string]*models.Webinar // by slug

func (c catalog) GetByID(_ context.Context, id uuid.UUID) (*models.Webinar, error) {
	for _, w := range c {
		if w.ID == id {
			return w, nil
		}
	}
	return nil, webinars.ErrWebinarNotFound
}

func (c catalog) GetBySlug(_ context.Context, slug string) (*models.Webinar, error) {
	if w, ok := c[slug]; ok {
		return w, nil
	}
	return nil, webinars.ErrWebinarNotFound
}

type sessionKey struct {
	key     string
	webinar uuid.UUID
}

type fakeSessions struct {
	mu       sync.Mutex
	bindings map[sessionKey]uuid.UUID
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{bindings: make(map[sessionKey]uuid.UUID)}
}

func (f *fakeSessions) Issue(_ context.Context, key string, w, lead uuid.UUID) (*models.LeadSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == "" {
		key = uuid.NewString()
	}
	f.bindings[sessionKey{key, w}] = lead
	return &models.LeadSession{BrowserKey: key, WebinarID: w, LeadID: lead, ExpiresAt: time.Now().Add(30 * 24 * time.Hour)}, nil
}

func (f *fakeSessions) Resolve(_ context.Context, key string, w uuid.UUID) (*models.LeadSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.bindings[sessionKey{key, w}]
	if !ok {
		return nil, apperr.Unauthenticated("session required")
	}
	return &models.LeadSession{BrowserKey: key, WebinarID: w, LeadID: lead}, nil
}

func (f *fakeSessions) Revoke(_ context.Context, key string, w *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.bindings {
		if k.key == key && (w == nil || k.webinar == *w) {
			delete(f.bindings, k)
		}
	}
	return nil
}

type progressRows map[uuid.UUID][]models.LeadProgress

func (p progressRows) ListByLead(_ context.Context, lead uuid.UUID) ([]models.LeadProgress, error) {
	return p[lead], nil
}

type capturePublisher struct{ got []notify.Notification }

func (c *capturePublisher) Publish(_ context.Context, n notify.Notification) {
	c.got = append(c.got, n)
}

type fixture struct {
	svc      *Service
	store    *memStore
	sessions *fakeSessions
	progress progressRows
	pub      *capturePublisher
	launch   *models.Webinar
	other    *models.Webinar
}

func newFixture() *fixture {
	launch := &models.Webinar{ID: uuid.New(), Slug: "launch", Name: "Launch", Status: models.WebinarPublished}
	other := &models.Webinar{ID: uuid.New(), Slug: "other", Name: "Other", Status: models.WebinarPublished}
	f := &fixture{
		store:    newMemStore(),
		sessions: newFakeSessions(),
		progress: progressRows{},
		pub:      &capturePublisher{},
		launch:   launch,
		other:    other,
	}
	f.svc = NewService(f.store, catalog{"launch": launch, "other": other}, f.sessions, f.progress, f.pub, "https://watch.example.com/", nil)
	return f
}

func (f *fixture) register(t *testing.T, email, phone string, w *models.Webinar) *models.Lead {
	t.Helper()
	lead, _, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Phone: phone, Webinar: WebinarRef{ID: w.ID.String()}}, "")
	require.NoError(t, err)
	return lead
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ana@example.com", NormalizeEmail("  Ana@Example.COM "))
	assert.Equal(t, "5511987654321", NormalizePhone("+55 (11) 98765-4321"))
	assert.Equal(t, "", NormalizePhone("n/a"))
}

func TestRegisterStampsAccessAndDefaultsName(t *testing.T) {
	f := newFixture()
	lead, sess, err := f.svc.Register(context.Background(), RegisterInput{
		Email:   " Ana@Example.com",
		Phone:   "(11) 98765-4321",
		Webinar: WebinarRef{Slug: "launch"},
		UTM:     models.UTM{Source: "ads"},
	}, "browser-1")
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", lead.Email)
	assert.Equal(t, "ana", lead.Name)
	assert.Equal(t, "11987654321", lead.Phone)
	assert.Len(t, lead.AccessToken, AccessTokenBytes*2)
	require.NotNil(t, lead.FirstAccessAt)
	require.NotNil(t, lead.LastAccessAt)
	assert.Equal(t, "browser-1", sess.BrowserKey)
	assert.Equal(t, f.launch.ID, sess.WebinarID)
	assert.Equal(t, []string{SourceSelfRegister}, f.store.sources)
	require.Len(t, f.pub.got, 1)
	assert.Equal(t, models.EventLeadRegistered, f.pub.got[0].EventType)
}

func TestRegisterTwiceConflictsPerWebinar(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first := f.register(t, "ana@example.com", "", f.launch)

	_, _, err := f.svc.Register(ctx, RegisterInput{Email: "ANA@example.com", Webinar: WebinarRef{Slug: "launch"}}, "")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.ErrorIs(t, err, ErrLeadExists)

	second := f.register(t, "ana@example.com", "", f.other)
	assert.NotEqual(t, first.ID, second.ID, "same email in another webinar is a distinct lead")
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, _, err := f.svc.Register(ctx, RegisterInput{Webinar: WebinarRef{Slug: "launch"}}, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, _, err = f.svc.Register(ctx, RegisterInput{Email: "ana@example.com"}, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, _, err = f.svc.Register(ctx, RegisterInput{Email: "ana@example.com", Webinar: WebinarRef{Slug: "missing"}}, "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.NotErrorIs(t, err, ErrLeadNotFound)
}

func TestResolvePriorityAndFallthrough(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ana := f.register(t, "ana@example.com", "11 98765-4321", f.launch)
	bia := f.register(t, "bia@example.com", "", f.launch)
	ref := WebinarRef{Slug: "launch"}

	lead, _, err := f.svc.Resolve(ctx, Credentials{AccessToken: bia.AccessToken, Email: "ana@example.com"}, ref, "")
	require.NoError(t, err)
	assert.Equal(t, bia.ID, lead.ID, "token wins over email")

	lead, _, err = f.svc.Resolve(ctx, Credentials{AccessToken: "stale", Email: "ANA@example.com"}, ref, "")
	require.NoError(t, err)
	assert.Equal(t, ana.ID, lead.ID, "unknown token falls through to email")

	lead, sess, err := f.svc.Resolve(ctx, Credentials{Phone: "(11) 98765 4321"}, ref, "browser-9")
	require.NoError(t, err)
	assert.Equal(t, ana.ID, lead.ID)
	assert.Equal(t, "browser-9", sess.BrowserKey)

	require.Len(t, f.store.touches, 3)
	assert.Equal(t, MethodToken, f.store.touches[0].method)
	assert.Equal(t, MethodEmail, f.store.touches[1].method)
	assert.Equal(t, MethodPhone, f.store.touches[2].method)
}

func TestResolveIsScopedToWebinar(t *testing.T) {
	f := newFixture()
	ana := f.register(t, "ana@example.com", "", f.launch)

	_, _, err := f.svc.Resolve(context.Background(), Credentials{AccessToken: ana.AccessToken}, WebinarRef{Slug: "other"}, "")
	assert.ErrorIs(t, err, ErrLeadNotFound)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestResolveKeepsFirstAccess(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.svc.IngestFromWebhook(ctx, IngestInput{Email: "ana@example.com", Webinar: WebinarRef{Slug: "launch"}})
	require.NoError(t, err)
	assert.Nil(t, res.Lead.FirstAccessAt, "ingest does not count as an access")

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return first }
	lead, _, err := f.svc.Resolve(ctx, Credentials{AccessToken: res.AccessToken}, WebinarRef{Slug: "launch"}, "")
	require.NoError(t, err)
	require.NotNil(t, lead.FirstAccessAt)

	later := first.Add(48 * time.Hour)
	f.svc.now = func() time.Time { return later }
	lead, _, err = f.svc.Resolve(ctx, Credentials{Email: "ana@example.com"}, WebinarRef{Slug: "launch"}, "")
	require.NoError(t, err)
	assert.True(t, lead.FirstAccessAt.Equal(first))
	assert.True(t, lead.LastAccessAt.Equal(later))
}

func TestResolveRequiresCredential(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.Resolve(context.Background(), Credentials{Phone: "--"}, WebinarRef{Slug: "launch"}, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestIngestRotatesTokenAndKeepsAbsentFields(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ref := WebinarRef{ID: f.launch.ID.String()}

	created, err := f.svc.IngestFromWebhook(ctx, IngestInput{
		Email: "ana@example.com", Name: "Ana Souza", Phone: "11 5555-0000",
		Webinar: ref, UTM: models.UTM{Source: "newsletter"}, ExternalCampaignID: "ac-7",
	})
	require.NoError(t, err)
	assert.True(t, created.Created)
	assert.Equal(t, "https://watch.example.com/w/launch?token="+created.AccessToken, created.AccessURL)

	updated, err := f.svc.IngestFromWebhook(ctx, IngestInput{Email: "ANA@example.com", Webinar: ref})
	require.NoError(t, err)
	assert.False(t, updated.Created)
	assert.Equal(t, created.Lead.ID, updated.Lead.ID)
	assert.NotEqual(t, created.AccessToken, updated.AccessToken, "token rotates on every ingest")
	assert.True(t, strings.HasSuffix(updated.AccessURL, updated.AccessToken))
	assert.Equal(t, "Ana Souza", updated.Lead.Name)
	assert.Equal(t, "1155550000", updated.Lead.Phone)
	assert.Equal(t, "newsletter", updated.Lead.UTM.Source)
	assert.Equal(t, "ac-7", updated.Lead.ExternalCampaignID)

	assert.Equal(t, []string{SourceWebhook}, f.store.sources, "LEAD_REGISTERED only on insert")
	assert.Len(t, f.pub.got, 1)
	assert.Empty(t, f.sessions.bindings, "ingest binds no session")

	_, _, err = f.svc.Resolve(ctx, Credentials{AccessToken: created.AccessToken}, ref, "")
	assert.ErrorIs(t, err, ErrLeadNotFound, "rotated token no longer resolves")
}

func TestMe(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ref := WebinarRef{Slug: "launch"}

	p, err := f.svc.Me(ctx, "", ref)
	require.NoError(t, err)
	assert.Nil(t, p)

	lead, sess, err := f.svc.Register(ctx, RegisterInput{Email: "ana@example.com", Webinar: ref}, "")
	require.NoError(t, err)
	lesson := uuid.New()
	done := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	f.progress[lead.ID] = []models.LeadProgress{{LeadID: lead.ID, LessonID: lesson, PercentWatched: 92, IsCompleted: true, CompletedAt: &done}}

	p, err = f.svc.Me(ctx, sess.BrowserKey, ref)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, lead.ID, p.Lead.ID)
	require.Contains(t, p.Progress, lesson)
	assert.True(t, p.Progress[lesson].IsCompleted)

	p, err = f.svc.Me(ctx, sess.BrowserKey, WebinarRef{Slug: "other"})
	require.NoError(t, err)
	assert.Nil(t, p, "binding does not leak across webinars")
}

func TestLogoutScopedAndGlobal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _, err := f.svc.Register(ctx, RegisterInput{Email: "ana@example.com", Webinar: WebinarRef{Slug: "launch"}}, "browser-1")
	require.NoError(t, err)
	_, _, err = f.svc.Register(ctx, RegisterInput{Email: "ana@example.com", Webinar: WebinarRef{Slug: "other"}}, "browser-1")
	require.NoError(t, err)
	require.Len(t, f.sessions.bindings, 2)

	require.NoError(t, f.svc.Logout(ctx, "browser-1", &f.launch.ID))
	assert.Len(t, f.sessions.bindings, 1)
	_, err = f.sessions.Resolve(ctx, "browser-1", f.other.ID)
	assert.NoError(t, err, "other webinar stays signed in")

	require.NoError(t, f.svc.Logout(ctx, "browser-1", nil))
	assert.Empty(t, f.sessions.bindings)
}
