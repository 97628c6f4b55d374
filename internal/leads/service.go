// Package leads resolves visitors to durable lead identities scoped to one
// webinar, and admits new leads through self-registration or webhook ingest.
package leads

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/metrics"
	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/internal/notify"
	"github.com/aura-webinar/funnel/internal/webinars"
	"github.com/aura-webinar/funnel/pkg/apperr"
	"github.com/aura-webinar/funnel/pkg/utils"
)

// AccessTokenBytes is the entropy of a lead access token.
const AccessTokenBytes = 32

// Method is the credential that resolved a lead.
type Method string

const (
	MethodToken Method = "token"
	MethodEmail Method = "email"
	MethodPhone Method = "phone"
)

// Lead sources recorded on LEAD_REGISTERED.
const (
	SourceSelfRegister = "self-register"
	SourceWebhook      = "webhook"
	SourceAdminManual  = "admin-manual"
)

// Store is the persistence side of the resolver.
type Store interface {
	FindByToken(ctx context.Context, webinarID uuid.UUID, token string) (*models.Lead, error)
	FindByEmail(ctx context.Context, webinarID uuid.UUID, email string) (*models.Lead, error)
	FindByPhone(ctx context.Context, webinarID uuid.UUID, phone string) (*models.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	TouchAccess(ctx context.Context, leadID uuid.UUID, method Method, now time.Time) (*models.Lead, error)
	Create(ctx context.Context, in NewLead, now time.Time) (*models.Lead, error)
	Upsert(ctx context.Context, in NewLead, now time.Time) (*models.Lead, bool, error)
}

// Sessions issues and looks up browser session bindings.
type Sessions interface {
	Issue(ctx context.Context, browserKey string, webinarID, leadID uuid.UUID) (*models.LeadSession, error)
	Resolve(ctx context.Context, browserKey string, webinarID uuid.UUID) (*models.LeadSession, error)
	Revoke(ctx context.Context, browserKey string, webinarID *uuid.UUID) error
}

// ProgressLister returns every progress row of a lead.
type ProgressLister interface {
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]models.LeadProgress, error)
}

// Publisher forwards LEAD_REGISTERED to the webinar's outbound webhook.
type Publisher interface {
	Publish(ctx context.Context, n notify.Notification)
}

// Credentials identify a returning visitor. Checked in token, email, phone order.
type Credentials struct {
	AccessToken string
	Email       string
	Phone       string
}

// WebinarRef names a webinar by id or slug.
type WebinarRef struct {
	ID   string
	Slug string
}

// RegisterInput is a self-service or admin registration.
type RegisterInput struct {
	Email   string
	Name    string
	Phone   string
	Webinar WebinarRef
	UTM     models.UTM
}

// IngestInput is a lead pushed by an external system.
type IngestInput struct {
	Email              string
	Name               string
	Phone              string
	Webinar            WebinarRef
	UTM                models.UTM
	ExternalCampaignID string
}

// IngestResult carries the rotated credential and the direct link built from it.
type IngestResult struct {
	Lead        *models.Lead
	Webinar     *models.Webinar
	AccessToken string
	AccessURL   string
	Created     bool
}

// ProgressSummary is the per-lesson state returned to the watch pages.
type ProgressSummary struct {
	PercentWatched float64    `json:"percent_watched"`
	IsCompleted    bool       `json:"is_completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Profile is the current lead with progress keyed by lesson id.
type Profile struct {
	Lead     ProfileLead                   `json:"lead"`
	Progress map[uuid.UUID]ProgressSummary `json:"progress"`
}

// ProfileLead is the lead part of Profile.
type ProfileLead struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone,omitempty"`
	FirstAccessAt  *time.Time `json:"first_access_at,omitempty"`
	LastAccessAt   *time.Time `json:"last_access_at,omitempty"`
	TotalWatchTime int        `json:"total_watch_time"`
}

// Service implements identity resolution and lead admission.
type Service struct {
	store     Store
	webinars  webinars.Finder
	sessions  Sessions
	progress  ProgressLister
	publisher Publisher
	publicURL string
	now       func() time.Time
	logger    *zap.Logger
}

// NewService creates a lead service. publicAppURL is the base of direct-access links.
func NewService(store Store, finder webinars.Finder, sessions Sessions, progress ProgressLister, publisher Publisher, publicAppURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		webinars:  finder,
		sessions:  sessions,
		progress:  progress,
		publisher: publisher,
		publicURL: strings.TrimRight(publicAppURL, "/"),
		now:       time.Now,
		logger:    logger,
	}
}

// NormalizeEmail lowercases and trims an email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps only the digits of a phone number.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Resolve finds the lead behind creds in the referenced webinar, stamps the
// access and binds browserKey (minted when empty) to it.
func (s *Service) Resolve(ctx context.Context, creds Credentials, ref WebinarRef, browserKey string) (*models.Lead, *models.LeadSession, error) {
	token := strings.TrimSpace(creds.AccessToken)
	email := NormalizeEmail(creds.Email)
	phone := NormalizePhone(creds.Phone)
	if token == "" && email == "" && phone == "" {
		return nil, nil, apperr.Validation("email, phone or token is required")
	}
	w, err := webinars.Resolve(ctx, s.webinars, ref.ID, ref.Slug)
	if err != nil {
		return nil, nil, err
	}

	attempts := []struct {
		method Method
		value  string
		find   func(context.Context, uuid.UUID, string) (*models.Lead, error)
	}{
		{MethodToken, token, s.store.FindByToken},
		{MethodEmail, email, s.store.FindByEmail},
		{MethodPhone, phone, s.store.FindByPhone},
	}
	var (
		lead   *models.Lead
		method Method
	)
	for _, a := range attempts {
		if a.value == "" {
			continue
		}
		l, err := a.find(ctx, w.ID, a.value)
		if errors.Is(err, ErrLeadNotFound) {
			continue
		}
		if err != nil {
			s.logger.Error("find lead", zap.String("webinar_id", w.ID.String()), zap.String("method", string(a.method)), zap.Error(err))
			return nil, nil, apperr.Internal("find lead", err)
		}
		lead, method = l, a.method
		break
	}
	if lead == nil {
		metrics.RecordResolution("none", false)
		return nil, nil, apperr.NotFound("lead not found", ErrLeadNotFound)
	}
	metrics.RecordResolution(string(method), true)

	touched, err := s.store.TouchAccess(ctx, lead.ID, method, s.now())
	if err != nil {
		s.logger.Error("touch lead access", zap.String("lead_id", lead.ID.String()), zap.Error(err))
		return nil, nil, apperr.Internal("record access", err)
	}
	sess, err := s.sessions.Issue(ctx, browserKey, w.ID, touched.ID)
	if err != nil {
		return nil, nil, err
	}
	return touched, sess, nil
}

// Register admits a new lead and binds browserKey to it. A second registration
// of the same email in the same webinar is a Conflict.
func (s *Service) Register(ctx context.Context, in RegisterInput, browserKey string) (*models.Lead, *models.LeadSession, error) {
	lead, w, err := s.create(ctx, in, SourceSelfRegister)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.sessions.Issue(ctx, browserKey, w.ID, lead.ID)
	if err != nil {
		return nil, nil, err
	}
	return lead, sess, nil
}

// CreateManual admits a lead on behalf of an admin. No session is bound.
func (s *Service) CreateManual(ctx context.Context, in RegisterInput) (*models.Lead, error) {
	lead, _, err := s.create(ctx, in, SourceAdminManual)
	return lead, err
}

func (s *Service) create(ctx context.Context, in RegisterInput, source string) (*models.Lead, *models.Webinar, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return nil, nil, apperr.Validation("email is required")
	}
	if !strings.Contains(email, "@") {
		return nil, nil, apperr.Validation("invalid email")
	}
	w, err := webinars.Resolve(ctx, s.webinars, in.Webinar.ID, in.Webinar.Slug)
	if err != nil {
		return nil, nil, err
	}
	token, err := utils.GenerateToken(AccessTokenBytes)
	if err != nil {
		return nil, nil, apperr.Internal("generate access token", err)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = localPart(email)
	}

	lead, err := s.store.Create(ctx, NewLead{
		WebinarID:   w.ID,
		Email:       email,
		Name:        name,
		Phone:       NormalizePhone(in.Phone),
		AccessToken: token,
		UTM:         trimUTM(in.UTM),
		Source:      source,
		StampAccess: source == SourceSelfRegister,
	}, s.now())
	if errors.Is(err, ErrLeadExists) {
		return nil, nil, apperr.Conflict("email already registered, sign in instead", err)
	}
	if err != nil {
		s.logger.Error("create lead", zap.String("webinar_id", w.ID.String()), zap.String("source", source), zap.Error(err))
		return nil, nil, apperr.Internal("create lead", err)
	}
	metrics.LeadsCreated.WithLabelValues(source).Inc()
	s.announce(ctx, lead, source)
	return lead, w, nil
}

// IngestFromWebhook creates or refreshes a lead for an external system and
// always returns a freshly rotated token with the direct-access URL built
// from it. No session is bound.
func (s *Service) IngestFromWebhook(ctx context.Context, in IngestInput) (*IngestResult, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	if !strings.Contains(email, "@") {
		return nil, apperr.Validation("invalid email")
	}
	w, err := webinars.Resolve(ctx, s.webinars, in.Webinar.ID, in.Webinar.Slug)
	if err != nil {
		return nil, err
	}
	token, err := utils.GenerateToken(AccessTokenBytes)
	if err != nil {
		return nil, apperr.Internal("generate access token", err)
	}

	lead, created, err := s.store.Upsert(ctx, NewLead{
		WebinarID:          w.ID,
		Email:              email,
		Name:               strings.TrimSpace(in.Name),
		Phone:              NormalizePhone(in.Phone),
		AccessToken:        token,
		UTM:                trimUTM(in.UTM),
		ExternalCampaignID: strings.TrimSpace(in.ExternalCampaignID),
		Source:             SourceWebhook,
	}, s.now())
	if err != nil {
		s.logger.Error("upsert webhook lead", zap.String("webinar_id", w.ID.String()), zap.Error(err))
		return nil, apperr.Internal("save lead", err)
	}
	if created {
		metrics.LeadsCreated.WithLabelValues(SourceWebhook).Inc()
		s.announce(ctx, lead, SourceWebhook)
	}
	return &IngestResult{
		Lead:        lead,
		Webinar:     w,
		AccessToken: token,
		AccessURL:   s.AccessURL(w.Slug, token),
		Created:     created,
	}, nil
}

// AccessURL builds the passwordless entry link for a webinar.
func (s *Service) AccessURL(webinarSlug, token string) string {
	return s.publicURL + "/w/" + webinarSlug + "?token=" + token
}

// Me returns the lead bound to browserKey in the referenced webinar, or nil
// when the browser holds no live binding there.
func (s *Service) Me(ctx context.Context, browserKey string, ref WebinarRef) (*Profile, error) {
	w, err := webinars.Resolve(ctx, s.webinars, ref.ID, ref.Slug)
	if err != nil {
		return nil, err
	}
	if browserKey == "" {
		return nil, nil
	}
	sess, err := s.sessions.Resolve(ctx, browserKey, w.ID)
	if apperr.Is(err, apperr.KindUnauthenticated) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lead, err := s.store.GetByID(ctx, sess.LeadID)
	if errors.Is(err, ErrLeadNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("load lead", err)
	}
	rows, err := s.progress.ListByLead(ctx, lead.ID)
	if err != nil {
		s.logger.Error("list progress", zap.String("lead_id", lead.ID.String()), zap.Error(err))
		return nil, apperr.Internal("load progress", err)
	}

	p := &Profile{
		Lead: ProfileLead{
			ID:             lead.ID,
			Email:          lead.Email,
			Name:           lead.Name,
			Phone:          lead.Phone,
			FirstAccessAt:  lead.FirstAccessAt,
			LastAccessAt:   lead.LastAccessAt,
			TotalWatchTime: lead.TotalWatchTime,
		},
		Progress: make(map[uuid.UUID]ProgressSummary, len(rows)),
	}
	for _, r := range rows {
		p.Progress[r.LessonID] = ProgressSummary{
			PercentWatched: r.PercentWatched,
			IsCompleted:    r.IsCompleted,
			CompletedAt:    r.CompletedAt,
		}
	}
	return p, nil
}

// Logout drops the browser's binding for webinarID, or all of its bindings
// when webinarID is nil.
func (s *Service) Logout(ctx context.Context, browserKey string, webinarID *uuid.UUID) error {
	return s.sessions.Revoke(ctx, browserKey, webinarID)
}

func (s *Service) announce(ctx context.Context, lead *models.Lead, source string) {
	if s.publisher == nil {
		return
	}
	data := map[string]string{"source": source}
	if lead.UTM.Source != "" {
		data["utm_source"] = lead.UTM.Source
	}
	if lead.UTM.Campaign != "" {
		data["utm_campaign"] = lead.UTM.Campaign
	}
	s.publisher.Publish(ctx, notify.Notification{
		EventType: models.EventLeadRegistered,
		WebinarID: lead.WebinarID,
		LeadID:    lead.ID,
		LeadEmail: lead.Email,
		LeadName:  lead.Name,
		Data:      data,
	})
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

func trimUTM(u models.UTM) models.UTM {
	return models.UTM{
		Source:   strings.TrimSpace(u.Source),
		Medium:   strings.TrimSpace(u.Medium),
		Campaign: strings.TrimSpace(u.Campaign),
	}
}
