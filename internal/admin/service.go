// Package admin is the back-office view of the engagement data: per-lead
// insight, manual lead entry and lesson reordering.
package admin

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/leads"
	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/internal/webinars"
	"github.com/aura-webinar/funnel/pkg/apperr"
)

// RecentEventLimit caps the event history in a lead insight.
const RecentEventLimit = 50

// LeadReader reads leads.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	ListByWebinar(ctx context.Context, webinarID uuid.UUID, limit, offset int) ([]models.Lead, error)
}

// ProgressLister returns a lead's progress ordered by lesson position.
type ProgressLister interface {
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]models.LeadProgress, error)
}

// EventLister returns a lead's latest events.
type EventLister interface {
	ListByLead(ctx context.Context, leadID uuid.UUID, limit int) ([]models.LeadEvent, error)
}

// LeadCreator admits leads entered by hand.
type LeadCreator interface {
	CreateManual(ctx context.Context, in leads.RegisterInput) (*models.Lead, error)
}

// LessonOrderer rewrites lesson positions.
type LessonOrderer interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
	ReorderLessons(ctx context.Context, webinarID uuid.UUID, orderedIDs []uuid.UUID) error
}

// Insight is everything the back office shows about one lead.
type Insight struct {
	Lead        *models.Lead          `json:"lead"`
	AccessToken string                `json:"access_token"`
	Progress    []models.LeadProgress `json:"progress"`
	Events      []models.LeadEvent    `json:"events"`
}

// Service implements the admin operations.
type Service struct {
	leads    LeadReader
	progress ProgressLister
	events   EventLister
	creator  LeadCreator
	webinars LessonOrderer
	logger   *zap.Logger
}

// NewService creates an admin service.
func NewService(leadReader LeadReader, progress ProgressLister, events EventLister, creator LeadCreator, webinarStore LessonOrderer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{leads: leadReader, progress: progress, events: events, creator: creator, webinars: webinarStore, logger: logger}
}

// LeadInsight returns a lead of webinarID with its progress and latest events.
func (s *Service) LeadInsight(ctx context.Context, webinarID, leadID uuid.UUID) (*Insight, error) {
	lead, err := s.leads.GetByID(ctx, leadID)
	if errors.Is(err, leads.ErrLeadNotFound) || (err == nil && lead.WebinarID != webinarID) {
		return nil, apperr.NotFound("lead not found", err)
	}
	if err != nil {
		return nil, apperr.Internal("load lead", err)
	}
	progress, err := s.progress.ListByLead(ctx, leadID)
	if err != nil {
		s.logger.Error("admin list progress", zap.String("lead_id", leadID.String()), zap.Error(err))
		return nil, apperr.Internal("load progress", err)
	}
	history, err := s.events.ListByLead(ctx, leadID, RecentEventLimit)
	if err != nil {
		s.logger.Error("admin list events", zap.String("lead_id", leadID.String()), zap.Error(err))
		return nil, apperr.Internal("load events", err)
	}
	if progress == nil {
		progress = []models.LeadProgress{}
	}
	if history == nil {
		history = []models.LeadEvent{}
	}
	return &Insight{Lead: lead, AccessToken: lead.AccessToken, Progress: progress, Events: history}, nil
}

// ListLeads returns a page of a webinar's leads.
func (s *Service) ListLeads(ctx context.Context, webinarID uuid.UUID, limit, offset int) ([]models.Lead, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	list, err := s.leads.ListByWebinar(ctx, webinarID, limit, offset)
	if err != nil {
		return nil, apperr.Internal("list leads", err)
	}
	if list == nil {
		list = []models.Lead{}
	}
	return list, nil
}

// CreateLead registers a lead by hand. Duplicates are a Conflict.
func (s *Service) CreateLead(ctx context.Context, webinarID uuid.UUID, in leads.RegisterInput) (*models.Lead, error) {
	in.Webinar = leads.WebinarRef{ID: webinarID.String()}
	return s.creator.CreateManual(ctx, in)
}

// ReorderLessons renumbers the webinar's lessons densely in the given order.
func (s *Service) ReorderLessons(ctx context.Context, webinarID uuid.UUID, orderedIDs []uuid.UUID) error {
	if len(orderedIDs) == 0 {
		return apperr.Validation("lesson_ids is required")
	}
	if _, err := s.webinars.GetByID(ctx, webinarID); err != nil {
		if errors.Is(err, webinars.ErrWebinarNotFound) {
			return apperr.NotFound("webinar not found", err)
		}
		return apperr.Internal("load webinar", err)
	}
	err := s.webinars.ReorderLessons(ctx, webinarID, orderedIDs)
	if errors.Is(err, webinars.ErrReorderMismatch) {
		return apperr.Validation("lesson_ids must list every lesson of the webinar exactly once")
	}
	if err != nil {
		s.logger.Error("reorder lessons", zap.String("webinar_id", webinarID.String()), zap.Error(err))
		return apperr.Internal("reorder lessons", err)
	}
	return nil
}
