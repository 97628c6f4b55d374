package models

import (
	"time"

	"github.com/google/uuid"
)

// WebinarStatus is the publication status of a webinar.
type WebinarStatus string

const (
	WebinarDraft     WebinarStatus = "DRAFT"
	WebinarPublished WebinarStatus = "PUBLISHED"
	WebinarArchived  WebinarStatus = "ARCHIVED"
)

// Webinar is a funnel owning an ordered set of lessons. Read-only to the engagement engine.
type Webinar struct {
	ID              uuid.UUID     `json:"id"`
	Slug            string        `json:"slug"`
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	Status          WebinarStatus `json:"status"`
	LogoURL         string        `json:"logo_url,omitempty"`
	BannerURL       string        `json:"banner_url,omitempty"`
	PrimaryColor    string        `json:"primary_color,omitempty"`
	EventWebhookURL string        `json:"-"` // outbound engagement notifications; empty disables
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// IsPublished reports whether the webinar is visible on the watch pages.
func (w *Webinar) IsPublished() bool {
	return w.Status == WebinarPublished
}
