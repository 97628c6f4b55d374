package models

import (
	"time"

	"github.com/google/uuid"
)

// UTM holds campaign attribution captured when a lead enters the funnel.
type UTM struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
}

// Lead is a visitor identity scoped to one webinar.
type Lead struct {
	ID                 uuid.UUID  `json:"id"`
	WebinarID          uuid.UUID  `json:"webinar_id"`
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	Phone              string     `json:"phone,omitempty"`
	AccessToken        string     `json:"-"`
	FirstAccessAt      *time.Time `json:"first_access_at,omitempty"`
	LastAccessAt       *time.Time `json:"last_access_at,omitempty"`
	TotalWatchTime     int        `json:"total_watch_time"`
	UTM                UTM        `json:"utm"`
	ExternalCampaignID string     `json:"external_campaign_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// LeadSummary is the public view of a lead returned to the watch pages.
type LeadSummary struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone,omitempty"`
	FirstAccessAt *time.Time `json:"first_access_at,omitempty"`
}

// Summary converts Lead to LeadSummary.
func (l *Lead) Summary() LeadSummary {
	return LeadSummary{
		ID:            l.ID,
		Email:         l.Email,
		Name:          l.Name,
		Phone:         l.Phone,
		FirstAccessAt: l.FirstAccessAt,
	}
}
