package models

import (
	"time"

	"github.com/google/uuid"
)

// LeadProgress is the monotonically merged watch state of one lead on one lesson.
type LeadProgress struct {
	ID              uuid.UUID  `json:"id"`
	LeadID          uuid.UUID  `json:"lead_id"`
	LessonID        uuid.UUID  `json:"lesson_id"`
	WatchedSeconds  int        `json:"watched_seconds"`
	PercentWatched  float64    `json:"percent_watched"`
	IsCompleted     bool       `json:"is_completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	OfferShown      bool       `json:"offer_shown"`
	OfferShownAt    *time.Time `json:"offer_shown_at,omitempty"`
	OfferClicked    bool       `json:"offer_clicked"`
	OfferClickedAt  *time.Time `json:"offer_clicked_at,omitempty"`
	OfferClickCount int        `json:"offer_click_count"`
	LastWatchedAt   *time.Time `json:"last_watched_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
