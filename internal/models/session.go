package models

import (
	"time"

	"github.com/google/uuid"
)

// LeadSession binds an opaque browser key to a lead inside one webinar.
type LeadSession struct {
	ID         uuid.UUID `json:"id"`
	BrowserKey string    `json:"-"`
	WebinarID  uuid.UUID `json:"webinar_id"`
	LeadID     uuid.UUID `json:"lead_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Expired reports whether the binding is no longer valid at now.
func (s *LeadSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
