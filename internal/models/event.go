package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates lead engagement events.
type EventType string

const (
	EventLeadRegistered  EventType = "LEAD_REGISTERED"
	EventWebinarAccessed EventType = "WEBINAR_ACCESSED"
	EventVideoPlay       EventType = "VIDEO_PLAY"
	EventVideoPause      EventType = "VIDEO_PAUSE"
	EventVideoProgress25 EventType = "VIDEO_PROGRESS_25"
	EventVideoProgress50 EventType = "VIDEO_PROGRESS_50"
	EventVideoProgress75 EventType = "VIDEO_PROGRESS_75"
	EventVideoCompleted  EventType = "VIDEO_COMPLETED"
	EventOfferShown      EventType = "OFFER_SHOWN"
	EventOfferClicked    EventType = "OFFER_CLICKED"
)

var eventTypes = map[EventType]struct{}{
	EventLeadRegistered:  {},
	EventWebinarAccessed: {},
	EventVideoPlay:       {},
	EventVideoPause:      {},
	EventVideoProgress25: {},
	EventVideoProgress50: {},
	EventVideoProgress75: {},
	EventVideoCompleted:  {},
	EventOfferShown:      {},
	EventOfferClicked:    {},
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	_, ok := eventTypes[t]
	return ok
}

// LeadEvent is an immutable engagement ledger row.
type LeadEvent struct {
	ID        uuid.UUID       `json:"id"`
	LeadID    uuid.UUID       `json:"lead_id"`
	LessonID  *uuid.UUID      `json:"lesson_id,omitempty"`
	EventType EventType       `json:"event_type"`
	VideoTime *int            `json:"video_time,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	UserAgent string          `json:"user_agent,omitempty"`
	IPAddress string          `json:"ip_address,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
