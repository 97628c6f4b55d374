package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReleaseKind is the stored discriminant of a lesson release policy.
type ReleaseKind string

const (
	ReleaseImmediate  ReleaseKind = "immediate"
	ReleaseScheduled  ReleaseKind = "scheduled"
	ReleaseSequential ReleaseKind = "sequential"
)

// ReleasePolicy decides when a lesson becomes playable. Implemented only by
// Immediate, Scheduled and Sequential.
type ReleasePolicy interface {
	Kind() ReleaseKind
	isReleasePolicy()
}

// Immediate lessons are available whenever they are active.
type Immediate struct{}

// Scheduled lessons open at a fixed instant.
type Scheduled struct {
	ReleaseAt time.Time
}

// Sequential lessons open a number of hours after the previous active lesson was completed.
type Sequential struct {
	ReleaseAfterHours int
}

func (Immediate) Kind() ReleaseKind  { return ReleaseImmediate }
func (Scheduled) Kind() ReleaseKind  { return ReleaseScheduled }
func (Sequential) Kind() ReleaseKind { return ReleaseSequential }

func (Immediate) isReleasePolicy()  {}
func (Scheduled) isReleasePolicy()  {}
func (Sequential) isReleasePolicy() {}

// NewReleasePolicy builds a policy from its stored columns, rejecting field combinations
// that do not belong to the discriminant.
func NewReleasePolicy(kind string, releaseAt *time.Time, releaseAfterHours *int) (ReleasePolicy, error) {
	switch ReleaseKind(kind) {
	case ReleaseImmediate, "":
		if releaseAt != nil || releaseAfterHours != nil {
			return nil, fmt.Errorf("immediate release carries scheduling fields")
		}
		return Immediate{}, nil
	case ReleaseScheduled:
		if releaseAt == nil {
			return nil, fmt.Errorf("scheduled release without release_at")
		}
		if releaseAfterHours != nil {
			return nil, fmt.Errorf("scheduled release carries release_after_hours")
		}
		return Scheduled{ReleaseAt: *releaseAt}, nil
	case ReleaseSequential:
		if releaseAfterHours == nil || *releaseAfterHours < 0 {
			return nil, fmt.Errorf("sequential release needs a non-negative release_after_hours")
		}
		if releaseAt != nil {
			return nil, fmt.Errorf("sequential release carries release_at")
		}
		return Sequential{ReleaseAfterHours: *releaseAfterHours}, nil
	default:
		return nil, fmt.Errorf("unknown release type %q", kind)
	}
}

// Offer is the optional in-video call to action of a lesson.
type Offer struct {
	URL        string `json:"url"`
	ButtonText string `json:"button_text,omitempty"`
	ShowAt     *int   `json:"show_at,omitempty"` // seconds into playback; nil shows the offer from the start
}

// Lesson is an ordered, gated unit of video content. Read-only to the engagement engine.
type Lesson struct {
	ID            uuid.UUID     `json:"id"`
	WebinarID     uuid.UUID     `json:"webinar_id"`
	Slug          string        `json:"slug"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	VideoURL      string        `json:"video_url"`
	VideoDuration *int          `json:"video_duration,omitempty"`
	ThumbnailURL  string        `json:"thumbnail_url,omitempty"`
	Position      int           `json:"order"`
	IsActive      bool          `json:"is_active"`
	Release       ReleasePolicy `json:"-"`
	Offer         *Offer        `json:"offer,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
