// Package release decides whether a lesson is playable for a lead at a given instant.
//
// The gate is pure: it reads lesson configuration and the lead's progress and
// never caches, since its answer moves with the wall clock.
package release

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/funnel/internal/models"
)

// Status is the gate outcome for one lesson.
type Status string

const (
	Locked    Status = "LOCKED"
	Available Status = "AVAILABLE"
)

// Decision is the gate outcome plus, for a locked lesson whose unlock
// instant is already known, when it opens.
type Decision struct {
	Status      Status
	AvailableAt *time.Time
}

// IsLocked reports whether the lesson cannot be played.
func (d Decision) IsLocked() bool { return d.Status != Available }

// Availability pairs an active lesson with its decision.
type Availability struct {
	Lesson   models.Lesson
	Decision Decision
}

func available() Decision { return Decision{Status: Available} }

func lockedUntil(t *time.Time) Decision { return Decision{Status: Locked, AvailableAt: t} }

// Evaluate decides one lesson. predecessor is the previous active lesson by
// position (nil for the first active lesson) and predecessorProgress is the
// lead's progress on it (nil when the lead never watched it or is anonymous).
func Evaluate(lesson models.Lesson, predecessor *models.Lesson, predecessorProgress *models.LeadProgress, now time.Time) Decision {
	if !lesson.IsActive {
		return lockedUntil(nil)
	}
	switch p := lesson.Release.(type) {
	case models.Immediate:
		return available()
	case models.Scheduled:
		if now.Before(p.ReleaseAt) {
			at := p.ReleaseAt
			return lockedUntil(&at)
		}
		return available()
	case models.Sequential:
		if predecessor == nil {
			return available()
		}
		if predecessorProgress == nil || !predecessorProgress.IsCompleted || predecessorProgress.CompletedAt == nil {
			return lockedUntil(nil)
		}
		unlock := predecessorProgress.CompletedAt.Add(time.Duration(p.ReleaseAfterHours) * time.Hour)
		if now.Before(unlock) {
			return lockedUntil(&unlock)
		}
		return available()
	default:
		return lockedUntil(nil)
	}
}

// Annotate evaluates every active lesson of a webinar, ordered by position.
// Inactive lessons are dropped. progress is keyed by lesson id and may be nil.
func Annotate(lessons []models.Lesson, progress map[uuid.UUID]*models.LeadProgress, now time.Time) []Availability {
	active := make([]models.Lesson, 0, len(lessons))
	for _, l := range lessons {
		if l.IsActive {
			active = append(active, l)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Position < active[j].Position })

	out := make([]Availability, 0, len(active))
	for i, l := range active {
		var prev *models.Lesson
		var prevProgress *models.LeadProgress
		if i > 0 {
			prev = &active[i-1]
			prevProgress = progress[prev.ID]
		}
		out = append(out, Availability{Lesson: l, Decision: Evaluate(l, prev, prevProgress, now)})
	}
	return out
}
