// Package telemetry is the player-side half of engagement tracking. A
// ViewSession lives for one lesson view and decides which events to emit;
// a Tracker samples a Player and pushes what the session produces to a Sink.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// EventType names a discrete event sent to the ledger.
type EventType string

const (
	EventPlay         EventType = "VIDEO_PLAY"
	EventPause        EventType = "VIDEO_PAUSE"
	EventProgress25   EventType = "VIDEO_PROGRESS_25"
	EventProgress50   EventType = "VIDEO_PROGRESS_50"
	EventProgress75   EventType = "VIDEO_PROGRESS_75"
	EventCompleted    EventType = "VIDEO_COMPLETED"
	EventOfferShown   EventType = "OFFER_SHOWN"
	EventOfferClicked EventType = "OFFER_CLICKED"
)

// ErrOfferHidden is returned when the offer is clicked before it was revealed.
var ErrOfferHidden = errors.New("offer not revealed")

// Milestones are the percent thresholds reported once per view.
var Milestones = []int{25, 50, 75, 100}

func milestoneEvent(m int) EventType {
	switch m {
	case 25:
		return EventProgress25
	case 50:
		return EventProgress50
	case 75:
		return EventProgress75
	default:
		return EventCompleted
	}
}

// State is the playback state of a view.
type State int

const (
	Idle State = iota
	Playing
	Paused
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Lesson is what a view needs to know about the lesson being watched.
type Lesson struct {
	WebinarID   string
	LessonID    string
	HasOffer    bool
	OfferShowAt *int // seconds; nil reveals the offer as soon as playback starts
}

// Event is one discrete event to record.
type Event struct {
	Type      EventType
	VideoTime float64
	Data      map[string]any
}

// Snapshot is one progress sample.
type Snapshot struct {
	WatchedSeconds float64
	PercentWatched float64
}

// ViewSession tracks one lesson view. Milestones and the offer reveal fire
// at most once per session no matter how playback seeks.
type ViewSession struct {
	mu            sync.Mutex
	lesson        Lesson
	state         State
	fired         map[int]bool
	offerRevealed bool
	clicks        int
}

// NewViewSession starts an idle view of lesson.
func NewViewSession(lesson Lesson) *ViewSession {
	return &ViewSession{lesson: lesson, fired: make(map[int]bool, len(Milestones))}
}

// Lesson returns the lesson being viewed.
func (v *ViewSession) Lesson() Lesson { return v.lesson }

// State returns the current playback state.
func (v *ViewSession) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// OfferRevealed reports whether the offer panel has been shown in this view.
func (v *ViewSession) OfferRevealed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offerRevealed
}

// Fired reports whether milestone m has been emitted.
func (v *ViewSession) Fired(m int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fired[m]
}

// Play moves to Playing. Replaying after the end starts playback again but
// keeps the fired milestones.
func (v *ViewSession) Play(at float64) []Event {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == Playing {
		return nil
	}
	v.state = Playing
	out := []Event{{Type: EventPlay, VideoTime: at}}
	if v.lesson.HasOffer && v.lesson.OfferShowAt == nil {
		out = append(out, v.revealLocked(at)...)
	}
	return out
}

// Pause moves Playing to Paused.
func (v *ViewSession) Pause(at float64) []Event {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != Playing {
		return nil
	}
	v.state = Paused
	return []Event{{Type: EventPause, VideoTime: at}}
}

// Sample records the playback position while Playing. It returns the
// progress snapshot to submit and any newly crossed milestones or offer
// reveal. ok is false when the session is not playing or duration is unknown.
func (v *ViewSession) Sample(currentTime, duration float64) (snap Snapshot, events []Event, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != Playing || !(duration > 0) || math.IsNaN(currentTime) || currentTime < 0 {
		return Snapshot{}, nil, false
	}
	percent := math.Min(100, currentTime/duration*100)
	events = append(events, v.crossLocked(percent, currentTime)...)
	if v.lesson.HasOffer && v.lesson.OfferShowAt != nil && currentTime >= float64(*v.lesson.OfferShowAt) {
		events = append(events, v.revealLocked(currentTime)...)
	}
	return Snapshot{WatchedSeconds: math.Floor(currentTime), PercentWatched: percent}, events, true
}

// End moves to Ended and fires any milestone left, including completion.
func (v *ViewSession) End(at float64) (Snapshot, []Event) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == Ended {
		return Snapshot{}, nil
	}
	v.state = Ended
	events := v.crossLocked(100, at)
	return Snapshot{WatchedSeconds: math.Floor(at), PercentWatched: 100}, events
}

// ClickOffer records a click on the revealed offer. Every click counts.
func (v *ViewSession) ClickOffer(at float64) (Event, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.offerRevealed {
		return Event{}, ErrOfferHidden
	}
	v.clicks++
	return Event{Type: EventOfferClicked, VideoTime: at, Data: map[string]any{"click": v.clicks}}, nil
}

func (v *ViewSession) crossLocked(percent, at float64) []Event {
	var out []Event
	for _, m := range Milestones {
		if percent >= float64(m) && !v.fired[m] {
			v.fired[m] = true
			out = append(out, Event{Type: milestoneEvent(m), VideoTime: at})
		}
	}
	return out
}

func (v *ViewSession) revealLocked(at float64) []Event {
	if v.offerRevealed {
		return nil
	}
	v.offerRevealed = true
	return []Event{{Type: EventOfferShown, VideoTime: at}}
}
