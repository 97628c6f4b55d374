package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Player is the video player being observed.
type Player interface {
	CurrentTime() float64
	Duration() float64
	Playing() bool
	Ended() bool
}

// Tracker drives a ViewSession from a Player and forwards its output to a
// Sink. Sink failures are logged and never interrupt playback tracking.
type Tracker struct {
	view   *ViewSession
	sink   Sink
	logger *zap.Logger
}

// NewTracker creates a tracker for one view.
func NewTracker(view *ViewSession, sink Sink, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{view: view, sink: sink, logger: logger}
}

// View returns the tracked view session.
func (t *Tracker) View() *ViewSession { return t.view }

// Run samples player every interval until the video ends or ctx is done.
func (t *Tracker) Run(ctx context.Context, player Player, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if t.Step(ctx, player) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Step observes player once. It returns true when the view has ended.
func (t *Tracker) Step(ctx context.Context, player Player) bool {
	now := player.CurrentTime()
	switch {
	case player.Ended():
		if t.view.State() == Idle {
			t.emit(ctx, t.view.Play(now))
		}
		snap, events := t.view.End(now)
		t.emit(ctx, events)
		if snap.PercentWatched > 0 {
			t.report(ctx, snap)
		}
		return true
	case player.Playing():
		t.emit(ctx, t.view.Play(now))
		if snap, events, ok := t.view.Sample(now, player.Duration()); ok {
			t.report(ctx, snap)
			t.emit(ctx, events)
		}
	default:
		t.emit(ctx, t.view.Pause(now))
	}
	return false
}

// Click records an offer click at the player's position.
func (t *Tracker) Click(ctx context.Context, player Player) error {
	e, err := t.view.ClickOffer(player.CurrentTime())
	if err != nil {
		return err
	}
	t.emit(ctx, []Event{e})
	return nil
}

func (t *Tracker) report(ctx context.Context, snap Snapshot) {
	if err := t.sink.Progress(ctx, t.view.Lesson(), snap); err != nil {
		t.logger.Warn("progress not delivered",
			zap.String("lesson_id", t.view.Lesson().LessonID),
			zap.Float64("percent", snap.PercentWatched),
			zap.Error(err))
	}
}

func (t *Tracker) emit(ctx context.Context, events []Event) {
	for _, e := range events {
		if err := t.sink.Event(ctx, t.view.Lesson(), e); err != nil {
			t.logger.Warn("event not delivered",
				zap.String("lesson_id", t.view.Lesson().LessonID),
				zap.String("event_type", string(e.Type)),
				zap.Error(err))
		}
	}
}
