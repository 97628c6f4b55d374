package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	events   []Event
	progress []Snapshot
	fail     bool
}

func (s *recordingSink) Progress(_ context.Context, _ Lesson, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, snap)
	if s.fail {
		return errors.New("network down")
	}
	return nil
}

func (s *recordingSink) Event(_ context.Context, _ Lesson, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	if s.fail {
		return errors.New("network down")
	}
	return nil
}

func (s *recordingSink) count(t EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type stubPlayer struct {
	at       float64
	duration float64
	playing  bool
}

func (p *stubPlayer) CurrentTime() float64 { return p.at }
func (p *stubPlayer) Duration() float64    { return p.duration }
func (p *stubPlayer) Playing() bool        { return p.playing && p.at < p.duration }
func (p *stubPlayer) Ended() bool          { return p.at >= p.duration }

func intPtr(v int) *int { return &v }

func TestMilestonesFireOnceAcrossSeeks(t *testing.T) {
	v := NewViewSession(Lesson{LessonID: "l1"})
	v.Play(0)

	var got []EventType
	for _, at := range []float64{10, 30, 10, 55, 20, 55, 80} {
		_, events, ok := v.Sample(at, 100)
		require.True(t, ok)
		for _, e := range events {
			got = append(got, e.Type)
		}
	}
	assert.Equal(t, []EventType{EventProgress25, EventProgress50, EventProgress75}, got)
	assert.False(t, v.Fired(100))

	_, events := v.End(100)
	require.Len(t, events, 1)
	assert.Equal(t, EventCompleted, events[0].Type)
	assert.Equal(t, Ended, v.State())

	// Replay keeps what already fired.
	v.Play(0)
	_, events, _ = v.Sample(99, 100)
	assert.Empty(t, events)
}

func TestSampleIgnoredUnlessPlaying(t *testing.T) {
	v := NewViewSession(Lesson{})
	_, _, ok := v.Sample(50, 100)
	assert.False(t, ok)

	v.Play(0)
	v.Pause(5)
	_, _, ok = v.Sample(50, 100)
	assert.False(t, ok)

	v.Play(5)
	_, _, ok = v.Sample(50, 0)
	assert.False(t, ok, "unknown duration")

	snap, _, ok := v.Sample(50.7, 101.4)
	require.True(t, ok)
	assert.Equal(t, 50.0, snap.WatchedSeconds)
	assert.InDelta(t, 50.0, snap.PercentWatched, 0.001)
}

func TestPlayPauseAreEdgeTriggered(t *testing.T) {
	v := NewViewSession(Lesson{})
	assert.Len(t, v.Play(0), 1)
	assert.Empty(t, v.Play(1))
	assert.Len(t, v.Pause(2), 1)
	assert.Empty(t, v.Pause(3))
	assert.Equal(t, Paused, v.State())
	assert.Equal(t, "paused", v.State().String())
}

func TestOfferRevealsOnceAtShowAt(t *testing.T) {
	v := NewViewSession(Lesson{HasOffer: true, OfferShowAt: intPtr(60)})
	events := v.Play(0)
	require.Len(t, events, 1)

	_, err := v.ClickOffer(10)
	assert.ErrorIs(t, err, ErrOfferHidden)

	_, events, _ = v.Sample(59, 120)
	assert.False(t, v.OfferRevealed())
	assert.Len(t, events, 1) // 25%

	_, events, _ = v.Sample(61, 120)
	assert.True(t, v.OfferRevealed())
	assert.Contains(t, types(events), EventOfferShown)

	_, events, _ = v.Sample(30, 120)
	_, events2, _ := v.Sample(65, 120)
	assert.NotContains(t, types(append(events, events2...)), EventOfferShown)

	for i := 1; i <= 3; i++ {
		e, err := v.ClickOffer(70)
		require.NoError(t, err)
		assert.Equal(t, EventOfferClicked, e.Type)
		assert.Equal(t, i, e.Data["click"])
	}
}

func TestOfferWithoutShowAtRevealsOnPlay(t *testing.T) {
	v := NewViewSession(Lesson{HasOffer: true})
	assert.Equal(t, []EventType{EventPlay, EventOfferShown}, types(v.Play(0)))
	v.Pause(1)
	assert.Equal(t, []EventType{EventPlay}, types(v.Play(1)))
}

func TestTrackerSurvivesSinkFailures(t *testing.T) {
	sink := &recordingSink{fail: true}
	tr := NewTracker(NewViewSession(Lesson{LessonID: "l1"}), sink, nil)
	p := &stubPlayer{duration: 40, playing: true}

	for _, at := range []float64{0, 10, 20, 30} {
		p.at = at
		assert.False(t, tr.Step(context.Background(), p))
	}
	p.at = 40
	assert.True(t, tr.Step(context.Background(), p))

	assert.Equal(t, 1, sink.count(EventPlay))
	assert.Equal(t, 1, sink.count(EventProgress25))
	assert.Equal(t, 1, sink.count(EventProgress75))
	assert.Equal(t, 1, sink.count(EventCompleted))
	require.NotEmpty(t, sink.progress)
	assert.Equal(t, 100.0, sink.progress[len(sink.progress)-1].PercentWatched)
}

func TestTrackerPauseAndClick(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTracker(NewViewSession(Lesson{HasOffer: true}), sink, nil)
	p := &stubPlayer{duration: 100, playing: true}
	ctx := context.Background()

	tr.Step(ctx, p)
	p.playing = false
	p.at = 12
	tr.Step(ctx, p)
	tr.Step(ctx, p)

	require.NoError(t, tr.Click(ctx, p))
	require.NoError(t, tr.Click(ctx, p))
	assert.Equal(t, 1, sink.count(EventPause))
	assert.Equal(t, 1, sink.count(EventOfferShown))
	assert.Equal(t, 2, sink.count(EventOfferClicked))
}

func TestTrackerRunStopsAtEnd(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTracker(NewViewSession(Lesson{}), sink, nil)
	p := &stubPlayer{at: 50, duration: 50}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.Run(ctx, p, time.Millisecond))
	assert.Equal(t, Ended, tr.View().State())
	assert.Equal(t, 1, sink.count(EventCompleted))
}

func TestSimPlayerClock(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewSimPlayer(60, 2)
	p.now = func() time.Time { return now }

	assert.False(t, p.Playing())
	p.Play()
	now = now.Add(10 * time.Second)
	assert.Equal(t, 20.0, p.CurrentTime())

	p.Pause()
	now = now.Add(time.Minute)
	assert.Equal(t, 20.0, p.CurrentTime())

	p.Seek(55)
	p.Play()
	now = now.Add(10 * time.Second)
	assert.Equal(t, 60.0, p.CurrentTime())
	assert.True(t, p.Ended())
	assert.False(t, p.Playing())
}

func TestHTTPSinkCarriesSessionCookie(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		body  map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/lead/auth":
			http.SetCookie(w, &http.Cookie{Name: "lead_sid", Value: "k1", Path: "/"})
			_, _ = w.Write([]byte(`{"success":true}`))
		case "/api/lead/event":
			if ck, err := r.Cookie("lead_sid"); err != nil || ck.Value != "k1" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"success":false,"error":"no session"}`))
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"error":"missing"}`))
		}
	}))
	defer srv.Close()

	sink, err := NewHTTPSink(srv.URL+"/", time.Second)
	require.NoError(t, err)
	ctx := context.Background()
	lesson := Lesson{WebinarID: "w1", LessonID: "l1"}

	err = sink.Event(ctx, lesson, Event{Type: EventPlay})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "no session", apiErr.Message)

	require.NoError(t, sink.Authenticate(ctx, "launch", "ana@example.com", ""))
	require.NoError(t, sink.Event(ctx, lesson, Event{Type: EventPlay, VideoTime: 3}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "w1", body["webinar_id"])
	assert.Equal(t, "VIDEO_PLAY", body["event_type"])
	assert.Equal(t, []string{"/api/lead/event", "/api/lead/auth", "/api/lead/event"}, paths)
}

func types(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}
