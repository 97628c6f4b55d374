package telemetry

import (
	"math"
	"sync"
	"time"
)

// SimPlayer is a wall-clock driven stand-in for a browser player, used to
// rehearse a funnel end to end.
type SimPlayer struct {
	mu       sync.Mutex
	duration float64
	rate     float64
	now      func() time.Time
	playing  bool
	base     float64
	since    time.Time
}

// NewSimPlayer creates a paused player for a video of duration seconds that
// advances rate video seconds per wall second.
func NewSimPlayer(duration, rate float64) *SimPlayer {
	if rate <= 0 {
		rate = 1
	}
	return &SimPlayer{duration: duration, rate: rate, now: time.Now}
}

// Play starts or resumes playback.
func (p *SimPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	p.playing = true
	p.since = p.now()
}

// Pause stops playback at the current position.
func (p *SimPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.positionLocked()
	p.playing = false
}

// Seek jumps to t seconds, clamped to the video.
func (p *SimPlayer) Seek(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = math.Max(0, math.Min(t, p.duration))
	p.since = p.now()
}

// CurrentTime is the playback position in seconds.
func (p *SimPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

// Duration is the video length in seconds.
func (p *SimPlayer) Duration() float64 { return p.duration }

// Playing reports whether playback is advancing.
func (p *SimPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing && p.positionLocked() < p.duration
}

// Ended reports whether playback reached the end.
func (p *SimPlayer) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration > 0 && p.positionLocked() >= p.duration
}

func (p *SimPlayer) positionLocked() float64 {
	if !p.playing {
		return p.base
	}
	pos := p.base + p.now().Sub(p.since).Seconds()*p.rate
	return math.Min(pos, p.duration)
}
