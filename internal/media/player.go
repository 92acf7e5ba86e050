// Package media connects playable streams to the lockstep engine.
//
// The engine never touches media. Each stream gets one Adapter that
// subscribes to the notification bus, asks the engine where its stream
// should be and how fast it should run, and applies that to a Player.
//
// CRITICAL PATTERNS:
//
// Drift Tolerance:
// Plain ticks only reposition a player that has drifted more than the
// tolerance (default 30ms) from its mapped position. Seeks always
// reposition. Repositioning every frame would stall real decoders.
//
// Preview Hold:
// A preview notification for this adapter's stream pauses the player at
// the exact native time carried in the metadata. The adapter then ignores
// clock ticks until the next seek (ResetAfterInteractiveDrag) releases it.
package media

import "time"

// Player is a playable stream handle.
//
// Positions are in seconds of the stream's native timeline. Implementations
// clamp Seek to [0, Duration].
type Player interface {
	Duration() float64
	Position() float64
	Playing() bool
	Play()
	Pause()
	Seek(seconds float64)
	SetRate(rate float64)
}

// SimPlayer is an in-memory Player whose position advances with an
// injected clock. Used by the shell and by tests.
type SimPlayer struct {
	now      func() time.Duration
	duration float64
	base     float64
	anchor   time.Duration
	playing  bool
	rate     float64
	seeks    int
}

// NewSimPlayer creates a paused player of the given duration. now supplies
// the monotonic time used to advance playback.
func NewSimPlayer(duration float64, now func() time.Duration) *SimPlayer {
	if duration < 0 {
		duration = 0
	}
	return &SimPlayer{now: now, duration: duration, rate: 1}
}

// Duration returns the stream length in seconds.
func (p *SimPlayer) Duration() float64 { return p.duration }

// Position returns the current playback position. A playing player stops
// advancing at its duration.
func (p *SimPlayer) Position() float64 {
	if !p.playing {
		return p.base
	}
	elapsed := (p.now() - p.anchor).Seconds()
	return clampSeconds(p.base+elapsed*p.rate, p.duration)
}

// Playing reports whether the player is running.
func (p *SimPlayer) Playing() bool { return p.playing }

// Play starts playback from the current position.
func (p *SimPlayer) Play() {
	if p.playing {
		return
	}
	p.anchor = p.now()
	p.playing = true
}

// Pause freezes the current position.
func (p *SimPlayer) Pause() {
	if !p.playing {
		return
	}
	p.base = p.Position()
	p.playing = false
}

// Seek jumps to seconds, clamped to [0, Duration].
func (p *SimPlayer) Seek(seconds float64) {
	p.base = clampSeconds(seconds, p.duration)
	p.anchor = p.now()
	p.seeks++
}

// SetRate changes the playback speed without moving the position.
// Non-positive rates are ignored.
func (p *SimPlayer) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	p.base = p.Position()
	p.anchor = p.now()
	p.rate = rate
}

// Rate returns the current playback speed.
func (p *SimPlayer) Rate() float64 { return p.rate }

// Seeks returns how many times Seek was called.
func (p *SimPlayer) Seeks() int { return p.seeks }

func clampSeconds(s, duration float64) float64 {
	if s != s || s < 0 {
		return 0
	}
	if s > duration {
		return duration
	}
	return s
}
