package media

import (
	"log/slog"
	"math"

	"github.com/roach88/lockstep/internal/timeline"
)

// DefaultDriftTolerance is how far (seconds) a player may wander from its
// mapped position before a plain tick repositions it.
const DefaultDriftTolerance = 0.03

// Clock is the part of the engine an Adapter needs.
// *timeline.Engine implements it.
type Clock interface {
	Subscribe(fn timeline.Listener) (unsubscribe func())
	RegisterStreamDuration(s timeline.StreamID, seconds float64)
	PositionFor(s timeline.StreamID, virtual float64) float64
	InstantaneousRate(s timeline.StreamID) float64
	PlaybackRate() float64
	Playing() bool
}

// Adapter keeps one Player aligned with the engine.
type Adapter struct {
	clock     Clock
	stream    timeline.StreamID
	player    Player
	tolerance float64
	logger    *slog.Logger

	unsubscribe func()
	previewing  bool
	appliedRate float64
	corrections int
	onCorrect   func(stream timeline.StreamID, drift float64)
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithDriftTolerance sets the drift tolerance in seconds. Negative values
// are ignored.
func WithDriftTolerance(seconds float64) AdapterOption {
	return func(a *Adapter) {
		if seconds >= 0 {
			a.tolerance = seconds
		}
	}
}

// WithAdapterLogger sets the logger. Default: slog.Default().
func WithAdapterLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithCorrectionHook is called whenever a tick repositions a drifted
// player, with the drift that triggered it.
func WithCorrectionHook(fn func(stream timeline.StreamID, drift float64)) AdapterOption {
	return func(a *Adapter) {
		a.onCorrect = fn
	}
}

// Attach registers the player's duration with the clock (when known) and
// subscribes an adapter for stream. The adapter is synchronized
// immediately by the subscription's initial delivery.
func Attach(clock Clock, stream timeline.StreamID, player Player, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		clock:     clock,
		stream:    stream,
		player:    player,
		tolerance: DefaultDriftTolerance,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	if d := player.Duration(); d > 0 {
		clock.RegisterStreamDuration(stream, d)
	}
	a.unsubscribe = clock.Subscribe(a.handle)
	return a
}

// Detach stops following the clock. The player is left as is.
func (a *Adapter) Detach() {
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
}

// Stream returns the stream this adapter drives.
func (a *Adapter) Stream() timeline.StreamID { return a.stream }

// Previewing reports whether the adapter is holding a drag preview.
func (a *Adapter) Previewing() bool { return a.previewing }

// Corrections returns how many ticks repositioned a drifted player.
func (a *Adapter) Corrections() int { return a.corrections }

func (a *Adapter) handle(n timeline.Notification) {
	switch n.Action {
	case timeline.ActionPreview:
		meta, ok := n.Meta.(timeline.PreviewMeta)
		if !ok || meta.Stream != a.stream {
			return
		}
		a.previewing = true
		a.player.Pause()
		a.player.Seek(meta.Seconds)

	case timeline.ActionSeek:
		a.previewing = false
		a.player.Seek(a.target(n.Position))
		a.applyRate()
		a.followPlayState()

	case timeline.ActionPlay:
		a.previewing = false
		a.reconcile(n.Position)
		a.applyRate()
		a.player.Play()

	case timeline.ActionPause:
		a.player.Pause()
		if !a.previewing {
			a.reconcile(n.Position)
		}

	case timeline.ActionRate, timeline.ActionUpdate:
		if a.previewing {
			return
		}
		a.applyRate()
		a.reconcile(n.Position)

	default:
		if a.previewing {
			return
		}
		a.applyRate()
		a.reconcile(n.Position)
		a.followPlayState()
	}
}

func (a *Adapter) target(virtual float64) float64 {
	return a.clock.PositionFor(a.stream, virtual)
}

// reconcile seeks only when the player is outside the drift tolerance.
func (a *Adapter) reconcile(virtual float64) {
	want := a.target(virtual)
	drift := math.Abs(a.player.Position() - want)
	if drift <= a.tolerance {
		return
	}
	a.player.Seek(want)
	a.corrections++
	if a.onCorrect != nil {
		a.onCorrect(a.stream, drift)
	}
	a.logger.Debug("player drift corrected",
		"stream", a.stream,
		"drift", drift,
		"target", want,
	)
}

func (a *Adapter) applyRate() {
	rate := a.clock.InstantaneousRate(a.stream) * a.clock.PlaybackRate()
	rate = math.Min(math.Max(rate, timeline.MinRate), timeline.MaxRate)
	if rate == a.appliedRate {
		return
	}
	a.appliedRate = rate
	a.player.SetRate(rate)
}

// followPlayState starts or stops the player to match the clock. A player
// that reached its own end stays paused while the clock runs on.
func (a *Adapter) followPlayState() {
	switch {
	case a.clock.Playing() && !a.player.Playing():
		if a.player.Position() < a.player.Duration() {
			a.player.Play()
		}
	case !a.clock.Playing() && a.player.Playing():
		a.player.Pause()
	}
}
