package timeline

import (
	"log/slog"
	"math"
	"time"
)

// FrameSource delivers one callback per rendering frame.
//
// RequestFrame schedules fn for the next frame and returns a cancel func
// that must remove it. now is a monotonic frame timestamp; only differences
// between timestamps are meaningful. Implemented by host.Loop (production)
// and testutil.ManualFrames (tests).
type FrameSource interface {
	RequestFrame(fn func(now time.Duration)) (cancel func())
}

// ClockState is a snapshot of the scheduler state.
type ClockState struct {
	Position         float64
	TotalRange       float64
	Playing          bool
	Rate             float64
	Loop             bool
	Mode             Mode
	KeyframesEnabled bool
}

// Engine is the synchronization engine for one comparison session.
//
// CRITICAL: Engine is not safe for concurrent use. All calls, including
// frame callbacks, must happen on one goroutine (see host.Loop).
//
// INVARIANTS:
//   - At most one frame request is pending, and only while Playing
//   - Exactly one notification per logical event, stamped from seq
//   - Keyframes change only through the documented operations
type Engine struct {
	frames FrameSource
	logger *slog.Logger
	seq    *Clock
	bus    *Bus
	store  *keyframeStore
	warp   warpCache

	fps  float64
	span float64

	position         float64
	totalRange       float64
	playing          bool
	rate             float64
	loop             bool
	mode             Mode
	keyframesEnabled bool

	cancelFrame func()
	lastFrame   time.Duration
	haveFrame   bool
	closed      bool
}

type config struct {
	fps              float64
	span             float64
	labels           []string
	ids              IDGenerator
	logger           *slog.Logger
	clock            *Clock
	mode             Mode
	keyframesEnabled bool
}

// Option configures an Engine.
type Option func(*config)

// WithMasterFPS sets the frame rate used to convert seconds into steps.
// Non-positive values are ignored.
func WithMasterFPS(fps float64) Option {
	return func(c *config) {
		if fps > 0 && !math.IsInf(fps, 0) {
			c.fps = fps
		}
	}
}

// WithVirtualSpan sets the virtual axis length used in Synced mode.
// Non-positive values are ignored.
func WithVirtualSpan(span float64) Option {
	return func(c *config) {
		if span > 0 && !math.IsInf(span, 0) {
			c.span = span
		}
	}
}

// WithLabelOrder replaces the canonical event label order.
// Start and End are always kept as first and last.
func WithLabelOrder(labels ...string) Option {
	return func(c *config) {
		c.labels = labels
	}
}

// WithIDGenerator sets the keyframe ID generator.
// Default: UUIDv7Generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(c *config) {
		c.ids = ids
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithClock sets the logical sequence clock stamped on notifications.
func WithClock(clock *Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithMode sets the initial addressing mode. Default: Unsynced.
func WithMode(m Mode) Option {
	return func(c *config) {
		c.mode = m
	}
}

// WithKeyframesEnabled sets the initial warp flag. Default: true.
func WithKeyframesEnabled(enabled bool) Option {
	return func(c *config) {
		c.keyframesEnabled = enabled
	}
}

// New creates a stopped engine at position 0.
//
// Panics if frames is nil: an engine that can never tick is a wiring bug.
func New(frames FrameSource, opts ...Option) *Engine {
	if frames == nil {
		panic("timeline.New: nil FrameSource")
	}

	cfg := config{
		fps:              DefaultMasterFPS,
		span:             DefaultVirtualSpan,
		labels:           DefaultLabelOrder,
		ids:              UUIDv7Generator{},
		mode:             Unsynced,
		keyframesEnabled: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.clock == nil {
		cfg.clock = NewClock()
	}

	e := &Engine{
		frames:           frames,
		logger:           cfg.logger,
		seq:              cfg.clock,
		bus:              NewBus(),
		store:            newKeyframeStore(newLabelOrder(cfg.labels), cfg.ids, cfg.fps),
		fps:              cfg.fps,
		span:             cfg.span,
		rate:             1,
		mode:             cfg.mode,
		keyframesEnabled: cfg.keyframesEnabled,
	}
	e.recomputeRange()
	return e
}

// Subscribe adds a listener and immediately calls it once with the current
// position (plain tick, not stamped with a new sequence number) so late
// subscribers synchronize without waiting for the next event.
func (e *Engine) Subscribe(fn Listener) (unsubscribe func()) {
	unsubscribe = e.bus.Subscribe(fn)
	fn(Notification{Seq: e.seq.Current(), Position: e.position})
	return unsubscribe
}

func (e *Engine) emit(action Action, meta any) {
	e.bus.Publish(Notification{
		Seq:      e.seq.Next(),
		Position: e.position,
		Action:   action,
		Meta:     meta,
	})
}

// --- Stream registration and keyframes ---

// RegisterStreamDuration records a stream's native duration. Re-registration
// with a new duration re-runs the anchor and trim window updates.
func (e *Engine) RegisterStreamDuration(s StreamID, seconds float64) {
	if !s.valid() || !e.store.register(s, seconds) {
		e.logger.Debug("duration ignored", "stream", s, "seconds", seconds)
		return
	}
	e.recomputeRange()
	e.position = clamp(e.position, 0, e.totalRange)
	e.logger.Debug("duration registered",
		"stream", s,
		"seconds", seconds,
		"steps", e.store.track(s).steps,
	)
	e.emit(ActionUpdate, UpdateMeta{Reason: ReasonDuration})
}

// AddEvent adds label to both streams. Duplicates, anchors and labels
// outside the canonical order are silently rejected.
func (e *Engine) AddEvent(label string) {
	label = NormalizeLabel(label)
	if !e.store.addEvent(label) {
		e.logger.Debug("add event rejected", "label", label)
		return
	}
	e.logger.Debug("event added", "label", label)
	e.emit(ActionUpdate, UpdateMeta{Reason: ReasonAdd})
}

// DeleteEvent removes label from both streams. Anchors cannot be deleted.
func (e *Engine) DeleteEvent(label string) {
	label = NormalizeLabel(label)
	if !e.store.deleteEvent(label) {
		e.logger.Debug("delete event rejected", "label", label)
		return
	}
	e.logger.Debug("event deleted", "label", label)
	e.emit(ActionUpdate, UpdateMeta{Reason: ReasonDelete})
}

// MoveKeyframe drags keyframe id on stream s to proposedStep, clamped
// strictly between its neighbors, and emits a preview notification.
func (e *Engine) MoveKeyframe(s StreamID, id string, proposedStep float64) {
	if !s.valid() {
		return
	}
	kf, ok := e.store.move(s, id, proposedStep)
	if !ok {
		e.logger.Debug("move keyframe ignored", "stream", s, "id", id)
		return
	}
	t := e.store.track(s)
	e.emit(ActionPreview, PreviewMeta{
		Stream:  s,
		Step:    kf.Step,
		Seconds: clamp(float64(kf.Step)/e.fps, 0, t.duration),
	})
}

// ResetAfterInteractiveDrag re-asserts the current position with a seek so
// consumers leave preview and reconcile precisely.
func (e *Engine) ResetAfterInteractiveDrag() {
	e.Seek(e.position)
}

// --- Scheduler controls ---

// Play starts the clock. A stopped clock sitting at the end of a
// non-looping range rewinds to 0 first.
func (e *Engine) Play() {
	if e.closed || e.playing {
		return
	}
	if !e.loop && e.totalRange > 0 && e.position >= e.totalRange {
		e.position = 0
	}
	e.playing = true
	e.haveFrame = false
	e.emit(ActionPlay, nil)
	if e.playing {
		e.scheduleFrame()
	}
}

// Pause stops the clock and cancels the pending frame.
func (e *Engine) Pause() {
	if !e.playing {
		return
	}
	e.playing = false
	e.cancelPending()
	e.emit(ActionPause, nil)
}

// Seek moves the clock to position, clamped to [0, TotalRange].
func (e *Engine) Seek(position float64) {
	e.position = clamp(position, 0, e.totalRange)
	e.emit(ActionSeek, nil)
}

// StepFrames moves by n frames: native steps when Unsynced, stream A's
// frame expressed in virtual units when Synced.
func (e *Engine) StepFrames(n int) {
	e.Seek(e.position + float64(n)*e.virtualPerFrame())
}

// SetPlaybackRate sets the user rate multiplier. Non-positive rates are
// ignored.
func (e *Engine) SetPlaybackRate(rate float64) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		e.logger.Debug("playback rate rejected", "rate", rate)
		return
	}
	e.rate = rate
	e.emit(ActionRate, RateMeta{Rate: rate})
}

// SetLoop toggles wrap-around at the end of the range.
func (e *Engine) SetLoop(enabled bool) {
	e.loop = enabled
	e.emit(ActionUpdate, UpdateMeta{Reason: ReasonLoop})
}

// ToggleAddressingMode flips between Unsynced and Synced and resets the
// clock to 0; positions are not carried across coordinate systems.
func (e *Engine) ToggleAddressingMode() {
	if e.mode == Unsynced {
		e.mode = Synced
	} else {
		e.mode = Unsynced
	}
	e.warp.invalidate()
	e.recomputeRange()
	e.position = 0
	e.haveFrame = false
	e.logger.Debug("addressing mode toggled", "mode", e.mode.String(), "total_range", e.totalRange)
	e.emit(ActionUpdate, UpdateMeta{Reason: ReasonMode})
	e.Seek(0)
}

// SetKeyframesEnabled switches warp mapping on or off.
func (e *Engine) SetKeyframesEnabled(enabled bool) {
	e.keyframesEnabled = enabled
	e.warp.invalidate()
	e.emit(ActionUpdate, UpdateMeta{Reason: ReasonKeyframes})
}

// Close cancels any pending frame and drops all listeners. The engine stays
// queryable but never ticks again.
func (e *Engine) Close() {
	e.cancelPending()
	e.playing = false
	e.closed = true
	e.bus.Clear()
}

// --- Tick loop ---

func (e *Engine) scheduleFrame() {
	if e.cancelFrame != nil {
		return
	}
	e.cancelFrame = e.frames.RequestFrame(e.tick)
}

func (e *Engine) cancelPending() {
	if e.cancelFrame != nil {
		e.cancelFrame()
		e.cancelFrame = nil
	}
}

// tick advances the clock by the real time elapsed since the previous
// frame. The first frame after Play measures zero elapsed time.
func (e *Engine) tick(now time.Duration) {
	e.cancelFrame = nil
	if e.closed || !e.playing {
		return
	}

	var elapsed float64
	if e.haveFrame && now > e.lastFrame {
		elapsed = (now - e.lastFrame).Seconds()
	}
	e.lastFrame = now
	e.haveFrame = true

	next := e.position + elapsed*e.stepsPerSecond()*e.rate
	switch {
	case next < e.totalRange:
		e.position = next
		e.emit(ActionTick, nil)
	case e.loop && e.totalRange > 0:
		e.position = 0
		e.emit(ActionSeek, nil)
	default:
		e.position = e.totalRange
		e.playing = false
		e.emit(ActionPause, nil)
		return
	}

	if e.playing {
		e.scheduleFrame()
	}
}

func (e *Engine) recomputeRange() {
	if e.mode == Synced {
		e.totalRange = e.span
		return
	}
	a, b := e.store.track(StreamA).steps, e.store.track(StreamB).steps
	e.totalRange = float64(max(a, b))
}

// --- Queries ---

// Position returns the virtual clock position.
func (e *Engine) Position() float64 { return e.position }

// TotalRange returns the clock span for the current mode.
func (e *Engine) TotalRange() float64 { return e.totalRange }

// Playing reports whether the clock is running.
func (e *Engine) Playing() bool { return e.playing }

// Loop reports whether looping is enabled.
func (e *Engine) Loop() bool { return e.loop }

// Mode returns the addressing mode.
func (e *Engine) Mode() Mode { return e.mode }

// KeyframesEnabled reports whether warp mapping is on.
func (e *Engine) KeyframesEnabled() bool { return e.keyframesEnabled }

// PlaybackRate returns the user rate multiplier.
func (e *Engine) PlaybackRate() float64 { return e.rate }

// MasterFPS returns the step rate of the native axes.
func (e *Engine) MasterFPS() float64 { return e.fps }

// VirtualSpan returns the Synced-mode axis length.
func (e *Engine) VirtualSpan() float64 { return e.span }

// State returns a snapshot of the clock state.
func (e *Engine) State() ClockState {
	return ClockState{
		Position:         e.position,
		TotalRange:       e.totalRange,
		Playing:          e.playing,
		Rate:             e.rate,
		Loop:             e.loop,
		Mode:             e.mode,
		KeyframesEnabled: e.keyframesEnabled,
	}
}

// Keyframes returns a read-only snapshot of the stream's markers.
func (e *Engine) Keyframes(s StreamID) []Keyframe {
	if !s.valid() {
		return nil
	}
	return e.store.snapshot(s)
}

// Keyframe looks up a marker by label.
func (e *Engine) Keyframe(s StreamID, label string) (Keyframe, bool) {
	if !s.valid() {
		return Keyframe{}, false
	}
	t := e.store.track(s)
	i := t.indexOf(NormalizeLabel(label))
	if i < 0 {
		return Keyframe{}, false
	}
	return t.keyframes[i], true
}

// Trim returns the stream's trim window.
func (e *Engine) Trim(s StreamID) TrimWindow {
	if !s.valid() {
		return TrimWindow{}
	}
	return e.store.track(s).trim
}

// NativeSteps returns the stream's length in steps (0 until registered).
func (e *Engine) NativeSteps(s StreamID) int {
	if !s.valid() {
		return 0
	}
	return e.store.track(s).steps
}

// Duration returns the registered duration in seconds.
func (e *Engine) Duration(s StreamID) float64 {
	if !s.valid() {
		return 0
	}
	return e.store.track(s).duration
}

// SyncPoints returns a copy of the current sync point list.
func (e *Engine) SyncPoints() []SyncPoint {
	points := e.syncPoints()
	out := make([]SyncPoint, len(points))
	copy(out, points)
	return out
}

// LabelOrder returns the canonical label order, anchors included.
func (e *Engine) LabelOrder() []string {
	out := make([]string, len(e.store.order.labels))
	copy(out, e.store.order.labels)
	return out
}
