// Package host runs a lockstep engine on one goroutine in real time.
//
// Loop is both the engine's FrameSource and its command queue: frame
// callbacks fire on a refresh ticker, and commands submitted from other
// goroutines with Do or Call run between frames on the same goroutine.
// The engine itself never needs a lock.
package host

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultRefreshHz approximates a display refresh rate.
const DefaultRefreshHz = 60

// ErrClosed is returned when a command is submitted after the loop stopped.
var ErrClosed = errors.New("host loop closed")

// FrameHook observes each delivered frame: how many callbacks ran and how
// late the frame was relative to its ticker beat.
type FrameHook func(callbacks int, lag time.Duration)

// Loop is a real-time frame source and command serializer.
type Loop struct {
	queue    *commandQueue
	interval time.Duration
	logger   *slog.Logger
	onFrame  FrameHook
	start    time.Time

	mu      sync.Mutex
	nextID  int
	pending map[int]func(time.Duration)
	order   []int
}

// Option configures a Loop.
type Option func(*Loop)

// WithRefreshHz sets the frame rate. Non-positive values are ignored.
func WithRefreshHz(hz float64) Option {
	return func(l *Loop) {
		if hz > 0 {
			l.interval = time.Duration(float64(time.Second) / hz)
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithFrameHook installs a per-frame observer (metrics).
func WithFrameHook(fn FrameHook) Option {
	return func(l *Loop) {
		l.onFrame = fn
	}
}

// NewLoop creates a stopped loop. Call Run to start it.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		queue:    newCommandQueue(),
		interval: time.Second / DefaultRefreshHz,
		pending:  make(map[int]func(time.Duration)),
		start:    time.Now(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// RequestFrame schedules fn for the next ticker beat.
// Implements timeline.FrameSource.
func (l *Loop) RequestFrame(fn func(now time.Duration)) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.pending[id] = fn
	l.order = append(l.order, id)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.pending, id)
	}
}

// Pending returns the number of frame callbacks waiting.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Now returns the loop's monotonic time, the same base frame callbacks
// receive.
func (l *Loop) Now() time.Duration {
	return time.Since(l.start)
}

// Do queues fn to run on the loop goroutine. Returns false after Stop.
func (l *Loop) Do(fn func()) bool {
	return l.queue.Enqueue(fn)
}

// Call runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.queue.Enqueue(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers frames and commands until ctx is cancelled or Stop is
// called. Returns ctx.Err() on cancellation, nil on Stop.
//
// CRITICAL: Run must be called from exactly one goroutine; everything the
// loop executes runs there.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("host loop starting", "interval", l.interval)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if fn, ok := l.queue.TryDequeue(); ok {
			fn()
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Info("host loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case beat := <-ticker.C:
			l.deliver(beat)

		case <-l.queue.Wait():
			// The signal channel closes with the queue
			if l.queue.Len() == 0 && l.closed() {
				l.logger.Info("host loop stopping: closed")
				return nil
			}
		}
	}
}

// Stop closes the command queue; Run drains it and returns.
func (l *Loop) Stop() {
	l.queue.Close()
}

func (l *Loop) closed() bool {
	l.queue.mu.Lock()
	defer l.queue.mu.Unlock()
	return l.queue.closed
}

// deliver runs the callbacks pending at the start of this frame.
// Callbacks requested during delivery wait for the next beat; a callback
// cancelled by an earlier one in the same frame does not run.
func (l *Loop) deliver(beat time.Time) {
	l.mu.Lock()
	due := l.order
	l.order = nil
	l.mu.Unlock()

	now := l.Now()
	ran := 0
	for _, id := range due {
		l.mu.Lock()
		fn, ok := l.pending[id]
		delete(l.pending, id)
		l.mu.Unlock()
		if !ok {
			continue
		}
		fn(now)
		ran++
	}
	if l.onFrame != nil {
		l.onFrame(ran, time.Since(beat))
	}
}
