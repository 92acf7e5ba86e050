package testutil

import (
	"sync"
	"time"
)

// ManualFrames is a deterministic frame source for tests.
//
// Frame callbacks run only when the test calls Advance, each receiving the
// accumulated timestamp. Callbacks requested while a frame is being
// delivered wait for the next Advance, like a display refresh would.
//
// Implements timeline.FrameSource.
type ManualFrames struct {
	mu      sync.Mutex
	now     time.Duration
	nextID  int
	pending map[int]func(time.Duration)
	order   []int
}

// NewManualFrames creates a frame source at timestamp 0.
func NewManualFrames() *ManualFrames {
	return &ManualFrames{pending: make(map[int]func(time.Duration))}
}

// RequestFrame queues fn for the next Advance.
func (m *ManualFrames) RequestFrame(fn func(now time.Duration)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.pending[id] = fn
	m.order = append(m.order, id)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.pending, id)
	}
}

// Advance moves the timestamp forward by d and delivers one frame.
// A callback cancelled by an earlier one in the same frame does not run.
// Returns the number of callbacks that ran.
func (m *ManualFrames) Advance(d time.Duration) int {
	m.mu.Lock()
	m.now += d
	now := m.now
	due := m.order
	m.order = nil
	m.mu.Unlock()

	ran := 0
	for _, id := range due {
		m.mu.Lock()
		fn, ok := m.pending[id]
		delete(m.pending, id)
		m.mu.Unlock()
		if !ok {
			continue
		}
		fn(now)
		ran++
	}
	return ran
}

// AdvanceFrames delivers n frames of d each.
func (m *ManualFrames) AdvanceFrames(n int, d time.Duration) {
	for i := 0; i < n; i++ {
		m.Advance(d)
	}
}

// Pending returns the number of frame callbacks waiting to run.
func (m *ManualFrames) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Now returns the current timestamp.
func (m *ManualFrames) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}
