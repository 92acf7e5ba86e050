package store

import (
	"context"
	"fmt"

	"github.com/roach88/lockstep/internal/timeline"
)

// Recorder buffers an engine's notifications for one session and writes
// them to the store on Flush.
//
// Record runs inside the engine's notification delivery, so it only
// appends to memory; database work happens in Flush, outside the frame.
type Recorder struct {
	store     *Store
	sessionID string
	buf       []timeline.Notification
	written   int
}

// NewRecorder creates a recorder for an existing session.
func NewRecorder(s *Store, sessionID string) *Recorder {
	return &Recorder{store: s, sessionID: sessionID}
}

// SessionID returns the session being recorded.
func (r *Recorder) SessionID() string { return r.sessionID }

// Record is a timeline.Listener. Subscribe it with
// store.NewRecorder(...).Record after the engine is built.
func (r *Recorder) Record(n timeline.Notification) {
	r.buf = append(r.buf, n)
}

// Buffered returns the number of notifications waiting for Flush.
func (r *Recorder) Buffered() int { return len(r.buf) }

// Written returns the number of notifications flushed so far.
func (r *Recorder) Written() int { return r.written }

// Flush writes buffered notifications in one transaction and clears the
// buffer on success.
func (r *Recorder) Flush(ctx context.Context) error {
	if len(r.buf) == 0 {
		return nil
	}
	if err := r.store.WriteNotifications(ctx, r.sessionID, r.buf); err != nil {
		return fmt.Errorf("flush recorder: %w", err)
	}
	r.written += len(r.buf)
	r.buf = r.buf[:0]
	return nil
}
