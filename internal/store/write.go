package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/lockstep/internal/timeline"
)

// Session describes one recorded engine run.
type Session struct {
	ID          string
	Name        string
	MasterFPS   float64
	VirtualSpan float64
	DurationA   float64
	DurationB   float64
}

// NewSessionID returns a fresh UUIDv7 session identifier.
func NewSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// CreateSession inserts a session record. An empty ID is filled with
// NewSessionID. Returns the stored session.
func (s *Store) CreateSession(ctx context.Context, sess Session) (Session, error) {
	if sess.ID == "" {
		sess.ID = NewSessionID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, master_fps, virtual_span, duration_a, duration_b)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		sess.ID,
		sess.Name,
		sess.MasterFPS,
		sess.VirtualSpan,
		sess.DurationA,
		sess.DurationB,
	)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// UpdateSessionDurations records the stream durations known at the end of
// a session.
func (s *Store) UpdateSessionDurations(ctx context.Context, sessionID string, durA, durB float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET duration_a = ?, duration_b = ? WHERE id = ?
	`, durA, durB, sessionID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update session: %w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// WriteNotifications appends notifications to a session's trace in one
// transaction. Notifications already stored under the same seq are
// silently skipped.
func (s *Store) WriteNotifications(ctx context.Context, sessionID string, ns []timeline.Notification) error {
	if len(ns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write notifications: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notifications (session_id, seq, position, action, meta)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write notifications: prepare: %w", err)
	}
	defer stmt.Close()

	for _, n := range ns {
		meta, err := marshalMeta(n.Meta)
		if err != nil {
			return fmt.Errorf("write notification seq=%d: %w", n.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, sessionID, n.Seq, n.Position, n.Action.String(), meta); err != nil {
			return fmt.Errorf("write notification seq=%d: %w", n.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write notifications: commit: %w", err)
	}
	return nil
}
