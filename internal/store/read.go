package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lockstep/internal/timeline"
)

// ErrSessionNotFound is returned when a session ID has no record.
var ErrSessionNotFound = errors.New("session not found")

// TraceFilter narrows ReadTrace results. Zero value matches everything.
type TraceFilter struct {
	Action string // "tick", "play", ... ; empty matches all
}

// GetSession returns one session record.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, master_fps, virtual_span, duration_a, duration_b
		FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Name, &sess.MasterFPS, &sess.VirtualSpan, &sess.DurationA, &sess.DurationB)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns all sessions, oldest first.
// UUIDv7 IDs sort by creation time.
//
// Returns an empty slice (not nil) if the store has no sessions.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, master_fps, virtual_span, duration_a, duration_b
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.MasterFPS, &sess.VirtualSpan, &sess.DurationA, &sess.DurationB); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadTrace returns a session's notifications ordered by seq.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadTrace(ctx context.Context, sessionID string, filter TraceFilter) ([]timeline.Notification, error) {
	// CP-1: Deterministic ordering by logical sequence
	query := `
		SELECT seq, position, action, meta
		FROM notifications
		WHERE session_id = ?`
	args := []any{sessionID}
	if filter.Action != "" {
		query += ` AND action = ?`
		args = append(args, filter.Action)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()

	trace := []timeline.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		trace = append(trace, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace: %w", err)
	}
	return trace, nil
}

// LastSeq returns the highest seq stored for a session, or 0 when the
// session has no notifications yet.
func (s *Store) LastSeq(ctx context.Context, sessionID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM notifications WHERE session_id = ?
	`, sessionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// CountNotifications returns the number of stored notifications per action
// for a session.
func (s *Store) CountNotifications(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action, COUNT(*)
		FROM notifications
		WHERE session_id = ?
		GROUP BY action
		ORDER BY action ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[action] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

func scanNotification(rows *sql.Rows) (timeline.Notification, error) {
	var (
		n      timeline.Notification
		action string
		meta   sql.NullString
	)
	if err := rows.Scan(&n.Seq, &n.Position, &action, &meta); err != nil {
		return timeline.Notification{}, fmt.Errorf("scan notification: %w", err)
	}
	n.Action = parseAction(action)

	decoded, err := unmarshalMeta(n.Action, meta)
	if err != nil {
		return timeline.Notification{}, fmt.Errorf("notification seq=%d: %w", n.Seq, err)
	}
	n.Meta = decoded
	return n, nil
}

func parseAction(s string) timeline.Action {
	if s == "tick" {
		return timeline.ActionTick
	}
	return timeline.Action(s)
}
