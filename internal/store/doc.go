// Package store provides SQLite-backed trace logs for lockstep sessions.
//
// A trace is the ordered list of bus notifications one engine emitted
// during a session. Traces are written by a Recorder subscribed to the
// engine and read back by the trace command and by tests. Keyframes are
// never persisted here; a session only records what happened.
//
// # Critical Patterns
//
// CP-1: Logical Ordering
//   - Notifications are keyed by (session_id, seq) where seq is the
//     engine's logical sequence number, NEVER a timestamp
//   - All trace queries use ORDER BY seq ASC
//
// CP-2: Idempotent Writes
//   - Re-flushing the same notification is a no-op (ON CONFLICT DO NOTHING)
//
// CP-3: Session Identity
//   - Session IDs are UUIDv7 so listing order follows creation order
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
