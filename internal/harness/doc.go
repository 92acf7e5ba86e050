// Package harness runs scripted playback scenarios against the lockstep
// engine and checks the resulting notification trace.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: synced_warp
//	description: "Warp mapping follows a dragged marker"
//	setup:
//	  mode: synced
//	  durations: {A: 10, B: 5}
//	  events: [Impact]
//	  marks:
//	    - {stream: B, label: Impact, step: 200}
//	steps:
//	  - op: seek
//	    position: 250
//	  - op: play
//	  - op: advance
//	    ms: 100
//	    frames: 2
//	assertions:
//	  - type: native_position
//	    stream: A
//	    value: 2.6
//
// Setup accepts the same fields as a CUE session profile and is applied
// through compiler.Profile, so a profile loaded from disk can stand in
// for it (Scenario.Profile).
//
// # Step Ops
//
//   - register: stream, seconds
//   - add, delete: label
//   - move: stream, label, step
//   - end_drag
//   - play, pause
//   - seek: position
//   - step: frames (may be negative)
//   - rate: rate
//   - loop, keyframes: enabled
//   - mode: toggles the addressing mode
//   - advance: ms per frame, frames (default 1)
//
// # Assertion Types
//
//   - position, total_range: value
//   - native_position, rate: stream, value
//   - player_position: stream, value (requires setup.players)
//   - corrections: stream, count (requires setup.players)
//   - playing: expect
//   - mode: mode
//   - trace_order: actions, matched as a subsequence
//   - trace_count: action, count
//   - keyframes: stream, labels
//   - keyframe_step: stream, label, step
//
// # Deterministic Testing
//
// Every run uses a manual frame source, sequential keyframe IDs and a
// fresh in-memory SQLite store. Notifications are recorded through
// store.Recorder and the trace is read back from the database, so golden
// files also cover the persistence round trip.
package harness
