// Package timeline implements the lockstep synchronization engine.
//
// The engine drives two independent media streams ("A" and "B") from one
// virtual master clock. It never decodes or renders media; it only decides
// where each stream should be and how fast it should run.
//
// ARCHITECTURE:
//
// Single-Threaded Cooperative Loop:
// Every operation runs on the caller's goroutine and completes before it
// returns. The clock advances only inside frame callbacks requested from a
// FrameSource, so the host decides which goroutine the engine lives on.
// This ensures:
// - State and notifications are never observed out of sync
// - No locking inside the engine
// - Reproducible traces under a manual frame source
//
// Notification Flow:
// 1. A control operation (Play, Seek, AddEvent, ...) mutates Clock State
// 2. The Bus delivers (position, action, metadata) to every listener in
//    subscription order, synchronously
// 3. Each media adapter asks PositionFor / InstantaneousRate for its stream
//    and applies the result to its player
//
// Addressing Modes:
//   - Unsynced: each stream plays at native speed up to its own end
//   - Synced, keyframes off: both trim windows stretched onto the virtual span
//   - Synced, keyframes on: piecewise-linear warp through common markers
//
// CRITICAL PATTERNS:
//
// Logical Sequence:
// Every notification is stamped from a monotonic Clock. Wall time is only
// used to measure elapsed time between frames.
//
// Versioned Warp Cache:
// The keyframe stores carry a version counter. The sync point cache is
// rebuilt lazily whenever its version differs. Mutating keyframes outside
// the documented operations breaks this invariant.
package timeline
