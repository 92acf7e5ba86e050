package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates "kf-1", "kf-2", ... keyframe IDs.
//
// This enables deterministic test execution and golden trace comparison.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
// Implements timeline.IDGenerator.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix defaults to "kf".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "kf"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
