package timeline

import (
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/lockstep/internal/testutil"
)

// newTestEngine builds an engine with deterministic IDs, a manual frame
// source and a discarding logger.
func newTestEngine(t *testing.T, opts ...Option) (*Engine, *testutil.ManualFrames) {
	t.Helper()
	frames := testutil.NewManualFrames()
	base := []Option{
		WithIDGenerator(testutil.NewSequentialIDs("")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	e := New(frames, append(base, opts...)...)
	t.Cleanup(e.Close)
	return e, frames
}

// notifications subscribes to e and returns a pointer to the collected
// notifications, excluding the immediate subscribe delivery.
func notifications(e *Engine) *[]Notification {
	var got []Notification
	e.Subscribe(func(n Notification) { got = append(got, n) })
	got = nil
	return &got
}

func actions(ns []Notification) []Action {
	out := make([]Action, len(ns))
	for i, n := range ns {
		out[i] = n.Action
	}
	return out
}

func labels(kfs []Keyframe) []string {
	out := make([]string, len(kfs))
	for i, kf := range kfs {
		out[i] = kf.Label
	}
	return out
}

func steps(kfs []Keyframe) []int {
	out := make([]int, len(kfs))
	for i, kf := range kfs {
		out[i] = kf.Step
	}
	return out
}

func mustKeyframe(t *testing.T, e *Engine, s StreamID, label string) Keyframe {
	t.Helper()
	kf, ok := e.Keyframe(s, label)
	if !ok {
		t.Fatalf("keyframe %s missing on stream %s", label, s)
	}
	return kf
}
