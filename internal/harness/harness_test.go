package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/compiler"
	"github.com/roach88/lockstep/internal/store"
	"github.com/roach88/lockstep/internal/timeline"
)

func ptr[T any](v T) *T { return &v }

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Seek without durations clamps to zero",
		Steps:       []Step{{Op: OpSeek, Position: 50}},
		Assertions: []Assertion{
			{Type: AssertPosition, Value: ptr(0.0)},
			{Type: AssertTraceCount, Action: "seek", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.NotEmpty(t, result.SessionID)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "tick", result.Trace[0].Action)
	assert.Equal(t, "seek", result.Trace[1].Action)
	assert.Equal(t, "0.0000", result.Final.TotalRange)
}

func TestRun_FailingAssertionsReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "failing",
		Description: "Every assertion is wrong",
		Setup:       Setup{Durations: map[string]float64{"A": 1}},
		Steps:       []Step{{Op: OpPlay}},
		Assertions: []Assertion{
			{Type: AssertPosition, Value: ptr(5.0)},
			{Type: AssertPlaying, Expect: ptr(false)},
			{Type: AssertTraceCount, Action: "pause", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "Assertion failed: position")
	assert.Contains(t, result.Errors[1], "Expected: false")
	assert.Contains(t, result.Errors[2], "0 occurrences")
}

func TestRun_DragPreviewAndRelease(t *testing.T) {
	scenario := &Scenario{
		Name:        "drag",
		Description: "Dragging holds the player until the drag ends",
		Setup: Setup{
			Mode:      "synced",
			Durations: map[string]float64{"A": 10, "B": 10},
			Events:    []string{"Top"},
			Players:   true,
		},
		Steps: []Step{
			{Op: OpMove, Stream: "B", Label: "Top", Step: 120},
			{Op: OpEndDrag},
		},
		Assertions: []Assertion{
			{Type: AssertKeyframeStep, Stream: "B", Label: "Top", Step: ptr(120)},
			{Type: AssertTraceOrder, Actions: []string{"preview", "seek"}},
			{Type: AssertPlayerPosition, Stream: "B", Value: ptr(0.0)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	var preview TraceEvent
	for _, ev := range result.Trace {
		if ev.Action == "preview" {
			preview = ev
		}
	}
	assert.Equal(t, "B", preview.Stream)
	require.NotNil(t, preview.Step)
	assert.Equal(t, 120, *preview.Step)
	assert.Equal(t, "2.0000", preview.Seconds)
}

func TestRun_ModeToggleAndRegistration(t *testing.T) {
	scenario := &Scenario{
		Name:        "toggle",
		Description: "Toggling twice returns to unsynced at zero",
		Steps: []Step{
			{Op: OpRegister, Stream: "A", Seconds: 4},
			{Op: OpSeek, Position: 100},
			{Op: OpMode},
			{Op: OpStep, Frames: 24},
			{Op: OpMode},
		},
		Assertions: []Assertion{
			{Type: AssertMode, Mode: "unsynced"},
			{Type: AssertPosition, Value: ptr(0.0)},
			{Type: AssertTotalRange, Value: ptr(240.0)},
			{Type: AssertTraceCount, Action: "update", Count: 3},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ProfileOverridesSetup(t *testing.T) {
	scenario := &Scenario{
		Name:        "profiled",
		Description: "Profile replaces setup",
		Setup:       Setup{Durations: map[string]float64{"A": 99}},
		Profile: &compiler.Profile{
			Name:             "profiled",
			MasterFPS:        30,
			VirtualSpan:      100,
			Labels:           timeline.DefaultLabelOrder,
			Mode:             timeline.Synced,
			KeyframesEnabled: true,
			Rate:             1,
			DurationA:        2,
		},
		Steps: []Step{{Op: OpStep, Frames: 6}},
		Assertions: []Assertion{
			{Type: AssertTotalRange, Value: ptr(100.0)},
			{Type: AssertPosition, Value: ptr(10.0)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_MoveUnknownLabelFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_move",
		Description: "Moving a marker that was never added",
		Setup:       Setup{Durations: map[string]float64{"A": 1}},
		Steps:       []Step{{Op: OpMove, Stream: "A", Label: "Top", Step: 3}},
		Assertions:  []Assertion{{Type: AssertPlaying, Expect: ptr(false)}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0 (move)")
}

func TestRunWithStore_PersistsSession(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	scenario := &Scenario{
		Name:        "persisted",
		Description: "Trace lands in the caller's store",
		Setup:       Setup{Durations: map[string]float64{"A": 3, "B": 2}},
		Steps:       []Step{{Op: OpSeek, Position: 10}},
		Assertions:  []Assertion{{Type: AssertPosition, Value: ptr(10.0)}},
	}

	ctx := context.Background()
	result, err := RunWithStore(ctx, st, scenario)
	require.NoError(t, err)
	require.True(t, result.Pass)

	sess, err := st.GetSession(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", sess.Name)
	assert.Equal(t, 3.0, sess.DurationA)
	assert.Equal(t, 2.0, sess.DurationB)

	counts, err := st.CountNotifications(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"tick": 1, "update": 2, "seek": 1}, counts)
}
