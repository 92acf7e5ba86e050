package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/lockstep/internal/media"
	"github.com/roach88/lockstep/internal/store"
	"github.com/roach88/lockstep/internal/testutil"
	"github.com/roach88/lockstep/internal/timeline"
)

// Harness is the scenario execution state.
// It drives one engine with a manual frame source.
type Harness struct {
	engine   *timeline.Engine
	frames   *testutil.ManualFrames
	players  map[timeline.StreamID]*media.SimPlayer
	adapters map[timeline.StreamID]*media.Adapter
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and session
// 2. Build the engine from the scenario profile
// 3. Record notifications while applying setup and steps
// 4. Read the trace back from the store
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	return RunWithStore(context.Background(), st, scenario)
}

// RunWithStore executes a scenario and persists its trace as a new
// session in st.
func RunWithStore(ctx context.Context, st *store.Store, scenario *Scenario) (*Result, error) {
	profile, err := scenario.ProfileFor()
	if err != nil {
		return nil, err
	}

	sess, err := st.CreateSession(ctx, store.Session{
		Name:        scenario.Name,
		MasterFPS:   profile.MasterFPS,
		VirtualSpan: profile.VirtualSpan,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in runs
	frames := testutil.NewManualFrames()
	opts := append(profile.Options(),
		timeline.WithIDGenerator(testutil.NewSequentialIDs("kf")),
		timeline.WithLogger(logger),
	)
	eng := timeline.New(frames, opts...)
	defer eng.Close()

	h := &Harness{
		engine:   eng,
		frames:   frames,
		players:  make(map[timeline.StreamID]*media.SimPlayer),
		adapters: make(map[timeline.StreamID]*media.Adapter),
		logger:   logger,
	}

	rec := store.NewRecorder(st, sess.ID)
	eng.Subscribe(rec.Record)

	applied := *profile
	if scenario.Setup.Players {
		// Attaching registers the durations, so the profile must not.
		h.attachPlayers(profile.DurationA, profile.DurationB)
		applied.DurationA, applied.DurationB = 0, 0
	}
	if err := applied.Apply(eng); err != nil {
		return nil, fmt.Errorf("failed to apply setup: %w", err)
	}

	for i, step := range scenario.Steps {
		if err := h.execute(step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	if err := rec.Flush(ctx); err != nil {
		return nil, err
	}
	if err := st.UpdateSessionDurations(ctx, sess.ID,
		eng.Duration(timeline.StreamA), eng.Duration(timeline.StreamB)); err != nil {
		return nil, err
	}

	trace, err := st.ReadTrace(ctx, sess.ID, store.TraceFilter{})
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.SessionID = sess.ID
	for _, n := range trace {
		result.AddTrace(n)
	}
	result.Final = finalState(eng)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, h) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) attachPlayers(durA, durB float64) {
	for _, s := range timeline.Streams {
		d := durA
		if s == timeline.StreamB {
			d = durB
		}
		if d <= 0 {
			continue
		}
		p := media.NewSimPlayer(d, h.frames.Now)
		h.players[s] = p
		h.adapters[s] = media.Attach(h.engine, s, p, media.WithAdapterLogger(h.logger))
	}
}

// execute applies one step. Inputs were checked by validateScenario.
func (h *Harness) execute(step Step) error {
	e := h.engine
	switch step.Op {
	case OpRegister:
		s, _ := timeline.ParseStreamID(step.Stream)
		e.RegisterStreamDuration(s, step.Seconds)
	case OpAdd:
		e.AddEvent(step.Label)
	case OpDelete:
		e.DeleteEvent(step.Label)
	case OpMove:
		s, _ := timeline.ParseStreamID(step.Stream)
		kf, ok := e.Keyframe(s, step.Label)
		if !ok {
			return fmt.Errorf("no keyframe %q on stream %s", step.Label, s)
		}
		e.MoveKeyframe(s, kf.ID, step.Step)
	case OpEndDrag:
		e.ResetAfterInteractiveDrag()
	case OpPlay:
		e.Play()
	case OpPause:
		e.Pause()
	case OpSeek:
		e.Seek(step.Position)
	case OpStep:
		e.StepFrames(step.Frames)
	case OpRate:
		e.SetPlaybackRate(step.Rate)
	case OpLoop:
		e.SetLoop(step.Enabled)
	case OpKeyframes:
		e.SetKeyframesEnabled(step.Enabled)
	case OpMode:
		e.ToggleAddressingMode()
	case OpAdvance:
		n := step.Frames
		if n == 0 {
			n = 1
		}
		h.frames.AdvanceFrames(n, time.Duration(step.Ms)*time.Millisecond)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}
