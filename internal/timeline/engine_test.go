package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/testutil"
)

func TestNew_Defaults(t *testing.T) {
	e, _ := newTestEngine(t)

	st := e.State()
	assert.Equal(t, ClockState{
		Position:         0,
		TotalRange:       0,
		Playing:          false,
		Rate:             1,
		Loop:             false,
		Mode:             Unsynced,
		KeyframesEnabled: true,
	}, st)
	assert.Equal(t, DefaultMasterFPS, e.MasterFPS())
	assert.Equal(t, DefaultVirtualSpan, e.VirtualSpan())
}

func TestNew_Options(t *testing.T) {
	e, _ := newTestEngine(t,
		WithMasterFPS(30),
		WithVirtualSpan(100),
		WithMode(Synced),
		WithKeyframesEnabled(false),
		WithMasterFPS(-1), // ignored
	)

	assert.Equal(t, 30.0, e.MasterFPS())
	assert.Equal(t, 100.0, e.VirtualSpan())
	assert.Equal(t, Synced, e.Mode())
	assert.False(t, e.KeyframesEnabled())
	assert.Equal(t, 100.0, e.TotalRange())
}

func TestNew_NilFrameSourcePanics(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}

func TestSubscribe_DeliversCurrentPositionImmediately(t *testing.T) {
	e, _ := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)
	e.Seek(42)

	var got []Notification
	e.Subscribe(func(n Notification) { got = append(got, n) })

	require.Len(t, got, 1)
	assert.Equal(t, 42.0, got[0].Position)
	assert.Equal(t, ActionTick, got[0].Action)
	assert.Nil(t, got[0].Meta)
}

func TestSubscribe_DeliveryInSubscriptionOrder(t *testing.T) {
	e, _ := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)

	var order []string
	e.Subscribe(func(n Notification) {
		if n.Action == ActionSeek {
			order = append(order, "first")
		}
	})
	e.Subscribe(func(n Notification) {
		if n.Action == ActionSeek {
			order = append(order, "second")
		}
	})

	e.Seek(10)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	e, _ := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)

	count := 0
	unsub := e.Subscribe(func(Notification) { count++ })
	count = 0

	e.Seek(1)
	unsub()
	unsub() // idempotent
	e.Seek(2)

	assert.Equal(t, 1, count)
}

func TestPlayPause_NoTicksLeavesPositionUnchanged(t *testing.T) {
	e, frames := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)
	e.Seek(120)
	got := notifications(e)

	e.Play()
	e.Pause()

	assert.Equal(t, 120.0, e.Position())
	assert.Equal(t, []Action{ActionPlay, ActionPause}, actions(*got))
	assert.Equal(t, 0, frames.Pending(), "pause must cancel the pending frame")
	assert.False(t, e.Playing())
}

func TestPlay_NotifiesBeforeFirstTick(t *testing.T) {
	e, frames := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)
	got := notifications(e)

	e.Play()

	assert.Equal(t, []Action{ActionPlay}, actions(*got))
	assert.Equal(t, 1, frames.Pending())
}

func TestPlay_IdempotentWhilePlaying(t *testing.T) {
	e, frames := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)
	got := notifications(e)

	e.Play()
	e.Play()

	assert.Equal(t, []Action{ActionPlay}, actions(*got))
	assert.Equal(t, 1, frames.Pending())
}

func TestPause_IdempotentWhileStopped(t *testing.T) {
	e, _ := newTestEngine(t)
	got := notifications(e)

	e.Pause()

	assert.Empty(t, *got)
}

func TestTick_FirstFrameHasZeroElapsed(t *testing.T) {
	e, frames := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)
	got := notifications(e)

	e.Play()
	frames.Advance(5 * time.Second) // stale timestamp must not jump the clock

	assert.Equal(t, 0.0, e.Position())
	assert.Equal(t, []Action{ActionPlay, ActionTick}, actions(*got))

	frames.Advance(500 * time.Millisecond)
	assert.Equal(t, 30.0, e.Position())
}

func TestTick_UserRateScalesAdvance(t *testing.T) {
	e, frames := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)
	e.SetPlaybackRate(2)

	e.Play()
	frames.Advance(0)
	frames.Advance(250 * time.Millisecond)

	assert.Equal(t, 30.0, e.Position())
}

func TestTick_SyncedAdvancesInVirtualUnits(t *testing.T) {
	e, frames := newTestEngine(t, WithMode(Synced))
	e.RegisterStreamDuration(StreamA, 10) // 600 steps -> 100 virtual/s
	e.RegisterStreamDuration(StreamB, 4)

	e.Play()
	frames.Advance(0)
	frames.Advance(500 * time.Millisecond)

	assert.InDelta(t, 50.0, e.Position(), 1e-9)
}

func TestTick_OneNotificationPerFrame(t *testing.T) {
	e, frames := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)
	got := notifications(e)

	e.Play()
	frames.AdvanceFrames(10, 16*time.Millisecond)

	assert.Len(t, *got, 11) // play + 10 ticks
	for _, n := range (*got)[1:] {
		assert.Equal(t, ActionTick, n.Action)
	}
}

func TestTick_StopsAtEndWithoutLoop(t *testing.T) {
	e, frames := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 1) // 60 steps
	got := notifications(e)

	e.Play()
	frames.Advance(0)
	frames.Advance(2 * time.Second)

	assert.Equal(t, 60.0, e.Position())
	assert.False(t, e.Playing())
	assert.Equal(t, []Action{ActionPlay, ActionTick, ActionPause}, actions(*got))
	assert.Equal(t, 0, frames.Pending())

	// Further frames do nothing
	frames.Advance(time.Second)
	assert.Len(t, *got, 3)
}

func TestTick_LoopWrapsToZero(t *testing.T) {
	e, frames := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 1)
	e.SetLoop(true)
	got := notifications(e)

	e.Play()
	frames.Advance(0)
	frames.Advance(2 * time.Second)

	assert.Equal(t, 0.0, e.Position())
	assert.True(t, e.Playing())
	assert.Equal(t, []Action{ActionPlay, ActionTick, ActionSeek}, actions(*got))
	assert.Equal(t, 1, frames.Pending())
}

func TestTick_ZeroRangeStopsImmediately(t *testing.T) {
	e, frames := newTestEngine(t)
	e.SetLoop(true)
	got := notifications(e)

	e.Play()
	frames.Advance(time.Second)

	assert.False(t, e.Playing())
	assert.Equal(t, []Action{ActionPlay, ActionPause}, actions(*got))
}

func TestPlay_AtEndRewinds(t *testing.T) {
	e, _ := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 1)
	e.Seek(60)
	got := notifications(e)

	e.Play()

	assert.Equal(t, 0.0, e.Position())
	require.Len(t, *got, 1)
	assert.Equal(t, 0.0, (*got)[0].Position)
}

func TestPlay_SubscriberPausingDuringPlay(t *testing.T) {
	e, frames := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)
	e.Subscribe(func(n Notification) {
		if n.Action == ActionPlay {
			e.Pause()
		}
	})

	e.Play()

	assert.False(t, e.Playing())
	assert.Equal(t, 0, frames.Pending())
}

func TestSeek_Clamps(t *testing.T) {
	e, _ := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)
	got := notifications(e)

	e.Seek(-5)
	assert.Equal(t, 0.0, e.Position())
	e.Seek(1e9)
	assert.Equal(t, 600.0, e.Position())

	assert.Equal(t, []Action{ActionSeek, ActionSeek}, actions(*got))
}

func TestStepFrames(t *testing.T) {
	e, _ := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)
	e.RegisterStreamDuration(StreamB, 5)

	e.StepFrames(1)
	assert.Equal(t, 1.0, e.Position())
	e.StepFrames(-5)
	assert.Equal(t, 0.0, e.Position())

	e.ToggleAddressingMode()
	e.StepFrames(3) // one frame of A = 1000/600 virtual units
	assert.InDelta(t, 5.0, e.Position(), 1e-9)
}

func TestSetPlaybackRate(t *testing.T) {
	e, _ := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)
	e.Seek(100)
	got := notifications(e)

	e.SetPlaybackRate(0)
	e.SetPlaybackRate(-1)
	assert.Empty(t, *got)
	assert.Equal(t, 1.0, e.PlaybackRate())

	e.SetPlaybackRate(0.25)
	require.Len(t, *got, 1)
	assert.Equal(t, ActionRate, (*got)[0].Action)
	assert.Equal(t, RateMeta{Rate: 0.25}, (*got)[0].Meta)
	assert.Equal(t, 100.0, e.Position())
}

func TestSetLoopAndKeyframesEmitUpdate(t *testing.T) {
	e, _ := newTestEngine(t)
	got := notifications(e)

	e.SetLoop(true)
	e.SetKeyframesEnabled(false)

	assert.True(t, e.Loop())
	assert.False(t, e.KeyframesEnabled())
	require.Len(t, *got, 2)
	assert.Equal(t, UpdateMeta{Reason: ReasonLoop}, (*got)[0].Meta)
	assert.Equal(t, UpdateMeta{Reason: ReasonKeyframes}, (*got)[1].Meta)
}

func TestToggleAddressingMode_RecomputesRange(t *testing.T) {
	e, _ := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)
	e.RegisterStreamDuration(StreamB, 5)
	assert.Equal(t, 600.0, e.TotalRange())

	e.ToggleAddressingMode()
	assert.Equal(t, Synced, e.Mode())
	assert.Equal(t, DefaultVirtualSpan, e.TotalRange())
}

func TestToggleAddressingMode_TwiceResetsPosition(t *testing.T) {
	e, _ := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)
	e.RegisterStreamDuration(StreamB, 5)
	e.Seek(321)
	got := notifications(e)

	e.ToggleAddressingMode()
	e.ToggleAddressingMode()

	assert.Equal(t, Unsynced, e.Mode())
	assert.Equal(t, 0.0, e.Position(), "position resets, not restored")
	assert.Equal(t, []Action{ActionUpdate, ActionSeek, ActionUpdate, ActionSeek}, actions(*got))
}

func TestResetAfterInteractiveDrag_ReassertsSeek(t *testing.T) {
	e, _ := newTestEngine(t)
	e.RegisterStreamDuration(StreamA, 10)
	e.RegisterStreamDuration(StreamB, 10)
	e.AddEvent("Top")
	e.Seek(77)
	got := notifications(e)

	e.MoveKeyframe(StreamA, mustKeyframe(t, e, StreamA, "Top").ID, 200)
	e.ResetAfterInteractiveDrag()

	assert.Equal(t, []Action{ActionPreview, ActionSeek}, actions(*got))
	assert.Equal(t, 77.0, (*got)[1].Position)
}

func TestNotifications_SequenceStrictlyIncreasing(t *testing.T) {
	e, frames := newTestEngine(t)
	got := notifications(e)

	e.RegisterStreamDuration(StreamA, 2)
	e.RegisterStreamDuration(StreamB, 2)
	e.AddEvent("Top")
	e.Play()
	frames.AdvanceFrames(5, 100*time.Millisecond)
	e.Pause()
	e.ToggleAddressingMode()

	require.NotEmpty(t, *got)
	for i := 1; i < len(*got); i++ {
		assert.Greater(t, (*got)[i].Seq, (*got)[i-1].Seq)
	}
}

func TestWithClock_ResumesSequence(t *testing.T) {
	e, _ := newTestEngine(t, WithClock(NewClockAt(100)))
	got := notifications(e)

	e.SetLoop(true)

	require.Len(t, *got, 1)
	assert.Equal(t, int64(101), (*got)[0].Seq)
}

func TestClose_CancelsPendingFrame(t *testing.T) {
	frames := testutil.NewManualFrames()
	e := New(frames, WithIDGenerator(testutil.NewSequentialIDs("")))
	e.RegisterStreamDuration(StreamA, 10)
	count := 0
	e.Subscribe(func(Notification) { count++ })
	count = 0

	e.Play()
	e.Close()

	assert.Equal(t, 0, frames.Pending())
	frames.Advance(time.Second)
	e.Play()
	assert.Equal(t, 1, count, "no notifications after close")
	assert.False(t, e.Playing())
}

func TestClock_Next(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}
