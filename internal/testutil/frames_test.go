package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualFrames_StartsAtZero(t *testing.T) {
	f := NewManualFrames()
	assert.Equal(t, time.Duration(0), f.Now())
	assert.Equal(t, 0, f.Pending())
}

func TestManualFrames_AdvanceRunsPending(t *testing.T) {
	f := NewManualFrames()

	var got []time.Duration
	f.RequestFrame(func(now time.Duration) { got = append(got, now) })
	assert.Equal(t, 1, f.Pending())

	ran := f.Advance(16 * time.Millisecond)
	assert.Equal(t, 1, ran)
	assert.Equal(t, []time.Duration{16 * time.Millisecond}, got)
	assert.Equal(t, 0, f.Pending())
}

func TestManualFrames_CancelRemovesCallback(t *testing.T) {
	f := NewManualFrames()

	called := false
	cancel := f.RequestFrame(func(time.Duration) { called = true })
	cancel()

	assert.Equal(t, 0, f.Pending())
	assert.Equal(t, 0, f.Advance(time.Millisecond))
	assert.False(t, called, "canceled callback must not run")
}

func TestManualFrames_RequestDuringFrameWaitsForNextAdvance(t *testing.T) {
	f := NewManualFrames()

	count := 0
	var loop func(time.Duration)
	loop = func(time.Duration) {
		count++
		f.RequestFrame(loop)
	}
	f.RequestFrame(loop)

	f.Advance(time.Millisecond)
	assert.Equal(t, 1, count, "rescheduled callback must not run in the same frame")

	f.AdvanceFrames(3, time.Millisecond)
	assert.Equal(t, 4, count)
	assert.Equal(t, 4*time.Millisecond, f.Now())
}

func TestManualFrames_CancelDuringFrameSkipsCallback(t *testing.T) {
	f := NewManualFrames()

	var secondRan bool
	var cancelSecond func()
	f.RequestFrame(func(time.Duration) { cancelSecond() })
	cancelSecond = f.RequestFrame(func(time.Duration) { secondRan = true })

	assert.Equal(t, 1, f.Advance(time.Millisecond))
	assert.False(t, secondRan)
	assert.Equal(t, 0, f.Pending())
}
