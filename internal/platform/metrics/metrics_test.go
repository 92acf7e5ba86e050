package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	locktest "github.com/roach88/lockstep/internal/testutil"
	"github.com/roach88/lockstep/internal/timeline"
)

func TestObserve_CountsByAction(t *testing.T) {
	m := New()
	frames := locktest.NewManualFrames()
	eng := timeline.New(frames, timeline.WithIDGenerator(locktest.NewSequentialIDs("")))
	t.Cleanup(eng.Close)
	eng.Subscribe(m.Observe)

	eng.RegisterStreamDuration(timeline.StreamA, 10)
	eng.Play()
	frames.Advance(0)
	frames.Advance(time.Second)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.notificationsTotal.WithLabelValues("tick"))) // subscribe + 2 frames
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsTotal.WithLabelValues("play")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsTotal.WithLabelValues("update")))
	assert.Equal(t, 60.0, testutil.ToFloat64(m.clockPosition))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.playing))

	eng.Pause()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.playing))
}

func TestObserveFrameAndCorrection(t *testing.T) {
	m := New()

	m.ObserveFrame(2, 3*time.Millisecond)
	m.ObserveFrame(1, time.Millisecond)
	m.ObserveCorrection(timeline.StreamB, 0.5)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.framesTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(m.frameLag))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.driftCorrections.WithLabelValues("B")))
}

func TestRouter(t *testing.T) {
	m := New()
	sampled := false
	h := Router(m, slog.New(slog.NewTextHandler(io.Discard, nil)), func() {
		sampled = true
		m.SetPlaying(true)
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, sampled)
	assert.Contains(t, rr.Body.String(), "lockstep_playing 1")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
