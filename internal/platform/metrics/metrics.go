// Package metrics exposes Prometheus instruments for a running lockstep
// session: bus traffic, clock state, frame delivery and player drift.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/lockstep/internal/timeline"
)

// Metrics holds Prometheus counters and gauges for one engine.
type Metrics struct {
	registry           *prometheus.Registry
	notificationsTotal *prometheus.CounterVec
	clockPosition      prometheus.Gauge
	playing            prometheus.Gauge
	framesTotal        prometheus.Counter
	frameLag           prometheus.Histogram
	driftCorrections   *prometheus.CounterVec
}

// New creates and registers the lockstep metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	notificationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lockstep_notifications_total",
		Help: "Bus notifications emitted, by action",
	}, []string{"action"})
	clockPosition := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lockstep_clock_position",
		Help: "Virtual clock position at the last notification",
	})
	playing := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lockstep_playing",
		Help: "1 while the clock is running",
	})
	framesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lockstep_frame_callbacks_total",
		Help: "Frame callbacks delivered by the host loop",
	})
	frameLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lockstep_frame_lag_seconds",
		Help:    "Delay between a ticker beat and the end of its frame delivery",
		Buckets: []float64{.0005, .001, .002, .004, .008, .016, .033, .066},
	})
	driftCorrections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lockstep_drift_corrections_total",
		Help: "Ticks that repositioned a drifted player, by stream",
	}, []string{"stream"})

	registry.MustRegister(
		notificationsTotal,
		clockPosition,
		playing,
		framesTotal,
		frameLag,
		driftCorrections,
	)

	return &Metrics{
		registry:           registry,
		notificationsTotal: notificationsTotal,
		clockPosition:      clockPosition,
		playing:            playing,
		framesTotal:        framesTotal,
		frameLag:           frameLag,
		driftCorrections:   driftCorrections,
	}
}

// Observe is a timeline.Listener that records bus traffic.
func (m *Metrics) Observe(n timeline.Notification) {
	m.notificationsTotal.WithLabelValues(n.Action.String()).Inc()
	m.clockPosition.Set(n.Position)
	switch n.Action {
	case timeline.ActionPlay:
		m.playing.Set(1)
	case timeline.ActionPause:
		m.playing.Set(0)
	}
}

// ObserveFrame matches host.FrameHook.
func (m *Metrics) ObserveFrame(callbacks int, lag time.Duration) {
	m.framesTotal.Add(float64(callbacks))
	m.frameLag.Observe(lag.Seconds())
}

// ObserveCorrection matches the media adapter correction hook.
func (m *Metrics) ObserveCorrection(stream timeline.StreamID, _ float64) {
	m.driftCorrections.WithLabelValues(string(stream)).Inc()
}

// Registry returns the underlying registry (tests, custom exporters).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh sampled values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

// SetPlaying sets the playing gauge from a sampled clock state.
func (m *Metrics) SetPlaying(playing bool) {
	if playing {
		m.playing.Set(1)
		return
	}
	m.playing.Set(0)
}
