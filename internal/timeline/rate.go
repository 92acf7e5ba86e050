package timeline

import "math"

// InstantaneousRate returns the multiplier applied on top of the user
// playback rate so the stream's native clock tracks the virtual clock.
//
// Stream A's trim window is the reference in both Synced laws: in linear
// stretch A always runs at 1, and in warp mode rates are expressed in A's
// units. Swapping the reference changes the numbers, not the positions.
//
// The law is returned unbounded; players apply their own limits. A law
// that is not positive (a stream with no trim window yet) reports 1.
func (e *Engine) InstantaneousRate(s StreamID) float64 {
	if !s.valid() || e.mode == Unsynced {
		return 1
	}
	r := e.linearRate(s)
	if e.keyframesEnabled {
		r = e.warpRate(s)
	}
	return positiveRate(r)
}

// linearRate is this stream's trimmed length over stream A's.
func (e *Engine) linearRate(s StreamID) float64 {
	ref := e.store.track(StreamA).trim.Len()
	if ref == 0 {
		return 1
	}
	return float64(e.store.track(s).trim.Len()) / float64(ref)
}

// warpRate is the local segment slope scaled by span / A's trimmed length.
// It is piecewise constant and jumps when the clock crosses a sync point.
func (e *Engine) warpRate(s StreamID) float64 {
	points := e.syncPoints()
	ref := e.store.track(StreamA).trim.Len()
	if len(points) < 2 || ref == 0 {
		return e.linearRate(s)
	}

	i := segmentIndex(points, clamp(e.position, 0, e.span))
	start, end := points[i], points[i+1]
	dv := end.Virtual - start.Virtual
	if dv <= 0 {
		return e.linearRate(s)
	}
	slope := float64(end.Step(s)-start.Step(s)) / dv
	return slope * e.span / float64(ref)
}

// stepsPerSecond is how fast the virtual clock advances at user rate 1.
func (e *Engine) stepsPerSecond() float64 {
	if e.mode == Unsynced {
		return e.fps
	}
	ref := e.store.track(StreamA).trim.Len()
	if ref == 0 {
		return e.fps
	}
	return e.span / (float64(ref) / e.fps)
}

// virtualPerFrame is the virtual distance of one of stream A's frames.
func (e *Engine) virtualPerFrame() float64 {
	if e.mode == Unsynced {
		return 1
	}
	ref := e.store.track(StreamA).trim.Len()
	if ref == 0 {
		return 1
	}
	return e.span / float64(ref)
}

func positiveRate(r float64) float64 {
	if r > 0 && !math.IsInf(r, 1) {
		return r
	}
	return 1
}
