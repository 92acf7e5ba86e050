package timeline

import "math"

// PositionFor maps a virtual clock position to the stream's native
// position in seconds. The result always lies in [0, duration].
func (e *Engine) PositionFor(s StreamID, virtual float64) float64 {
	if !s.valid() {
		return 0
	}
	t := e.store.track(s)

	var step float64
	switch {
	case e.mode == Unsynced:
		step = clamp(virtual, 0, float64(t.steps))
	case e.keyframesEnabled:
		step = e.warpStep(s, virtual)
	default:
		step = e.linearStep(s, virtual)
	}
	return clamp(step/e.fps, 0, t.duration)
}

// linearStep stretches the virtual span onto the stream's trim window.
func (e *Engine) linearStep(s StreamID, virtual float64) float64 {
	trim := e.store.track(s).trim
	progress := clamp(virtual/e.span, 0, 1)
	return float64(trim.Start) + progress*float64(trim.End-trim.Start)
}

// warpStep interpolates inside the sync point segment containing virtual.
func (e *Engine) warpStep(s StreamID, virtual float64) float64 {
	points := e.syncPoints()
	if len(points) < 2 {
		return e.linearStep(s, virtual)
	}

	v := clamp(virtual, 0, e.span)
	i := segmentIndex(points, v)
	start, end := points[i], points[i+1]

	dv := end.Virtual - start.Virtual
	if dv <= 0 {
		return float64(start.Step(s))
	}
	progress := (v - start.Virtual) / dv
	from, to := float64(start.Step(s)), float64(end.Step(s))
	return from + progress*(to-from)
}

// clamp saturates v into [lo, hi]. NaN saturates to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
