package timeline

import "sort"

// warpCache holds the sync point list built for one keyframe store version.
type warpCache struct {
	valid   bool
	version uint64
	points  []SyncPoint
}

func (c *warpCache) invalidate() {
	c.valid = false
	c.points = nil
}

// syncPoints returns the cached list, rebuilding it when the store version
// moved. The returned slice must not be modified.
func (e *Engine) syncPoints() []SyncPoint {
	if !e.warp.valid || e.warp.version != e.store.version {
		e.warp.points = buildSyncPoints(e.store, e.span)
		e.warp.version = e.store.version
		e.warp.valid = true
	}
	return e.warp.points
}

// buildSyncPoints pairs every label present on both streams, in canonical
// order, and spaces them evenly across [0, span]. Fewer than two common
// labels yields nil: warp mapping is undefined.
func buildSyncPoints(ks *keyframeStore, span float64) []SyncPoint {
	a, b := ks.track(StreamA), ks.track(StreamB)

	var points []SyncPoint
	for _, kf := range a.keyframes {
		j := b.indexOf(kf.Label)
		if j < 0 {
			continue
		}
		points = append(points, SyncPoint{
			Label: kf.Label,
			StepA: kf.Step,
			StepB: b.keyframes[j].Step,
		})
	}
	if len(points) < 2 {
		return nil
	}

	sort.SliceStable(points, func(i, j int) bool {
		ri, _ := ks.order.rankOf(points[i].Label)
		rj, _ := ks.order.rankOf(points[j].Label)
		return ri < rj
	})

	last := float64(len(points) - 1)
	for i := range points {
		points[i].Virtual = float64(i) / last * span
	}
	return points
}

// segmentIndex returns i such that points[i].Virtual <= v < points[i+1].Virtual,
// using the last pair when v is at or beyond the final point.
// Requires len(points) >= 2.
func segmentIndex(points []SyncPoint, v float64) int {
	for i := 0; i < len(points)-2; i++ {
		if v < points[i+1].Virtual {
			return i
		}
	}
	return len(points) - 2
}
