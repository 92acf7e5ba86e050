package timeline

import "math"

// track is one stream's keyframe list plus the facts derived from its
// registered duration.
type track struct {
	duration  float64
	steps     int
	keyframes []Keyframe
	trim      TrimWindow
}

func (t *track) indexOf(label string) int {
	for i, kf := range t.keyframes {
		if kf.Label == label {
			return i
		}
	}
	return -1
}

func (t *track) indexByID(id string) int {
	for i, kf := range t.keyframes {
		if kf.ID == id {
			return i
		}
	}
	return -1
}

// syncTrim copies the anchor steps into the trim window.
func (t *track) syncTrim() {
	if i := t.indexOf(LabelStart); i >= 0 {
		t.trim.Start = t.keyframes[i].Step
	}
	if i := t.indexOf(LabelEnd); i >= 0 {
		t.trim.End = t.keyframes[i].Step
	}
}

// settle restores non-decreasing order after the End anchor moved,
// pulling interior markers inside the new range.
func (t *track) settle() {
	for i := len(t.keyframes) - 2; i >= 0; i-- {
		if next := t.keyframes[i+1].Step; t.keyframes[i].Step > next {
			t.keyframes[i].Step = next
		}
	}
	for i := range t.keyframes {
		if t.keyframes[i].Step < 0 {
			t.keyframes[i].Step = 0
		}
	}
}

// keyframeStore owns both streams' markers. Every mutation bumps version,
// which the warp cache compares against.
type keyframeStore struct {
	tracks  [2]track
	order   *labelOrder
	ids     IDGenerator
	fps     float64
	version uint64
}

func newKeyframeStore(order *labelOrder, ids IDGenerator, fps float64) *keyframeStore {
	return &keyframeStore{order: order, ids: ids, fps: fps}
}

func (ks *keyframeStore) track(s StreamID) *track {
	return &ks.tracks[s.index()]
}

func (ks *keyframeStore) newKeyframe(label string, step int) Keyframe {
	return Keyframe{
		ID:    ks.ids.Generate(),
		Label: label,
		Step:  step,
		Color: ks.order.color(label),
	}
}

// stepsFor converts seconds to a step count on the master frame axis.
// The epsilon absorbs float noise such as 0.1*60 = 6.000000000000001.
func (ks *keyframeStore) stepsFor(seconds float64) int {
	return int(math.Ceil(seconds*ks.fps - 1e-9))
}

// register records a stream's duration, bootstrapping missing anchors or
// moving End to the new step count.
func (ks *keyframeStore) register(s StreamID, seconds float64) bool {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return false
	}
	t := ks.track(s)
	t.duration = seconds
	t.steps = ks.stepsFor(seconds)

	if t.indexOf(LabelStart) < 0 {
		t.keyframes = append([]Keyframe{ks.newKeyframe(LabelStart, 0)}, t.keyframes...)
	}
	if i := t.indexOf(LabelEnd); i >= 0 {
		t.keyframes[i].Step = t.steps
	} else {
		t.keyframes = append(t.keyframes, ks.newKeyframe(LabelEnd, t.steps))
	}
	t.settle()
	t.syncTrim()
	ks.version++
	return true
}

// addEvent inserts label on both streams. Rejected when the label is an
// anchor, unknown to the canonical order, or already present.
func (ks *keyframeStore) addEvent(label string) bool {
	if isAnchor(label) {
		return false
	}
	rank, ok := ks.order.rankOf(label)
	if !ok {
		return false
	}
	for i := range ks.tracks {
		if ks.tracks[i].indexOf(label) >= 0 {
			return false
		}
	}
	for i := range ks.tracks {
		ks.insert(&ks.tracks[i], label, rank)
	}
	ks.version++
	return true
}

// insert places label at its canonical position, at the midpoint of the
// markers bracketing it (trim bounds when none do).
func (ks *keyframeStore) insert(t *track, label string, rank int) {
	pos := len(t.keyframes)
	for i, kf := range t.keyframes {
		if r, _ := ks.order.rankOf(kf.Label); r > rank {
			pos = i
			break
		}
	}

	left, right := t.trim.Start, t.trim.End
	if pos > 0 {
		left = t.keyframes[pos-1].Step
	}
	if pos < len(t.keyframes) {
		right = t.keyframes[pos].Step
	}

	kf := ks.newKeyframe(label, (left+right)/2)
	t.keyframes = append(t.keyframes, Keyframe{})
	copy(t.keyframes[pos+1:], t.keyframes[pos:])
	t.keyframes[pos] = kf
}

// deleteEvent removes label from both streams. Anchors are never removed.
func (ks *keyframeStore) deleteEvent(label string) bool {
	if isAnchor(label) {
		return false
	}
	removed := false
	for i := range ks.tracks {
		t := &ks.tracks[i]
		if j := t.indexOf(label); j >= 0 {
			t.keyframes = append(t.keyframes[:j], t.keyframes[j+1:]...)
			removed = true
		}
	}
	if removed {
		ks.version++
	}
	return removed
}

// move clamps proposed into the open interval between the keyframe's
// neighbors and applies it. When the neighbors leave no room the step is
// kept as is.
func (ks *keyframeStore) move(s StreamID, id string, proposed float64) (Keyframe, bool) {
	if math.IsNaN(proposed) {
		return Keyframe{}, false
	}
	t := ks.track(s)
	i := t.indexByID(id)
	if i < 0 {
		return Keyframe{}, false
	}

	lo, hi := 0, t.steps
	if i > 0 {
		lo = t.keyframes[i-1].Step + 1
	}
	if i < len(t.keyframes)-1 {
		hi = t.keyframes[i+1].Step - 1
	}

	if lo <= hi {
		step := math.Round(proposed)
		switch {
		case step < float64(lo):
			t.keyframes[i].Step = lo
		case step > float64(hi):
			t.keyframes[i].Step = hi
		default:
			t.keyframes[i].Step = int(step)
		}
	}

	if isAnchor(t.keyframes[i].Label) {
		t.syncTrim()
	}
	ks.version++
	return t.keyframes[i], true
}

// snapshot returns a copy of the stream's keyframes.
func (ks *keyframeStore) snapshot(s StreamID) []Keyframe {
	t := ks.track(s)
	out := make([]Keyframe, len(t.keyframes))
	copy(out, t.keyframes)
	return out
}
