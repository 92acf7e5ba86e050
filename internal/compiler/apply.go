package compiler

import (
	"fmt"
	"math"

	"github.com/roach88/lockstep/internal/timeline"
)

// Options returns the engine options the profile fixes at construction.
func (p *Profile) Options() []timeline.Option {
	return []timeline.Option{
		timeline.WithMasterFPS(p.MasterFPS),
		timeline.WithVirtualSpan(p.VirtualSpan),
		timeline.WithLabelOrder(p.Labels...),
		timeline.WithMode(p.Mode),
		timeline.WithKeyframesEnabled(p.KeyframesEnabled),
	}
}

// Apply replays the profile's setup onto an engine built with Options:
// durations, events, marks, loop and rate, in that order.
// Zero durations are skipped so a player can register them later.
//
// Marks are applied in passes until none moves, so a mark can land past
// the spot a later event was first inserted at. Marks already at their
// step are not moved again.
func (p *Profile) Apply(e *timeline.Engine) error {
	if p.DurationA > 0 {
		e.RegisterStreamDuration(timeline.StreamA, p.DurationA)
	}
	if p.DurationB > 0 {
		e.RegisterStreamDuration(timeline.StreamB, p.DurationB)
	}
	for _, label := range p.Events {
		e.AddEvent(label)
	}
	for pass := 0; pass < len(p.Marks); pass++ {
		moved := false
		for _, m := range p.Marks {
			kf, ok := e.Keyframe(m.Stream, m.Label)
			if !ok {
				return fmt.Errorf("profile %s: mark %s/%s: no such keyframe", p.Name, m.Stream, m.Label)
			}
			if float64(kf.Step) == math.Round(m.Step) {
				continue
			}
			e.MoveKeyframe(m.Stream, kf.ID, m.Step)
			moved = true
		}
		if !moved {
			break
		}
	}
	if p.Loop {
		e.SetLoop(true)
	}
	if p.Rate != 1 {
		e.SetPlaybackRate(p.Rate)
	}
	return nil
}
