// Package compiler turns CUE session profiles into engine setups.
//
// A profile names the engine parameters and the marker layout of one
// comparison session so it can be replayed from the CLI:
//
//	profile: swing: {
//		mode: "synced"
//		durations: {A: 20, B: 15}
//		events: ["Top", "Impact"]
//		marks: [{stream: "B", label: "Impact", step: 500}]
//	}
//
// Every field is optional. Omitted engine parameters take the engine
// defaults.
package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/lockstep/internal/timeline"
)

// Mark places one marker on one stream, in native steps.
type Mark struct {
	Stream timeline.StreamID
	Label  string
	Step   float64
}

// Profile is a compiled session profile.
type Profile struct {
	Name             string
	MasterFPS        float64
	VirtualSpan      float64
	Labels           []string
	Mode             timeline.Mode
	KeyframesEnabled bool
	Loop             bool
	Rate             float64
	DurationA        float64
	DurationB        float64
	Events           []string
	Marks            []Mark
}

// CompileProfile parses a CUE value into a Profile.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the profile struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`profile: swing: { ... }`)
//	p, err := CompileProfile(v.LookupPath(cue.ParsePath("profile.swing")))
func CompileProfile(v cue.Value) (*Profile, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	p := &Profile{
		MasterFPS:        timeline.DefaultMasterFPS,
		VirtualSpan:      timeline.DefaultVirtualSpan,
		Labels:           append([]string(nil), timeline.DefaultLabelOrder...),
		Mode:             timeline.Unsynced,
		KeyframesEnabled: true,
		Rate:             1,
	}

	// Name from the struct label (the path selector)
	if sels := v.Path().Selectors(); len(sels) > 0 {
		p.Name = strings.Trim(sels[len(sels)-1].String(), `"`)
	}

	var err error
	if p.MasterFPS, err = lookupFloat(v, "fps", p.MasterFPS); err != nil {
		return nil, err
	}
	if p.VirtualSpan, err = lookupFloat(v, "span", p.VirtualSpan); err != nil {
		return nil, err
	}
	if p.Rate, err = lookupFloat(v, "rate", p.Rate); err != nil {
		return nil, err
	}
	if p.KeyframesEnabled, err = lookupBool(v, "keyframes", p.KeyframesEnabled); err != nil {
		return nil, err
	}
	if p.Loop, err = lookupBool(v, "loop", p.Loop); err != nil {
		return nil, err
	}

	if modeVal := v.LookupPath(cue.ParsePath("mode")); modeVal.Exists() {
		s, err := modeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		switch s {
		case "synced":
			p.Mode = timeline.Synced
		case "unsynced":
			p.Mode = timeline.Unsynced
		default:
			return nil, &CompileError{
				Field:   "mode",
				Message: fmt.Sprintf("must be \"synced\" or \"unsynced\", got %q", s),
				Pos:     modeVal.Pos(),
			}
		}
	}

	if labelsVal := v.LookupPath(cue.ParsePath("labels")); labelsVal.Exists() {
		if p.Labels, err = parseStrings(labelsVal); err != nil {
			return nil, err
		}
	}
	if eventsVal := v.LookupPath(cue.ParsePath("events")); eventsVal.Exists() {
		if p.Events, err = parseStrings(eventsVal); err != nil {
			return nil, err
		}
	}

	if durVal := v.LookupPath(cue.ParsePath("durations")); durVal.Exists() {
		if p.DurationA, err = lookupFloat(durVal, "A", 0); err != nil {
			return nil, err
		}
		if p.DurationB, err = lookupFloat(durVal, "B", 0); err != nil {
			return nil, err
		}
	}

	if marksVal := v.LookupPath(cue.ParsePath("marks")); marksVal.Exists() {
		if p.Marks, err = parseMarks(marksVal); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func lookupFloat(v cue.Value, field string, fallback float64) (float64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return fallback, nil
	}
	f, err := fv.Float64()
	if err != nil {
		return 0, &CompileError{Field: field, Message: "must be a number", Pos: fv.Pos()}
	}
	return f, nil
}

func lookupBool(v cue.Value, field string, fallback bool) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(field))
	if !bv.Exists() {
		return fallback, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, &CompileError{Field: field, Message: "must be a boolean", Pos: bv.Pos()}
	}
	return b, nil
}

func parseStrings(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func parseMarks(v cue.Value) ([]Mark, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var marks []Mark
	for iter.Next() {
		mv := iter.Value()

		streamVal := mv.LookupPath(cue.ParsePath("stream"))
		labelVal := mv.LookupPath(cue.ParsePath("label"))
		if !streamVal.Exists() || !labelVal.Exists() {
			return nil, &CompileError{
				Field:   "marks",
				Message: "each mark needs stream and label",
				Pos:     mv.Pos(),
			}
		}
		streamStr, err := streamVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		stream, err := timeline.ParseStreamID(streamStr)
		if err != nil {
			return nil, &CompileError{Field: "marks.stream", Message: err.Error(), Pos: streamVal.Pos()}
		}
		label, err := labelVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		step, err := lookupFloat(mv, "step", 0)
		if err != nil {
			return nil, err
		}

		marks = append(marks, Mark{Stream: stream, Label: label, Step: step})
	}
	return marks, nil
}
