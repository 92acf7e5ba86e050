package compiler

import (
	"fmt"
	"math"

	"github.com/roach88/lockstep/internal/timeline"
)

// Validation error codes (E100-E199)
const (
	ErrInvalidFPS      = "E101" // fps must be positive
	ErrInvalidSpan     = "E102" // span must be positive
	ErrInvalidRate     = "E103" // rate must be positive
	ErrInvalidDuration = "E104" // duration must be non-negative
	ErrUnknownLabel    = "E105" // event label outside the label order
	ErrDuplicateLabel  = "E106" // label listed twice
	ErrAnchorEvent     = "E107" // Start/End listed as an event
	ErrMarkLabel       = "E108" // mark refers to a label that will not exist
	ErrMarkStep        = "E109" // mark step negative or not finite
)

// ValidationError represents a profile validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled profile against the engine's rules.
// Returns all errors found (does not fail-fast).
func Validate(p *Profile) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if !positive(p.MasterFPS) {
		add(ErrInvalidFPS, "fps", "must be positive, got %v", p.MasterFPS)
	}
	if !positive(p.VirtualSpan) {
		add(ErrInvalidSpan, "span", "must be positive, got %v", p.VirtualSpan)
	}
	if !positive(p.Rate) {
		add(ErrInvalidRate, "rate", "must be positive, got %v", p.Rate)
	}
	if p.DurationA < 0 || math.IsNaN(p.DurationA) || math.IsInf(p.DurationA, 0) {
		add(ErrInvalidDuration, "durations.A", "must be a non-negative number, got %v", p.DurationA)
	}
	if p.DurationB < 0 || math.IsNaN(p.DurationB) || math.IsInf(p.DurationB, 0) {
		add(ErrInvalidDuration, "durations.B", "must be a non-negative number, got %v", p.DurationB)
	}

	known := make(map[string]bool)
	for _, l := range p.Labels {
		l = timeline.NormalizeLabel(l)
		if known[l] {
			add(ErrDuplicateLabel, "labels", "%q listed twice", l)
		}
		known[l] = true
	}

	events := map[string]bool{timeline.LabelStart: true, timeline.LabelEnd: true}
	for _, e := range p.Events {
		e = timeline.NormalizeLabel(e)
		switch {
		case e == timeline.LabelStart || e == timeline.LabelEnd:
			add(ErrAnchorEvent, "events", "%q is an anchor and always present", e)
		case !known[e]:
			add(ErrUnknownLabel, "events", "%q is not in the label order", e)
		case events[e]:
			add(ErrDuplicateLabel, "events", "%q listed twice", e)
		}
		events[e] = true
	}

	for i, m := range p.Marks {
		field := fmt.Sprintf("marks[%d]", i)
		if !events[timeline.NormalizeLabel(m.Label)] {
			add(ErrMarkLabel, field, "label %q is neither an anchor nor a listed event", m.Label)
		}
		if m.Step < 0 || math.IsNaN(m.Step) || math.IsInf(m.Step, 0) {
			add(ErrMarkStep, field, "step must be a non-negative number, got %v", m.Step)
		}
	}

	return errs
}

func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}
