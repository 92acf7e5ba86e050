package harness

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/lockstep/internal/timeline"
)

// DefaultTolerance is used by float assertions that set no tolerance.
const DefaultTolerance = 1e-6

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s @ %s\n", event.Seq, event.Action, event.Position)
		}
	}

	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the result and the
// harness state after the last step.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, h *Harness) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		default:
			if h == nil {
				err = fmt.Errorf("assertion[%d]: %s requires engine state", i, a.Type)
			} else {
				err = h.assertState(a)
			}
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertTraceOrder checks that actions appear in the trace as a
// subsequence. Intervening notifications are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(a.Actions) && event.Action == a.Actions[next] {
			next++
		}
	}
	if next < len(a.Actions) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("actions in order: %v", a.Actions),
			Actual:   fmt.Sprintf("matched %v, missing %s", a.Actions[:next], a.Actions[next]),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceCount checks the action appears exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Action == a.Action {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertState checks one assertion against the live engine and players.
func (h *Harness) assertState(a Assertion) error {
	e := h.engine
	stream, _ := timeline.ParseStreamID(a.Stream)

	switch a.Type {
	case AssertPosition:
		return checkFloat(a, e.Position())
	case AssertTotalRange:
		return checkFloat(a, e.TotalRange())
	case AssertNativePosition:
		return checkFloat(a, e.PositionFor(stream, e.Position()))
	case AssertRate:
		return checkFloat(a, e.InstantaneousRate(stream))

	case AssertPlayerPosition:
		p, ok := h.players[stream]
		if !ok {
			return mismatch(a, "a player on stream "+a.Stream, "no player attached")
		}
		return checkFloat(a, p.Position())

	case AssertCorrections:
		ad, ok := h.adapters[stream]
		if !ok {
			return mismatch(a, "a player on stream "+a.Stream, "no player attached")
		}
		if ad.Corrections() != a.Count {
			return mismatch(a, fmt.Sprint(a.Count), fmt.Sprint(ad.Corrections()))
		}

	case AssertPlaying:
		if e.Playing() != *a.Expect {
			return mismatch(a, fmt.Sprint(*a.Expect), fmt.Sprint(e.Playing()))
		}

	case AssertMode:
		if e.Mode().String() != a.Mode {
			return mismatch(a, a.Mode, e.Mode().String())
		}

	case AssertKeyframes:
		var got []string
		for _, kf := range e.Keyframes(stream) {
			got = append(got, kf.Label)
		}
		if !slices.Equal(got, a.Labels) {
			return mismatch(a, fmt.Sprint(a.Labels), fmt.Sprint(got))
		}

	case AssertKeyframeStep:
		kf, ok := e.Keyframe(stream, a.Label)
		if !ok {
			return mismatch(a, fmt.Sprintf("%s at step %d", a.Label, *a.Step), "no such keyframe")
		}
		if kf.Step != *a.Step {
			return mismatch(a, fmt.Sprintf("%s at step %d", a.Label, *a.Step), fmt.Sprintf("step %d", kf.Step))
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func checkFloat(a Assertion, got float64) error {
	tol := a.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}
	if math.Abs(got-*a.Value) > tol {
		return mismatch(a, fmt.Sprintf("%g (±%g)", *a.Value, tol), fmt.Sprintf("%g", got))
	}
	return nil
}

func mismatch(a Assertion, expected, actual string) error {
	typ := a.Type
	if a.Stream != "" {
		typ += "[" + a.Stream + "]"
	}
	return &AssertionError{Type: typ, Expected: expected, Actual: actual}
}
