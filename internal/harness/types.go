package harness

import (
	"strconv"

	"github.com/roach88/lockstep/internal/timeline"
)

// TraceEvent is one recorded notification in golden-friendly form.
// Floats are rendered with fixed precision so snapshots are stable.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Action   string `json:"action"`
	Position string `json:"position"`
	Stream   string `json:"stream,omitempty"`
	Step     *int   `json:"step,omitempty"`
	Seconds  string `json:"seconds,omitempty"`
	Rate     string `json:"rate,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// FinalState is the engine state after the last step.
type FinalState struct {
	Position   string `json:"position"`
	TotalRange string `json:"total_range"`
	Playing    bool   `json:"playing"`
	Mode       string `json:"mode"`
	Rate       string `json:"rate"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// SessionID is the store session the trace was recorded under.
	SessionID string `json:"session_id"`

	// Trace is every notification, as read back from the store.
	Trace []TraceEvent `json:"trace"`

	// Final is the engine state after the last step.
	Final FinalState `json:"final"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends one notification to the trace.
func (r *Result) AddTrace(n timeline.Notification) {
	ev := TraceEvent{
		Seq:      n.Seq,
		Action:   n.Action.String(),
		Position: formatFloat(n.Position),
	}
	switch m := n.Meta.(type) {
	case timeline.PreviewMeta:
		step := m.Step
		ev.Stream = string(m.Stream)
		ev.Step = &step
		ev.Seconds = formatFloat(m.Seconds)
	case timeline.RateMeta:
		ev.Rate = formatFloat(m.Rate)
	case timeline.UpdateMeta:
		ev.Reason = m.Reason
	}
	r.Trace = append(r.Trace, ev)
}

func finalState(e *timeline.Engine) FinalState {
	return FinalState{
		Position:   formatFloat(e.Position()),
		TotalRange: formatFloat(e.TotalRange()),
		Playing:    e.Playing(),
		Mode:       e.Mode().String(),
		Rate:       formatFloat(e.PlaybackRate()),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}
