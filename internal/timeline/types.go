package timeline

import "fmt"

// Engine defaults.
const (
	// DefaultMasterFPS converts native seconds into integer steps.
	DefaultMasterFPS = 60.0

	// DefaultVirtualSpan is the length of the virtual axis in Synced mode.
	DefaultVirtualSpan = 1000.0

	// MinRate and MaxRate bound the combined rate an adapter hands a player.
	MinRate = 0.0625
	MaxRate = 16.0
)

// Anchor labels. Both exist on every stream once its duration is known.
const (
	LabelStart = "Start"
	LabelEnd   = "End"
)

// StreamID identifies one of the two compared streams.
type StreamID string

const (
	StreamA StreamID = "A"
	StreamB StreamID = "B"
)

// Streams lists both streams in reference order.
var Streams = [2]StreamID{StreamA, StreamB}

// ParseStreamID accepts "A"/"B" in either case.
func ParseStreamID(s string) (StreamID, error) {
	switch s {
	case "A", "a":
		return StreamA, nil
	case "B", "b":
		return StreamB, nil
	}
	return "", fmt.Errorf("unknown stream %q: must be A or B", s)
}

func (s StreamID) index() int {
	if s == StreamB {
		return 1
	}
	return 0
}

func (s StreamID) valid() bool {
	return s == StreamA || s == StreamB
}

// Mode is the clock addressing mode.
type Mode int

const (
	// Unsynced plays each stream at native speed; the clock spans the longer one.
	Unsynced Mode = iota
	// Synced maps both streams onto the fixed virtual span.
	Synced
)

func (m Mode) String() string {
	if m == Synced {
		return "synced"
	}
	return "unsynced"
}

// Action tags a notification. The zero value is a plain clock tick.
type Action string

const (
	ActionTick    Action = ""
	ActionPlay    Action = "play"
	ActionPause   Action = "pause"
	ActionRate    Action = "rate"
	ActionSeek    Action = "seek"
	ActionUpdate  Action = "update"
	ActionPreview Action = "preview"
)

func (a Action) String() string {
	if a == ActionTick {
		return "tick"
	}
	return string(a)
}

// Notification is one bus delivery.
type Notification struct {
	Seq      int64
	Position float64
	Action   Action
	Meta     any
}

// PreviewMeta accompanies ActionPreview. Consumers show Stream at exactly
// Seconds and pause it, ignoring the virtual mapping.
type PreviewMeta struct {
	Stream  StreamID
	Step    int
	Seconds float64
}

// RateMeta accompanies ActionRate.
type RateMeta struct {
	Rate float64
}

// Update reasons carried by UpdateMeta.
const (
	ReasonDuration  = "duration"
	ReasonAdd       = "add"
	ReasonDelete    = "delete"
	ReasonLoop      = "loop"
	ReasonMode      = "mode"
	ReasonKeyframes = "keyframes"
)

// UpdateMeta accompanies ActionUpdate.
type UpdateMeta struct {
	Reason string
}

// Keyframe is a labeled marker on one stream's native step axis.
type Keyframe struct {
	ID    string
	Label string
	Step  int
	Color string
}

// TrimWindow is the playable sub-range of a stream, mirroring its anchors.
type TrimWindow struct {
	Start int
	End   int
}

// Len returns End-Start, never negative.
func (w TrimWindow) Len() int {
	if w.End < w.Start {
		return 0
	}
	return w.End - w.Start
}

// SyncPoint pairs a virtual position with each stream's local step.
type SyncPoint struct {
	Label   string
	Virtual float64
	StepA   int
	StepB   int
}

// Step returns the local step for the given stream.
func (p SyncPoint) Step(s StreamID) int {
	if s == StreamB {
		return p.StepB
	}
	return p.StepA
}
