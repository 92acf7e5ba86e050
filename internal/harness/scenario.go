package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lockstep/internal/compiler"
	"github.com/roach88/lockstep/internal/timeline"
)

// Scenario defines a scripted playback session.
type Scenario struct {
	// Name uniquely identifies this scenario. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup configures the engine before the first step.
	Setup Setup `yaml:"setup"`

	// Steps drive the engine in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and the trace.
	Assertions []Assertion `yaml:"assertions"`

	// Profile, when set, replaces Setup. Used by callers that load CUE
	// session profiles from disk.
	Profile *compiler.Profile `yaml:"-"`
}

// Setup mirrors the fields of a session profile.
type Setup struct {
	FPS       float64            `yaml:"fps,omitempty"`
	Span      float64            `yaml:"span,omitempty"`
	Mode      string             `yaml:"mode,omitempty"`
	Keyframes *bool              `yaml:"keyframes,omitempty"`
	Loop      bool               `yaml:"loop,omitempty"`
	Rate      float64            `yaml:"rate,omitempty"`
	Labels    []string           `yaml:"labels,omitempty"`
	Durations map[string]float64 `yaml:"durations,omitempty"`
	Events    []string           `yaml:"events,omitempty"`
	Marks     []MarkSpec         `yaml:"marks,omitempty"`

	// Players attaches a simulated player to each stream with a duration.
	Players bool `yaml:"players,omitempty"`
}

// MarkSpec places one marker, in native steps.
type MarkSpec struct {
	Stream string  `yaml:"stream"`
	Label  string  `yaml:"label"`
	Step   float64 `yaml:"step"`
}

// Step is one engine operation.
type Step struct {
	Op       string  `yaml:"op"`
	Stream   string  `yaml:"stream,omitempty"`
	Label    string  `yaml:"label,omitempty"`
	Seconds  float64 `yaml:"seconds,omitempty"`
	Position float64 `yaml:"position,omitempty"`
	Step     float64 `yaml:"step,omitempty"`
	Frames   int     `yaml:"frames,omitempty"`
	Rate     float64 `yaml:"rate,omitempty"`
	Enabled  bool    `yaml:"enabled,omitempty"`
	Ms       int     `yaml:"ms,omitempty"`
}

// Step ops.
const (
	OpRegister  = "register"
	OpAdd       = "add"
	OpDelete    = "delete"
	OpMove      = "move"
	OpEndDrag   = "end_drag"
	OpPlay      = "play"
	OpPause     = "pause"
	OpSeek      = "seek"
	OpStep      = "step"
	OpRate      = "rate"
	OpLoop      = "loop"
	OpKeyframes = "keyframes"
	OpMode      = "mode"
	OpAdvance   = "advance"
)

// Assertion validates the final state or the trace.
type Assertion struct {
	Type      string   `yaml:"type"`
	Value     *float64 `yaml:"value,omitempty"`
	Tolerance float64  `yaml:"tolerance,omitempty"`
	Stream    string   `yaml:"stream,omitempty"`
	Label     string   `yaml:"label,omitempty"`
	Step      *int     `yaml:"step,omitempty"`
	Expect    *bool    `yaml:"expect,omitempty"`
	Mode      string   `yaml:"mode,omitempty"`
	Action    string   `yaml:"action,omitempty"`
	Count     int      `yaml:"count,omitempty"`
	Actions   []string `yaml:"actions,omitempty"`
	Labels    []string `yaml:"labels,omitempty"`
}

// Assertion type constants.
const (
	AssertPosition       = "position"
	AssertTotalRange     = "total_range"
	AssertNativePosition = "native_position"
	AssertRate           = "rate"
	AssertPlayerPosition = "player_position"
	AssertCorrections    = "corrections"
	AssertPlaying        = "playing"
	AssertMode           = "mode"
	AssertTraceOrder     = "trace_order"
	AssertTraceCount     = "trace_count"
	AssertKeyframes      = "keyframes"
	AssertKeyframeStep   = "keyframe_step"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML from memory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// ProfileFor returns the profile the scenario runs with: Profile when set,
// otherwise one built from Setup.
func (s *Scenario) ProfileFor() (*compiler.Profile, error) {
	if s.Profile != nil {
		return s.Profile, nil
	}
	return s.Setup.profile(s.Name)
}

func (su Setup) profile(name string) (*compiler.Profile, error) {
	p := &compiler.Profile{
		Name:             name,
		MasterFPS:        timeline.DefaultMasterFPS,
		VirtualSpan:      timeline.DefaultVirtualSpan,
		Labels:           append([]string(nil), timeline.DefaultLabelOrder...),
		Mode:             timeline.Unsynced,
		KeyframesEnabled: true,
		Loop:             su.Loop,
		Rate:             1,
		Events:           su.Events,
	}
	if su.FPS != 0 {
		p.MasterFPS = su.FPS
	}
	if su.Span != 0 {
		p.VirtualSpan = su.Span
	}
	if su.Rate != 0 {
		p.Rate = su.Rate
	}
	if su.Keyframes != nil {
		p.KeyframesEnabled = *su.Keyframes
	}
	if len(su.Labels) > 0 {
		p.Labels = su.Labels
	}

	switch su.Mode {
	case "", "unsynced":
	case "synced":
		p.Mode = timeline.Synced
	default:
		return nil, fmt.Errorf("setup.mode: must be \"synced\" or \"unsynced\", got %q", su.Mode)
	}

	for key, seconds := range su.Durations {
		stream, err := timeline.ParseStreamID(key)
		if err != nil {
			return nil, fmt.Errorf("setup.durations: %w", err)
		}
		if stream == timeline.StreamA {
			p.DurationA = seconds
		} else {
			p.DurationB = seconds
		}
	}

	for i, m := range su.Marks {
		stream, err := timeline.ParseStreamID(m.Stream)
		if err != nil {
			return nil, fmt.Errorf("setup.marks[%d]: %w", i, err)
		}
		p.Marks = append(p.Marks, compiler.Mark{Stream: stream, Label: m.Label, Step: m.Step})
	}

	if errs := compiler.Validate(p); len(errs) > 0 {
		return nil, fmt.Errorf("setup: %w", errs[0])
	}
	return p, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := s.Setup.profile(s.Name); err != nil {
		return err
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, s.Setup.Players); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its op.
func validateStep(index int, st *Step) error {
	needStream := func() error {
		if _, err := timeline.ParseStreamID(st.Stream); err != nil {
			return fmt.Errorf("steps[%d]: %s: %w", index, st.Op, err)
		}
		return nil
	}

	switch st.Op {
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	case OpRegister:
		if err := needStream(); err != nil {
			return err
		}
	case OpAdd, OpDelete:
		if st.Label == "" {
			return fmt.Errorf("steps[%d]: label is required for %s", index, st.Op)
		}
	case OpMove:
		if err := needStream(); err != nil {
			return err
		}
		if st.Label == "" {
			return fmt.Errorf("steps[%d]: label is required for move", index)
		}
	case OpAdvance:
		if st.Ms < 0 {
			return fmt.Errorf("steps[%d]: ms must be non-negative for advance", index)
		}
		if st.Frames < 0 {
			return fmt.Errorf("steps[%d]: frames must be non-negative for advance", index)
		}
	case OpEndDrag, OpPlay, OpPause, OpSeek, OpStep, OpRate, OpLoop, OpKeyframes, OpMode:
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, players bool) error {
	needValue := func() error {
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for %s", index, a.Type)
		}
		return nil
	}
	needStream := func() error {
		if _, err := timeline.ParseStreamID(a.Stream); err != nil {
			return fmt.Errorf("assertions[%d]: %s: %w", index, a.Type, err)
		}
		return nil
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertPosition, AssertTotalRange:
		return needValue()
	case AssertNativePosition, AssertRate:
		if err := needStream(); err != nil {
			return err
		}
		return needValue()
	case AssertPlayerPosition, AssertCorrections:
		if !players {
			return fmt.Errorf("assertions[%d]: %s requires setup.players", index, a.Type)
		}
		if err := needStream(); err != nil {
			return err
		}
		if a.Type == AssertPlayerPosition {
			return needValue()
		}
	case AssertPlaying:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for playing", index)
		}
	case AssertMode:
		if a.Mode != "synced" && a.Mode != "unsynced" {
			return fmt.Errorf("assertions[%d]: mode must be synced or unsynced", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertKeyframes:
		if err := needStream(); err != nil {
			return err
		}
		if len(a.Labels) == 0 {
			return fmt.Errorf("assertions[%d]: labels list is required for keyframes", index)
		}
	case AssertKeyframeStep:
		if err := needStream(); err != nil {
			return err
		}
		if a.Label == "" || a.Step == nil {
			return fmt.Errorf("assertions[%d]: label and step are required for keyframe_step", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
