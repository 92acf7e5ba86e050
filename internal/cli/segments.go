package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/analysis"
	"github.com/roach88/lockstep/internal/compiler"
	"github.com/roach88/lockstep/internal/host"
	"github.com/roach88/lockstep/internal/timeline"
)

// SegmentsOptions holds flags for the segments command.
type SegmentsOptions struct {
	*RootOptions
	DurationA float64
	DurationB float64
	FPS       float64
	Marks     []string // label=stepA:stepB
	Profile   string
	Name      string
}

// PointSummary is the JSON form of one sync point.
type PointSummary struct {
	Label   string  `json:"label"`
	Virtual float64 `json:"virtual"`
	StepA   int     `json:"step_a"`
	StepB   int     `json:"step_b"`
}

// SegmentSummary is the JSON form of one analysis segment.
type SegmentSummary struct {
	From    string  `json:"from"`
	To      string  `json:"to"`
	DeltaA  int     `json:"delta_a"`
	DeltaB  int     `json:"delta_b"`
	Ratio   float64 `json:"ratio"`
	Percent int     `json:"percent"`
	Tempo   string  `json:"tempo"`
	Color   string  `json:"color"`
}

// SegmentsResult is the payload of the segments command.
type SegmentsResult struct {
	Points   []PointSummary   `json:"points"`
	Segments []SegmentSummary `json:"segments"`
}

// NewSegmentsCommand creates the segments command.
func NewSegmentsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SegmentsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "segments",
		Short: "Compare the pacing of two streams between shared markers",
		Long: `Place markers on both streams and report, for every pair of consecutive
sync points, how many steps each stream takes and whether B's segment is
shorter, even or longer than A's.

Each --mark gives a label and its step on A and on B. Labels other than
Start and End are added as events first.

Examples:
  lockstep segments --a 20 --b 15 --mark Top=600:500 --mark Impact=900:700
  lockstep segments --a 20 --b 15 --mark End=1100:850
  lockstep segments --profile ./profiles --name swing --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSegments(opts, cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.DurationA, "a", 0, "duration of stream A in seconds")
	cmd.Flags().Float64Var(&opts.DurationB, "b", 0, "duration of stream B in seconds")
	cmd.Flags().Float64Var(&opts.FPS, "fps", 0, "master fps (default $LOCKSTEP_MASTER_FPS or 60)")
	cmd.Flags().StringArrayVar(&opts.Marks, "mark", nil, "marker as label=stepA:stepB (repeatable)")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "directory of CUE session profiles")
	cmd.Flags().StringVar(&opts.Name, "name", "", "profile name (with --profile)")

	return cmd
}

func runSegments(opts *SegmentsOptions, cmd *cobra.Command) error {
	log := opts.log()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	p, err := segmentsProfile(opts)
	if err != nil {
		return err
	}
	if verrs := compiler.Validate(p); len(verrs) > 0 {
		return NewExitError(ExitCommandError, verrs[0].Error())
	}
	if p.DurationA <= 0 || p.DurationB <= 0 {
		return NewExitError(ExitCommandError, "both stream durations are required: pass --a and --b")
	}

	// The loop is never run: nothing here needs frames.
	frames := host.NewLoop(host.WithLogger(log))
	eng := timeline.New(frames, append(p.Options(), timeline.WithLogger(log))...)
	defer eng.Close()

	if err := p.Apply(eng); err != nil {
		return WrapExitError(ExitCommandError, "failed to place markers", err)
	}
	for _, m := range p.Marks {
		if kf, _ := eng.Keyframe(m.Stream, m.Label); float64(kf.Step) != m.Step {
			formatter.VerboseLog("Mark %s/%s clamped to step %d", m.Stream, m.Label, kf.Step)
		}
	}

	result := buildSegmentsResult(eng.SyncPoints())

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputSegmentsText(formatter, result)
}

// segmentsProfile builds the profile from --profile/--name when given,
// then layers the duration and mark flags over it.
func segmentsProfile(opts *SegmentsOptions) (*compiler.Profile, error) {
	var p *compiler.Profile
	switch {
	case opts.Profile != "" && opts.Name != "":
		loaded, err := LoadProfile(opts.Profile, opts.Name)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load profile", err)
		}
		p = loaded
	case opts.Profile != "" || opts.Name != "":
		return nil, NewExitError(ExitCommandError, "--profile and --name must be given together")
	default:
		cfg := opts.settings()
		p = &compiler.Profile{
			Name:             "segments",
			MasterFPS:        cfg.MasterFPS,
			VirtualSpan:      cfg.VirtualSpan,
			Labels:           append([]string(nil), timeline.DefaultLabelOrder...),
			Mode:             timeline.Synced,
			KeyframesEnabled: true,
			Rate:             1,
		}
	}

	if opts.FPS > 0 {
		p.MasterFPS = opts.FPS
	}
	if opts.DurationA > 0 {
		p.DurationA = opts.DurationA
	}
	if opts.DurationB > 0 {
		p.DurationB = opts.DurationB
	}

	for _, spec := range opts.Marks {
		label, stepA, stepB, err := parseMarkFlag(spec)
		if err != nil {
			return nil, NewExitError(ExitCommandError, err.Error())
		}
		if label != timeline.LabelStart && label != timeline.LabelEnd && !contains(p.Events, label) {
			p.Events = append(p.Events, label)
		}
		p.Marks = append(p.Marks,
			compiler.Mark{Stream: timeline.StreamA, Label: label, Step: stepA},
			compiler.Mark{Stream: timeline.StreamB, Label: label, Step: stepB},
		)
	}
	return p, nil
}

// parseMarkFlag parses "label=stepA:stepB".
func parseMarkFlag(spec string) (string, float64, float64, error) {
	label, steps, ok := strings.Cut(spec, "=")
	label = timeline.NormalizeLabel(label)
	if !ok || label == "" {
		return "", 0, 0, fmt.Errorf("invalid --mark %q: want label=stepA:stepB", spec)
	}
	a, b, ok := strings.Cut(steps, ":")
	if !ok {
		return "", 0, 0, fmt.Errorf("invalid --mark %q: want label=stepA:stepB", spec)
	}
	stepA, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid --mark %q: step A: %w", spec, err)
	}
	stepB, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid --mark %q: step B: %w", spec, err)
	}
	return label, stepA, stepB, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if timeline.NormalizeLabel(v) == s {
			return true
		}
	}
	return false
}

func buildSegmentsResult(points []timeline.SyncPoint) SegmentsResult {
	result := SegmentsResult{
		Points:   make([]PointSummary, len(points)),
		Segments: []SegmentSummary{},
	}
	for i, sp := range points {
		result.Points[i] = PointSummary{Label: sp.Label, Virtual: sp.Virtual, StepA: sp.StepA, StepB: sp.StepB}
	}
	for _, s := range analysis.Segments(points) {
		result.Segments = append(result.Segments, SegmentSummary{
			From:    s.From,
			To:      s.To,
			DeltaA:  s.DeltaA,
			DeltaB:  s.DeltaB,
			Ratio:   s.Ratio,
			Percent: s.Percent,
			Tempo:   string(s.Tempo),
			Color:   s.Tempo.Color(),
		})
	}
	return result
}

func outputSegmentsText(f *OutputFormatter, result SegmentsResult) error {
	if len(result.Segments) == 0 {
		fmt.Fprintln(f.Writer, "No segments: both streams need a duration.")
		return nil
	}
	rows := make([][]string, len(result.Segments))
	for i, s := range result.Segments {
		rows[i] = []string{
			s.From,
			s.To,
			strconv.Itoa(s.DeltaA),
			strconv.Itoa(s.DeltaB),
			fmt.Sprintf("%d%%", s.Percent),
			s.Tempo,
		}
	}
	return f.Table([]string{"FROM", "TO", "ΔA", "ΔB", "B/A", "TEMPO"}, rows)
}
