package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/analysis"
	"github.com/roach88/lockstep/internal/compiler"
	"github.com/roach88/lockstep/internal/host"
	"github.com/roach88/lockstep/internal/media"
	"github.com/roach88/lockstep/internal/platform/metrics"
	"github.com/roach88/lockstep/internal/store"
	"github.com/roach88/lockstep/internal/timeline"
)

// SpeedPresets are the rates faster and slower step through.
var SpeedPresets = []float64{0.1, 0.25, 0.5, 1, 2, 4, 8}

// ShellOptions holds flags for the shell command.
type ShellOptions struct {
	*RootOptions
	DurationA   float64
	DurationB   float64
	Database    string
	MetricsAddr string
	Profile     string
	Name        string
	Resume      string // session ID to keep appending to
}

// NewShellCommand creates the shell command.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShellOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Drive a live engine with two simulated players",
		Long: `Start an interactive shell around a real-time engine. Two simulated
players follow the clock the way real video elements would.

Type "help" inside the shell for the command list.

Examples:
  lockstep shell --a 20 --b 15
  lockstep shell --a 20 --b 15 --db ./lockstep.db --metrics-addr :9090
  lockstep shell --profile ./profiles --name swing
  lockstep shell --a 20 --b 15 --db ./lockstep.db --resume 0190...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(opts, cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.DurationA, "a", 0, "duration of stream A in seconds")
	cmd.Flags().Float64Var(&opts.DurationB, "b", 0, "duration of stream B in seconds")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the session in this SQLite database (default $LOCKSTEP_DB)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default $LOCKSTEP_METRICS_ADDR)")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "directory of CUE session profiles")
	cmd.Flags().StringVar(&opts.Name, "name", "", "profile name (with --profile)")
	cmd.Flags().StringVar(&opts.Resume, "resume", "", "append to this recorded session instead of starting a new one (needs --db)")

	return cmd
}

func runShell(opts *ShellOptions, cmd *cobra.Command) error {
	log := opts.log()
	cfg := opts.settings()

	p, err := shellProfile(opts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var st *store.Store
	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.DBPath
	}
	if dbPath != "" {
		st, err = store.Open(dbPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
	}
	if opts.Resume != "" && st == nil {
		return NewExitError(ExitCommandError, "--resume needs a database: pass --db or set LOCKSTEP_DB")
	}

	sh, err := NewShell(ctx, ShellConfig{
		Profile:       p,
		RefreshHz:     cfg.RefreshHz,
		HistoryLimit:  cfg.HistoryLimit,
		Store:         st,
		ResumeSession: opts.Resume,
		Out:           cmd.OutOrStdout(),
		Logger:        log,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start shell", err)
	}

	loopDone := make(chan error, 1)
	go func() { loopDone <- sh.Loop().Run(ctx) }()

	addr := opts.MetricsAddr
	if addr == "" {
		addr = cfg.MetricsAddr
	}
	if addr != "" {
		h := metrics.Router(sh.Metrics(), log, sh.sampleGauges(ctx))
		go func() {
			if err := metrics.Serve(ctx, addr, h, log); err != nil {
				log.Error("metrics endpoint failed", "addr", addr, "error", err)
			}
		}()
	}

	replErr := sh.repl(ctx, cmd.OutOrStdout())

	if err := sh.Close(ctx); err != nil {
		log.Error("error closing shell", "error", err)
	}
	<-loopDone
	return replErr
}

// shellProfile builds the session setup from --profile/--name and the
// duration flags.
func shellProfile(opts *ShellOptions) (*compiler.Profile, error) {
	sopts := &SegmentsOptions{
		RootOptions: opts.RootOptions,
		DurationA:   opts.DurationA,
		DurationB:   opts.DurationB,
		Profile:     opts.Profile,
		Name:        opts.Name,
	}
	p, err := segmentsProfile(sopts)
	if err != nil {
		return nil, err
	}
	if opts.Profile == "" {
		p.Name = "shell"
		p.Mode = timeline.Unsynced
	}
	if verrs := compiler.Validate(p); len(verrs) > 0 {
		return nil, NewExitError(ExitCommandError, verrs[0].Error())
	}
	if p.DurationA <= 0 || p.DurationB <= 0 {
		return nil, NewExitError(ExitCommandError, "both stream durations are required: pass --a and --b")
	}
	return p, nil
}

// ShellConfig configures NewShell.
type ShellConfig struct {
	Profile      *compiler.Profile
	RefreshHz    float64
	HistoryLimit int
	Store        *store.Store // nil: nothing is recorded
	// ResumeSession appends to an existing session, continuing its seq.
	ResumeSession string
	Out           io.Writer
	Logger        *slog.Logger
}

// Shell is an interactive engine session. The engine, players and
// adapters belong to the host loop goroutine; Exec reaches them through
// Loop.Call.
type Shell struct {
	loop     *host.Loop
	engine   *timeline.Engine
	players  map[timeline.StreamID]*media.SimPlayer
	adapters map[timeline.StreamID]*media.Adapter
	metrics  *metrics.Metrics
	recorder *store.Recorder
	history  int
	out      io.Writer
	log      *slog.Logger
}

// NewShell builds the loop, engine, players and instruments for one
// session. The caller runs Loop().Run and calls Close when done.
func NewShell(ctx context.Context, cfg ShellConfig) (*Shell, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	p := *cfg.Profile

	engOpts := append(p.Options(), timeline.WithLogger(log))
	var sessionID string
	if cfg.Store != nil {
		id, lastSeq, err := openSession(ctx, cfg.Store, &p, cfg.ResumeSession)
		if err != nil {
			return nil, err
		}
		sessionID = id
		engOpts = append(engOpts, timeline.WithClock(timeline.NewClockAt(lastSeq)))
	}

	m := metrics.New()
	loop := host.NewLoop(
		host.WithRefreshHz(cfg.RefreshHz),
		host.WithLogger(log),
		host.WithFrameHook(m.ObserveFrame),
	)
	eng := timeline.New(loop, engOpts...)

	sh := &Shell{
		loop:     loop,
		engine:   eng,
		players:  make(map[timeline.StreamID]*media.SimPlayer),
		adapters: make(map[timeline.StreamID]*media.Adapter),
		metrics:  m,
		history:  cfg.HistoryLimit,
		out:      out,
		log:      log,
	}

	if sessionID != "" {
		sh.recorder = store.NewRecorder(cfg.Store, sessionID)
		eng.Subscribe(sh.recorder.Record)
		log.Info("recording session", "session", sessionID, "resumed", cfg.ResumeSession != "")
	}
	eng.Subscribe(m.Observe)

	durations := map[timeline.StreamID]float64{timeline.StreamA: p.DurationA, timeline.StreamB: p.DurationB}
	for _, s := range timeline.Streams {
		player := media.NewSimPlayer(durations[s], loop.Now)
		sh.players[s] = player
		sh.adapters[s] = media.Attach(eng, s, player,
			media.WithAdapterLogger(log),
			media.WithCorrectionHook(m.ObserveCorrection),
		)
	}

	// Attach registered the durations already
	p.DurationA, p.DurationB = 0, 0
	if err := p.Apply(eng); err != nil {
		sh.closeEngine()
		return nil, err
	}
	return sh, nil
}

// openSession creates a new recorded session, or looks up resumeID and
// returns the last seq stored for it so new notifications follow on.
func openSession(ctx context.Context, st *store.Store, p *compiler.Profile, resumeID string) (string, int64, error) {
	if resumeID == "" {
		sess, err := st.CreateSession(ctx, store.Session{
			Name:        p.Name,
			MasterFPS:   p.MasterFPS,
			VirtualSpan: p.VirtualSpan,
			DurationA:   p.DurationA,
			DurationB:   p.DurationB,
		})
		if err != nil {
			return "", 0, err
		}
		return sess.ID, 0, nil
	}

	sess, err := st.GetSession(ctx, resumeID)
	if err != nil {
		return "", 0, err
	}
	if sess.MasterFPS != p.MasterFPS || sess.VirtualSpan != p.VirtualSpan {
		return "", 0, fmt.Errorf("session %s was recorded at %g fps, span %g; profile has %g fps, span %g",
			sess.ID, sess.MasterFPS, sess.VirtualSpan, p.MasterFPS, p.VirtualSpan)
	}
	lastSeq, err := st.LastSeq(ctx, sess.ID)
	if err != nil {
		return "", 0, err
	}
	if err := st.UpdateSessionDurations(ctx, sess.ID, p.DurationA, p.DurationB); err != nil {
		return "", 0, err
	}
	return sess.ID, lastSeq, nil
}

// Loop returns the host loop driving the engine.
func (sh *Shell) Loop() *host.Loop { return sh.loop }

// Metrics returns the session instruments.
func (sh *Shell) Metrics() *metrics.Metrics { return sh.metrics }

// SessionID returns the recorded session, or "" when not recording.
func (sh *Shell) SessionID() string {
	if sh.recorder == nil {
		return ""
	}
	return sh.recorder.SessionID()
}

// Close flushes the recorder, detaches the players and stops the loop.
// Run must still be running or the flush is skipped.
func (sh *Shell) Close(ctx context.Context) error {
	var flushErr error
	if err := sh.loop.Call(ctx, func() {
		flushErr = sh.flush(ctx)
		sh.closeEngine()
	}); err != nil && !errors.Is(err, host.ErrClosed) {
		sh.loop.Stop()
		return err
	}
	sh.loop.Stop()
	return flushErr
}

func (sh *Shell) closeEngine() {
	for _, a := range sh.adapters {
		a.Detach()
	}
	sh.engine.Close()
}

// flush runs on the loop goroutine.
func (sh *Shell) flush(ctx context.Context) error {
	if sh.recorder == nil {
		return nil
	}
	return sh.recorder.Flush(ctx)
}

// sampleGauges refreshes sampled metrics before a scrape.
func (sh *Shell) sampleGauges(ctx context.Context) func() {
	return func() {
		_ = sh.loop.Call(ctx, func() {
			sh.metrics.SetPlaying(sh.engine.Playing())
		})
	}
}

func (sh *Shell) repl(ctx context.Context, out io.Writer) error {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".lockstep_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:       "lockstep> ",
		HistoryFile:  historyFile,
		HistoryLimit: sh.history,
		AutoComplete: shellCompleter(),
		Stdout:       out,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize readline", err)
	}
	defer rl.Close()

	fmt.Fprintln(out, `lockstep shell. Type "help" for commands.`)
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "bye")
				return nil
			}
			return WrapExitError(ExitCommandError, "reading input", err)
		}

		quit, err := sh.Exec(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func shellCompleter() readline.AutoCompleter {
	onOff := []readline.PrefixCompleterInterface{readline.PcItem("on"), readline.PcItem("off")}
	streams := []readline.PrefixCompleterInterface{readline.PcItem("A"), readline.PcItem("B")}
	return readline.NewPrefixCompleter(
		readline.PcItem("play"),
		readline.PcItem("pause"),
		readline.PcItem("seek"),
		readline.PcItem("step"),
		readline.PcItem("rate"),
		readline.PcItem("speeds"),
		readline.PcItem("faster"),
		readline.PcItem("slower"),
		readline.PcItem("loop", onOff...),
		readline.PcItem("sync"),
		readline.PcItem("keyframes", onOff...),
		readline.PcItem("add"),
		readline.PcItem("del"),
		readline.PcItem("move", streams...),
		readline.PcItem("release"),
		readline.PcItem("marks"),
		readline.PcItem("status"),
		readline.PcItem("segments"),
		readline.PcItem("metrics"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

const shellHelp = `Commands:
  play | pause              start or stop the clock
  seek <position>           jump to a clock position
  step <n>                  move n frames (negative steps back)
  rate <r>                  set the playback rate
  speeds                    list rate presets
  faster | slower           move to the next rate preset
  loop [on|off]             wrap at the end of the range
  sync                      toggle synced/unsynced addressing
  keyframes [on|off]        enable or bypass the warp map
  add <label>               add an event marker to both streams
  del <label>               delete an event marker
  move <A|B> <label> <step> drag a marker to a native step
  release                   end a drag and resync both players
  marks                     list markers per stream
  status                    clock and player state
  segments                  pacing between sync points
  metrics                   session counters
  help                      this text
  exit | quit               leave the shell`

// Exec runs one shell command line. quit reports whether the shell should
// exit. Errors describe bad input; the session stays usable.
func (sh *Shell) Exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "exit", "quit":
		return true, nil
	case "help":
		fmt.Fprintln(sh.out, shellHelp)
		return false, nil
	case "speeds":
		parts := make([]string, len(SpeedPresets))
		for i, r := range SpeedPresets {
			parts[i] = strconv.FormatFloat(r, 'g', -1, 64) + "x"
		}
		fmt.Fprintln(sh.out, strings.Join(parts, " "))
		return false, nil
	case "metrics":
		return false, sh.printMetrics(ctx)
	}

	var cmdErr error
	if err := sh.loop.Call(ctx, func() {
		cmdErr = sh.apply(name, args)
		if cmdErr == nil {
			cmdErr = sh.flush(ctx)
		}
	}); err != nil {
		return false, err
	}
	return false, cmdErr
}

// apply runs on the loop goroutine.
func (sh *Shell) apply(name string, args []string) error {
	e := sh.engine
	switch name {
	case "play":
		e.Play()
	case "pause":
		e.Pause()
	case "seek":
		pos, err := floatArg(args, 0, "position")
		if err != nil {
			return err
		}
		e.Seek(pos)
	case "step":
		n := 1
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid frame count %q", args[0])
			}
			n = v
		}
		e.StepFrames(n)
	case "rate":
		r, err := floatArg(args, 0, "rate")
		if err != nil {
			return err
		}
		if r <= 0 {
			return fmt.Errorf("rate must be positive, got %v", r)
		}
		e.SetPlaybackRate(r)
	case "faster", "slower":
		e.SetPlaybackRate(nextPreset(e.PlaybackRate(), name == "faster"))
		fmt.Fprintf(sh.out, "rate %gx\n", e.PlaybackRate())
	case "loop":
		on, err := toggleArg(args, e.Loop())
		if err != nil {
			return err
		}
		e.SetLoop(on)
	case "sync":
		e.ToggleAddressingMode()
		fmt.Fprintf(sh.out, "mode %s, range %.4f\n", e.Mode(), e.TotalRange())
	case "keyframes":
		on, err := toggleArg(args, e.KeyframesEnabled())
		if err != nil {
			return err
		}
		e.SetKeyframesEnabled(on)
	case "add", "del":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <label>", name)
		}
		return sh.editEvent(name, timeline.NormalizeLabel(args[0]))
	case "move":
		return sh.move(args)
	case "release":
		e.ResetAfterInteractiveDrag()
	case "marks":
		sh.printMarks()
	case "status":
		sh.printStatus()
	case "segments":
		sh.printSegments()
	default:
		return fmt.Errorf("unknown command %q (try help)", name)
	}
	return nil
}

func (sh *Shell) editEvent(name, label string) error {
	e := sh.engine
	_, had := e.Keyframe(timeline.StreamA, label)
	if name == "add" {
		e.AddEvent(label)
		if _, ok := e.Keyframe(timeline.StreamA, label); !ok || had {
			return fmt.Errorf("cannot add %q: anchor, duplicate or not in %v", label, e.LabelOrder())
		}
		return nil
	}
	e.DeleteEvent(label)
	if !had {
		return fmt.Errorf("no event %q", label)
	}
	return nil
}

func (sh *Shell) move(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: move <A|B> <label> <step>")
	}
	s, err := timeline.ParseStreamID(args[0])
	if err != nil {
		return err
	}
	step, err := floatArg(args, 2, "step")
	if err != nil {
		return err
	}
	kf, ok := sh.engine.Keyframe(s, timeline.NormalizeLabel(args[1]))
	if !ok {
		return fmt.Errorf("no marker %q on stream %s", args[1], s)
	}
	sh.engine.MoveKeyframe(s, kf.ID, step)
	moved, _ := sh.engine.Keyframe(s, kf.Label)
	fmt.Fprintf(sh.out, "%s/%s at step %d (previewing, type release to resync)\n", s, kf.Label, moved.Step)
	return nil
}

func (sh *Shell) printStatus() {
	e := sh.engine
	st := e.State()
	fmt.Fprintf(sh.out, "position %.4f / %.4f  %s  mode=%s rate=%gx loop=%t keyframes=%t\n",
		st.Position, st.TotalRange, playState(st.Playing), e.Mode(), e.PlaybackRate(), e.Loop(), e.KeyframesEnabled())
	for _, s := range timeline.Streams {
		p := sh.players[s]
		fmt.Fprintf(sh.out, "  %s: target %.3fs  player %.3fs/%.3fs  rate %.3f  %s\n",
			s, e.PositionFor(s, st.Position), p.Position(), p.Duration(), e.InstantaneousRate(s), playState(p.Playing()))
	}
}

func (sh *Shell) printMarks() {
	for _, s := range timeline.Streams {
		kfs := sh.engine.Keyframes(s)
		parts := make([]string, len(kfs))
		for i, kf := range kfs {
			parts[i] = fmt.Sprintf("%s@%d", kf.Label, kf.Step)
		}
		trim := sh.engine.Trim(s)
		fmt.Fprintf(sh.out, "%s [%d..%d]: %s\n", s, trim.Start, trim.End, strings.Join(parts, " "))
	}
}

func (sh *Shell) printSegments() {
	segs := analysis.Segments(sh.engine.SyncPoints())
	if len(segs) == 0 {
		fmt.Fprintln(sh.out, "no segments")
		return
	}
	for _, s := range segs {
		fmt.Fprintf(sh.out, "%s -> %s  A %d  B %d  %d%% %s\n", s.From, s.To, s.DeltaA, s.DeltaB, s.Percent, s.Tempo)
	}
}

// printMetrics samples the gauges on the loop, then prints every counter
// and gauge in the registry.
func (sh *Shell) printMetrics(ctx context.Context) error {
	sh.sampleGauges(ctx)()
	families, err := sh.metrics.Registry().Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case m.GetGauge() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetGauge().GetValue()))
			case m.GetHistogram() != nil:
				lines = append(lines, fmt.Sprintf("%s_count %d", name, m.GetHistogram().GetSampleCount()))
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(sh.out, l)
	}
	return nil
}

func playState(playing bool) string {
	if playing {
		return "playing"
	}
	return "paused"
}

func floatArg(args []string, i int, what string) (float64, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("missing %s", what)
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, args[i])
	}
	return v, nil
}

// toggleArg parses on/off; no argument flips current.
func toggleArg(args []string, current bool) (bool, error) {
	if len(args) == 0 {
		return !current, nil
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", args[0])
}

// nextPreset returns the first preset above (or below) rate, or the last
// preset in that direction.
func nextPreset(rate float64, up bool) float64 {
	if up {
		for _, p := range SpeedPresets {
			if p > rate+1e-9 {
				return p
			}
		}
		return SpeedPresets[len(SpeedPresets)-1]
	}
	for i := len(SpeedPresets) - 1; i >= 0; i-- {
		if SpeedPresets[i] < rate-1e-9 {
			return SpeedPresets[i]
		}
	}
	return SpeedPresets[0]
}
