package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/harness"
	"github.com/roach88/lockstep/internal/store"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database string // record the trace here; empty uses LOCKSTEP_DB, then memory
	Profile  string // CUE profiles directory
	Name     string // profile name within Profile
}

// SimulateResult is the JSON payload of the simulate command.
type SimulateResult struct {
	Scenario  string               `json:"scenario"`
	SessionID string               `json:"session_id,omitempty"`
	Pass      bool                 `json:"pass"`
	Final     harness.FinalState   `json:"final"`
	Trace     []harness.TraceEvent `json:"trace"`
	Errors    []string             `json:"errors,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run one scenario and print its trace",
		Long: `Run a scenario against a fresh engine with a manual frame source and
print every notification it produced.

With --db the trace is recorded as a new session in that SQLite file and
can be read back with "lockstep trace". With --profile and --name the
engine setup comes from a CUE session profile instead of the scenario's
setup block.

Examples:
  lockstep simulate scenarios/swing.yaml
  lockstep simulate scenarios/swing.yaml --db ./lockstep.db
  lockstep simulate scenarios/steps.yaml --profile ./profiles --name swing`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to record the trace in")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "directory of CUE session profiles")
	cmd.Flags().StringVar(&opts.Name, "name", "", "profile name (with --profile)")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	log := opts.log()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	if opts.Profile != "" || opts.Name != "" {
		if opts.Profile == "" || opts.Name == "" {
			return NewExitError(ExitCommandError, "--profile and --name must be given together")
		}
		p, err := LoadProfile(opts.Profile, opts.Name)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load profile", err)
		}
		scenario.Profile = p
		formatter.VerboseLog("Using profile %s from %s", p.Name, opts.Profile)
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = opts.settings().DBPath
	}

	var result *harness.Result
	if dbPath == "" {
		result, err = harness.Run(scenario)
	} else {
		result, err = simulateWithStore(cmd.Context(), dbPath, scenario, log)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	out := SimulateResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Final:    result.Final,
		Trace:    result.Trace,
		Errors:   result.Errors,
	}
	if dbPath != "" {
		out.SessionID = result.SessionID
	}

	if opts.Format == "json" {
		if err := formatter.Success(out); err != nil {
			return err
		}
	} else if err := outputSimulateText(formatter, out); err != nil {
		return err
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func simulateWithStore(ctx context.Context, dbPath string, scenario *harness.Scenario, log *slog.Logger) (*harness.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	result, err := harness.RunWithStore(ctx, st, scenario)
	if err != nil {
		return nil, err
	}
	log.Info("trace recorded", "session", result.SessionID, "db", dbPath, "notifications", len(result.Trace))
	return result, nil
}

func outputSimulateText(f *OutputFormatter, out SimulateResult) error {
	w := f.Writer
	fmt.Fprintf(w, "Scenario: %s\n", out.Scenario)
	if out.SessionID != "" {
		fmt.Fprintf(w, "Session:  %s\n", out.SessionID)
	}
	fmt.Fprintln(w)

	if err := f.Table(traceHeader, traceRows(out.Trace)); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Final: position=%s range=%s playing=%t mode=%s rate=%s\n",
		out.Final.Position, out.Final.TotalRange, out.Final.Playing, out.Final.Mode, out.Final.Rate)

	if out.Pass {
		fmt.Fprintln(w, "✓ All assertions passed")
		return nil
	}
	fmt.Fprintln(w, "✗ Assertions failed")
	for _, e := range out.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	return nil
}

var traceHeader = []string{"SEQ", "ACTION", "POSITION", "DETAIL"}

// traceRows renders trace events as table rows.
func traceRows(trace []harness.TraceEvent) [][]string {
	rows := make([][]string, len(trace))
	for i, ev := range trace {
		rows[i] = []string{fmt.Sprint(ev.Seq), ev.Action, ev.Position, traceDetail(ev)}
	}
	return rows
}

func traceDetail(ev harness.TraceEvent) string {
	switch {
	case ev.Step != nil:
		return fmt.Sprintf("stream=%s step=%d seconds=%s", ev.Stream, *ev.Step, ev.Seconds)
	case ev.Rate != "":
		return "rate=" + ev.Rate
	case ev.Reason != "":
		return "reason=" + ev.Reason
	}
	return ""
}
