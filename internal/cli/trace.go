package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/harness"
	"github.com/roach88/lockstep/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // optional - list sessions when empty
	Action   string // optional - filter to specific action
}

// SessionSummary is one row of the session listing.
type SessionSummary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	MasterFPS   float64 `json:"fps"`
	VirtualSpan float64 `json:"span"`
	DurationA   float64 `json:"duration_a"`
	DurationB   float64 `json:"duration_b"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session SessionSummary       `json:"session"`
	Trace   []harness.TraceEvent `json:"trace"`
	Stats   TraceStats           `json:"stats"`
}

// TraceStats holds per-action notification counts for the session.
type TraceStats struct {
	Total    int            `json:"total"`
	ByAction map[string]int `json:"by_action"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print a recorded notification trace",
		Long: `Print the notifications recorded for a session, ordered by sequence
number. Without --session, list the recorded sessions instead.

Examples:
  lockstep trace --db ./lockstep.db
  lockstep trace --db ./lockstep.db --session 0190...
  lockstep trace --db ./lockstep.db --session 0190... --action seek
  lockstep trace --db ./lockstep.db --session 0190... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $LOCKSTEP_DB)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session ID to print")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter to one action (tick, play, pause, rate, seek, update, preview)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = opts.settings().DBPath
	}
	if dbPath == "" {
		return NewExitError(ExitCommandError, "no database: pass --db or set LOCKSTEP_DB")
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Session == "" {
		return listSessions(ctx, st, formatter)
	}

	sess, err := st.GetSession(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to get session", err)
	}

	notifications, err := st.ReadTrace(ctx, sess.ID, store.TraceFilter{Action: opts.Action})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	counts, err := st.CountNotifications(ctx, sess.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count notifications", err)
	}

	conv := harness.NewResult()
	for _, n := range notifications {
		conv.AddTrace(n)
	}

	result := TraceResult{
		Session: toSessionSummary(sess),
		Trace:   conv.Trace,
		Stats:   TraceStats{ByAction: counts},
	}
	for _, c := range counts {
		result.Stats.Total += c
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputTraceText(formatter, result, opts.Action)
}

func listSessions(ctx context.Context, st *store.Store, f *OutputFormatter) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	summaries := make([]SessionSummary, len(sessions))
	for i, s := range sessions {
		summaries[i] = toSessionSummary(s)
	}

	if f.Format == "json" {
		return f.Success(summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(f.Writer, "No sessions recorded.")
		return nil
	}

	rows := make([][]string, len(summaries))
	for i, s := range summaries {
		rows[i] = []string{
			s.ID,
			s.Name,
			fmt.Sprintf("%g", s.MasterFPS),
			fmt.Sprintf("%gs", s.DurationA),
			fmt.Sprintf("%gs", s.DurationB),
		}
	}
	return f.Table([]string{"SESSION", "NAME", "FPS", "A", "B"}, rows)
}

func toSessionSummary(s store.Session) SessionSummary {
	return SessionSummary{
		ID:          s.ID,
		Name:        s.Name,
		MasterFPS:   s.MasterFPS,
		VirtualSpan: s.VirtualSpan,
		DurationA:   s.DurationA,
		DurationB:   s.DurationB,
	}
}

func outputTraceText(f *OutputFormatter, result TraceResult, action string) error {
	w := f.Writer
	fmt.Fprintf(w, "Session: %s (%s)\n", result.Session.ID, result.Session.Name)
	fmt.Fprintf(w, "Streams: A=%gs B=%gs at %g fps\n\n",
		result.Session.DurationA, result.Session.DurationB, result.Session.MasterFPS)

	if len(result.Trace) == 0 {
		if action != "" {
			fmt.Fprintf(w, "No %s notifications.\n", action)
		} else {
			fmt.Fprintln(w, "No notifications.")
		}
	} else if err := f.Table(traceHeader, traceRows(result.Trace)); err != nil {
		return err
	}

	actions := make([]string, 0, len(result.Stats.ByAction))
	for a := range result.Stats.ByAction {
		actions = append(actions, a)
	}
	sort.Strings(actions)

	fmt.Fprintf(w, "\nTotal: %d notification(s)", result.Stats.Total)
	for _, a := range actions {
		fmt.Fprintf(w, ", %s=%d", a, result.Stats.ByAction[a])
	}
	fmt.Fprintln(w)
	return nil
}
