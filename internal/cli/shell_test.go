package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/platform/logger"
	"github.com/roach88/lockstep/internal/store"
	"github.com/roach88/lockstep/internal/timeline"
)

// startShell runs a shell over A=10s and B=5s on a live loop until the
// test ends.
func startShell(t *testing.T, st *store.Store) (*Shell, *bytes.Buffer) {
	t.Helper()
	return startShellConfig(t, ShellConfig{Store: st})
}

// startShellConfig is startShell with extra settings; Profile, Out and
// Logger are filled in.
func startShellConfig(t *testing.T, cfg ShellConfig) (*Shell, *bytes.Buffer) {
	t.Helper()
	p, err := shellProfile(&ShellOptions{RootOptions: &RootOptions{}, DurationA: 10, DurationB: 5})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	buf := &bytes.Buffer{}
	cfg.Profile = p
	cfg.RefreshHz = 120
	cfg.Out = buf
	cfg.Logger = logger.Discard()
	sh, err := NewShell(ctx, cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sh.Loop().Run(ctx) }()
	t.Cleanup(func() {
		assert.NoError(t, sh.Close(ctx))
		<-done
		cancel()
	})
	return sh, buf
}

func exec(t *testing.T, sh *Shell, buf *bytes.Buffer, line string) string {
	t.Helper()
	buf.Reset()
	quit, err := sh.Exec(context.Background(), line)
	require.NoError(t, err, line)
	require.False(t, quit)
	return buf.String()
}

func TestShell_SeekAndStatus(t *testing.T) {
	sh, buf := startShell(t, nil)

	exec(t, sh, buf, "seek 120")
	out := exec(t, sh, buf, "status")

	assert.Contains(t, out, "position 120.0000 / 600.0000  paused  mode=unsynced rate=1x loop=false keyframes=true")
	assert.Contains(t, out, "player 2.000s/10.000s")
	assert.Contains(t, out, "player 2.000s/5.000s")
}

func TestShell_ModeAndRate(t *testing.T) {
	sh, buf := startShell(t, nil)

	assert.Equal(t, "mode synced, range 1000.0000\n", exec(t, sh, buf, "sync"))
	assert.Equal(t, "rate 2x\n", exec(t, sh, buf, "faster"))
	exec(t, sh, buf, "slower")
	assert.Equal(t, "rate 0.5x\n", exec(t, sh, buf, "slower"))
	exec(t, sh, buf, "rate 3")
	assert.Equal(t, "rate 4x\n", exec(t, sh, buf, "faster"))

	assert.Equal(t, "0.1x 0.25x 0.5x 1x 2x 4x 8x\n", exec(t, sh, buf, "speeds"))

	exec(t, sh, buf, "loop on")
	exec(t, sh, buf, "keyframes")
	out := exec(t, sh, buf, "status")
	assert.Contains(t, out, "mode=synced rate=4x loop=true keyframes=false")
}

func TestShell_MarkersAndDrag(t *testing.T) {
	sh, buf := startShell(t, nil)

	exec(t, sh, buf, "add Top")
	out := exec(t, sh, buf, "move b Top 100")
	assert.Contains(t, out, "B/Top at step 100 (previewing")

	var previewing bool
	require.NoError(t, sh.Loop().Call(context.Background(), func() {
		previewing = sh.adapters[timeline.StreamB].Previewing()
	}))
	assert.True(t, previewing)

	exec(t, sh, buf, "release")
	require.NoError(t, sh.Loop().Call(context.Background(), func() {
		previewing = sh.adapters[timeline.StreamB].Previewing()
	}))
	assert.False(t, previewing)

	out = exec(t, sh, buf, "marks")
	assert.Contains(t, out, "A [0..600]: Start@0 Top@300 End@600")
	assert.Contains(t, out, "B [0..300]: Start@0 Top@100 End@300")

	out = exec(t, sh, buf, "segments")
	assert.Contains(t, out, "Start -> Top  A 300  B 100  33% shorter")
	assert.Contains(t, out, "Top -> End  A 300  B 200  67% shorter")

	exec(t, sh, buf, "del Top")
	out = exec(t, sh, buf, "marks")
	assert.Contains(t, out, "A [0..600]: Start@0 End@600")
}

func TestShell_Errors(t *testing.T) {
	sh, _ := startShell(t, nil)
	ctx := context.Background()

	tests := []struct {
		line string
		want string
	}{
		{"bogus", "unknown command"},
		{"seek", "missing position"},
		{"seek x", "invalid position"},
		{"step x", "invalid frame count"},
		{"rate -1", "rate must be positive"},
		{"loop maybe", "want on or off"},
		{"add Start", "cannot add"},
		{"add Bogus", "cannot add"},
		{"del Top", "no event"},
		{"move C Top 1", "unknown stream"},
		{"move A Top 1", "no marker"},
		{"move A", "usage: move"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			quit, err := sh.Exec(ctx, tt.line)
			require.Error(t, err)
			assert.False(t, quit)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := sh.Exec(ctx, "add Top")
	require.NoError(t, err)
	_, err = sh.Exec(ctx, "add Top")
	assert.ErrorContains(t, err, "cannot add")
}

func TestShell_QuitAndBlank(t *testing.T) {
	sh, buf := startShell(t, nil)

	quit, err := sh.Exec(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, quit)

	for _, line := range []string{"exit", "QUIT"} {
		quit, err = sh.Exec(context.Background(), line)
		require.NoError(t, err)
		assert.True(t, quit)
	}

	assert.Contains(t, exec(t, sh, buf, "help"), "move <A|B> <label> <step>")
}

func TestShell_Metrics(t *testing.T) {
	sh, buf := startShell(t, nil)

	exec(t, sh, buf, "play")
	exec(t, sh, buf, "pause")
	out := exec(t, sh, buf, "metrics")

	assert.Contains(t, out, "lockstep_notifications_total{action=play} 1")
	assert.Contains(t, out, "lockstep_notifications_total{action=pause} 1")
	assert.Contains(t, out, "lockstep_playing 0")
}

func TestShell_RecordsSession(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "shell.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sh, buf := startShell(t, st)
	require.NotEmpty(t, sh.SessionID())

	exec(t, sh, buf, "seek 50")
	exec(t, sh, buf, "step 2")

	ctx := context.Background()
	counts, err := st.CountNotifications(ctx, sh.SessionID())
	require.NoError(t, err)
	assert.Equal(t, 2, counts["seek"])
	assert.Equal(t, 1, counts["tick"])

	sess, err := st.GetSession(ctx, sh.SessionID())
	require.NoError(t, err)
	assert.Equal(t, "shell", sess.Name)
	assert.Equal(t, 10.0, sess.DurationA)
}

func TestShell_ResumesSession(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "shell.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	first, buf := startShell(t, st)
	exec(t, first, buf, "seek 50")
	before, err := st.LastSeq(ctx, first.SessionID())
	require.NoError(t, err)
	require.Positive(t, before)

	second, buf2 := startShellConfig(t, ShellConfig{Store: st, ResumeSession: first.SessionID()})
	assert.Equal(t, first.SessionID(), second.SessionID())
	exec(t, second, buf2, "seek 70")

	trace, err := st.ReadTrace(ctx, first.SessionID(), store.TraceFilter{Action: "seek"})
	require.NoError(t, err)
	require.Len(t, trace, 2, "the resumed seek must not collide with recorded seqs")
	assert.Equal(t, 50.0, trace[0].Position)
	assert.Equal(t, 70.0, trace[1].Position)
	assert.Greater(t, trace[1].Seq, before)

	sessions, err := st.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestShell_ResumeErrors(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "shell.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	p, err := shellProfile(&ShellOptions{RootOptions: &RootOptions{}, DurationA: 10, DurationB: 5})
	require.NoError(t, err)

	_, err = NewShell(ctx, ShellConfig{Profile: p, Store: st, ResumeSession: "missing", Logger: logger.Discard()})
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	sess, err := st.CreateSession(ctx, store.Session{Name: "slow", MasterFPS: 30, VirtualSpan: 1000})
	require.NoError(t, err)
	_, err = NewShell(ctx, ShellConfig{Profile: p, Store: st, ResumeSession: sess.ID, Logger: logger.Discard()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recorded at 30 fps")
}

func TestShellCommand_ResumeNeedsDatabase(t *testing.T) {
	cmd := NewShellCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--a", "10", "--b", "5", "--resume", "0190"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--resume needs a database")
}

func TestNextPreset(t *testing.T) {
	assert.Equal(t, 2.0, nextPreset(1, true))
	assert.Equal(t, 0.5, nextPreset(1, false))
	assert.Equal(t, 4.0, nextPreset(3, true))
	assert.Equal(t, 2.0, nextPreset(3, false))
	assert.Equal(t, 8.0, nextPreset(8, true))
	assert.Equal(t, 0.1, nextPreset(0.1, false))
}

func TestToggleArg(t *testing.T) {
	on, err := toggleArg(nil, false)
	require.NoError(t, err)
	assert.True(t, on)

	on, err = toggleArg([]string{"off"}, true)
	require.NoError(t, err)
	assert.False(t, on)

	_, err = toggleArg([]string{"sideways"}, true)
	assert.Error(t, err)
}

func TestShellProfileRequiresDurations(t *testing.T) {
	_, err := shellProfile(&ShellOptions{RootOptions: &RootOptions{}, DurationA: 10})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
