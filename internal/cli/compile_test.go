package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var profilesDir = filepath.Join("..", "..", "testdata", "profiles")

// compileResponse mirrors CLIResponse with a typed payload.
type compileResponse struct {
	Status string            `json:"status"`
	Data   CompilationResult `json:"data"`
	Error  *CLIError         `json:"error"`
}

func writeProfiles(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profiles.cue"), []byte(src), 0644))
	return dir
}

func TestCompileValidProfiles(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{profilesDir})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ Compiled 2 profile(s)")
	assert.Contains(t, output, "swing: synced, Top, Impact, 4 mark(s), durations A=20s B=15s")
	assert.Contains(t, output, "practice: unsynced, no events, 0 mark(s), durations A=10s B=10s")
}

func TestCompileValidProfilesJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{profilesDir})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp compileResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Profiles, 2)

	swing := resp.Data.Profiles[0]
	assert.Equal(t, "swing", swing.Name)
	assert.Equal(t, "synced", swing.Mode)
	assert.Equal(t, 60.0, swing.MasterFPS)
	assert.Equal(t, []string{"Top", "Impact"}, swing.Events)
	assert.Equal(t, MarkSummary{Stream: "B", Label: "Impact", Step: 700}, swing.Marks[3])

	practice := resp.Data.Profiles[1]
	assert.True(t, practice.Loop)
	assert.Equal(t, 0.5, practice.Rate)
	assert.Empty(t, practice.Events)
}

func TestCompileOutputToFile(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "compiled.json")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{profilesDir, "--output", outputFile})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Wrote compiled profiles to")

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)

	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Len(t, result.Profiles, 2)
}

func TestCompileMissingDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestCompileNoCUEFiles(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), ErrCodeNoFiles)
}

func TestCompileValidationErrors(t *testing.T) {
	dir := writeProfiles(t, `package profiles

profile: bad: {
	fps: -1
	events: ["Start", "Top"]
}
`)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	output := buf.String()
	assert.Contains(t, output, "✗ Compilation failed")
	assert.Contains(t, output, "E101")
	assert.Contains(t, output, "E107")
	assert.Contains(t, err.Error(), "2 error(s)")
}

func TestCompileInvalidMode(t *testing.T) {
	dir := writeProfiles(t, `package profiles

profile: sideways: mode: "sideways"
`)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidMode, resp.Error.Code)
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"fps", ErrCodeInvalidValue},
		{"B", ErrCodeInvalidValue},
		{"mode", ErrCodeInvalidMode},
		{"marks.stream", ErrCodeInvalidMark},
		{"cue", ErrCodeBuildFailed},
		{"other", ErrCodeGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, MapFieldToErrorCode(tt.field))
		})
	}
}

func TestLoadProfile(t *testing.T) {
	p, err := LoadProfile(profilesDir, "practice")
	require.NoError(t, err)
	assert.Equal(t, "practice", p.Name)
	assert.Equal(t, 10.0, p.DurationA)

	_, err = LoadProfile(profilesDir, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}
