package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "lockstep", cmd.Use)
	assert.Contains(t, cmd.Long, "master clock")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "simulate", "test", "trace", "segments", "shell"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestCompileCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	compileCmd, _, err := cmd.Find([]string{"compile"})
	require.NoError(t, err)

	outputFlag := compileCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)
}

func TestSimulateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	simCmd, _, err := cmd.Find([]string{"simulate"})
	require.NoError(t, err)

	for _, name := range []string{"db", "profile", "name"} {
		assert.NotNil(t, simCmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestSegmentsCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	segCmd, _, err := cmd.Find([]string{"segments"})
	require.NoError(t, err)

	markFlag := segCmd.Flags().Lookup("mark")
	require.NotNil(t, markFlag)
	assert.Equal(t, "stringArray", markFlag.Value.Type())

	for _, name := range []string{"a", "b", "fps", "profile", "name"} {
		assert.NotNil(t, segCmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestShellCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	shellCmd, _, err := cmd.Find([]string{"shell"})
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "db", "metrics-addr", "profile", "name", "resume"} {
		assert.NotNil(t, shellCmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--format", "xml", "segments", "--a", "1", "--b", "1"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
