package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// ProfileSummary is the JSON form of a compiled profile.
type ProfileSummary struct {
	Name        string        `json:"name"`
	MasterFPS   float64       `json:"fps"`
	VirtualSpan float64       `json:"span"`
	Mode        string        `json:"mode"`
	Keyframes   bool          `json:"keyframes"`
	Loop        bool          `json:"loop"`
	Rate        float64       `json:"rate"`
	Labels      []string      `json:"labels"`
	DurationA   float64       `json:"duration_a"`
	DurationB   float64       `json:"duration_b"`
	Events      []string      `json:"events"`
	Marks       []MarkSummary `json:"marks"`
}

// MarkSummary is the JSON form of a profile mark.
type MarkSummary struct {
	Stream string  `json:"stream"`
	Label  string  `json:"label"`
	Step   float64 `json:"step"`
}

// CompilationResult holds the compiled profiles.
type CompilationResult struct {
	Profiles []ProfileSummary `json:"profiles"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <profiles-dir>",
		Short: "Compile and validate CUE session profiles",
		Long: `Compile every CUE session profile in a directory.

Profiles live under a top-level "profile" struct:

  profile: swing: {
    mode: "synced"
    durations: {A: 20, B: 15}
    events: ["Top", "Impact"]
  }

All profiles are compiled and validated; every error is reported.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write compiled profiles as JSON to this file")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadProfiles(dir, LoadModeCollectAll)

	// Directory not found, no files, etc.
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)
	for _, p := range loadResult.Profiles {
		formatter.VerboseLog("Compiled profile: %s", p.Name)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{Profiles: make([]ProfileSummary, len(loadResult.Profiles))}
	for i := range loadResult.Profiles {
		result.Profiles[i] = summarize(&loadResult.Profiles[i])
	}

	if opts.Output != "" {
		if err := writeProfilesToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

func summarize(p *compiler.Profile) ProfileSummary {
	s := ProfileSummary{
		Name:        p.Name,
		MasterFPS:   p.MasterFPS,
		VirtualSpan: p.VirtualSpan,
		Mode:        p.Mode.String(),
		Keyframes:   p.KeyframesEnabled,
		Loop:        p.Loop,
		Rate:        p.Rate,
		Labels:      p.Labels,
		DurationA:   p.DurationA,
		DurationB:   p.DurationB,
		Events:      p.Events,
		Marks:       make([]MarkSummary, len(p.Marks)),
	}
	if s.Events == nil {
		s.Events = []string{}
	}
	for i, m := range p.Marks {
		s.Marks[i] = MarkSummary{Stream: string(m.Stream), Label: m.Label, Step: m.Step}
	}
	return s
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d profile(s)\n\n", len(result.Profiles))

	for _, p := range result.Profiles {
		events := "no events"
		if len(p.Events) > 0 {
			events = strings.Join(p.Events, ", ")
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s, %s, %d mark(s), durations A=%gs B=%gs\n",
			p.Name, p.Mode, events, len(p.Marks), p.DurationA, p.DurationB)
	}
	fmt.Fprintln(formatter.Writer)

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote compiled profiles to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{
				Code:    code,
				Message: message,
			}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return MapFieldToErrorCode(compileErr.Field), compileErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeProfilesToFile writes the compiled profiles as indented JSON.
func writeProfilesToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling profiles: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
