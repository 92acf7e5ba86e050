package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/platform/config"
	"github.com/roach88/lockstep/internal/platform/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config is loaded from .env and the environment before any command
	// runs. Nil means defaults (commands built directly in tests).
	Config *config.Config

	// Logger is the process logger. Nil means discard.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the lockstep CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lockstep",
		Short: "lockstep - synchronized dual-stream playback",
		Long: `Drive two media streams from one master clock, either side by side at
native speed or warped so labeled moments line up.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			// Missing .env is fine: system env and defaults apply
			_ = config.Load()
			cfg := config.FromEnv()
			opts.Config = &cfg

			level := cfg.LogLevel
			if opts.Verbose {
				level = "debug"
			}
			opts.Logger = logger.NewWithWriter(cmd.ErrOrStderr(), level, cfg.LogFormat)
			slog.SetDefault(opts.Logger)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewSegmentsCommand(opts))
	cmd.AddCommand(NewShellCommand(opts))

	return cmd
}

// settings returns the loaded configuration or the defaults.
func (o *RootOptions) settings() config.Config {
	if o.Config != nil {
		return *o.Config
	}
	return config.Defaults()
}

// log returns the process logger or a discarding one.
func (o *RootOptions) log() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logger.Discard()
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
