package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/config"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DBPath  string // overrides TALLY_DB
	EnvFile string // dotenv file, default .env

	// Resolved by the root command before any subcommand runs.
	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tally CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tally",
		Short: "tally - budget change history",
		Long: `Record budget changes as hash-chained, encrypted commits, then browse,
verify, restore or export the history.

Settings come from TALLY_* environment variables or a .env file;
flags override both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "history database path (default $TALLY_DB or tally.db)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "dotenv file to read (default .env)")

	cmd.AddCommand(NewTrackCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewEntityCommand(opts))
	cmd.AddCommand(NewRecentCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// load resolves configuration and the logger.
func (o *RootOptions) load(cmd *cobra.Command) error {
	var files []string
	if o.EnvFile != "" {
		files = append(files, o.EnvFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return WrapExitError(ExitCommandError, "load configuration", err)
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	o.Config = cfg

	level := cfg.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

// logger returns the resolved logger, or slog.Default when a subcommand
// runs without the root command.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openTracker opens the history database and builds a tracker over it.
// The returned func closes the database.
func (o *RootOptions) openTracker() (*engine.Tracker, func(), error) {
	key, err := o.Config.Key()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "snapshot key", err)
	}

	st, err := store.Open(o.Config.DBPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open history database", err)
	}

	tracker := engine.New(st, engine.StaticKey(key),
		engine.WithIdentity(engine.StaticIdentity{
			User:   o.Config.Author,
			Device: o.Config.DeviceFingerprint(),
		}),
		engine.WithLogger(o.logger()),
		engine.WithExportWorkers(o.Config.ExportWorkers),
	)
	closeFn := func() {
		if err := st.Close(); err != nil {
			o.logger().Warn("close history database", "error", err)
		}
	}
	return tracker, closeFn, nil
}

// trackerError maps a tracker failure to an exit code: caller mistakes
// (unknown commit, malformed change, missing key) are command errors,
// everything else is a failure.
func trackerError(message string, err error) error {
	switch {
	case engine.IsNotFound(err), engine.IsValidation(err), errors.Is(err, engine.ErrNoKey):
		return WrapExitError(ExitCommandError, message, err)
	default:
		return WrapExitError(ExitFailure, message, err)
	}
}
