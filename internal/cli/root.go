// Package cli implements the tplot command line.
//
// Every command works on a session directory: the registry is loaded from
// it before the command runs and saved back after commands that change it.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/loader"
	"github.com/xtxerr/tplot/internal/logging"
	"github.com/xtxerr/tplot/internal/registry"
	"github.com/xtxerr/tplot/internal/render"
	"github.com/xtxerr/tplot/internal/storage/parquet"
	"github.com/xtxerr/tplot/internal/tmath"
)

var log = logging.Component("cli")

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	SessionDir string
	LogLevel   string
	EnvFile    string

	cfg   *loader.Config
	state *State
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// State is the session a command works on.
type State struct {
	Config   *loader.Config
	Session  *parquet.Session
	Registry *registry.Registry
	Math     *tmath.Math
	Renderer *render.Renderer
}

// NewRootCommand creates the root command for the tplot CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

// newRootCommand builds the command tree around opts. Flag defaults are
// taken from opts so that the shell can run lines with its own settings.
func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tplot",
		Short: "tplot - time series plotting",
		Long: `Store named time series, derive new ones, and plot them with gonum/plot.

Variables live in a session directory (default .tplot) as Parquet files,
so consecutive commands build on each other.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cmd.SetContext(logging.ContextWithCommand(contextOf(cmd), cmd.CommandPath()))
			return opts.configure()
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, c.CommandPath(), err)
	})

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", opts.Verbose, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", orDefault(opts.Format, "text"), "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", opts.ConfigPath, "config file (default $TPLOT_CONFIG or tplot.yaml)")
	cmd.PersistentFlags().StringVarP(&opts.SessionDir, "session", "s", opts.SessionDir, "session directory (default .tplot)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", orDefault(opts.EnvFile, ".env"), "environment file loaded before the config")

	addCommands(cmd, opts)
	return cmd
}

func addCommands(cmd *cobra.Command, opts *RootOptions) {
	cmd.AddCommand(NewStoreCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewPlotCommand(opts))
	cmd.AddCommand(NewNamesCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewRenameCommand(opts))
	cmd.AddCommand(NewCopyCommand(opts))
	cmd.AddCommand(NewOptionsCommand(opts))
	cmd.AddCommand(NewGlobalCommand(opts))
	cmd.AddCommand(NewLinkCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewResampleCommand(opts))
	cmd.AddCommand(NewMathCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewCaptureCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))
	cmd.AddCommand(NewShellCommand(opts))
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

// =============================================================================
// Session lifecycle
// =============================================================================

// configure loads the environment file and the configuration, applies the
// flag overrides and initializes logging. It runs once per process.
func (o *RootOptions) configure() error {
	if o.cfg != nil {
		return nil
	}
	if err := loader.LoadEnv(o.EnvFile); err != nil {
		return WrapExitError(ExitCommandError, "environment", err)
	}

	cfg, err := loader.LoadOrDefault(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "config", err)
	}
	cfg.ApplyEnv()
	if o.SessionDir != "" {
		cfg.Session.Dir = o.SessionDir
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	} else if o.Verbose {
		cfg.Log.Level = "info"
	}
	if err := loader.Validate(cfg); err != nil {
		return WrapExitError(ExitCommandError, "config", err)
	}

	level, json := cfg.Logging()
	logging.Init(level, json)
	o.cfg = cfg
	return nil
}

// open returns the session state, loading it on first use. A directory
// without a saved session starts empty with the configured figure
// defaults.
func (o *RootOptions) open() (*State, error) {
	if o.state != nil {
		return o.state, nil
	}
	if err := o.configure(); err != nil {
		return nil, err
	}
	cfg := o.cfg

	session := parquet.Open(cfg.Session.Dir, cfg.ParquetOptions())
	reg := registry.New()
	info, err := session.Load(reg)
	switch {
	case err == nil:
		log.Debug("session loaded", "session", info.ID, "variables", info.Variables)
	case errors.Is(err, errors.ErrSessionNotFound):
		reg.Restore(nil, cfg.Global())
		log.Debug("new session", "dir", cfg.Session.Dir)
	default:
		return nil, err
	}

	files, err := cfg.LoadOptionsFiles()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "include", err)
	}
	for _, f := range files {
		if err := reg.ApplyOptionsFile(f); err != nil {
			log.Warn("options file not fully applied", "error", err)
		}
	}

	o.state = &State{
		Config:   cfg,
		Session:  session,
		Registry: reg,
		Math:     tmath.New(reg),
		Renderer: render.New(reg),
	}
	return o.state, nil
}

// openSession returns the open session, or a handle on the configured
// directory when no command has loaded it yet.
func openSession(o *RootOptions) *parquet.Session {
	if o.state != nil {
		return o.state.Session
	}
	return parquet.Open(o.cfg.Session.Dir, o.cfg.ParquetOptions())
}

// save writes the registry back to the session directory.
func (o *RootOptions) save() error {
	if o.state == nil {
		return nil
	}
	info, err := o.state.Session.Save(o.state.Registry)
	if err != nil {
		return err
	}
	log.Debug("session saved", "session", info.ID, "variables", info.Variables, "samples", info.Samples)
	return nil
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// mutating wraps a command body that changes the registry: the session is
// opened before and saved after a successful run.
func (o *RootOptions) mutating(run func(cmd *cobra.Command, args []string, st *State) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st, err := o.open()
		if err != nil {
			return err
		}
		cmd.SetContext(logging.ContextWithSessionID(contextOf(cmd), st.Session.ID()))
		if err := run(cmd, args, st); err != nil {
			return err
		}
		if err := o.save(); err != nil {
			return err
		}
		logging.WithContext(cmd.Context()).Debug("session updated", "variables", st.Registry.Len())
		return nil
	}
}

// reading wraps a command body that only reads the registry.
func (o *RootOptions) reading(run func(cmd *cobra.Command, args []string, st *State) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st, err := o.open()
		if err != nil {
			return err
		}
		cmd.SetContext(logging.ContextWithSessionID(contextOf(cmd), st.Session.ID()))
		return run(cmd, args, st)
	}
}

// =============================================================================
// Argument checks
// =============================================================================

func usageErr(err error) error {
	if err == nil {
		return nil
	}
	return WrapExitError(ExitCommandError, "usage", err)
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return usageErr(cobra.ExactArgs(n)(cmd, args))
	}
}

func minimumArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return usageErr(cobra.MinimumNArgs(n)(cmd, args))
	}
}

func rangeArgs(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return usageErr(cobra.RangeArgs(min, max)(cmd, args))
	}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	f := &OutputFormatter{Format: formatFlag(cmd), Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr()}
	f.Error(err)
	code := GetExitCode(err)
	log.Debug("command failed", "exit", code, "error", err)
	return code
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func formatFlag(cmd *cobra.Command) string {
	if f := cmd.PersistentFlags().Lookup("format"); f != nil && isValidFormat(f.Value.String()) {
		return f.Value.String()
	}
	return "text"
}
