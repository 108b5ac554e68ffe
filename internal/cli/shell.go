package cli

import (
	"context"
	"os"

	prompt "github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/shell"
)

// NewShellCommand creates the shell command.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell [script]",
		Short: "Run tplot commands interactively",
		Long: `Start a prompt that runs tplot commands against one loaded session.
Commands, flags and variable names complete with TAB; "exit" or Ctrl-D
quits. When stdin is not a terminal, or a script file is given, lines are
read one by one and the first error decides the exit code.

  tplot shell < steps.tplot`,
		Args:          rangeArgs(0, 1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rootOpts.open()
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					if os.IsNotExist(err) {
						return errors.NewNotFound("file", args[0])
					}
					return err
				}
				defer f.Close()
				in = f
			}

			sh := shell.New(rootOpts.runLine(cmd), shell.Config{
				Commands: completions(cmd.Root()),
				Names:    func() []string { return st.Registry.Names() },
				In:       in,
				ErrOut:   cmd.ErrOrStderr(),
			})
			return sh.Run(contextOf(cmd))
		},
	}
	return cmd
}

// runLine returns the executor of shell lines. Each line runs a fresh
// command tree that shares the loaded configuration and session.
func (o *RootOptions) runLine(parent *cobra.Command) shell.Executor {
	return func(ctx context.Context, args []string) error {
		if args[0] == "shell" {
			err := NewExitError(ExitCommandError, "already in a shell")
			o.formatter(parent).Error(err)
			return err
		}
		child := &RootOptions{
			Verbose:    o.Verbose,
			Format:     o.Format,
			ConfigPath: o.ConfigPath,
			SessionDir: o.SessionDir,
			LogLevel:   o.LogLevel,
			EnvFile:    o.EnvFile,
			cfg:        o.cfg,
			state:      o.state,
		}
		cmd := newRootCommand(child)
		cmd.SetArgs(args)
		cmd.SetIn(parent.InOrStdin())
		cmd.SetOut(parent.OutOrStdout())
		cmd.SetErr(parent.ErrOrStderr())

		err := cmd.ExecuteContext(ctx)
		if err != nil {
			f := &OutputFormatter{Format: formatFlag(cmd), Writer: parent.OutOrStdout(), ErrWriter: parent.ErrOrStderr()}
			f.Error(err)
		}
		return err
	}
}

// completions describes the command tree for the shell's completer.
func completions(root *cobra.Command) []shell.Command {
	var out []shell.Command
	for _, c := range root.Commands() {
		if c.Hidden || c.Name() == "shell" || c.Name() == "help" || c.Name() == "completion" {
			continue
		}
		out = append(out, describe(c, root.PersistentFlags()))
	}
	return append(out,
		shell.Command{Name: "exit", Description: "leave the shell"},
		shell.Command{Name: "quit", Description: "leave the shell"},
	)
}

func describe(c *cobra.Command, global *pflag.FlagSet) shell.Command {
	sc := shell.Command{Name: c.Name(), Description: c.Short}
	add := func(f *pflag.Flag) {
		sc.Flags = append(sc.Flags, prompt.Suggest{Text: "--" + f.Name, Description: f.Usage})
	}
	c.Flags().VisitAll(add)
	global.VisitAll(add)
	for _, sub := range c.Commands() {
		sc.Subcommands = append(sc.Subcommands, describe(sub, global))
	}
	return sc
}
