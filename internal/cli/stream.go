package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/tvar"
	"github.com/xtxerr/tplot/internal/wire"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export [name|pattern...]",
		Short: "Write variables as a protobuf stream",
		Long: `Write variables (all by default) as a length-delimited protobuf
stream to stdout or --output. Pipe it into "tplot import" to copy variables
between sessions:

  tplot -s a export 'B_*' | tplot -s b import`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.reading(func(cmd *cobra.Command, args []string, st *State) error {
			names := st.Registry.Names(args...)
			if len(args) > 0 && len(names) == 0 {
				return errors.NewVariableNotFound(fmt.Sprint(args))
			}
			vars := make([]*tvar.Variable, 0, len(names))
			for _, n := range names {
				v, err := st.Registry.Variable(n)
				if err != nil {
					return err
				}
				vars = append(vars, v)
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			} else if isTerminal(w) {
				return NewExitError(ExitCommandError, "refusing to write a binary stream to a terminal")
			}
			if err := wire.Export(w, vars...); err != nil {
				return err
			}
			rootOpts.formatter(cmd).VerboseLog("exported %d variables", len(vars))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Read variables from a protobuf stream",
		Long: `Read variables written by "tplot export" from a file or stdin and
store them, replacing variables of the same name.`,
		Args:          rangeArgs(0, 1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.mutating(func(cmd *cobra.Command, args []string, st *State) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					if os.IsNotExist(err) {
						return errors.NewNotFound("file", args[0])
					}
					return err
				}
				defer f.Close()
				r = f
			}

			vars, err := wire.Import(r)
			if err != nil {
				return err
			}
			for _, v := range vars {
				v.Name = prefix + v.Name
				for i := range v.Components {
					v.Components[i] = prefix + v.Components[i]
				}
				if err := st.Registry.Put(v); err != nil {
					return err
				}
			}
			names := wire.Names(vars)
			return rootOpts.formatter(cmd).Print(map[string]interface{}{"imported": names}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "imported %d variables\n", len(names))
				return err
			})
		}),
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "prefix added to every imported name")
	return cmd
}
