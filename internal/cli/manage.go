package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xtxerr/tplot/internal/errors"
)

// =============================================================================
// names / list
// =============================================================================

// NewNamesCommand creates the names command.
func NewNamesCommand(rootOpts *RootOptions) *cobra.Command {
	var useRegexp bool

	cmd := &cobra.Command{
		Use:   "names [pattern...]",
		Short: "List variable names",
		Long: `List variable names in the order they were stored. Patterns use
* and ? wildcards, or a regular expression with --regexp.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.reading(func(cmd *cobra.Command, args []string, st *State) error {
			var names []string
			if useRegexp {
				if len(args) != 1 {
					return usageErr(fmt.Errorf("--regexp takes exactly one expression"))
				}
				var err error
				if names, err = st.Registry.NamesRegexp(args[0]); err != nil {
					return err
				}
			} else {
				names = st.Registry.Names(args...)
			}
			if names == nil {
				names = []string{}
			}
			return rootOpts.formatter(cmd).Print(names, func(w io.Writer) error {
				for _, n := range names {
					if _, err := fmt.Fprintln(w, n); err != nil {
						return err
					}
				}
				return nil
			})
		}),
	}
	cmd.Flags().BoolVarP(&useRegexp, "regexp", "r", false, "match a regular expression")
	return cmd
}

// entryJSON is one row of the list command.
type entryJSON struct {
	Index      int      `json:"index"`
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Samples    int      `json:"samples"`
	Traces     int      `json:"traces"`
	Components []string `json:"components,omitempty"`
	Start      string   `json:"start,omitempty"`
	End        string   `json:"end,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Aliases:       []string{"ls"},
		Short:         "Describe every variable",
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.reading(func(cmd *cobra.Command, args []string, st *State) error {
			entries := st.Registry.List()
			rows := make([]entryJSON, len(entries))
			for i, e := range entries {
				rows[i] = entryJSON{
					Index:      e.Index,
					Name:       e.Name,
					Kind:       string(e.Kind),
					Samples:    e.Samples,
					Traces:     e.Traces,
					Components: e.Components,
				}
				if !e.Start.IsZero() {
					rows[i].Start, rows[i].End = fmtTime(e.Start), fmtTime(e.End)
				}
			}
			return rootOpts.formatter(cmd).Print(rows, func(w io.Writer) error {
				table := newTable(w, "#", "NAME", "KIND", "SAMPLES", "TRACES", "START", "END")
				for _, e := range entries {
					samples := fmtCount(int64(e.Samples))
					if len(e.Components) > 0 {
						samples = strings.Join(e.Components, " ")
					}
					table.Append([]string{
						fmt.Sprint(e.Index), e.Name, string(e.Kind), samples,
						fmt.Sprint(e.Traces), fmtTime(e.Start), fmtTime(e.End),
					})
				}
				table.Render()
				return nil
			})
		}),
	}
}

// =============================================================================
// delete / rename / copy
// =============================================================================

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:           "delete <name|pattern>...",
		Aliases:       []string{"rm"},
		Short:         "Delete variables",
		Long:          `Delete variables by name or pattern. --all deletes every variable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.mutating(func(cmd *cobra.Command, args []string, st *State) error {
			if len(args) == 0 && !all {
				return usageErr(fmt.Errorf("name a variable or pass --all"))
			}
			if all {
				args = nil
			}
			deleted := st.Registry.Delete(args...)
			if len(args) > 0 && len(deleted) == 0 {
				return errors.NewVariableNotFound(strings.Join(args, ", "))
			}
			if deleted == nil {
				deleted = []string{}
			}
			return rootOpts.formatter(cmd).Print(map[string]interface{}{"deleted": deleted}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "deleted %d variables\n", len(deleted))
				return err
			})
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every variable")
	return cmd
}

// NewRenameCommand creates the rename command.
func NewRenameCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rename <old> <new>",
		Aliases:       []string{"mv"},
		Short:         "Rename a variable",
		Args:          exactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.mutating(func(cmd *cobra.Command, args []string, st *State) error {
			if err := st.Registry.Rename(args[0], args[1]); err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Print(map[string]string{"from": args[0], "to": args[1]}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "renamed %s to %s\n", args[0], args[1])
				return err
			})
		}),
	}
}

// NewCopyCommand creates the copy command.
func NewCopyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "copy <old> <new>",
		Aliases:       []string{"cp"},
		Short:         "Copy a variable",
		Args:          exactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.mutating(func(cmd *cobra.Command, args []string, st *State) error {
			if err := st.Registry.Copy(args[0], args[1]); err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Print(map[string]string{"from": args[0], "to": args[1]}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "copied %s to %s\n", args[0], args[1])
				return err
			})
		}),
	}
}
