package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/options"
	"github.com/xtxerr/tplot/internal/tvar"
)

// parseAssignments splits args into names and key=value options. Values are
// YAML scalars or flow sequences, so "yrange=[1,10]" and "ylog=true" keep
// their types.
func parseAssignments(args []string) ([]string, map[string]interface{}, error) {
	var names []string
	values := make(map[string]interface{})
	for _, a := range args {
		key, raw, ok := strings.Cut(a, "=")
		if !ok {
			names = append(names, a)
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, nil, errors.NewInvalidOption(a, raw, "missing option name")
		}
		var v interface{}
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, nil, errors.NewInvalidOption(key, raw, err.Error())
		}
		if v == nil {
			v = ""
		}
		values[key] = v
	}
	return names, values, nil
}

// =============================================================================
// options
// =============================================================================

// NewOptionsCommand creates the options command.
func NewOptionsCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "options <name|pattern>... [option=value...]",
		Short: "Show or set plot options of variables",
		Long: `Set per-variable plot options, or print them when no option is given:

  tplot options density yrange=[0.1,100] ylog=true color=red
  tplot options 'B_*' legend_names=x,y,z

--file applies an options file with global and per-variable sections.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rootOpts.open()
			if err != nil {
				return err
			}
			names, values, err := parseAssignments(args)
			if err != nil {
				return err
			}

			if file == "" && len(values) == 0 {
				if len(names) == 0 {
					return usageErr(fmt.Errorf("name a variable or pass --file"))
				}
				return showOptions(rootOpts, cmd, st, names)
			}

			if file != "" {
				f, err := options.LoadFile(file)
				if err != nil {
					return err
				}
				if err := st.Registry.ApplyOptionsFile(f); err != nil {
					return err
				}
			}
			if len(values) > 0 {
				if len(names) == 0 {
					return usageErr(fmt.Errorf("options need at least one variable name"))
				}
				if err := st.Registry.SetOptions(names, values); err != nil {
					return err
				}
			}
			if err := rootOpts.save(); err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Print(map[string]interface{}{"names": names, "options": values}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "updated %d options\n", len(values))
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "apply an options file")
	return cmd
}

func showOptions(rootOpts *RootOptions, cmd *cobra.Command, st *State, names []string) error {
	out := make(map[string]options.Options)
	var order []string
	for _, n := range st.Registry.Names(names...) {
		v, err := st.Registry.Variable(n)
		if err != nil {
			return err
		}
		out[v.Name] = v.Options
		order = append(order, v.Name)
	}
	if len(order) == 0 {
		return errors.NewVariableNotFound(strings.Join(names, ", "))
	}
	return rootOpts.formatter(cmd).Print(out, func(w io.Writer) error {
		for _, n := range order {
			text, err := options.Marshal(map[string]options.Options{n: out[n]})
			if err != nil {
				return err
			}
			if _, err := io.WriteString(w, text); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// global
// =============================================================================

// GlobalOptions holds the flags of the global command.
type GlobalOptions struct {
	Xlim      []string
	Tlimit    string
	Timestamp bool
}

// NewGlobalCommand creates the global command.
func NewGlobalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:   "global [option=value...]",
		Short: "Show or set figure options",
		Long: `Set figure-wide options such as title, window_size, xmargin or
data_gap, or print them when nothing is given.

--xlim sets the shared time range; --tlimit full shows all data again and
--tlimit last returns to the range before the latest --xlim.

Options: ` + strings.Join(options.GlobalNames(), ", "),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rootOpts.open()
			if err != nil {
				return err
			}
			names, values, err := parseAssignments(args)
			if err != nil {
				return err
			}
			if len(names) > 0 {
				return usageErr(fmt.Errorf("expected option=value, got %q", names[0]))
			}

			changed := len(values) > 0 || len(opts.Xlim) > 0 || opts.Tlimit != "" || cmd.Flags().Changed("timestamp")
			if !changed {
				g := st.Registry.Global()
				return rootOpts.formatter(cmd).Print(g, func(w io.Writer) error {
					text, err := options.Marshal(g)
					if err != nil {
						return err
					}
					_, err = io.WriteString(w, text)
					return err
				})
			}

			if err := applyGlobal(st, opts, values, cmd.Flags().Changed("timestamp")); err != nil {
				return err
			}
			if err := rootOpts.save(); err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Print(map[string]interface{}{"options": values}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, "figure options updated")
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&opts.Xlim, "xlim", nil, "shared time range start,end")
	cmd.Flags().StringVar(&opts.Tlimit, "tlimit", "", "full or last")
	cmd.Flags().BoolVar(&opts.Timestamp, "timestamp", false, "annotate figures with the creation time")
	return cmd
}

func applyGlobal(st *State, opts *GlobalOptions, values map[string]interface{}, timestamp bool) error {
	if len(values) > 0 {
		if err := st.Registry.SetGlobals(values); err != nil {
			return err
		}
	}
	if len(opts.Xlim) > 0 {
		start, end, err := parseWindow(opts.Xlim)
		if err != nil {
			return err
		}
		if err := st.Registry.Xlim(start, end); err != nil {
			return err
		}
	}
	if opts.Tlimit != "" {
		if err := st.Registry.Tlimit(opts.Tlimit); err != nil {
			return err
		}
	}
	if timestamp {
		st.Registry.Timestamp(opts.Timestamp)
	}
	return nil
}

// parseWindow parses a start,end pair of times.
func parseWindow(s []string) (time.Time, time.Time, error) {
	if len(s) != 2 {
		return time.Time{}, time.Time{}, errors.NewInvalidOption("time range", strings.Join(s, ","), "expected start,end")
	}
	times, err := tvar.ParseTimes(s)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return times[0], times[1], nil
}

// =============================================================================
// link
// =============================================================================

// NewLinkCommand creates the link command.
func NewLinkCommand(rootOpts *RootOptions) *cobra.Command {
	var to, linkType string

	cmd := &cobra.Command{
		Use:   "link <name|pattern>... --to <variable>",
		Short: "Link a coordinate variable",
		Long: `Record that --to holds the --type coordinate (alt, lat, lon, ...) of
the named variables.`,
		Args:          minimumArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.mutating(func(cmd *cobra.Command, args []string, st *State) error {
			if to == "" {
				return usageErr(fmt.Errorf("--to is required"))
			}
			if err := st.Registry.Link(args, to, linkType); err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Print(map[string]interface{}{"names": args, "link": to, "type": linkType}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "linked %s as %s\n", to, linkType)
				return err
			})
		}),
	}
	cmd.Flags().StringVar(&to, "to", "", "the linked variable")
	cmd.Flags().StringVar(&linkType, "type", "alt", "coordinate type")
	return cmd
}
