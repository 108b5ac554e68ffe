package cli

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/xtxerr/tplot/internal/options"
	"github.com/xtxerr/tplot/internal/tmath"
)

// NewMathCommand creates the math command and its operations. Every
// operation stores its result as a new variable, or over its input where
// noted, and prints the stored names.
func NewMathCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "math",
		Short: "Derive variables from stored ones",
		Long: `Derive variables from stored ones. Two-variable operations
interpolate the second variable onto the times of the first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	for _, op := range []tmath.Op{tmath.OpAdd, tmath.OpSubtract, tmath.OpMultiply, tmath.OpDivide} {
		cmd.AddCommand(newArithCommand(rootOpts, op))
	}
	cmd.AddCommand(newInterpCommand(rootOpts))
	cmd.AddCommand(newCropCommand(rootOpts))
	cmd.AddCommand(newClipCommand(rootOpts))
	cmd.AddCommand(newTimeClipCommand(rootOpts))
	cmd.AddCommand(newDeflagCommand(rootOpts))
	cmd.AddCommand(newFlattenCommand(rootOpts))
	cmd.AddCommand(newInterpNaNCommand(rootOpts))
	cmd.AddCommand(newAvgResCommand(rootOpts))
	cmd.AddCommand(newSubtractCenterCommand(rootOpts, false))
	cmd.AddCommand(newSubtractCenterCommand(rootOpts, true))
	cmd.AddCommand(newJoinCommand(rootOpts))
	cmd.AddCommand(newSplitCommand(rootOpts))
	return cmd
}

// mathCommand fills the fields every math operation shares.
func mathCommand(rootOpts *RootOptions, use, short string, args cobra.PositionalArgs, run func(cmd *cobra.Command, args []string, st *State) ([]string, error)) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.mutating(func(cmd *cobra.Command, args []string, st *State) error {
			names, err := run(cmd, args, st)
			if err != nil {
				return err
			}
			return printStored(rootOpts, cmd, names...)
		}),
	}
}

func newArithCommand(rootOpts *RootOptions, op tmath.Op) *cobra.Command {
	var newName string
	cmd := mathCommand(rootOpts, string(op)+" <v1> <v2>",
		fmt.Sprintf("Element-wise %s of two variables", op), exactArgs(2),
		func(cmd *cobra.Command, args []string, st *State) ([]string, error) {
			name, err := st.Math.Arith(op, args[0], args[1], newName)
			return []string{name}, err
		})
	cmd.Flags().StringVar(&newName, "name", "", "name of the result")
	return cmd
}

func newInterpCommand(rootOpts *RootOptions) *cobra.Command {
	var replace bool
	cmd := mathCommand(rootOpts, "interp <v1> <v2>",
		"Interpolate v2 onto the times of v1", exactArgs(2),
		func(cmd *cobra.Command, args []string, st *State) ([]string, error) {
			name, err := st.Math.Interp(args[0], args[1], replace)
			return []string{name}, err
		})
	cmd.Flags().BoolVar(&replace, "replace", false, "overwrite v2")
	return cmd
}

func newCropCommand(rootOpts *RootOptions) *cobra.Command {
	var replace bool
	cmd := mathCommand(rootOpts, "crop <v1> <v2>",
		"Restrict two variables to their common time range", exactArgs(2),
		func(cmd *cobra.Command, args []string, st *State) ([]string, error) {
			return st.Math.Crop(args[0], args[1], replace)
		})
	cmd.Flags().BoolVar(&replace, "replace", false, "overwrite the inputs")
	return cmd
}

func newClipCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		lo, hi   float64
		newNames []string
	)
	cmd := mathCommand(rootOpts, "clip <name|pattern>...",
		"Replace values outside [min, max] with NaN", minimumArgs(1),
		func(cmd *cobra.Command, args []string, st *State) ([]string, error) {
			return st.Math.Clip(args, lo, hi, newNames)
		})
	cmd.Flags().Float64Var(&lo, "min", math.Inf(-1), "lowest kept value")
	cmd.Flags().Float64Var(&hi, "max", math.Inf(1), "highest kept value")
	cmd.Flags().StringSliceVar(&newNames, "name", nil, "names of the results, one per match")
	return cmd
}

func newTimeClipCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		start, end string
		suffix     string
		overwrite  bool
		newNames   []string
	)
	cmd := mathCommand(rootOpts, "time-clip <name|pattern>...",
		"Keep the samples inside a time range", minimumArgs(1),
		func(cmd *cobra.Command, args []string, st *State) ([]string, error) {
			s, e, err := parseWindow([]string{start, end})
			if err != nil {
				return nil, err
			}
			return st.Math.TimeClip(args, s, e, newNames, suffix, overwrite)
		})
	cmd.Flags().StringVar(&start, "start", "", "start time")
	cmd.Flags().StringVar(&end, "end", "", "end time")
	cmd.Flags().StringVar(&suffix, "suffix", "-tclip", "suffix of the results")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite the inputs")
	cmd.Flags().StringSliceVar(&newNames, "name", nil, "names of the results, one per match")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newDeflagCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		flags   []float64
		method  string
		fill    float64
		newName string
	)
	cmd := mathCommand(rootOpts, "deflag <name>",
		"Treat flagged values (nan, repeat, linear, replace, remove_nan)", exactArgs(1),
		func(cmd *cobra.Command, args []string, st *State) ([]string, error) {
			m, err := tmath.ParseDeflagMethod(method)
			if err != nil {
				return nil, err
			}
			name, err := st.Math.Deflag(args[0], flags, m, fill, newName)
			return []string{name}, err
		})
	cmd.Flags().Float64SliceVar(&flags, "flag", nil, "flag values (default NaN)")
	cmd.Flags().StringVar(&method, "method", "nan", "nan, repeat, linear, replace or remove_nan")
	cmd.Flags().Float64Var(&fill, "fill", 0, "replacement value for --method replace")
	cmd.Flags().StringVar(&newName, "name", "", "name of the result (default: overwrite)")
	return cmd
}

func newFlattenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		window  []string
		newName string
	)
	cmd := mathCommand(rootOpts, "flatten <name>",
		"Divide each trace by its mean", exactArgs(1),
		func(cmd *cobra.Command, args []string, st *State) ([]string, error) {
			var tr *options.TimeRange
			if len(window) > 0 {
				s, e, err := parseWindow(window)
				if err != nil {
					return nil, err
				}
				r, err := options.NewTimeRange(s, e)
				if err != nil {
					return nil, err
				}
				tr = &r
			}
			name, err := st.Math.Flatten(args[0], tr, newName)
			return []string{name}, err
		})
	cmd.Flags().StringSliceVar(&window, "window", nil, "compute the mean over start,end")
	cmd.Flags().StringVar(&newName, "name", "", "name of the result")
	return cmd
}

func newInterpNaNCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		limit   int
		newName string
	)
	cmd := mathCommand(rootOpts, "interp-nan <name>",
		"Fill NaN runs linearly in time", exactArgs(1),
		func(cmd *cobra.Command, args []string, st *State) ([]string, error) {
			name, err := st.Math.InterpNaN(args[0], limit, newName)
			return []string{name}, err
		})
	cmd.Flags().IntVar(&limit, "limit", 0, "longest NaN run to fill (0 fills all)")
	cmd.Flags().StringVar(&newName, "name", "", "name of the result (default: overwrite)")
	return cmd
}

func newAvgResCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		n       int
		newName string
	)
	cmd := mathCommand(rootOpts, "avg-res <name>",
		"Average over windows of n samples", exactArgs(1),
		func(cmd *cobra.Command, args []string, st *State) ([]string, error) {
			name, err := st.Math.AvgRes(args[0], n, newName)
			return []string{name}, err
		})
	cmd.Flags().IntVar(&n, "n", 2, "samples per window")
	cmd.Flags().StringVar(&newName, "name", "", "name of the result (default: overwrite)")
	return cmd
}

func newSubtractCenterCommand(rootOpts *RootOptions, median bool) *cobra.Command {
	var (
		overwrite bool
		newNames  []string
	)
	use, short := "subtract-average", "Remove the mean of every trace"
	if median {
		use, short = "subtract-median", "Remove the median of every trace"
	}
	cmd := mathCommand(rootOpts, use+" <name|pattern>...", short, minimumArgs(1),
		func(cmd *cobra.Command, args []string, st *State) ([]string, error) {
			if median {
				return st.Math.SubtractMedian(args, newNames, overwrite)
			}
			return st.Math.SubtractAverage(args, newNames, overwrite)
		})
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite the inputs")
	cmd.Flags().StringSliceVar(&newNames, "name", nil, "names of the results, one per match")
	return cmd
}

func newJoinCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		newName string
		merge   bool
	)
	cmd := mathCommand(rootOpts, "join <name>...",
		"Join the traces of several variables", minimumArgs(2),
		func(cmd *cobra.Command, args []string, st *State) ([]string, error) {
			name, err := st.Math.JoinVec(args, newName, merge)
			return []string{name}, err
		})
	cmd.Flags().StringVar(&newName, "name", "", "name of the result")
	cmd.Flags().BoolVar(&merge, "merge", false, "append to an existing result")
	return cmd
}

func newSplitCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		prefix   string
		suffixes []string
		polar    bool
	)
	cmd := mathCommand(rootOpts, "split <name>",
		"Split a variable into one variable per trace", exactArgs(1),
		func(cmd *cobra.Command, args []string, st *State) ([]string, error) {
			return st.Math.SplitVec(args[0], prefix, suffixes, polar)
		})
	cmd.Flags().StringVar(&prefix, "prefix", "", "prefix of the results (default: name)")
	cmd.Flags().StringSliceVar(&suffixes, "suffix", nil, "suffix per trace")
	cmd.Flags().BoolVar(&polar, "polar", false, "name three traces _mag, _th, _phi")
	return cmd
}
