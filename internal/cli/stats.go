package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtxerr/tplot/internal/storage/aggregate"
)

// statsJSON is one trace summary.
type statsJSON struct {
	Name  string   `json:"name"`
	Trace int      `json:"trace"`
	Count int64    `json:"count"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Mean  *float64 `json:"mean"`
	P50   *float64 `json:"p50,omitempty"`
	P90   *float64 `json:"p90,omitempty"`
	P95   *float64 `json:"p95,omitempty"`
	P99   *float64 `json:"p99,omitempty"`
	First string   `json:"first,omitempty"`
	Last  string   `json:"last,omitempty"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <name|pattern>...",
		Short: "Summarize the traces of variables",
		Long: `Print count, min, max, mean and percentiles of every trace. NaN
samples are not counted; percentiles are approximate.`,
		Args:          minimumArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.reading(func(cmd *cobra.Command, args []string, st *State) error {
			var results []aggregate.Result
			for _, name := range resolveNames(st, args) {
				v, err := st.Registry.Variable(name)
				if err != nil {
					return err
				}
				if v.IsPseudo() {
					continue
				}
				r, err := aggregate.Describe(v)
				if err != nil {
					return err
				}
				results = append(results, r...)
			}

			rows := make([]statsJSON, len(results))
			for i, r := range results {
				rows[i] = toStatsJSON(r)
			}
			return rootOpts.formatter(cmd).Print(rows, func(w io.Writer) error {
				table := newTable(w, "NAME", "TRACE", "COUNT", "MIN", "MAX", "MEAN", "P50", "P95")
				for _, r := range results {
					table.Append([]string{
						r.Name, fmt.Sprint(r.Trace), fmtCount(r.Count),
						fmtFloat(r.Value(aggregate.StatMin)), fmtFloat(r.Value(aggregate.StatMax)),
						fmtFloat(r.Value(aggregate.StatMean)), fmtFloat(r.Value(aggregate.StatP50)),
						fmtFloat(r.Value(aggregate.StatP95)),
					})
				}
				table.Render()
				return nil
			})
		}),
	}
}

func toStatsJSON(r aggregate.Result) statsJSON {
	one := func(x float64) *float64 { return jsonFloats([]float64{x})[0] }
	out := statsJSON{
		Name:  r.Name,
		Trace: r.Trace,
		Count: r.Count,
		Min:   one(r.Min),
		Max:   one(r.Max),
		Mean:  one(r.Mean),
		P50:   r.P50,
		P90:   r.P90,
		P95:   r.P95,
		P99:   r.P99,
	}
	if !r.IsEmpty() {
		out.First, out.Last = fmtTime(r.First), fmtTime(r.Last)
	}
	return out
}

// resolveNames expands patterns; names that match nothing are passed
// through so that the lookup reports them.
func resolveNames(st *State, args []string) []string {
	var out []string
	for _, a := range args {
		matched := st.Registry.Names(a)
		if len(matched) == 0 {
			out = append(out, a)
			continue
		}
		out = append(out, matched...)
	}
	return out
}

// =============================================================================
// resample
// =============================================================================

// NewResampleCommand creates the resample command.
func NewResampleCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		width   time.Duration
		stats   []string
		newName string
	)

	cmd := &cobra.Command{
		Use:   "resample <name>",
		Short: "Aggregate a variable into time buckets",
		Long: `Aggregate a variable into buckets of --width, aligned to the Unix
epoch. Each --stat (mean, min, max, sum, count, p50, p90, p95, p99) adds
one trace per input trace. The result is stored as <name>_resampled
unless --name is given.`,
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.mutating(func(cmd *cobra.Command, args []string, st *State) error {
			parsed, err := aggregate.ParseStats(stats)
			if err != nil {
				return err
			}
			name, err := st.Math.Resample(args[0], width, parsed, newName)
			if err != nil {
				return err
			}
			return printStored(rootOpts, cmd, name)
		}),
	}
	cmd.Flags().DurationVarP(&width, "width", "w", time.Minute, "bucket width")
	cmd.Flags().StringSliceVar(&stats, "stat", nil, "statistics to compute (default mean)")
	cmd.Flags().StringVar(&newName, "name", "", "name of the result")
	return cmd
}

// printStored reports the names of derived variables.
func printStored(rootOpts *RootOptions, cmd *cobra.Command, names ...string) error {
	return rootOpts.formatter(cmd).Print(map[string]interface{}{"stored": names}, func(w io.Writer) error {
		for _, n := range names {
			if _, err := fmt.Fprintf(w, "stored %s\n", n); err != nil {
				return err
			}
		}
		return nil
	})
}
