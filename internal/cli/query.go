package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtxerr/tplot/internal/storage/query"
)

// QueryOptions holds the flags of the query command.
type QueryOptions struct {
	Store   string
	Samples string
	Saved   bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [sql]",
		Short: "Run SQL over the saved session",
		Long: `Run SQL with DuckDB over the saved session. Two views are available:

  samples    name, row, col, time_ns, time, value, error
  variables  index, name, kind, rows, cols, bins, components, ...

With --store the result becomes a variable: the first column is the time
(TIMESTAMP, Unix seconds or a time string) and every further column a
trace. --samples reads one variable straight from the Parquet files and
--saved lists saved variables starting with the given prefix.`,
		Args:          rangeArgs(0, 1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rootOpts.open()
			if err != nil {
				return err
			}
			svc, err := query.New(st.Config.QueryConfig(), st.Session, st.Registry)
			if err != nil {
				return err
			}
			defer svc.Close()
			return runQuery(rootOpts, opts, args, cmd, svc)
		},
	}
	cmd.Flags().StringVar(&opts.Store, "store", "", "store the result as this variable")
	cmd.Flags().StringVar(&opts.Samples, "samples", "", "read the saved samples of a variable")
	cmd.Flags().BoolVar(&opts.Saved, "saved", false, "list saved variables by name prefix")
	return cmd
}

func runQuery(rootOpts *RootOptions, opts *QueryOptions, args []string, cmd *cobra.Command, svc *query.Service) error {
	ctx := cmd.Context()
	out := rootOpts.formatter(cmd)

	switch {
	case opts.Saved:
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		res, err := svc.SavedVariables(ctx, prefix)
		if err != nil {
			return err
		}
		return printResult(out, res)

	case opts.Samples != "":
		d, err := svc.Samples(ctx, opts.Samples)
		if err != nil {
			return err
		}
		if opts.Store == "" {
			return out.Print(d.Times, func(w io.Writer) error {
				return writeCSV(w, d, nil)
			})
		}
		if err := rootOpts.state.Registry.Store(opts.Store, d); err != nil {
			return err
		}
		if err := rootOpts.save(); err != nil {
			return err
		}
		return printStored(rootOpts, cmd, opts.Store)
	}

	if len(args) != 1 {
		return usageErr(fmt.Errorf("a SQL statement is required"))
	}
	if opts.Store != "" {
		if err := svc.LoadVariable(ctx, opts.Store, args[0]); err != nil {
			return err
		}
		if err := rootOpts.save(); err != nil {
			return err
		}
		return printStored(rootOpts, cmd, opts.Store)
	}

	res, err := svc.Query(ctx, args[0])
	if err != nil {
		return err
	}
	out.VerboseLog("%d rows", len(res.Rows))
	return printResult(out, res)
}

func printResult(out *OutputFormatter, res *query.Result) error {
	rows := make([]map[string]interface{}, len(res.Rows))
	for i, r := range res.Rows {
		row := make(map[string]interface{}, len(res.Columns))
		for j, c := range res.Columns {
			row[c] = jsonValue(r[j])
		}
		rows[i] = row
	}
	data := map[string]interface{}{"columns": res.Columns, "rows": rows, "truncated": res.Truncated}

	return out.Print(data, func(w io.Writer) error {
		table := newTable(w, res.Columns...)
		for _, r := range res.Rows {
			cells := make([]string, len(r))
			for j, v := range r {
				cells[j] = cell(v)
			}
			table.Append(cells)
		}
		table.Render()
		if res.Truncated {
			_, err := fmt.Fprintf(w, "(truncated to %s rows)\n", fmtCount(int64(len(res.Rows))))
			return err
		}
		return nil
	})
}

func cell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return fmtFloat(x)
	case float32:
		return fmtFloat(float64(x))
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// jsonValue makes a scanned value JSON-safe.
func jsonValue(v interface{}) interface{} {
	switch x := v.(type) {
	case float64:
		return jsonFloats([]float64{x})[0]
	case float32:
		return jsonFloats([]float64{float64(x)})[0]
	case []byte:
		return string(x)
	default:
		return v
	}
}
