package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/options"
	"github.com/xtxerr/tplot/internal/tvar"
)

// StoreOptions holds the flags of the store command.
type StoreOptions struct {
	X        []string
	Y        []string
	Bins     []float64
	Errors   []float64
	CSV      string
	Pseudo   bool
	Metadata map[string]string
}

// NewStoreCommand creates the store command.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{}

	cmd := &cobra.Command{
		Use:   "store <name> [components...]",
		Short: "Store a named variable",
		Long: `Store a variable from inline values or a CSV file. An existing
variable of the same name is replaced.

Inline data takes one --x list of times and one --y list per trace:

  tplot store density --x 2016-11-01T00:00:00Z,2016-11-01T00:01:00Z --y 1.5,2.5

A CSV file has the time in the first column and one trace per further
column; a header row sets the legend names. With --pseudo the remaining
arguments name the variables to overplot.`,
		Args:          minimumArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.mutating(func(cmd *cobra.Command, args []string, st *State) error {
			return runStore(rootOpts, opts, args, cmd, st)
		}),
	}

	cmd.Flags().StringSliceVar(&opts.X, "x", nil, "sample times (RFC 3339 or Unix seconds)")
	cmd.Flags().StringArrayVar(&opts.Y, "y", nil, "comma-separated values of one trace (repeat per trace)")
	cmd.Flags().Float64SliceVar(&opts.Bins, "bins", nil, "spectral bin values, one per trace")
	cmd.Flags().Float64SliceVar(&opts.Errors, "dy", nil, "error values, one per sample")
	cmd.Flags().StringVar(&opts.CSV, "csv", "", "read samples from a CSV file (- for stdin)")
	cmd.Flags().BoolVar(&opts.Pseudo, "pseudo", false, "store an overplot of the named variables")
	cmd.Flags().StringToStringVar(&opts.Metadata, "meta", nil, "metadata key=value pairs")
	return cmd
}

func runStore(rootOpts *RootOptions, opts *StoreOptions, args []string, cmd *cobra.Command, st *State) error {
	name := args[0]
	out := rootOpts.formatter(cmd)

	if opts.Pseudo {
		if len(args) < 2 {
			return usageErr(fmt.Errorf("--pseudo needs at least one component"))
		}
		if err := st.Registry.StorePseudo(name, args[1:]...); err != nil {
			return err
		}
		out.VerboseLog("stored pseudo-variable %s", name)
		return out.Print(map[string]interface{}{"name": name, "components": args[1:]}, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "stored %s (%s)\n", name, strings.Join(args[1:], " "))
			return err
		})
	}
	if len(args) > 1 {
		return usageErr(fmt.Errorf("components are only accepted with --pseudo"))
	}

	var (
		d       tvar.Data
		headers []string
		err     error
	)
	switch {
	case opts.CSV != "":
		d, headers, err = readCSVFile(opts.CSV, cmd.InOrStdin())
	case len(opts.X) > 0:
		d, err = inlineData(opts.X, opts.Y)
	default:
		return usageErr(fmt.Errorf("either --csv or --x/--y is required"))
	}
	if err != nil {
		return err
	}
	d.Bins = opts.Bins
	if len(opts.Errors) > 0 {
		d.Errors = opts.Errors
	}
	if len(opts.Metadata) > 0 {
		d.Metadata = make(map[string]interface{}, len(opts.Metadata))
		for k, v := range opts.Metadata {
			d.Metadata[k] = v
		}
	}

	if err := st.Registry.Store(name, d); err != nil {
		return err
	}
	if len(headers) > 0 {
		if err := st.Registry.SetOption([]string{name}, "legend_names", headers); err != nil {
			return err
		}
	}

	cols := 0
	if len(d.Values) > 0 {
		cols = len(d.Values[0])
	}
	return out.Print(map[string]interface{}{"name": name, "samples": len(d.Times), "traces": cols}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "stored %s: %s samples, %d traces\n", name, fmtCount(int64(len(d.Times))), cols)
		return err
	})
}

// inlineData builds Data from a time list and one value list per trace.
func inlineData(x []string, y []string) (tvar.Data, error) {
	times, err := tvar.ParseTimes(x)
	if err != nil {
		return tvar.Data{}, err
	}
	if len(y) == 0 {
		return tvar.Data{}, usageErr(fmt.Errorf("--y is required with --x"))
	}

	values := make([][]float64, len(times))
	for i := range values {
		values[i] = make([]float64, len(y))
	}
	for j, trace := range y {
		ys, err := parseFloats(strings.Split(trace, ","))
		if err != nil {
			return tvar.Data{}, err
		}
		if len(ys) != len(times) {
			return tvar.Data{}, errors.Wrapf(errors.NewLengthMismatch("values", len(times), len(ys)), "trace %d", j)
		}
		for i, v := range ys {
			values[i][j] = v
		}
	}
	return tvar.Data{Times: times, Values: values}, nil
}

func parseFloats(in []string) ([]float64, error) {
	out := make([]float64, len(in))
	for i, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, errors.NewInvalidValue("value", s, "empty")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.NewInvalidValue("value", s, "not a number")
		}
		out[i] = f
	}
	return out, nil
}

// =============================================================================
// CSV
// =============================================================================

func readCSVFile(path string, stdin io.Reader) (tvar.Data, []string, error) {
	if path == "-" {
		return readCSV(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tvar.Data{}, nil, errors.NewNotFound("file", path)
		}
		return tvar.Data{}, nil, err
	}
	defer f.Close()
	return readCSV(f)
}

var nan = math.NaN()

// readCSV reads samples with the time in the first column. When the first
// record does not start with a time it is taken as a header, and its
// remaining fields are returned as trace names; a last column named dy
// holds the error values. Empty fields are NaN.
func readCSV(r io.Reader) (tvar.Data, []string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	records, err := cr.ReadAll()
	if err != nil {
		if errors.Is(err, csv.ErrFieldCount) {
			return tvar.Data{}, nil, errors.Wrap(errors.ErrShapeMismatch, err.Error())
		}
		return tvar.Data{}, nil, errors.Wrap(errors.ErrInvalidConfig, fmt.Sprintf("csv: %v", err))
	}
	if len(records) == 0 {
		return tvar.Data{}, nil, errors.Wrap(errors.ErrEmptyData, "csv has no records")
	}
	if len(records[0]) < 2 {
		return tvar.Data{}, nil, errors.Wrap(errors.ErrShapeMismatch, "csv needs a time column and at least one value column")
	}

	var headers []string
	if _, err := options.ParseTime(records[0][0]); err != nil {
		headers = records[0][1:]
		records = records[1:]
	}
	withErrors := len(headers) > 1 && strings.EqualFold(headers[len(headers)-1], "dy")
	if withErrors {
		headers = headers[:len(headers)-1]
	}

	d := tvar.Data{
		Times:  make([]time.Time, len(records)),
		Values: make([][]float64, len(records)),
	}
	if withErrors {
		d.Errors = make([]float64, len(records))
	}
	for i, rec := range records {
		t, err := options.ParseTime(rec[0])
		if err != nil {
			return tvar.Data{}, nil, errors.Wrapf(errors.ErrInvalidTime, "csv record %d: %v", i+1, err)
		}
		d.Times[i] = t
		row := make([]float64, len(rec)-1)
		for j, field := range rec[1:] {
			if strings.TrimSpace(field) == "" {
				row[j] = nan
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return tvar.Data{}, nil, errors.NewInvalidValue(fmt.Sprintf("csv record %d column %d", i+1, j+2), field, "not a number")
			}
			row[j] = v
		}
		if withErrors {
			d.Errors[i] = row[len(row)-1]
			row = row[:len(row)-1]
		}
		d.Values[i] = row
	}
	return d, headers, nil
}

// writeCSV writes d with a header row, in the format readCSV reads.
func writeCSV(w io.Writer, d tvar.Data, headers []string) error {
	cw := csv.NewWriter(w)
	cols := 0
	if len(d.Values) > 0 {
		cols = len(d.Values[0])
	}
	header := make([]string, 0, cols+2)
	header = append(header, "time")
	for j := 0; j < cols; j++ {
		switch {
		case j < len(headers) && headers[j] != "":
			header = append(header, headers[j])
		case len(d.Bins) == cols:
			header = append(header, strconv.FormatFloat(d.Bins[j], 'g', -1, 64))
		default:
			header = append(header, fmt.Sprintf("y%d", j))
		}
	}
	if len(d.Errors) > 0 {
		header = append(header, "dy")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, t := range d.Times {
		rec := make([]string, 0, len(header))
		rec = append(rec, t.UTC().Format(time.RFC3339Nano))
		for _, v := range d.Values[i] {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if len(d.Errors) > 0 {
			rec = append(rec, strconv.FormatFloat(d.Errors[i], 'g', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// =============================================================================
// get
// =============================================================================

// GetOptions holds the flags of the get command.
type GetOptions struct {
	Metadata bool
}

// variableJSON is the JSON form of a variable's data.
type variableJSON struct {
	Name     string                 `json:"name"`
	Times    []time.Time            `json:"times"`
	Values   [][]*float64           `json:"values"`
	Bins     []*float64             `json:"bins,omitempty"`
	Errors   []*float64             `json:"errors,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{}

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print a variable's data",
		Long: `Print the times and values of a variable as CSV (text format) or
as a JSON document. NaN values are empty in JSON.`,
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.reading(func(cmd *cobra.Command, args []string, st *State) error {
			return runGet(rootOpts, opts, args[0], cmd, st)
		}),
	}
	cmd.Flags().BoolVar(&opts.Metadata, "metadata", false, "include metadata (JSON only)")
	return cmd
}

func runGet(rootOpts *RootOptions, opts *GetOptions, name string, cmd *cobra.Command, st *State) error {
	d, err := st.Registry.Get(name)
	if err != nil {
		return err
	}
	v, err := st.Registry.Variable(name)
	if err != nil {
		return err
	}

	doc := variableJSON{
		Name:   v.Name,
		Times:  d.Times,
		Values: make([][]*float64, len(d.Values)),
		Bins:   jsonFloats(d.Bins),
		Errors: jsonFloats(d.Errors),
	}
	for i, row := range d.Values {
		doc.Values[i] = jsonFloats(row)
	}
	if opts.Metadata {
		doc.Metadata = v.Metadata
	}

	return rootOpts.formatter(cmd).Print(doc, func(w io.Writer) error {
		return writeCSV(w, d, v.Options.LegendNames)
	})
}
