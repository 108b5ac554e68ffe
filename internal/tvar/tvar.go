// Package tvar defines the time-series variable stored in a registry.
//
// A Variable pairs a time axis with a samples-by-traces value matrix. Line
// data has one column per trace; spectrogram data has one column per bin
// and carries the bin centers in Bins. A pseudo-variable has no data of
// its own and only names the variables it overplots.
package tvar

import (
	"math"
	"time"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/options"
)

// Kind classifies a variable by how it is plotted.
type Kind string

const (
	KindLine   Kind = "line"
	KindSpec   Kind = "spec"
	KindPseudo Kind = "pseudo"
)

// Data is the caller-facing form of a variable's arrays. Values is indexed
// [sample][trace].
type Data struct {
	Times    []time.Time
	Values   [][]float64
	Bins     []float64
	Errors   []float64
	Metadata map[string]interface{}
}

// Series builds Data for a single trace.
func Series(times []time.Time, y []float64) Data {
	values := make([][]float64, len(y))
	for i, v := range y {
		values[i] = []float64{v}
	}
	return Data{Times: times, Values: values}
}

// Column returns trace j of d as a flat slice.
func (d Data) Column(j int) []float64 {
	out := make([]float64, len(d.Values))
	for i, row := range d.Values {
		if j < len(row) {
			out[i] = row[j]
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Variable is a named time series.
type Variable struct {
	Name       string
	Times      []time.Time
	Values     *mat.Dense
	Bins       []float64
	Errors     []float64
	Components []string
	Metadata   map[string]interface{}
	Options    options.Options
	Links      map[string]string
	Created    time.Time
}

// New builds a variable from d, checking that every array agrees on the
// number of samples and traces.
func New(name string, d Data) (*Variable, error) {
	n := len(d.Times)
	if n == 0 || len(d.Values) == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "variable '%s'", name)
	}
	if len(d.Values) != n {
		return nil, errors.Wrapf(errors.NewLengthMismatch("values", n, len(d.Values)), "variable '%s'", name)
	}

	cols := len(d.Values[0])
	if cols == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "variable '%s' has no traces", name)
	}
	flat := make([]float64, 0, n*cols)
	for i, row := range d.Values {
		if len(row) != cols {
			return nil, errors.Wrapf(errors.ErrShapeMismatch, "variable '%s': row %d has %d values, expected %d", name, i, len(row), cols)
		}
		flat = append(flat, row...)
	}

	if len(d.Errors) != 0 && len(d.Errors) != n {
		return nil, errors.Wrapf(errors.NewLengthMismatch("error values", n, len(d.Errors)), "variable '%s'", name)
	}
	if len(d.Bins) != 0 && len(d.Bins) != cols {
		return nil, errors.Wrapf(errors.NewLengthMismatch("bins", cols, len(d.Bins)), "variable '%s'", name)
	}

	times := make([]time.Time, n)
	for i, t := range d.Times {
		times[i] = t.UTC()
	}

	v := &Variable{
		Name:     name,
		Times:    times,
		Values:   mat.NewDense(n, cols, flat),
		Bins:     cloneFloats(d.Bins),
		Errors:   cloneFloats(d.Errors),
		Metadata: CloneMetadata(d.Metadata),
		Options:  options.Default(),
		Links:    map[string]string{},
		Created:  time.Now().UTC(),
	}
	v.RefreshYRange()
	return v, nil
}

// NewPseudo builds an overplot of the given base variables. The first base
// variable lends its options, with the line and axis options reset so each
// component keeps its own.
func NewPseudo(name string, first *Variable, components []string) *Variable {
	opts := first.Options.Clone()
	opts.ResetForOverplot()
	return &Variable{
		Name:       name,
		Components: append([]string(nil), components...),
		Metadata:   map[string]interface{}{},
		Options:    opts,
		Links:      map[string]string{},
		Created:    time.Now().UTC(),
	}
}

// Kind reports how the variable is plotted.
func (v *Variable) Kind() Kind {
	switch {
	case v.IsPseudo():
		return KindPseudo
	case v.Options.Spec && len(v.Bins) > 0:
		return KindSpec
	default:
		return KindLine
	}
}

// IsPseudo reports whether v only overplots other variables.
func (v *Variable) IsPseudo() bool {
	return len(v.Components) > 0
}

// HasData reports whether v carries samples of its own.
func (v *Variable) HasData() bool {
	return v.Values != nil && len(v.Times) > 0
}

// Len returns the number of samples.
func (v *Variable) Len() int {
	return len(v.Times)
}

// Cols returns the number of traces (or spectral bins).
func (v *Variable) Cols() int {
	if v.Values == nil {
		return 0
	}
	_, c := v.Values.Dims()
	return c
}

// TraceCount returns the number of line traces v draws on its own.
// Spectrograms and pseudo-variables contribute none.
func (v *Variable) TraceCount() int {
	if v.Kind() != KindLine {
		return 0
	}
	return v.Cols()
}

// Trange returns the first and last sample times. Time series are assumed
// to be monotonically increasing.
func (v *Variable) Trange() (start, end time.Time, ok bool) {
	if len(v.Times) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return v.Times[0], v.Times[len(v.Times)-1], true
}

// Seconds returns the sample times as float seconds since the Unix epoch.
func (v *Variable) Seconds() []float64 {
	return UnixSeconds(v.Times)
}

// Col returns a copy of trace j.
func (v *Variable) Col(j int) []float64 {
	return mat.Col(nil, j, v.Values)
}

// Row returns a copy of sample i.
func (v *Variable) Row(i int) []float64 {
	return mat.Row(nil, i, v.Values)
}

// Data returns a deep copy of v's arrays.
func (v *Variable) Data() Data {
	d := Data{
		Times:    append([]time.Time(nil), v.Times...),
		Bins:     cloneFloats(v.Bins),
		Errors:   cloneFloats(v.Errors),
		Metadata: CloneMetadata(v.Metadata),
	}
	if v.Values != nil {
		rows, _ := v.Values.Dims()
		d.Values = make([][]float64, rows)
		for i := 0; i < rows; i++ {
			d.Values[i] = v.Row(i)
		}
	}
	return d
}

// Clone returns a deep copy of v.
func (v *Variable) Clone() *Variable {
	c := &Variable{
		Name:       v.Name,
		Times:      append([]time.Time(nil), v.Times...),
		Bins:       cloneFloats(v.Bins),
		Errors:     cloneFloats(v.Errors),
		Components: append([]string(nil), v.Components...),
		Metadata:   CloneMetadata(v.Metadata),
		Options:    v.Options.Clone(),
		Links:      make(map[string]string, len(v.Links)),
		Created:    v.Created,
	}
	if v.Values != nil {
		c.Values = mat.DenseCopyOf(v.Values)
	}
	for k, l := range v.Links {
		c.Links[k] = l
	}
	return c
}

// WithValues returns a copy of v that carries new times and values but
// keeps the name, metadata, options and links. The y range is recomputed
// unless the user set it.
func (v *Variable) WithValues(times []time.Time, values *mat.Dense) *Variable {
	c := v.Clone()
	c.Times = append([]time.Time(nil), times...)
	c.Values = values
	rows, cols := values.Dims()
	if len(c.Errors) != rows {
		c.Errors = nil
	}
	if len(c.Bins) != cols {
		c.Bins = nil
		c.Options.Spec = false
	}
	c.RefreshYRange()
	return c
}

// Slice returns a copy of samples [i, j).
func (v *Variable) Slice(i, j int) (*Variable, error) {
	if i < 0 || j > v.Len() || i >= j {
		return nil, errors.Wrapf(errors.ErrEmptyData, "variable '%s': empty slice [%d, %d)", v.Name, i, j)
	}
	values := mat.DenseCopyOf(v.Values.Slice(i, j, 0, v.Cols()))
	c := v.WithValues(v.Times[i:j], values)
	if len(v.Errors) == v.Len() {
		c.Errors = cloneFloats(v.Errors[i:j])
	}
	return c, nil
}

// DataRange returns the minimum and maximum finite value of v, ignoring
// NaN and infinities.
func (v *Variable) DataRange() (min, max float64, ok bool) {
	if v.Values == nil {
		return 0, 0, false
	}
	return finiteRange(v.Values.RawMatrix())
}

// DataRangeWithin is DataRange restricted to samples inside [start, end].
func (v *Variable) DataRangeWithin(start, end time.Time) (min, max float64, ok bool) {
	i, j := v.IndexRange(start, end)
	if i >= j {
		return 0, 0, false
	}
	sub := mat.DenseCopyOf(v.Values.Slice(i, j, 0, v.Cols()))
	return finiteRange(sub.RawMatrix())
}

// IndexRange returns the half-open sample index range [i, j) whose times
// fall inside [start, end].
func (v *Variable) IndexRange(start, end time.Time) (int, int) {
	i := 0
	for i < len(v.Times) && v.Times[i].Before(start) {
		i++
	}
	j := i
	for j < len(v.Times) && !v.Times[j].After(end) {
		j++
	}
	return i, j
}

// RefreshYRange recomputes the default y range from the data. A range set
// by the user is left alone.
func (v *Variable) RefreshYRange() {
	if v.Options.YRangeUser {
		return
	}
	if v.Options.Spec && len(v.Bins) > 0 {
		lo, hi := floats.Min(v.Bins), floats.Max(v.Bins)
		v.Options.YRange = []float64{lo, hi}
		return
	}
	if lo, hi, ok := v.DataRange(); ok {
		v.Options.YRange = []float64{lo, hi}
	} else {
		v.Options.YRange = nil
	}
}

func finiteRange(raw blas64.General) (min, max float64, ok bool) {
	min, max = math.Inf(1), math.Inf(-1)
	for r := 0; r < raw.Rows; r++ {
		row := raw.Data[r*raw.Stride : r*raw.Stride+raw.Cols]
		for _, x := range row {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				continue
			}
			ok = true
			if x < min {
				min = x
			}
			if x > max {
				max = x
			}
		}
	}
	if !ok {
		return 0, 0, false
	}
	return min, max, true
}

func cloneFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s...)
}
