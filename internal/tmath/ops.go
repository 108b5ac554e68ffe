// Package tmath derives new variables from stored ones: element-wise
// arithmetic, clipping, cropping, flag removal, detrending and vector
// manipulation.
//
// The functions in this file are pure: they take variables and return new
// ones. Math binds them to a registry.
package tmath

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/options"
	"github.com/xtxerr/tplot/internal/tvar"
)

// Op is an element-wise binary operation.
type Op string

const (
	OpAdd      Op = "add"
	OpSubtract Op = "subtract"
	OpMultiply Op = "multiply"
	OpDivide   Op = "divide"
)

// ParseOp converts an operation name to an Op.
func ParseOp(s string) (Op, error) {
	switch op := Op(strings.ToLower(strings.TrimSpace(s))); op {
	case OpAdd, OpSubtract, OpMultiply, OpDivide:
		return op, nil
	default:
		return "", errors.NewInvalidOption("operation", s, "expected add, subtract, multiply or divide")
	}
}

// Arith applies op to v1 and v2 after interpolating v2 onto v1's times. A
// single-trace v2 is broadcast over all traces of v1.
func Arith(op Op, v1, v2 *tvar.Variable) (*tvar.Variable, error) {
	if v1.IsPseudo() || v2.IsPseudo() {
		return nil, errors.Wrapf(errors.ErrPseudoVariable, "%s '%s' and '%s'", op, v1.Name, v2.Name)
	}
	aligned, err := Interp(v1, v2)
	if err != nil {
		return nil, err
	}

	rows, cols := v1.Values.Dims()
	b := aligned.Values
	if _, c2 := b.Dims(); c2 != cols {
		if c2 != 1 {
			return nil, errors.Wrapf(errors.ErrShapeMismatch, "%s '%s' (%d traces) and '%s' (%d traces)", op, v1.Name, cols, v2.Name, c2)
		}
		b = broadcast(b, cols)
	}

	out := mat.NewDense(rows, cols, nil)
	switch op {
	case OpAdd:
		out.Add(v1.Values, b)
	case OpSubtract:
		out.Sub(v1.Values, b)
	case OpMultiply:
		out.MulElem(v1.Values, b)
	case OpDivide:
		out.DivElem(v1.Values, b)
	default:
		return nil, errors.NewInvalidOption("operation", op, "unknown")
	}
	return v1.WithValues(v1.Times, out), nil
}

func broadcast(col mat.Matrix, cols int) *mat.Dense {
	rows, _ := col.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		x := col.At(i, 0)
		for j := 0; j < cols; j++ {
			out.Set(i, j, x)
		}
	}
	return out
}

// Clip replaces values outside [lo, hi] with NaN.
func Clip(v *tvar.Variable, lo, hi float64) (*tvar.Variable, error) {
	if lo > hi {
		return nil, errors.Wrapf(errors.ErrInvalidRange, "clip [%g, %g]", lo, hi)
	}
	if v.IsPseudo() {
		return nil, errors.Wrapf(errors.ErrPseudoVariable, "clip '%s'", v.Name)
	}
	out := mat.DenseCopyOf(v.Values)
	out.Apply(func(_, _ int, x float64) float64 {
		if x < lo || x > hi {
			return math.NaN()
		}
		return x
	}, out)
	return v.WithValues(v.Times, out), nil
}

// Crop restricts v1 and v2 to the time range they have in common.
func Crop(v1, v2 *tvar.Variable) (*tvar.Variable, *tvar.Variable, error) {
	s1, e1, ok1 := v1.Trange()
	s2, e2, ok2 := v2.Trange()
	if !ok1 || !ok2 {
		return nil, nil, errors.Wrapf(errors.ErrEmptyData, "crop '%s' and '%s'", v1.Name, v2.Name)
	}
	start, end := s1, e1
	if s2.After(start) {
		start = s2
	}
	if e2.Before(end) {
		end = e2
	}
	if start.After(end) {
		return nil, nil, errors.Wrapf(errors.ErrNoOverlap, "crop '%s' and '%s'", v1.Name, v2.Name)
	}

	a, err := TimeClip(v1, start, end)
	if err != nil {
		return nil, nil, err
	}
	b, err := TimeClip(v2, start, end)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// TimeClip keeps the samples inside [start, end].
func TimeClip(v *tvar.Variable, start, end time.Time) (*tvar.Variable, error) {
	if start.After(end) {
		return nil, errors.Wrapf(errors.ErrInvalidRange, "start %s is after end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	i, j := v.IndexRange(start, end)
	if i >= j {
		return nil, errors.Wrapf(errors.ErrNoOverlap, "'%s' has no data in the requested range", v.Name)
	}
	return v.Slice(i, j)
}

// DeflagMethod selects how flagged values are treated.
type DeflagMethod string

const (
	DeflagNaN       DeflagMethod = "nan"
	DeflagRepeat    DeflagMethod = "repeat"
	DeflagLinear    DeflagMethod = "linear"
	DeflagReplace   DeflagMethod = "replace"
	DeflagRemoveNaN DeflagMethod = "remove_nan"
)

// ParseDeflagMethod converts a method name; the empty string selects nan.
func ParseDeflagMethod(s string) (DeflagMethod, error) {
	switch m := DeflagMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return DeflagNaN, nil
	case DeflagNaN, DeflagRepeat, DeflagLinear, DeflagReplace, DeflagRemoveNaN:
		return m, nil
	default:
		return "", errors.NewInvalidOption("deflag method", s, "expected nan, repeat, linear, replace or remove_nan")
	}
}

// Deflag treats every value equal to one of flags (NaN when flags is
// empty) according to method:
//
//	nan         flagged values become NaN
//	repeat      flagged values repeat the previous unflagged value
//	linear      flagged values are interpolated in time
//	replace     flagged values become fill
//	remove_nan  samples containing NaN are dropped
func Deflag(v *tvar.Variable, flags []float64, method DeflagMethod, fill float64) (*tvar.Variable, error) {
	if v.IsPseudo() {
		return nil, errors.Wrapf(errors.ErrPseudoVariable, "deflag '%s'", v.Name)
	}
	if len(flags) == 0 {
		flags = []float64{math.NaN()}
	}
	isFlag := func(x float64) bool {
		for _, f := range flags {
			if (math.IsNaN(f) && math.IsNaN(x)) || x == f {
				return true
			}
		}
		return false
	}

	if method == DeflagRemoveNaN {
		var keep []int
		for i := 0; i < v.Len(); i++ {
			if !math.IsNaN(floats.Sum(v.Row(i))) {
				keep = append(keep, i)
			}
		}
		if len(keep) == 0 {
			return nil, errors.Wrapf(errors.ErrEmptyData, "deflag '%s': every sample is NaN", v.Name)
		}
		times := make([]time.Time, len(keep))
		out := mat.NewDense(len(keep), v.Cols(), nil)
		for k, i := range keep {
			times[k] = v.Times[i]
			out.SetRow(k, v.Row(i))
		}
		return v.WithValues(times, out), nil
	}

	out := mat.DenseCopyOf(v.Values)
	rows, cols := out.Dims()
	xs := v.Seconds()

	for j := 0; j < cols; j++ {
		col := v.Col(j)
		var good []int
		for i, x := range col {
			if !isFlag(x) {
				good = append(good, i)
			}
		}
		if len(good) == rows {
			continue
		}

		switch method {
		case DeflagNaN:
			for i, x := range col {
				if isFlag(x) {
					out.Set(i, j, math.NaN())
				}
			}
		case DeflagReplace:
			for i, x := range col {
				if isFlag(x) {
					out.Set(i, j, fill)
				}
			}
		case DeflagRepeat:
			if len(good) == 0 {
				return nil, errors.Wrapf(errors.ErrEmptyData, "deflag '%s': no unflagged data", v.Name)
			}
			prev := col[good[0]]
			for i, x := range col {
				if isFlag(x) {
					out.Set(i, j, prev)
				} else {
					prev = x
				}
			}
		case DeflagLinear:
			if len(good) == 0 {
				return nil, errors.Wrapf(errors.ErrEmptyData, "deflag '%s': no unflagged data", v.Name)
			}
			gx := make([]float64, len(good))
			gy := make([]float64, len(good))
			for k, i := range good {
				gx[k], gy[k] = xs[i], col[i]
			}
			for i, x := range col {
				if isFlag(x) {
					out.Set(i, j, interpClamped(gx, gy, xs[i]))
				}
			}
		default:
			return nil, errors.NewInvalidOption("deflag method", method, "unknown")
		}
	}
	return v.WithValues(v.Times, out), nil
}

// interpClamped interpolates like numpy.interp: values beyond the ends
// take the nearest end value.
func interpClamped(xs, ys []float64, t float64) float64 {
	n := len(xs)
	switch {
	case t <= xs[0]:
		return ys[0]
	case t >= xs[n-1]:
		return ys[n-1]
	}
	return interpAt(xs, ys, t)
}

// Flatten divides each trace by its mean. With a window, the mean is taken
// over the samples nearest to the window edges and between them.
func Flatten(v *tvar.Variable, window *options.TimeRange) (*tvar.Variable, error) {
	if v.IsPseudo() {
		return nil, errors.Wrapf(errors.ErrPseudoVariable, "flatten '%s'", v.Name)
	}
	i, j := 0, v.Len()
	if window != nil {
		i = nearest(v.Times, window.Start)
		j = nearest(v.Times, window.End) + 1
		if i >= j {
			return nil, errors.Wrapf(errors.ErrInvalidRange, "flatten '%s'", v.Name)
		}
	}

	out := mat.DenseCopyOf(v.Values)
	_, cols := out.Dims()
	for c := 0; c < cols; c++ {
		col := v.Col(c)
		m := nanMean(col[i:j])
		for r, x := range col {
			out.Set(r, c, x/m)
		}
	}
	return v.WithValues(v.Times, out), nil
}

func nearest(times []time.Time, t time.Time) int {
	best, bestDiff := 0, time.Duration(math.MaxInt64)
	for i, ti := range times {
		d := ti.Sub(t)
		if d < 0 {
			d = -d
		}
		if d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

// JoinVec combines the traces of several variables into one variable. The
// first variable's times are used; the others are interpolated onto them.
func JoinVec(name string, vars []*tvar.Variable) (*tvar.Variable, error) {
	if len(vars) == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "join_vec '%s': no variables", name)
	}
	first := vars[0]
	total := 0
	aligned := make([]*tvar.Variable, len(vars))
	for k, v := range vars {
		if v.IsPseudo() {
			return nil, errors.Wrapf(errors.ErrPseudoVariable, "join_vec '%s'", v.Name)
		}
		a := v
		if k > 0 && !sameTimes(first, v) {
			var err error
			if a, err = Interp(first, v); err != nil {
				return nil, err
			}
		}
		aligned[k] = a
		total += a.Cols()
	}

	rows := first.Len()
	out := mat.NewDense(rows, total, nil)
	col := 0
	for _, a := range aligned {
		for c := 0; c < a.Cols(); c++ {
			out.SetCol(col, a.Col(c))
			col++
		}
	}

	joined := first.WithValues(first.Times, out)
	joined.Name = name
	if len(vars) > 1 {
		joined.Options.LegendNames = nil
	}
	if len(first.Bins) > 0 && len(first.Bins) == total {
		joined.Bins = append([]float64(nil), first.Bins...)
	}
	return joined, nil
}

// JoinedName is the default result name of JoinVec.
func JoinedName(names []string) string {
	return strings.Join(names, "-") + "_joined"
}

// SplitSuffixes returns the default suffixes for splitting n traces.
func SplitSuffixes(n int, polar bool) []string {
	if n == 3 {
		if polar {
			return []string{"_mag", "_th", "_phi"}
		}
		return []string{"_x", "_y", "_z"}
	}
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("_%d", i)
	}
	return out
}

// SplitVec creates one single-trace variable per trace of v, named
// prefix+suffix. Metadata is copied to every part.
func SplitVec(v *tvar.Variable, prefix string, suffixes []string) ([]*tvar.Variable, error) {
	if v.IsPseudo() {
		return nil, errors.Wrapf(errors.ErrPseudoVariable, "split_vec '%s'", v.Name)
	}
	cols := v.Cols()
	if len(suffixes) < cols {
		return nil, errors.Wrapf(errors.NewLengthMismatch("suffixes", cols, len(suffixes)), "split_vec '%s'", v.Name)
	}

	out := make([]*tvar.Variable, cols)
	for c := 0; c < cols; c++ {
		values := mat.NewDense(v.Len(), 1, v.Col(c))
		part := v.WithValues(v.Times, values)
		part.Name = prefix + suffixes[c]
		part.Options.LegendNames = nil
		part.Options.Color = nil
		if col, ok := v.Options.ColorAt(c); ok {
			part.Options.Color = []string{col}
		}
		out[c] = part
	}
	return out, nil
}

// SubtractAverage removes the NaN-skipping mean (or median) of each trace.
// All-NaN traces are left unchanged.
func SubtractAverage(v *tvar.Variable, median bool) (*tvar.Variable, error) {
	if v.IsPseudo() {
		return nil, errors.Wrapf(errors.ErrPseudoVariable, "subtract average '%s'", v.Name)
	}
	out := mat.DenseCopyOf(v.Values)
	_, cols := out.Dims()
	for c := 0; c < cols; c++ {
		col := v.Col(c)
		var center float64
		if median {
			center = nanMedian(col)
		} else {
			center = nanMean(col)
		}
		if math.IsNaN(center) {
			continue
		}
		for r, x := range col {
			out.Set(r, c, x-center)
		}
	}
	return v.WithValues(v.Times, out), nil
}

// AvgRes averages every n consecutive samples, times included. A trailing
// partial window is dropped.
func AvgRes(v *tvar.Variable, n int) (*tvar.Variable, error) {
	if n < 1 {
		return nil, errors.NewInvalidOption("resolution", n, "must be at least 1")
	}
	if v.IsPseudo() {
		return nil, errors.Wrapf(errors.ErrPseudoVariable, "avg_res '%s'", v.Name)
	}
	groups := v.Len() / n
	if groups == 0 {
		return nil, errors.Wrapf(errors.ErrNotEnoughPoints, "avg_res '%s': %d samples, window %d", v.Name, v.Len(), n)
	}

	secs := v.Seconds()
	cols := v.Cols()
	times := make([]time.Time, groups)
	out := mat.NewDense(groups, cols, nil)
	for g := 0; g < groups; g++ {
		lo, hi := g*n, (g+1)*n
		times[g] = options.FromUnixSeconds(stat.Mean(secs[lo:hi], nil))
		for c := 0; c < cols; c++ {
			block := mat.Col(nil, c, v.Values.Slice(lo, hi, 0, cols))
			out.Set(g, c, stat.Mean(block, nil))
		}
	}
	return v.WithValues(times, out), nil
}

// nanMean is the mean of the finite-or-infinite non-NaN values of x, or NaN.
func nanMean(x []float64) float64 {
	vals := dropNaN(x)
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

func nanMedian(x []float64) float64 {
	vals := dropNaN(x)
	n := len(vals)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

func dropNaN(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Merge concatenates the samples of a and b in time order. Both must have
// the same number of traces.
func Merge(a, b *tvar.Variable) (*tvar.Variable, error) {
	if a.Cols() != b.Cols() {
		return nil, errors.Wrapf(errors.ErrShapeMismatch, "merge '%s' (%d traces) and '%s' (%d traces)",
			a.Name, a.Cols(), b.Name, b.Cols())
	}
	type sample struct {
		t   time.Time
		row []float64
	}
	samples := make([]sample, 0, a.Len()+b.Len())
	for _, v := range []*tvar.Variable{a, b} {
		for i, t := range v.Times {
			samples = append(samples, sample{t, v.Row(i)})
		}
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].t.Before(samples[j].t) })

	times := make([]time.Time, len(samples))
	out := mat.NewDense(len(samples), a.Cols(), nil)
	for i, s := range samples {
		times[i] = s.t
		out.SetRow(i, s.row)
	}
	return a.WithValues(times, out), nil
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}
